package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/service"
	"github.com/forkyhq/forky/pkg/sse"
)

// Chat sends a chat turn and streams the reply. Each delta is passed to fn
// as it arrives. The returned chunk is the terminal one carrying the
// committed node ids.
func (c *Client) Chat(ctx context.Context, id, message, model string, attachments []conversation.Attachment, fn func(delta string)) (*service.ChatChunk, error) {
	raw, err := json.Marshal(map[string]any{
		"message":     message,
		"model":       model,
		"attachments": attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.target+"/conversations/"+id+"/chat", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Model responses can be slow; the stream client has no overall timeout.
	streamClient := &http.Client{Timeout: 10 * time.Minute}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			return nil, APIError{StatusCode: resp.StatusCode, Message: eb.Error, Reason: eb.Reason}
		}
		return nil, APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	reader := sse.NewTeeReader(resp.Body, io.Discard)
	for {
		event, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		if event == nil {
			return nil, fmt.Errorf("stream ended without a terminal chunk")
		}

		if event.Type == "error" {
			var eb errorBody
			if json.Unmarshal([]byte(event.Data), &eb) == nil && eb.Error != "" {
				return nil, fmt.Errorf("chat failed: %s", eb.Error)
			}
			return nil, fmt.Errorf("chat failed: %s", event.Data)
		}

		var chunk service.ChatChunk
		if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
			continue
		}

		if chunk.Delta != "" && fn != nil {
			fn(chunk.Delta)
		}
		if chunk.Done {
			return &chunk, nil
		}
	}
}
