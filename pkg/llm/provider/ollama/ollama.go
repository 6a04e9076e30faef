// Package ollama implements llm.Client against a local Ollama daemon.
// Streaming uses Ollama's NDJSON framing rather than SSE.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forkyhq/forky/pkg/llm"
)

const providerName = "ollama"

// Client calls Ollama's chat API.
type Client struct {
	model   string
	baseURL string
	http    *http.Client
}

// New creates a client. model is the default used when a request doesn't
// name one; baseURL defaults to the local daemon.
func New(model, baseURL string) *Client {
	if model == "" {
		model = "llama3.2"
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp ollamaResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, llm.ModelError{Provider: providerName, StatusCode: http.StatusOK, Message: resp.Error}
	}

	out := &llm.ChatResponse{
		Model:      resp.Model,
		CreatedAt:  time.Now().UTC(),
		Message:    llm.NewTextMessage("assistant", resp.Message.Content),
		StopReason: resp.DoneReason,
	}
	if resp.EvalCount > 0 || resp.PromptEvalCount > 0 {
		out.Usage = &llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			TotalDurationNs:  resp.TotalDuration,
		}
	}

	return out, nil
}

func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, fn llm.StreamFunc) error {
	body, err := c.post(ctx, c.buildRequest(req, true))
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp ollamaResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return llm.ModelError{Provider: providerName, StatusCode: http.StatusOK, Message: resp.Error}
		}

		chunk := llm.StreamChunk{
			Model: resp.Model,
			Delta: resp.Message.Content,
			Done:  resp.Done,
		}
		if resp.Done {
			chunk.StopReason = resp.DoneReason
			if resp.EvalCount > 0 || resp.PromptEvalCount > 0 {
				chunk.Usage = &llm.Usage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					TotalDurationNs:  resp.TotalDuration,
				}
			}
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if resp.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return llm.WrapTransportError(providerName, err)
	}

	return nil
}

func (c *Client) AvailableModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, llm.WrapTransportError(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, llm.ModelError{Provider: providerName, StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var list ollamaTagList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode tag list: %w", err)
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.Name)
	}

	return models, nil
}

func (c *Client) buildRequest(req *llm.ChatRequest, stream bool) ollamaRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		converted := ollamaMessage{Role: msg.Role, Content: msg.GetText()}
		for _, block := range msg.Content {
			if block.Type == "image" && block.ImageBase64 != "" {
				converted.Images = append(converted.Images, block.ImageBase64)
			}
		}
		messages = append(messages, converted)
	}

	out := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}
	if req.JSONOnly {
		out.Format = "json"
	}
	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil || len(req.Stop) > 0 {
		out.Options = &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}

	return out
}

func (c *Client) post(ctx context.Context, reqBody ollamaRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, llm.WrapTransportError(providerName, err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, llm.ModelError{Provider: providerName, StatusCode: resp.StatusCode, Message: string(raw)}
	}

	return resp.Body, nil
}

var _ llm.Client = (*Client)(nil)
