// Package anthropic implements llm.Client against the Anthropic Messages
// API, including SSE streaming.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forkyhq/forky/pkg/llm"
	"github.com/forkyhq/forky/pkg/sse"
)

const (
	providerName     = "anthropic"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Client calls the Anthropic Messages API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates a client. model is the default used when a request doesn't
// name one.
func New(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "claude-haiku-4-5"
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, llm.ModelError{Provider: providerName, StatusCode: http.StatusOK, Message: resp.Error.Message}
	}
	if len(resp.Content) == 0 {
		return nil, errors.New("anthropic returned no content")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := &llm.ChatResponse{
		Model:      resp.Model,
		CreatedAt:  time.Now().UTC(),
		Message:    llm.NewTextMessage("assistant", text.String()),
		StopReason: resp.StopReason,
	}
	if resp.Usage != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
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

	var model string
	reader := sse.NewTeeReader(body, io.Discard)
	for {
		ev, err := reader.Next()
		if err != nil {
			return llm.WrapTransportError(providerName, err)
		}
		if ev == nil {
			return nil
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				model = event.Message.Model
			}
		case "content_block_delta":
			if event.Delta == nil || event.Delta.Type != "text_delta" {
				continue
			}
			if err := fn(llm.StreamChunk{Model: model, Delta: event.Delta.Text}); err != nil {
				return err
			}
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				chunk := llm.StreamChunk{Model: model, StopReason: event.Delta.StopReason}
				if event.Usage != nil {
					chunk.Usage = &llm.Usage{
						PromptTokens:     event.Usage.InputTokens,
						CompletionTokens: event.Usage.OutputTokens,
						TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
					}
				}
				if err := fn(chunk); err != nil {
					return err
				}
			}
		case "message_stop":
			return fn(llm.StreamChunk{Model: model, Done: true})
		case "error":
			if event.Error != nil {
				return llm.ModelError{Provider: providerName, StatusCode: http.StatusOK, Message: event.Error.Message}
			}
		}
	}
}

func (c *Client) AvailableModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, llm.WrapTransportError(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, llm.ModelError{Provider: providerName, StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var list anthropicModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}

	return models, nil
}

func (c *Client) buildRequest(req *llm.ChatRequest, stream bool) anthropicRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		// The Messages API rejects the system role inside messages.
		if msg.Role == "system" {
			continue
		}
		messages = append(messages, convertMessage(msg))
	}

	return anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeqs:    req.Stop,
		Stream:      stream,
	}
}

func convertMessage(msg llm.Message) anthropicMessage {
	multimodal := false
	for _, block := range msg.Content {
		if block.Type == "image" {
			multimodal = true
			break
		}
	}
	if !multimodal {
		return anthropicMessage{Role: msg.Role, Content: msg.GetText()}
	}

	blocks := make([]contentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, contentBlock{Type: "text", Text: block.Text})
		case "image":
			src := &imageSource{}
			if block.ImageBase64 != "" {
				src.Type = "base64"
				src.MediaType = block.MediaType
				src.Data = block.ImageBase64
			} else {
				src.Type = "url"
				src.URL = block.ImageURL
			}
			blocks = append(blocks, contentBlock{Type: "image", Source: src})
		}
	}

	return anthropicMessage{Role: msg.Role, Content: blocks}
}

func (c *Client) post(ctx context.Context, reqBody anthropicRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

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
