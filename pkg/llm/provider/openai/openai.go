// Package openai implements llm.Client against OpenAI's Chat Completions
// API, including SSE streaming.
package openai

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

const providerName = "openai"

// Client calls the OpenAI Chat Completions API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates a client. model is the default used when a request doesn't
// name one; baseURL defaults to the public API and is overridable for
// compatible gateways.
func New(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
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

	var resp openaiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, llm.ModelError{Provider: providerName, StatusCode: http.StatusOK, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	choice := resp.Choices[0]
	out := &llm.ChatResponse{
		Model:      resp.Model,
		CreatedAt:  time.Unix(resp.Created, 0).UTC(),
		Message:    llm.NewTextMessage(choice.Message.Role, choice.Message.Content),
		StopReason: choice.FinishReason,
	}
	if resp.Usage != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
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

	reader := sse.NewTeeReader(body, io.Discard)
	for {
		ev, err := reader.Next()
		if err != nil {
			return llm.WrapTransportError(providerName, err)
		}
		if ev == nil {
			return nil
		}
		if ev.Data == "[DONE]" {
			return fn(llm.StreamChunk{Done: true})
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			// Keep-alives and unknown events are skipped, not fatal.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		out := llm.StreamChunk{
			Model: chunk.Model,
			Delta: chunk.Choices[0].Delta.Content,
		}
		if chunk.Choices[0].FinishReason != nil {
			out.StopReason = *chunk.Choices[0].FinishReason
		}
		if chunk.Usage != nil {
			out.Usage = &llm.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if err := fn(out); err != nil {
			return err
		}
	}
}

func (c *Client) AvailableModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, llm.WrapTransportError(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, llm.ModelError{Provider: providerName, StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var list openaiModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}

	return models, nil
}

func (c *Client) buildRequest(req *llm.ChatRequest, stream bool) openaiRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openaiMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	out := openaiRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if req.JSONOnly {
		out.ResponseFormat = &respFormat{Type: "json_object"}
	}

	return out
}

// convertMessage flattens text-only messages to a plain string and expands
// multimodal messages into content parts.
func convertMessage(msg llm.Message) openaiMessage {
	multimodal := false
	for _, block := range msg.Content {
		if block.Type == "image" {
			multimodal = true
			break
		}
	}
	if !multimodal {
		return openaiMessage{Role: msg.Role, Content: msg.GetText()}
	}

	parts := make([]contentPart, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			parts = append(parts, contentPart{Type: "text", Text: block.Text})
		case "image":
			url := block.ImageURL
			if url == "" && block.ImageBase64 != "" {
				url = "data:" + block.MediaType + ";base64," + block.ImageBase64
			}
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
		}
	}

	return openaiMessage{Role: msg.Role, Content: parts}
}

func (c *Client) post(ctx context.Context, reqBody openaiRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
