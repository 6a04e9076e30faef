// Package apiclient is the typed HTTP client CLI commands use to talk to a
// running forky API server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/merge"
	"github.com/forkyhq/forky/pkg/service"
	"github.com/forkyhq/forky/pkg/storage"
)

// Client talks to a forky API server.
type Client struct {
	target string
	http   *http.Client
}

// New creates a client for the given API target URL (e.g.
// "http://localhost:8080").
func New(target string) *Client {
	return &Client{
		target: target,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
}

func (e APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("API returned status %d: %s (%s)", e.StatusCode, e.Message, e.Reason)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.target+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			return APIError{StatusCode: resp.StatusCode, Message: eb.Error, Reason: eb.Reason}
		}
		return APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Ping checks server liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil)
}

// ListConversations returns all stored conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]storage.Summary, error) {
	var resp struct {
		Conversations []storage.Summary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ActiveConversation returns the conversation currently marked active.
func (c *Client) ActiveConversation(ctx context.Context) (*storage.Summary, error) {
	summaries, err := c.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if summaries[i].Active {
			return &summaries[i], nil
		}
	}
	return nil, fmt.Errorf("no active conversation; run \"forky load <id>\" or \"forky new\" first")
}

// CreateConversation creates a conversation and returns its id.
func (c *Client) CreateConversation(ctx context.Context, name string) (string, error) {
	var resp struct {
		ConversationID string `json:"conversation_id"`
	}
	err := c.do(ctx, http.MethodPost, "/conversations", map[string]string{"name": name}, &resp)
	return resp.ConversationID, err
}

// DeleteConversation removes a conversation and all of its nodes.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+id, nil, nil)
}

// RenameConversation updates a conversation's display name.
func (c *Client) RenameConversation(ctx context.Context, id, name string) error {
	return c.do(ctx, http.MethodPatch, "/conversations/"+id, map[string]string{"name": name}, nil)
}

// LoadConversation marks a conversation active and returns its checkout.
func (c *Client) LoadConversation(ctx context.Context, id string) (currentNodeID string, err error) {
	var resp struct {
		CurrentNodeID string `json:"current_node_id"`
	}
	err = c.do(ctx, http.MethodPost, "/conversations/"+id+"/load", nil, &resp)
	return resp.CurrentNodeID, err
}

// Graph returns the whole-graph projection of a conversation.
func (c *Client) Graph(ctx context.Context, id string) (service.GraphView, error) {
	var view service.GraphView
	err := c.do(ctx, http.MethodGet, "/conversations/"+id+"/graph", nil, &view)
	return view, err
}

// History returns the linearized root-to-current messages.
func (c *Client) History(ctx context.Context, id string) ([]conversation.Node, error) {
	var resp struct {
		History []conversation.Node `json:"history"`
	}
	err := c.do(ctx, http.MethodGet, "/conversations/"+id+"/history", nil, &resp)
	return resp.History, err
}

// Checkout moves a conversation's pointer to a node id or branch name.
func (c *Client) Checkout(ctx context.Context, id, identifier string) (string, error) {
	var resp struct {
		CurrentNodeID string `json:"current_node_id"`
	}
	err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/checkout",
		map[string]string{"identifier": identifier}, &resp)
	return resp.CurrentNodeID, err
}

// Fork inserts a named fork marker at the current checkout.
func (c *Client) Fork(ctx context.Context, id, branchName string) (string, error) {
	var resp struct {
		NodeID string `json:"node_id"`
	}
	err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/fork",
		map[string]string{"branch_name": branchName}, &resp)
	return resp.NodeID, err
}

// DeleteNode removes a node, rewiring its children onto its parents.
func (c *Client) DeleteNode(ctx context.Context, id, nodeID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+id+"/nodes/"+nodeID, nil, nil)
}

// MergeEligibility reports whether two nodes can merge.
func (c *Client) MergeEligibility(ctx context.Context, id, a, b string) (merge.Eligibility, error) {
	var elig merge.Eligibility
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/conversations/%s/merge/eligibility?a=%s&b=%s", id, a, b), nil, &elig)
	return elig, err
}

// Merge runs the three-way merge pipeline on the server.
func (c *Client) Merge(ctx context.Context, id, baseID, incomingID, mergePrompt string) (*merge.Result, error) {
	var result merge.Result
	err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/merge", map[string]string{
		"base_id":      baseID,
		"incoming_id":  incomingID,
		"merge_prompt": mergePrompt,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Search finds nodes across conversations matching the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]storage.SearchHit, error) {
	var resp struct {
		Hits []storage.SearchHit `json:"hits"`
	}
	path := "/search?q=" + url.QueryEscape(query)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Hits, err
}

// Models lists the server's available models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []string `json:"models"`
	}
	err := c.do(ctx, http.MethodGet, "/models", nil, &resp)
	return resp.Models, err
}
