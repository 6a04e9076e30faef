// Package storage defines the persistence contract for conversations.
// Drivers persist whole conversation graphs atomically: either every node,
// edge and the checkout pointer are durable, or none are.
package storage

import (
	"context"
	"time"

	"github.com/forkyhq/forky/pkg/conversation"
)

// Summary is a lightweight listing row for a stored conversation.
type Summary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Active        bool      `json:"is_active"`
	CurrentNodeID string    `json:"current_node_id"`
	NodeCount     int       `json:"node_count"`
}

// SearchHit is a single cross-conversation content match.
type SearchHit struct {
	ConversationID   string            `json:"conversation_id"`
	ConversationName string            `json:"conversation_name"`
	NodeID           string            `json:"node_id"`
	Role             conversation.Role `json:"role"`
	Snippet          string            `json:"snippet"`
}

// Driver is the persistence interface for conversation graphs.
//
// Drivers serialize writes per conversation: one logical writer at a time.
// Writes to different conversations may proceed in parallel.
type Driver interface {
	// SaveConversation persists the entire conversation atomically.
	SaveConversation(ctx context.Context, g *conversation.Graph) error

	// LoadConversation reconstructs the in-memory graph with all invariants
	// validated. A validation failure surfaces as CorruptStoreError.
	LoadConversation(ctx context.Context, id string) (*conversation.Graph, error)

	// ListConversations returns summaries ordered by most recent update.
	ListConversations(ctx context.Context) ([]Summary, error)

	// DeleteConversation removes a conversation and all of its nodes.
	DeleteConversation(ctx context.Context, id string) error

	// RenameConversation updates the display name.
	RenameConversation(ctx context.Context, id, name string) error

	// SetActiveConversation marks one conversation active and clears the
	// flag everywhere else.
	SetActiveConversation(ctx context.Context, id string) error

	// SearchNodes finds nodes whose content matches the query substring,
	// case-insensitively, across all conversations.
	SearchNodes(ctx context.Context, query string, limit int) ([]SearchHit, error)

	// Close releases driver resources.
	Close() error
}
