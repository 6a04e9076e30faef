// Package eventstream defines transport-neutral lifecycle events for
// conversation mutations and the Publisher interface backends implement.
package eventstream

import (
	"time"

	"github.com/forkyhq/forky/pkg/conversation"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeNodeAppended is emitted after a node commits.
	EventTypeNodeAppended = "forky.node.appended"

	// EventTypeBranchForked is emitted after a fork marker commits.
	EventTypeBranchForked = "forky.branch.forked"

	// EventTypeBranchesMerged is emitted after a merge node commits.
	EventTypeBranchesMerged = "forky.branches.merged"

	// EventTypeNodeDeleted is emitted after a node is removed.
	EventTypeNodeDeleted = "forky.node.deleted"

	// EventTypeConversationDeleted is emitted after a whole conversation is
	// removed.
	EventTypeConversationDeleted = "forky.conversation.deleted"
)

// GraphEvent is a transport-neutral payload describing one committed
// mutation of a conversation graph.
type GraphEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ConversationID string `json:"conversation_id"`

	// NodeID is the committed or removed node, empty for
	// conversation-scoped events.
	NodeID string `json:"node_id,omitempty"`

	// CurrentNodeID is the checkout pointer after the mutation.
	CurrentNodeID string `json:"current_node_id,omitempty"`

	// BranchName is set on fork events.
	BranchName string `json:"branch_name,omitempty"`

	// Merge carries merge-specific detail on merge events.
	Merge *conversation.MergeMetadata `json:"merge,omitempty"`
}
