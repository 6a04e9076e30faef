// Package conversation implements the conversation DAG: role-tagged nodes
// with multi-valued parentage, git-style fork markers, and merge nodes that
// join two branches under a recorded common ancestor.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a node's payload with its conversational origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	// RootContent is the payload of the single system node that roots every
	// conversation.
	RootContent = "Root"

	// ForkMarkerContent is the payload of a system node that records a named
	// branching point. Fork markers carry no model-visible content.
	ForkMarkerContent = "<FORK>"
)

// ConflictKind classifies how two branches' changes overlap.
type ConflictKind string

const (
	// ConflictContradicts: one side added an item whose handle the other side removed.
	ConflictContradicts ConflictKind = "contradicts"

	// ConflictDiverges: both sides added different items sharing a handle.
	ConflictDiverges ConflictKind = "diverges"

	// ConflictBothModified: both sides changed the same item to different values.
	ConflictBothModified ConflictKind = "both_modified"
)

// ConflictRecord is a single detected overlap between the two branches'
// diffs against their common ancestor. Conflicts are surfaced to the model,
// never auto-resolved.
type ConflictRecord struct {
	Category  string       `json:"category"`
	LeftItem  string       `json:"left_item"`
	RightItem string       `json:"right_item"`
	Kind      ConflictKind `json:"kind"`
}

// MergeMetadata is present on merge nodes only. LeftParentID is the primary
// parent followed by history linearization.
type MergeMetadata struct {
	LCAID         string           `json:"lca_id"`
	LeftParentID  string           `json:"left_parent_id"`
	RightParentID string           `json:"right_parent_id"`
	Conflicts     []ConflictRecord `json:"conflicts"`
}

// Attachment is an opaque external reference carried by a node. The core
// never interprets attachment contents; adapters resolve them to
// model-native representations.
type Attachment struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// Node is a single committed entry in the conversation DAG. Once committed,
// ID, Role, Content, ParentIDs and CreatedAt never change; the only
// permitted mutation is removal via Graph.DeleteNode.
type Node struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// ParentIDs is ordinal-ordered: index 0 is the primary parent, which
	// history linearization follows. Empty for the root, one entry for
	// ordinary nodes, exactly two for merge nodes.
	ParentIDs []string `json:"parent_ids"`

	// BranchName labels fork markers and is inheritable for display.
	BranchName string `json:"branch_name,omitempty"`

	MergeMetadata *MergeMetadata `json:"merge_metadata,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// NewNode creates an uncommitted node with a fresh id and timestamp.
func NewNode(role Role, content string, parentIDs ...string) *Node {
	return &Node{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		ParentIDs: append([]string(nil), parentIDs...),
	}
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (n *Node) Clone() *Node {
	out := *n
	out.ParentIDs = append([]string(nil), n.ParentIDs...)
	out.Attachments = append([]Attachment(nil), n.Attachments...)
	if n.MergeMetadata != nil {
		meta := *n.MergeMetadata
		meta.Conflicts = append([]ConflictRecord(nil), n.MergeMetadata.Conflicts...)
		out.MergeMetadata = &meta
	}
	return &out
}

// IsRoot reports whether the node has no parents.
func (n *Node) IsRoot() bool {
	return len(n.ParentIDs) == 0
}

// IsForkMarker reports whether the node records a branching point.
func (n *Node) IsForkMarker() bool {
	return n.Role == RoleSystem && n.Content == ForkMarkerContent
}

// IsMerge reports whether the node joins two branches.
func (n *Node) IsMerge() bool {
	return len(n.ParentIDs) == 2 && n.MergeMetadata != nil
}

// PrimaryParentID returns the parent that history linearization follows:
// the recorded left parent for merge nodes, the sole parent otherwise.
// Returns "" for the root.
func (n *Node) PrimaryParentID() string {
	if n.IsRoot() {
		return ""
	}
	if n.IsMerge() {
		return n.MergeMetadata.LeftParentID
	}
	return n.ParentIDs[0]
}
