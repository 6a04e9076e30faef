package conversation

import "errors"

// ErrCannotDeleteRoot is returned when a delete targets the conversation root.
var ErrCannotDeleteRoot = errors.New("cannot_delete_root")

// ErrCannotDeleteCurrent is returned when a delete would strand the checkout
// pointer with no surviving ancestor to reposition to.
var ErrCannotDeleteCurrent = errors.New("cannot_delete_current")

// UnknownNodeError is returned when a node id does not exist in the conversation.
type UnknownNodeError struct {
	ID string
}

func (e UnknownNodeError) Error() string {
	return "unknown node: " + e.ID
}

// UnknownIdentifierError is returned by checkout when neither a node id nor
// a branch name matches the identifier.
type UnknownIdentifierError struct {
	Identifier string
}

func (e UnknownIdentifierError) Error() string {
	return "unknown identifier: " + e.Identifier
}

// InvalidParentError is returned when an append targets a missing parent.
type InvalidParentError struct {
	ParentID string
}

func (e InvalidParentError) Error() string {
	return "invalid parent: " + e.ParentID
}

// CorruptError is returned when a loaded conversation violates a graph
// invariant. The operation that detects it must not commit.
type CorruptError struct {
	ConversationID string
	Reason         string
}

func (e CorruptError) Error() string {
	return "corrupt conversation " + e.ConversationID + ": " + e.Reason
}
