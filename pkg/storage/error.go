package storage

// NotFoundError is returned when a conversation doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "conversation not found"
	}

	return "conversation not found: " + e.ID
}

// CorruptStoreError is returned when persisted rows fail invariant
// validation on load.
type CorruptStoreError struct {
	ConversationID string
	Err            error
}

func (e CorruptStoreError) Error() string {
	return "corrupt store for conversation " + e.ConversationID + ": " + e.Err.Error()
}

func (e CorruptStoreError) Unwrap() error {
	return e.Err
}
