package service

// BusyError reports that a conversation's write lock could not be acquired
// before the soft deadline. Clients retry; nothing was mutated.
type BusyError struct {
	ConversationID string
}

func (e BusyError) Error() string {
	return "conversation busy: " + e.ConversationID
}
