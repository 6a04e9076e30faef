package service

import (
	"context"
	"sync"
	"time"
)

// lockTable hands out one binary semaphore per conversation id. Writers
// hold the semaphore for the whole operation, merges and streamed turns
// included, so current_node_id and the graph mutate atomically with respect
// to other writers on that conversation.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (t *lockTable) semaphore(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	sem, ok := t.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		t.locks[id] = sem
	}
	return sem
}

// acquire blocks until the conversation lock is held, the soft deadline
// passes, or ctx is done. The returned release function must be called
// exactly once.
func (t *lockTable) acquire(ctx context.Context, id string, deadline time.Duration) (func(), error) {
	sem := t.semaphore(id)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, BusyError{ConversationID: id}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
