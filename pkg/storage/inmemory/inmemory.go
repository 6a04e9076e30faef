// Package inmemory provides a map-backed conversation store for tests and
// ephemeral sessions. Nothing survives process exit.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/storage"
)

type record struct {
	graph     *conversation.Graph
	updatedAt time.Time
}

// Driver implements storage.Driver entirely in memory. Graphs are deep
// copied on the way in and out so callers can't alias the stored state.
type Driver struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewDriver creates an empty in-memory store.
func NewDriver() *Driver {
	return &Driver{records: make(map[string]*record)}
}

func cloneGraph(g *conversation.Graph) (*conversation.Graph, error) {
	src := g.Nodes()
	nodes := make([]*conversation.Node, 0, len(src))
	for _, n := range src {
		nodes = append(nodes, n.Clone())
	}
	return conversation.Rehydrate(g.ID, g.Name, g.CreatedAt, g.Active, g.CurrentID, nodes)
}

// SaveConversation stores a deep copy of the graph.
func (d *Driver) SaveConversation(ctx context.Context, g *conversation.Graph) error {
	cloned, err := cloneGraph(g)
	if err != nil {
		return storage.CorruptStoreError{ConversationID: g.ID, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[g.ID] = &record{graph: cloned, updatedAt: time.Now().UTC()}

	return nil
}

// LoadConversation returns a deep copy of the stored graph.
func (d *Driver) LoadConversation(ctx context.Context, id string) (*conversation.Graph, error) {
	d.mu.RLock()
	rec, ok := d.records[id]
	d.mu.RUnlock()
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	cloned, err := cloneGraph(rec.graph)
	if err != nil {
		return nil, storage.CorruptStoreError{ConversationID: id, Err: err}
	}

	return cloned, nil
}

// ListConversations returns summaries, most recently updated first.
func (d *Driver) ListConversations(ctx context.Context) ([]storage.Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	summaries := make([]storage.Summary, 0, len(d.records))
	for _, rec := range d.records {
		summaries = append(summaries, storage.Summary{
			ID:            rec.graph.ID,
			Name:          rec.graph.Name,
			CreatedAt:     rec.graph.CreatedAt,
			UpdatedAt:     rec.updatedAt,
			Active:        rec.graph.Active,
			CurrentNodeID: rec.graph.CurrentID,
			NodeCount:     rec.graph.Len(),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})

	return summaries, nil
}

// DeleteConversation removes the conversation.
func (d *Driver) DeleteConversation(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	delete(d.records, id)

	return nil
}

// RenameConversation updates the display name.
func (d *Driver) RenameConversation(ctx context.Context, id, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}
	rec.graph.Name = name
	rec.updatedAt = time.Now().UTC()

	return nil
}

// SetActiveConversation marks id active and clears the flag everywhere else.
func (d *Driver) SetActiveConversation(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}
	for _, other := range d.records {
		other.graph.Active = false
	}
	rec.graph.Active = true
	rec.updatedAt = time.Now().UTC()

	return nil
}

// SearchNodes finds nodes whose content contains the query, newest first.
func (d *Driver) SearchNodes(ctx context.Context, query string, limit int) ([]storage.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(query)

	d.mu.RLock()
	defer d.mu.RUnlock()

	type scoredHit struct {
		hit       storage.SearchHit
		createdAt time.Time
	}
	var scored []scoredHit
	for _, rec := range d.records {
		for _, n := range rec.graph.Nodes() {
			if !strings.Contains(strings.ToLower(n.Content), needle) {
				continue
			}
			scored = append(scored, scoredHit{
				hit: storage.SearchHit{
					ConversationID:   rec.graph.ID,
					ConversationName: rec.graph.Name,
					NodeID:           n.ID,
					Role:             n.Role,
					Snippet:          storage.Snippet(n.Content, query, 60),
				},
				createdAt: n.CreatedAt,
			})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if !scored[i].createdAt.Equal(scored[j].createdAt) {
			return scored[i].createdAt.After(scored[j].createdAt)
		}
		return scored[i].hit.NodeID < scored[j].hit.NodeID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	hits := make([]storage.SearchHit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, s.hit)
	}

	return hits, nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
