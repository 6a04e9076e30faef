// Package service exposes conversation operations to every front-end: the
// HTTP API and the CLI both sit on ConversationService. It owns
// per-conversation write serialization, persistence round-trips, and event
// publication.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/eventstream"
	"github.com/forkyhq/forky/pkg/llm"
	"github.com/forkyhq/forky/pkg/merge"
	"github.com/forkyhq/forky/pkg/storage"
)

// DefaultLockDeadline is the soft deadline for acquiring a conversation's
// write lock before the operation reports Busy.
const DefaultLockDeadline = 5 * time.Second

// ConversationService is the façade every front-end consumes.
type ConversationService struct {
	driver storage.Driver
	model  llm.Client
	events eventstream.Publisher
	log    *zap.Logger

	locks        *lockTable
	lockDeadline time.Duration
}

// Option configures a ConversationService.
type Option func(*ConversationService)

// WithLockDeadline overrides the soft lock deadline, mainly for tests.
func WithLockDeadline(d time.Duration) Option {
	return func(s *ConversationService) {
		s.lockDeadline = d
	}
}

// New creates a service over the given store, model client and event
// publisher.
func New(driver storage.Driver, model llm.Client, events eventstream.Publisher, log *zap.Logger, opts ...Option) *ConversationService {
	s := &ConversationService{
		driver:       driver,
		model:        model,
		events:       events,
		log:          log,
		locks:        newLockTable(),
		lockDeadline: DefaultLockDeadline,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListConversations returns stored conversation summaries, most recently
// updated first.
func (s *ConversationService) ListConversations(ctx context.Context) ([]storage.Summary, error) {
	return s.driver.ListConversations(ctx)
}

// CreateConversation creates and persists a new conversation. An empty name
// gets a timestamped default.
func (s *ConversationService) CreateConversation(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = "Conversation " + time.Now().UTC().Format("2006-01-02 15:04")
	}

	g := conversation.New(name)
	if err := s.driver.SaveConversation(ctx, g); err != nil {
		return "", err
	}

	s.log.Info("conversation created", zap.String("conversation_id", g.ID), zap.String("name", name))

	return g.ID, nil
}

// DeleteConversation removes a conversation and all of its nodes.
func (s *ConversationService) DeleteConversation(ctx context.Context, id string) error {
	release, err := s.locks.acquire(ctx, id, s.lockDeadline)
	if err != nil {
		return err
	}
	defer release()

	if err := s.driver.DeleteConversation(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, &eventstream.GraphEvent{
		EventType:      eventstream.EventTypeConversationDeleted,
		ConversationID: id,
	})

	return nil
}

// RenameConversation updates a conversation's display name.
func (s *ConversationService) RenameConversation(ctx context.Context, id, name string) error {
	release, err := s.locks.acquire(ctx, id, s.lockDeadline)
	if err != nil {
		return err
	}
	defer release()

	return s.driver.RenameConversation(ctx, id, name)
}

// LoadConversation loads a conversation and marks it active.
func (s *ConversationService) LoadConversation(ctx context.Context, id string) (*conversation.Graph, error) {
	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.driver.SetActiveConversation(ctx, id); err != nil {
		return nil, err
	}
	g.Active = true

	return g, nil
}

// GetGraph returns the whole-graph projection for rendering.
func (s *ConversationService) GetGraph(ctx context.Context, id string) (GraphView, error) {
	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return GraphView{}, err
	}

	return graphView(g), nil
}

// GetHistory returns the linearized root-to-current message list with fork
// markers filtered out.
func (s *ConversationService) GetHistory(ctx context.Context, id string) ([]*conversation.Node, error) {
	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	return g.History(g.CurrentID)
}

// Checkout moves the conversation's pointer to a node id or named branch
// tip and returns the new current node id.
func (s *ConversationService) Checkout(ctx context.Context, id, identifier string) (string, error) {
	release, err := s.locks.acquire(ctx, id, s.lockDeadline)
	if err != nil {
		return "", err
	}
	defer release()

	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return "", err
	}

	current, err := g.Checkout(identifier)
	if err != nil {
		return "", err
	}

	if err := s.driver.SaveConversation(ctx, g); err != nil {
		return "", err
	}

	return current, nil
}

// Fork inserts a named fork marker at the current checkout and returns the
// marker id.
func (s *ConversationService) Fork(ctx context.Context, id, branchName string) (string, error) {
	release, err := s.locks.acquire(ctx, id, s.lockDeadline)
	if err != nil {
		return "", err
	}
	defer release()

	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return "", err
	}

	if branchName == "" {
		branchName = "branch-" + uuid.NewString()[:8]
	}

	markerID, err := g.Fork(g.CurrentID, branchName)
	if err != nil {
		return "", err
	}

	if err := s.driver.SaveConversation(ctx, g); err != nil {
		return "", err
	}

	s.publish(ctx, &eventstream.GraphEvent{
		EventType:      eventstream.EventTypeBranchForked,
		ConversationID: id,
		NodeID:         markerID,
		CurrentNodeID:  g.CurrentID,
		BranchName:     branchName,
	})

	return markerID, nil
}

// DeleteNode removes a node, rewiring its children onto its parents.
func (s *ConversationService) DeleteNode(ctx context.Context, id, nodeID string) error {
	release, err := s.locks.acquire(ctx, id, s.lockDeadline)
	if err != nil {
		return err
	}
	defer release()

	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return err
	}

	if err := g.DeleteNode(nodeID); err != nil {
		return err
	}

	if err := s.driver.SaveConversation(ctx, g); err != nil {
		return err
	}

	s.publish(ctx, &eventstream.GraphEvent{
		EventType:      eventstream.EventTypeNodeDeleted,
		ConversationID: id,
		NodeID:         nodeID,
		CurrentNodeID:  g.CurrentID,
	})

	return nil
}

// CheckMergeEligibility reports whether a and b can merge without running
// the pipeline.
func (s *ConversationService) CheckMergeEligibility(ctx context.Context, id, a, b string) (merge.Eligibility, error) {
	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return merge.Eligibility{}, err
	}

	return merge.CheckEligibility(g, a, b)
}

// Merge runs the three-way merge pipeline joining baseID (left) and
// incomingID (right). An empty baseID means the current checkout. The
// conversation lock is held for the whole pipeline.
func (s *ConversationService) Merge(ctx context.Context, id, baseID, incomingID, mergePrompt string) (*merge.Result, error) {
	release, err := s.locks.acquire(ctx, id, s.lockDeadline)
	if err != nil {
		return nil, err
	}
	defer release()

	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if baseID == "" {
		baseID = g.CurrentID
	}

	executor := merge.NewExecutor(s.model, s.log)
	result, err := executor.Merge(ctx, g, baseID, incomingID, mergePrompt)
	if err != nil {
		return nil, err
	}

	if err := s.driver.SaveConversation(ctx, g); err != nil {
		return nil, err
	}

	merged, nodeErr := g.Node(result.NodeID)
	if nodeErr == nil {
		s.publish(ctx, &eventstream.GraphEvent{
			EventType:      eventstream.EventTypeBranchesMerged,
			ConversationID: id,
			NodeID:         result.NodeID,
			CurrentNodeID:  g.CurrentID,
			Merge:          merged.MergeMetadata,
		})
	}

	return result, nil
}

// Search finds nodes across all conversations whose content matches the
// query substring.
func (s *ConversationService) Search(ctx context.Context, query string, limit int) ([]storage.SearchHit, error) {
	return s.driver.SearchNodes(ctx, query, limit)
}

// AvailableModels lists the model backend's advertised models.
func (s *ConversationService) AvailableModels(ctx context.Context) ([]string, error) {
	return s.model.AvailableModels(ctx)
}

// publish emits a graph event; failures are logged, never propagated. The
// graph commit is the source of truth, the stream is best-effort.
func (s *ConversationService) publish(ctx context.Context, event *eventstream.GraphEvent) {
	event.SchemaVersion = eventstream.SchemaVersionV1
	event.EventID = uuid.NewString()
	event.EmittedAt = time.Now().UTC()

	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed",
			zap.String("event_type", event.EventType),
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err))
	}
}
