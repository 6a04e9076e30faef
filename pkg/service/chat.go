package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/eventstream"
	"github.com/forkyhq/forky/pkg/llm"
)

// chatChunkBuffer bounds the chunk channel so a slow consumer applies
// backpressure to the provider read loop.
const chatChunkBuffer = 64

// ChatChunk is one unit of a streamed chat turn. Exactly one terminal chunk
// is sent: either Done with the committed node ids, or Err.
type ChatChunk struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`

	// Set on the terminal Done chunk.
	UserNodeID      string `json:"user_node_id,omitempty"`
	AssistantNodeID string `json:"assistant_node_id,omitempty"`

	Err error `json:"-"`
}

// Chat appends a user node at the current checkout, streams the model's
// reply, then commits the assistant node. Chunks arrive on the returned
// channel, which closes after the terminal chunk.
//
// The conversation lock is held for the whole turn. If the client cancels
// mid-stream, partial assistant content accumulated so far is still
// committed; a failure before any content leaves the graph untouched.
func (s *ConversationService) Chat(ctx context.Context, id, message, model string, attachments ...conversation.Attachment) (<-chan ChatChunk, error) {
	release, err := s.locks.acquire(ctx, id, s.lockDeadline)
	if err != nil {
		return nil, err
	}

	g, err := s.driver.LoadConversation(ctx, id)
	if err != nil {
		release()
		return nil, err
	}

	userNodeID, err := g.Append(g.CurrentID, conversation.RoleUser, message, attachments...)
	if err != nil {
		release()
		return nil, err
	}

	history, err := g.History(userNodeID)
	if err != nil {
		release()
		return nil, err
	}

	out := make(chan ChatChunk, chatChunkBuffer)
	go func() {
		defer release()
		defer close(out)

		var accumulated strings.Builder
		streamErr := s.model.Stream(ctx, &llm.ChatRequest{
			Model:    model,
			Messages: historyMessages(history),
		}, func(chunk llm.StreamChunk) error {
			if chunk.Delta == "" {
				return nil
			}
			accumulated.WriteString(chunk.Delta)
			select {
			case out <- ChatChunk{Delta: chunk.Delta}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		content := accumulated.String()
		if streamErr != nil && content == "" {
			// Nothing arrived: abort without committing either node.
			out <- ChatChunk{Err: streamErr}
			return
		}

		// Success, or cancellation with partial content: commit the turn.
		assistantNodeID, err := g.Append(userNodeID, conversation.RoleAssistant, content)
		if err != nil {
			out <- ChatChunk{Err: err}
			return
		}

		// Persistence uses a fresh context: the turn must commit even when
		// the client has already disconnected.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lockDeadline)
		defer cancel()
		if err := s.driver.SaveConversation(saveCtx, g); err != nil {
			out <- ChatChunk{Err: err}
			return
		}

		if streamErr != nil {
			s.log.Warn("chat stream ended early, partial turn committed",
				zap.String("conversation_id", id),
				zap.String("assistant_node_id", assistantNodeID),
				zap.Error(streamErr))
		}

		s.publish(saveCtx, &eventstream.GraphEvent{
			EventType:      eventstream.EventTypeNodeAppended,
			ConversationID: id,
			NodeID:         assistantNodeID,
			CurrentNodeID:  g.CurrentID,
		})

		out <- ChatChunk{
			Done:            true,
			UserNodeID:      userNodeID,
			AssistantNodeID: assistantNodeID,
		}
	}()

	return out, nil
}

// historyMessages projects graph nodes into model messages. Root and fork
// markers never reach here; History already filters markers and the root's
// payload is a plain system line.
func historyMessages(history []*conversation.Node) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, n := range history {
		if n.IsRoot() {
			continue
		}
		msg := llm.NewTextMessage(string(n.Role), n.Content)
		for _, att := range n.Attachments {
			msg.Content = append(msg.Content, llm.ContentBlock{
				Type:      "image",
				ImageURL:  att.Filename,
				MediaType: att.MediaType,
			})
		}
		out = append(out, msg)
	}
	return out
}
