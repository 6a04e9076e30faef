package service_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/eventstream/nop"
	"github.com/forkyhq/forky/pkg/llm"
	"github.com/forkyhq/forky/pkg/service"
	"github.com/forkyhq/forky/pkg/storage/inmemory"
)

// streamClient streams canned deltas and then returns streamErr. A non-nil
// gate blocks the stream until the gate closes, to hold the conversation
// lock open from a test.
type streamClient struct {
	deltas    []string
	streamErr error
	gate      chan struct{}

	lastRequest *llm.ChatRequest
}

func (c *streamClient) Name() string { return "stream" }

func (c *streamClient) Complete(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req.JSONOnly {
		return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", `{"topic":"t"}`)}, nil
	}
	return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", "merged content")}, nil
}

func (c *streamClient) Stream(ctx context.Context, req *llm.ChatRequest, fn llm.StreamFunc) error {
	c.lastRequest = req
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, delta := range c.deltas {
		if err := fn(llm.StreamChunk{Delta: delta}); err != nil {
			return err
		}
	}
	return c.streamErr
}

func (c *streamClient) AvailableModels(_ context.Context) ([]string, error) {
	return []string{"stream"}, nil
}

// drain collects every chunk until the channel closes and returns the
// concatenated deltas plus the terminal chunk.
func drain(ch <-chan service.ChatChunk) (string, service.ChatChunk) {
	var text strings.Builder
	var last service.ChatChunk
	for chunk := range ch {
		text.WriteString(chunk.Delta)
		if chunk.Done || chunk.Err != nil {
			last = chunk
		}
	}
	return text.String(), last
}

var _ = Describe("ConversationService", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		client *streamClient
		svc    *service.ConversationService
	)

	newService := func() *service.ConversationService {
		return service.New(driver, client, nop.NewPublisher(), zap.NewNop(),
			service.WithLockDeadline(100*time.Millisecond))
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		client = &streamClient{deltas: []string{"Hello", ", ", "world."}}
		svc = newService()
	})

	Describe("CreateConversation", func() {
		It("persists a conversation with the given name", func() {
			id, err := svc.CreateConversation(ctx, "my project")
			Expect(err).NotTo(HaveOccurred())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Name).To(Equal("my project"))
			Expect(g.Len()).To(Equal(1))
		})

		It("defaults an empty name to a timestamped one", func() {
			id, err := svc.CreateConversation(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Name).To(HavePrefix("Conversation "))
		})
	})

	Describe("LoadConversation", func() {
		It("marks the loaded conversation active", func() {
			a, err := svc.CreateConversation(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			b, err := svc.CreateConversation(ctx, "b")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.LoadConversation(ctx, a)
			Expect(err).NotTo(HaveOccurred())
			g, err := svc.LoadConversation(ctx, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Active).To(BeTrue())

			summaries, err := svc.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, s := range summaries {
				Expect(s.Active).To(Equal(s.ID == b))
			}
		})
	})

	Describe("Chat", func() {
		var id string

		BeforeEach(func() {
			var err error
			id, err = svc.CreateConversation(ctx, "chat test")
			Expect(err).NotTo(HaveOccurred())
		})

		It("streams deltas and commits the user and assistant nodes together", func() {
			ch, err := svc.Chat(ctx, id, "say hello", "")
			Expect(err).NotTo(HaveOccurred())

			text, last := drain(ch)
			Expect(text).To(Equal("Hello, world."))
			Expect(last.Done).To(BeTrue())
			Expect(last.Err).NotTo(HaveOccurred())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Len()).To(Equal(3))

			user, err := g.Node(last.UserNodeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal(conversation.RoleUser))
			Expect(user.Content).To(Equal("say hello"))

			assistant, err := g.Node(last.AssistantNodeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(assistant.Role).To(Equal(conversation.RoleAssistant))
			Expect(assistant.Content).To(Equal("Hello, world."))
			Expect(assistant.ParentIDs).To(Equal([]string{user.ID}))
			Expect(g.CurrentID).To(Equal(assistant.ID))
		})

		It("sends the dialogue history to the model without the root", func() {
			ch, err := svc.Chat(ctx, id, "say hello", "test-model")
			Expect(err).NotTo(HaveOccurred())
			drain(ch)

			Expect(client.lastRequest.Model).To(Equal("test-model"))
			Expect(client.lastRequest.Messages).To(HaveLen(1))
			Expect(client.lastRequest.Messages[0].GetText()).To(Equal("say hello"))
		})

		It("commits nothing when the stream fails before any content", func() {
			client.deltas = nil
			client.streamErr = llm.ModelUnavailableError{Provider: "stream"}

			ch, err := svc.Chat(ctx, id, "say hello", "")
			Expect(err).NotTo(HaveOccurred())

			text, last := drain(ch)
			Expect(text).To(BeEmpty())
			Expect(last.Err).To(HaveOccurred())
			Expect(last.Done).To(BeFalse())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Len()).To(Equal(1))
		})

		It("commits the partial turn when the stream dies mid-reply", func() {
			client.deltas = []string{"partial answer"}
			client.streamErr = llm.ModelTimeoutError{Provider: "stream"}

			ch, err := svc.Chat(ctx, id, "say hello", "")
			Expect(err).NotTo(HaveOccurred())

			text, last := drain(ch)
			Expect(text).To(Equal("partial answer"))
			Expect(last.Done).To(BeTrue())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			assistant, err := g.Node(last.AssistantNodeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(assistant.Content).To(Equal("partial answer"))
		})

		It("reports Busy when another turn holds the conversation", func() {
			client.gate = make(chan struct{})
			defer close(client.gate)

			ch, err := svc.Chat(ctx, id, "long turn", "")
			Expect(err).NotTo(HaveOccurred())
			go func() { drain(ch) }()

			_, err = svc.Fork(ctx, id, "blocked")

			var busy service.BusyError
			Expect(errors.As(err, &busy)).To(BeTrue())
			Expect(busy.ConversationID).To(Equal(id))
		})
	})

	Describe("Fork and Checkout", func() {
		var id string

		BeforeEach(func() {
			var err error
			id, err = svc.CreateConversation(ctx, "fork test")
			Expect(err).NotTo(HaveOccurred())
		})

		It("persists a named fork marker at the checkout", func() {
			markerID, err := svc.Fork(ctx, id, "experiment")
			Expect(err).NotTo(HaveOccurred())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			marker, err := g.Node(markerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(marker.IsForkMarker()).To(BeTrue())
			Expect(marker.BranchName).To(Equal("experiment"))
			Expect(g.CurrentID).To(Equal(markerID))
		})

		It("generates a branch name when none is given", func() {
			markerID, err := svc.Fork(ctx, id, "")
			Expect(err).NotTo(HaveOccurred())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			marker, err := g.Node(markerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(marker.BranchName).To(HavePrefix("branch-"))
		})

		It("persists checkout pointer moves", func() {
			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			rootID := g.Root().ID

			_, err = svc.Fork(ctx, id, "experiment")
			Expect(err).NotTo(HaveOccurred())

			current, err := svc.Checkout(ctx, id, rootID)
			Expect(err).NotTo(HaveOccurred())
			Expect(current).To(Equal(rootID))

			g, err = driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.CurrentID).To(Equal(rootID))
		})
	})

	Describe("Merge", func() {
		It("merges the incoming branch into the current checkout and persists", func() {
			g := conversation.New("merge test")
			uid, err := g.Append(g.CurrentID, conversation.RoleUser, "shared context")
			Expect(err).NotTo(HaveOccurred())
			lca, err := g.Append(uid, conversation.RoleAssistant, "shared reply")
			Expect(err).NotTo(HaveOccurred())

			_, err = g.Fork(lca, "side")
			Expect(err).NotTo(HaveOccurred())
			sideTip, err := g.Append(g.CurrentID, conversation.RoleUser, "side question")
			Expect(err).NotTo(HaveOccurred())

			_, err = g.Checkout(lca)
			Expect(err).NotTo(HaveOccurred())
			baseTip, err := g.Append(lca, conversation.RoleUser, "base question")
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.SaveConversation(ctx, g)).To(Succeed())

			// Empty base means the current checkout, which is baseTip.
			result, err := svc.Merge(ctx, g.ID, "", sideTip, "")
			Expect(err).NotTo(HaveOccurred())

			loaded, err := driver.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			merged, err := loaded.Node(result.NodeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.IsMerge()).To(BeTrue())
			Expect(merged.Content).To(Equal("merged content"))
			Expect(merged.MergeMetadata.LeftParentID).To(Equal(baseTip))
			Expect(merged.MergeMetadata.RightParentID).To(Equal(sideTip))
			Expect(loaded.CurrentID).To(Equal(result.NodeID))
		})
	})

	Describe("DeleteNode", func() {
		It("persists the rewired graph", func() {
			id, err := svc.CreateConversation(ctx, "delete test")
			Expect(err).NotTo(HaveOccurred())

			ch, err := svc.Chat(ctx, id, "say hello", "")
			Expect(err).NotTo(HaveOccurred())
			_, last := drain(ch)

			Expect(svc.DeleteNode(ctx, id, last.AssistantNodeID)).To(Succeed())

			g, err := driver.LoadConversation(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Has(last.AssistantNodeID)).To(BeFalse())
			Expect(g.CurrentID).To(Equal(last.UserNodeID))
		})
	})
})
