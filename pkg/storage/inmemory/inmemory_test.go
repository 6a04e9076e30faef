package inmemory_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/storage"
	"github.com/forkyhq/forky/pkg/storage/inmemory"
)

// sampleGraph builds a small conversation with one user/assistant turn.
func sampleGraph(name string) *conversation.Graph {
	g := conversation.New(name)
	uid, err := g.Append(g.CurrentID, conversation.RoleUser, "hello there")
	Expect(err).NotTo(HaveOccurred())
	_, err = g.Append(uid, conversation.RoleAssistant, "hi, how can I help?")
	Expect(err).NotTo(HaveOccurred())
	return g
}

var _ = Describe("Driver", func() {
	var (
		ctx context.Context
		d   *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = inmemory.NewDriver()
	})

	Describe("SaveConversation and LoadConversation", func() {
		It("round-trips a graph", func() {
			g := sampleGraph("demo")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			loaded, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.ID).To(Equal(g.ID))
			Expect(loaded.Name).To(Equal("demo"))
			Expect(loaded.CurrentID).To(Equal(g.CurrentID))
			Expect(loaded.Len()).To(Equal(g.Len()))
			Expect(loaded.Validate()).To(Succeed())
		})

		It("isolates the stored graph from the caller's copy", func() {
			g := sampleGraph("demo")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			// Mutating the original after saving must not leak into the store.
			_, err := g.Append(g.CurrentID, conversation.RoleUser, "later edit")
			Expect(err).NotTo(HaveOccurred())

			loaded, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Len()).To(Equal(g.Len() - 1))
		})

		It("isolates loaded graphs from each other", func() {
			g := sampleGraph("demo")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			first, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = first.Append(first.CurrentID, conversation.RoleUser, "only in first")
			Expect(err).NotTo(HaveOccurred())

			second, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Len()).To(Equal(first.Len() - 1))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := d.LoadConversation(ctx, "ghost")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal("ghost"))
		})
	})

	Describe("ListConversations", func() {
		It("lists most recently updated first", func() {
			a := sampleGraph("first")
			b := sampleGraph("second")
			Expect(d.SaveConversation(ctx, a)).To(Succeed())
			Expect(d.SaveConversation(ctx, b)).To(Succeed())
			Expect(d.RenameConversation(ctx, a.ID, "first renamed")).To(Succeed())

			summaries, err := d.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summaries).To(HaveLen(2))
			Expect(summaries[0].ID).To(Equal(a.ID))
			Expect(summaries[0].Name).To(Equal("first renamed"))
			Expect(summaries[1].ID).To(Equal(b.ID))
		})

		It("carries the node count and current pointer", func() {
			g := sampleGraph("demo")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			summaries, err := d.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summaries[0].NodeCount).To(Equal(g.Len()))
			Expect(summaries[0].CurrentNodeID).To(Equal(g.CurrentID))
		})

		It("is empty for an empty store", func() {
			summaries, err := d.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summaries).To(BeEmpty())
		})
	})

	Describe("DeleteConversation", func() {
		It("removes the conversation", func() {
			g := sampleGraph("demo")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())
			Expect(d.DeleteConversation(ctx, g.ID)).To(Succeed())

			_, err := d.LoadConversation(ctx, g.ID)
			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("returns NotFoundError for an unknown id", func() {
			err := d.DeleteConversation(ctx, "ghost")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("RenameConversation", func() {
		It("updates the display name", func() {
			g := sampleGraph("old name")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())
			Expect(d.RenameConversation(ctx, g.ID, "new name")).To(Succeed())

			loaded, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Name).To(Equal("new name"))
		})

		It("returns NotFoundError for an unknown id", func() {
			err := d.RenameConversation(ctx, "ghost", "whatever")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("SetActiveConversation", func() {
		It("keeps at most one conversation active", func() {
			a := sampleGraph("a")
			b := sampleGraph("b")
			Expect(d.SaveConversation(ctx, a)).To(Succeed())
			Expect(d.SaveConversation(ctx, b)).To(Succeed())

			Expect(d.SetActiveConversation(ctx, a.ID)).To(Succeed())
			Expect(d.SetActiveConversation(ctx, b.ID)).To(Succeed())

			summaries, err := d.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())

			active := map[string]bool{}
			for _, s := range summaries {
				active[s.ID] = s.Active
			}
			Expect(active[a.ID]).To(BeFalse())
			Expect(active[b.ID]).To(BeTrue())
		})

		It("returns NotFoundError for an unknown id", func() {
			err := d.SetActiveConversation(ctx, "ghost")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("SearchNodes", func() {
		It("matches content case-insensitively across conversations", func() {
			a := conversation.New("alpha")
			_, err := a.Append(a.CurrentID, conversation.RoleUser, "Tell me about PostgreSQL indexes")
			Expect(err).NotTo(HaveOccurred())
			b := conversation.New("beta")
			_, err = b.Append(b.CurrentID, conversation.RoleUser, "nothing relevant here")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.SaveConversation(ctx, a)).To(Succeed())
			Expect(d.SaveConversation(ctx, b)).To(Succeed())

			hits, err := d.SearchNodes(ctx, "postgresql", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].ConversationID).To(Equal(a.ID))
			Expect(hits[0].ConversationName).To(Equal("alpha"))
			Expect(hits[0].Role).To(Equal(conversation.RoleUser))
			Expect(hits[0].Snippet).To(ContainSubstring("PostgreSQL"))
		})

		It("caps the number of hits at the limit", func() {
			g := conversation.New("long")
			parent := g.CurrentID
			for i := 0; i < 5; i++ {
				var err error
				parent, err = g.Append(parent, conversation.RoleUser, "needle in this turn")
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			hits, err := d.SearchNodes(ctx, "needle", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))
		})

		It("returns nothing when nothing matches", func() {
			g := sampleGraph("demo")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			hits, err := d.SearchNodes(ctx, "zzz-no-such-content", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})
})
