package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/storage"
	"github.com/forkyhq/forky/pkg/storage/sqlite"
)

// forkedGraph builds a conversation with a fork marker, an attachment and a
// committed merge node so a round-trip exercises every table.
func forkedGraph() *conversation.Graph {
	g := conversation.New("full graph")

	uid, err := g.Append(g.CurrentID, conversation.RoleUser, "shared context", conversation.Attachment{
		ID:           "att-1",
		Filename:     "notes.txt",
		OriginalName: "meeting notes.txt",
		MediaType:    "text/plain",
		Size:         128,
	})
	Expect(err).NotTo(HaveOccurred())
	lca, err := g.Append(uid, conversation.RoleAssistant, "shared reply")
	Expect(err).NotTo(HaveOccurred())

	_, err = g.Fork(lca, "experiment")
	Expect(err).NotTo(HaveOccurred())
	sideTip, err := g.Append(g.CurrentID, conversation.RoleUser, "side question")
	Expect(err).NotTo(HaveOccurred())

	_, err = g.Checkout(lca)
	Expect(err).NotTo(HaveOccurred())
	baseTip, err := g.Append(lca, conversation.RoleUser, "base question")
	Expect(err).NotTo(HaveOccurred())

	_, err = g.AppendMerge("joined both branches", &conversation.MergeMetadata{
		LCAID:         lca,
		LeftParentID:  baseTip,
		RightParentID: sideTip,
		Conflicts: []conversation.ConflictRecord{{
			Category:  "decisions",
			LeftItem:  "deploy target is us east with replicas",
			RightItem: "deploy target is us east without replicas",
			Kind:      conversation.ConflictDiverges,
		}},
	})
	Expect(err).NotTo(HaveOccurred())

	return g
}

var _ = Describe("Driver", func() {
	var (
		ctx context.Context
		d   *sqlite.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		d, err = sqlite.NewDriver(filepath.Join(GinkgoT().TempDir(), "forky.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(d.Close)
	})

	Describe("SaveConversation and LoadConversation", func() {
		It("round-trips a full graph with fork, merge and attachment", func() {
			g := forkedGraph()
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			loaded, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Name).To(Equal("full graph"))
			Expect(loaded.CurrentID).To(Equal(g.CurrentID))
			Expect(loaded.Len()).To(Equal(g.Len()))
			Expect(loaded.Validate()).To(Succeed())

			for _, want := range g.Nodes() {
				got, nodeErr := loaded.Node(want.ID)
				Expect(nodeErr).NotTo(HaveOccurred())
				Expect(got.Role).To(Equal(want.Role))
				Expect(got.Content).To(Equal(want.Content))
				Expect(got.BranchName).To(Equal(want.BranchName))
				Expect(got.ParentIDs).To(Equal(want.ParentIDs))
				Expect(got.CreatedAt).To(BeTemporally("~", want.CreatedAt))
			}
		})

		It("preserves merge metadata and conflict records", func() {
			g := forkedGraph()
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			loaded, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			merged, nodeErr := loaded.Node(loaded.CurrentID)
			Expect(nodeErr).NotTo(HaveOccurred())
			Expect(merged.IsMerge()).To(BeTrue())

			original, nodeErr := g.Node(g.CurrentID)
			Expect(nodeErr).NotTo(HaveOccurred())
			Expect(merged.MergeMetadata).To(Equal(original.MergeMetadata))
			Expect(merged.ParentIDs).To(Equal(original.ParentIDs))
		})

		It("preserves attachments", func() {
			g := forkedGraph()
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			loaded, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())

			var att *conversation.Attachment
			for _, n := range loaded.Nodes() {
				if len(n.Attachments) > 0 {
					att = &n.Attachments[0]
				}
			}
			Expect(att).NotTo(BeNil())
			Expect(att.ID).To(Equal("att-1"))
			Expect(att.Filename).To(Equal("notes.txt"))
			Expect(att.OriginalName).To(Equal("meeting notes.txt"))
			Expect(att.MediaType).To(Equal("text/plain"))
			Expect(att.Size).To(Equal(int64(128)))
		})

		It("replaces the stored graph on re-save", func() {
			g := conversation.New("demo")
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			uid, err := g.Append(g.CurrentID, conversation.RoleUser, "second save")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			loaded, err := d.LoadConversation(ctx, g.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Len()).To(Equal(2))
			Expect(loaded.CurrentID).To(Equal(uid))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := d.LoadConversation(ctx, "ghost")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal("ghost"))
		})
	})

	Describe("ListConversations", func() {
		It("lists most recently updated first with node counts", func() {
			a := conversation.New("first")
			b := conversation.New("second")
			Expect(d.SaveConversation(ctx, a)).To(Succeed())
			Expect(d.SaveConversation(ctx, b)).To(Succeed())
			Expect(d.RenameConversation(ctx, a.ID, "first renamed")).To(Succeed())

			summaries, err := d.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summaries).To(HaveLen(2))
			Expect(summaries[0].ID).To(Equal(a.ID))
			Expect(summaries[0].Name).To(Equal("first renamed"))
			Expect(summaries[0].NodeCount).To(Equal(1))
			Expect(summaries[1].ID).To(Equal(b.ID))
		})
	})

	Describe("DeleteConversation", func() {
		It("removes the conversation and its nodes", func() {
			g := forkedGraph()
			Expect(d.SaveConversation(ctx, g)).To(Succeed())
			Expect(d.DeleteConversation(ctx, g.ID)).To(Succeed())

			_, err := d.LoadConversation(ctx, g.ID)
			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())

			hits, err := d.SearchNodes(ctx, "shared context", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})

		It("returns NotFoundError for an unknown id", func() {
			err := d.DeleteConversation(ctx, "ghost")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("RenameConversation", func() {
		It("returns NotFoundError for an unknown id", func() {
			err := d.RenameConversation(ctx, "ghost", "whatever")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("SetActiveConversation", func() {
		It("keeps at most one conversation active", func() {
			a := conversation.New("a")
			b := conversation.New("b")
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

			loaded, err := d.LoadConversation(ctx, b.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Active).To(BeTrue())
		})

		It("returns NotFoundError for an unknown id", func() {
			err := d.SetActiveConversation(ctx, "ghost")

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("SearchNodes", func() {
		It("matches content across conversations with snippets", func() {
			a := conversation.New("alpha")
			_, err := a.Append(a.CurrentID, conversation.RoleUser, "Tell me about PostgreSQL indexes")
			Expect(err).NotTo(HaveOccurred())
			b := conversation.New("beta")
			_, err = b.Append(b.CurrentID, conversation.RoleUser, "nothing relevant here")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.SaveConversation(ctx, a)).To(Succeed())
			Expect(d.SaveConversation(ctx, b)).To(Succeed())

			hits, err := d.SearchNodes(ctx, "PostgreSQL", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].ConversationID).To(Equal(a.ID))
			Expect(hits[0].ConversationName).To(Equal("alpha"))
			Expect(hits[0].Snippet).To(ContainSubstring("PostgreSQL"))
		})

		It("treats LIKE wildcards in the query as literals", func() {
			g := conversation.New("demo")
			_, err := g.Append(g.CurrentID, conversation.RoleUser, "progress is at 100% complete")
			Expect(err).NotTo(HaveOccurred())
			_, err = g.Append(g.CurrentID, conversation.RoleUser, "percentages are unrelated")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.SaveConversation(ctx, g)).To(Succeed())

			hits, err := d.SearchNodes(ctx, "100%", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].Snippet).To(ContainSubstring("100% complete"))
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
	})
})
