package merge_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/llm"
	"github.com/forkyhq/forky/pkg/merge"
)

// summaryRoute maps a prompt substring onto the summary the stub returns
// for it. Routes are checked in order; the most specific marker goes first.
type summaryRoute struct {
	marker  string
	summary string
}

// routingClient answers summary requests by matching a marker substring in
// the prompt, and any other request with mergeText.
type routingClient struct {
	summaries []summaryRoute
	mergeText string

	mergePrompts []string
}

func (c *routingClient) Name() string { return "routing" }

func (c *routingClient) Complete(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := req.Messages[0].GetText()
	if req.JSONOnly {
		for _, route := range c.summaries {
			if strings.Contains(prompt, route.marker) {
				return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", route.summary)}, nil
			}
		}
		return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", `{"topic":"empty"}`)}, nil
	}

	c.mergePrompts = append(c.mergePrompts, prompt)
	return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", c.mergeText)}, nil
}

func (c *routingClient) Stream(_ context.Context, _ *llm.ChatRequest, _ llm.StreamFunc) error {
	return errors.New("not implemented")
}

func (c *routingClient) AvailableModels(_ context.Context) ([]string, error) {
	return []string{"routing"}, nil
}

// forkedGraph builds a conversation with a shared trunk and two divergent
// branches, returning the graph and the two branch tips.
func forkedGraph() (g *conversation.Graph, baseTip, sideTip string) {
	g = conversation.New("test")

	uid, err := g.Append(g.CurrentID, conversation.RoleUser, "shared context")
	Expect(err).NotTo(HaveOccurred())
	lca, err := g.Append(uid, conversation.RoleAssistant, "shared reply")
	Expect(err).NotTo(HaveOccurred())

	_, err = g.Fork(lca, "side")
	Expect(err).NotTo(HaveOccurred())
	sid, err := g.Append(g.CurrentID, conversation.RoleUser, "side question")
	Expect(err).NotTo(HaveOccurred())
	sideTip, err = g.Append(sid, conversation.RoleAssistant, "side reply")
	Expect(err).NotTo(HaveOccurred())

	_, err = g.Checkout(lca)
	Expect(err).NotTo(HaveOccurred())
	bid, err := g.Append(lca, conversation.RoleUser, "base question")
	Expect(err).NotTo(HaveOccurred())
	baseTip, err = g.Append(bid, conversation.RoleAssistant, "base reply")
	Expect(err).NotTo(HaveOccurred())

	return g, baseTip, sideTip
}

var _ = Describe("CheckEligibility", func() {
	It("rejects merging a node with itself", func() {
		g, baseTip, _ := forkedGraph()

		elig, err := merge.CheckEligibility(g, baseTip, baseTip)
		Expect(err).NotTo(HaveOccurred())
		Expect(elig.Eligible).To(BeFalse())
		Expect(elig.RejectionReason).To(Equal(merge.ReasonSelfMerge))
	})

	It("rejects merging an ancestor with its descendant", func() {
		g, baseTip, _ := forkedGraph()

		elig, err := merge.CheckEligibility(g, g.Root().ID, baseTip)
		Expect(err).NotTo(HaveOccurred())
		Expect(elig.Eligible).To(BeFalse())
		Expect(elig.RejectionReason).To(Equal(merge.ReasonAncestorDescendant))
	})

	It("accepts two divergent branch tips and reports their fork point", func() {
		g, baseTip, sideTip := forkedGraph()

		elig, err := merge.CheckEligibility(g, baseTip, sideTip)
		Expect(err).NotTo(HaveOccurred())
		Expect(elig.Eligible).To(BeTrue())
		Expect(elig.LCAID).NotTo(BeEmpty())

		lca, nodeErr := g.Node(elig.LCAID)
		Expect(nodeErr).NotTo(HaveOccurred())
		Expect(lca.Content).To(Equal("shared reply"))
	})

	It("gives the same verdict in both directions", func() {
		g, baseTip, sideTip := forkedGraph()

		ab, err := merge.CheckEligibility(g, baseTip, sideTip)
		Expect(err).NotTo(HaveOccurred())
		ba, err := merge.CheckEligibility(g, sideTip, baseTip)
		Expect(err).NotTo(HaveOccurred())

		Expect(ab.Eligible).To(Equal(ba.Eligible))
		Expect(ab.LCAID).To(Equal(ba.LCAID))
	})

	It("fails on unknown nodes", func() {
		g, baseTip, _ := forkedGraph()

		_, err := merge.CheckEligibility(g, baseTip, "ghost")

		var unknown conversation.UnknownNodeError
		Expect(errors.As(err, &unknown)).To(BeTrue())
	})
})

var _ = Describe("Executor", func() {
	var log *zap.Logger

	BeforeEach(func() {
		log = zap.NewNop()
	})

	It("commits a merge node with recorded metadata", func() {
		g, baseTip, sideTip := forkedGraph()
		client := &routingClient{
			summaries: []summaryRoute{
				{"base question", `{"facts":["base path chosen"],"topic":"t"}`},
				{"side question", `{"facts":["side path chosen"],"topic":"t"}`},
				{"shared reply", `{"facts":[],"topic":"t"}`},
			},
			mergeText: "Here is where both branches stand.",
		}

		result, err := merge.NewExecutor(client, log).Merge(context.Background(), g, baseTip, sideTip, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.HasConflicts).To(BeFalse())
		Expect(result.StructuralOnly).To(BeFalse())

		merged, nodeErr := g.Node(result.NodeID)
		Expect(nodeErr).NotTo(HaveOccurred())
		Expect(merged.IsMerge()).To(BeTrue())
		Expect(merged.Content).To(Equal("Here is where both branches stand."))
		Expect(merged.MergeMetadata.LeftParentID).To(Equal(baseTip))
		Expect(merged.MergeMetadata.RightParentID).To(Equal(sideTip))
		Expect(merged.MergeMetadata.LCAID).To(Equal(result.LCAID))
		Expect(g.CurrentID).To(Equal(result.NodeID))
		Expect(g.Validate()).To(Succeed())
	})

	It("surfaces divergent additions as conflicts in the metadata", func() {
		g, baseTip, sideTip := forkedGraph()
		client := &routingClient{
			summaries: []summaryRoute{
				{"base question", `{"decisions":["deploy target is us east with replicas"],"topic":"t"}`},
				{"side question", `{"decisions":["deploy target is us east without replicas"],"topic":"t"}`},
				{"shared reply", `{"decisions":[],"topic":"t"}`},
			},
			mergeText: "The branches disagree about the deploy target.",
		}

		result, err := merge.NewExecutor(client, log).Merge(context.Background(), g, baseTip, sideTip, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.HasConflicts).To(BeTrue())
		Expect(result.Conflicts).To(HaveLen(1))
		Expect(result.Conflicts[0].Kind).To(Equal(conversation.ConflictDiverges))

		merged, nodeErr := g.Node(result.NodeID)
		Expect(nodeErr).NotTo(HaveOccurred())
		Expect(merged.MergeMetadata.Conflicts).To(Equal(result.Conflicts))

		// The synthesis prompt carries the conflict for the model to surface.
		Expect(client.mergePrompts).To(HaveLen(1))
		Expect(client.mergePrompts[0]).To(ContainSubstring("us east with replicas"))
		Expect(client.mergePrompts[0]).To(ContainSubstring("us east without replicas"))
	})

	It("passes the user's merge prompt into synthesis", func() {
		g, baseTip, sideTip := forkedGraph()
		client := &routingClient{
			mergeText: "merged",
		}

		_, err := merge.NewExecutor(client, log).Merge(context.Background(), g, baseTip, sideTip, "prefer the base branch")
		Expect(err).NotTo(HaveOccurred())
		Expect(client.mergePrompts[0]).To(ContainSubstring("prefer the base branch"))
	})

	It("downgrades to structural-only when summarization fails", func() {
		g, baseTip, sideTip := forkedGraph()
		// Summaries are unparseable garbage for every branch.
		client := &garbageSummaryClient{mergeText: "structural merge"}

		result, err := merge.NewExecutor(client, log).Merge(context.Background(), g, baseTip, sideTip, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.StructuralOnly).To(BeTrue())
		Expect(result.Conflicts).To(BeEmpty())
		Expect(result.HasConflicts).To(BeFalse())

		merged, nodeErr := g.Node(result.NodeID)
		Expect(nodeErr).NotTo(HaveOccurred())
		Expect(merged.IsMerge()).To(BeTrue())
	})

	It("refuses ineligible pairs without touching the graph", func() {
		g, baseTip, _ := forkedGraph()
		before := g.Len()
		client := &routingClient{mergeText: "never used"}

		_, err := merge.NewExecutor(client, log).Merge(context.Background(), g, baseTip, baseTip, "")

		var ineligible merge.IneligibleError
		Expect(errors.As(err, &ineligible)).To(BeTrue())
		Expect(ineligible.Reason).To(Equal(merge.ReasonSelfMerge))
		Expect(g.Len()).To(Equal(before))
	})

	It("aborts without committing when synthesis returns empty content", func() {
		g, baseTip, sideTip := forkedGraph()
		before := g.Len()
		client := &routingClient{mergeText: "   "}

		_, err := merge.NewExecutor(client, log).Merge(context.Background(), g, baseTip, sideTip, "")
		Expect(err).To(HaveOccurred())
		Expect(g.Len()).To(Equal(before))
	})
})

// garbageSummaryClient answers every summary request with unparseable text
// and synthesis requests with mergeText.
type garbageSummaryClient struct {
	mergeText string
}

func (c *garbageSummaryClient) Name() string { return "garbage" }

func (c *garbageSummaryClient) Complete(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req.JSONOnly {
		return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", "no structure here at all")}, nil
	}
	return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", c.mergeText)}, nil
}

func (c *garbageSummaryClient) Stream(_ context.Context, _ *llm.ChatRequest, _ llm.StreamFunc) error {
	return errors.New("not implemented")
}

func (c *garbageSummaryClient) AvailableModels(_ context.Context) ([]string, error) {
	return []string{"garbage"}, nil
}
