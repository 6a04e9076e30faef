package merge_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/merge"
)

var _ = Describe("Classify", func() {
	It("reports no conflicts for disjoint diffs", func() {
		base := &merge.StateRecord{}
		left := &merge.StateRecord{Facts: []string{"storage is sqlite"}}
		right := &merge.StateRecord{Decisions: []string{"ship by friday"}}

		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(BeEmpty())
	})

	It("classifies both sides changing one item differently as both_modified", func() {
		base := &merge.StateRecord{Facts: []string{"the API timeout budget is thirty seconds"}}
		left := &merge.StateRecord{Facts: []string{"the API timeout budget is sixty seconds"}}
		right := &merge.StateRecord{Facts: []string{"the API timeout budget is ninety seconds"}}

		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(HaveLen(1))
		Expect(conflicts[0].Kind).To(Equal(conversation.ConflictBothModified))
		Expect(conflicts[0].Category).To(Equal("facts"))
		Expect(conflicts[0].LeftItem).To(Equal("the API timeout budget is sixty seconds"))
		Expect(conflicts[0].RightItem).To(Equal("the API timeout budget is ninety seconds"))
	})

	It("does not flag both sides changing an item to the same value", func() {
		base := &merge.StateRecord{Facts: []string{"the API timeout budget is thirty seconds"}}
		left := &merge.StateRecord{Facts: []string{"the API timeout budget is sixty seconds"}}
		right := &merge.StateRecord{Facts: []string{"The API timeout budget is sixty seconds"}}

		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(BeEmpty())
	})

	It("classifies an add against the other side's removal as contradicts", func() {
		base := &merge.StateRecord{Decisions: []string{"drop the legacy billing endpoint now"}}
		left := &merge.StateRecord{Decisions: []string{
			"drop the legacy billing endpoint now",
			"drop the legacy billing endpoint after migration",
		}}
		right := &merge.StateRecord{}

		// Right removed the decision; left added one sharing its handle.
		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(HaveLen(1))
		Expect(conflicts[0].Kind).To(Equal(conversation.ConflictContradicts))
		Expect(conflicts[0].LeftItem).To(Equal("drop the legacy billing endpoint after migration"))
		Expect(conflicts[0].RightItem).To(Equal("drop the legacy billing endpoint now"))
	})

	It("classifies contradicts in the other direction too", func() {
		base := &merge.StateRecord{Decisions: []string{"drop the legacy billing endpoint now"}}
		left := &merge.StateRecord{}
		right := &merge.StateRecord{Decisions: []string{
			"drop the legacy billing endpoint now",
			"drop the legacy billing endpoint after migration",
		}}

		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(HaveLen(1))
		Expect(conflicts[0].Kind).To(Equal(conversation.ConflictContradicts))
		Expect(conflicts[0].LeftItem).To(Equal("drop the legacy billing endpoint now"))
		Expect(conflicts[0].RightItem).To(Equal("drop the legacy billing endpoint after migration"))
	})

	It("classifies both sides adding different items with one handle as diverges", func() {
		base := &merge.StateRecord{}
		left := &merge.StateRecord{Decisions: []string{"deploy target is us east with replicas"}}
		right := &merge.StateRecord{Decisions: []string{"deploy target is us east without replicas"}}

		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(HaveLen(1))
		Expect(conflicts[0].Kind).To(Equal(conversation.ConflictDiverges))
		Expect(conflicts[0].LeftItem).To(Equal("deploy target is us east with replicas"))
		Expect(conflicts[0].RightItem).To(Equal("deploy target is us east without replicas"))
	})

	It("does not flag both sides adding the identical item", func() {
		base := &merge.StateRecord{}
		left := &merge.StateRecord{Facts: []string{"the team uses trunk based development"}}
		right := &merge.StateRecord{Facts: []string{"The team uses trunk based development"}}

		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(BeEmpty())
	})

	It("keeps conflicts scoped to their category", func() {
		base := &merge.StateRecord{}
		left := &merge.StateRecord{Facts: []string{"latency budget is one hundred ms"}}
		right := &merge.StateRecord{Assumptions: []string{"latency budget is one hundred ms"}}

		conflicts := merge.Classify(merge.Diff(base, left), merge.Diff(base, right))
		Expect(conflicts).To(BeEmpty())
	})
})
