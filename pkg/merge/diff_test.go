package merge_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/merge"
)

var _ = Describe("Handle", func() {
	It("keeps the first five tokens, case-folded", func() {
		Expect(merge.Handle("The Database Uses PostgreSQL For Persistence")).
			To(Equal("the database uses postgresql for"))
	})

	It("tokenizes on punctuation", func() {
		Expect(merge.Handle("use REST, not GraphQL")).To(Equal("use rest not graphql"))
	})

	It("is empty for empty input", func() {
		Expect(merge.Handle("")).To(Equal(""))
	})
})

var _ = Describe("Diff", func() {
	It("is empty when base and side agree", func() {
		base := &merge.StateRecord{Facts: []string{"the project uses Go"}}
		side := &merge.StateRecord{Facts: []string{"The project uses Go"}}

		d := merge.Diff(base, side)
		Expect(d.IsEmpty()).To(BeTrue())
	})

	It("reports items only in the side as added", func() {
		base := &merge.StateRecord{}
		side := &merge.StateRecord{Decisions: []string{"use REST"}}

		d := merge.Diff(base, side)
		Expect(d.Added["decisions"]).To(Equal([]string{"use REST"}))
		Expect(d.Removed).To(BeEmpty())
	})

	It("reports items only in the base as removed", func() {
		base := &merge.StateRecord{Assumptions: []string{"users have admin access"}}
		side := &merge.StateRecord{}

		d := merge.Diff(base, side)
		Expect(d.Removed["assumptions"]).To(Equal([]string{"users have admin access"}))
		Expect(d.Added).To(BeEmpty())
	})

	It("pairs a removed and an added item sharing a handle as changed", func() {
		base := &merge.StateRecord{Facts: []string{"the API timeout budget is thirty seconds"}}
		side := &merge.StateRecord{Facts: []string{"the API timeout budget is sixty seconds"}}

		d := merge.Diff(base, side)
		Expect(d.Added).To(BeEmpty())
		Expect(d.Removed).To(BeEmpty())
		Expect(d.Changed["facts"]).To(Equal([]merge.ChangedItem{
			{Before: "the API timeout budget is thirty seconds", After: "the API timeout budget is sixty seconds"},
		}))
	})

	It("does not pair items with different handles", func() {
		base := &merge.StateRecord{Facts: []string{"storage is sqlite"}}
		side := &merge.StateRecord{Facts: []string{"transport is http"}}

		d := merge.Diff(base, side)
		Expect(d.Removed["facts"]).To(Equal([]string{"storage is sqlite"}))
		Expect(d.Added["facts"]).To(Equal([]string{"transport is http"}))
		Expect(d.Changed).To(BeEmpty())
	})

	It("diffs each category independently", func() {
		base := &merge.StateRecord{
			Facts:     []string{"shared fact"},
			Decisions: []string{"old decision"},
		}
		side := &merge.StateRecord{
			Facts:         []string{"shared fact"},
			OpenQuestions: []string{"what about caching?"},
		}

		d := merge.Diff(base, side)
		Expect(d.Removed["decisions"]).To(Equal([]string{"old decision"}))
		Expect(d.Added["open_questions"]).To(Equal([]string{"what about caching?"}))
		Expect(d.Added).NotTo(HaveKey("facts"))
	})

	It("yields an empty diff against itself", func() {
		rec := &merge.StateRecord{
			Facts:         []string{"a", "b"},
			Decisions:     []string{"c"},
			OpenQuestions: []string{"d?"},
			Assumptions:   []string{"e"},
		}

		Expect(merge.Diff(rec, rec).IsEmpty()).To(BeTrue())
	})
})
