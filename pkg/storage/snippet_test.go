package storage_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/storage"
)

var _ = Describe("Snippet", func() {
	It("returns short content unchanged", func() {
		Expect(storage.Snippet("hello world", "world", 60)).To(Equal("hello world"))
	})

	It("windows around the match with ellipses on both sides", func() {
		content := strings.Repeat("a", 100) + "needle" + strings.Repeat("b", 100)

		got := storage.Snippet(content, "needle", 10)
		Expect(got).To(Equal("…" + strings.Repeat("a", 10) + "needle" + strings.Repeat("b", 10) + "…"))
	})

	It("omits the leading ellipsis when the match is near the start", func() {
		content := "needle" + strings.Repeat("b", 100)

		got := storage.Snippet(content, "needle", 10)
		Expect(got).To(Equal("needle" + strings.Repeat("b", 10) + "…"))
	})

	It("matches case-insensitively", func() {
		Expect(storage.Snippet("The NEEDLE is here", "needle", 60)).To(Equal("The NEEDLE is here"))
	})

	It("truncates head content when the query is absent", func() {
		content := strings.Repeat("x", 200)

		got := storage.Snippet(content, "absent", 10)
		Expect(got).To(Equal(strings.Repeat("x", 20) + "…"))
	})
})
