package sse_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/sse"
)

var _ = Describe("TeeReader", func() {
	var dst *bytes.Buffer

	BeforeEach(func() {
		dst = &bytes.Buffer{}
	})

	Describe("Next", func() {
		It("parses a single event and then reports exhaustion", func() {
			r := sse.NewTeeReader(strings.NewReader("data: hello world\n\n"), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello world"))
			Expect(ev.Type).To(BeEmpty())
			Expect(ev.ID).To(BeEmpty())

			ev, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("parses consecutive events", func() {
			r := sse.NewTeeReader(strings.NewReader("data: first\n\ndata: second\n\n"), dst)

			ev1, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev1.Data).To(Equal("first"))

			ev2, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev2.Data).To(Equal("second"))
		})

		It("parses event type and id fields", func() {
			r := sse.NewTeeReader(strings.NewReader("event: error\nid: 42\ndata: {\"reason\":\"x\"}\n\n"), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Type).To(Equal("error"))
			Expect(ev.ID).To(Equal("42"))
			Expect(ev.Data).To(Equal("{\"reason\":\"x\"}"))
		})

		It("joins multiple data lines with a newline", func() {
			r := sse.NewTeeReader(strings.NewReader("data: line one\ndata: line two\n\n"), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("line one\nline two"))
		})

		It("skips comment lines but forwards them to dst", func() {
			input := ": keep-alive\ndata: hello\n\n"
			r := sse.NewTeeReader(strings.NewReader(input), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
			Expect(dst.String()).To(Equal(input))
		})

		It("handles a data field with no space after the colon", func() {
			r := sse.NewTeeReader(strings.NewReader("data:no-space\n\n"), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("no-space"))
		})

		It("forwards all bytes verbatim including delimiters", func() {
			input := "data: {\"delta\":\"Hi\"}\n\ndata: [DONE]\n\n"
			r := sse.NewTeeReader(strings.NewReader(input), dst)

			_, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			_, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(dst.String()).To(Equal(input))
		})

		It("returns nil on empty input", func() {
			r := sse.NewTeeReader(strings.NewReader(""), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("skips blank lines with no accumulated fields", func() {
			r := sse.NewTeeReader(strings.NewReader("\n\ndata: hello\n\n"), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
		})

		It("yields the in-progress event when the stream ends without a blank line", func() {
			r := sse.NewTeeReader(strings.NewReader("data: unterminated"), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("unterminated"))
		})

		It("ignores retry and unknown fields", func() {
			r := sse.NewTeeReader(strings.NewReader("retry: 3000\nfoo: bar\ndata: hello\n\n"), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
		})
	})
})
