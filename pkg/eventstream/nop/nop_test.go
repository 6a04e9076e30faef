package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/eventstream"
	"github.com/forkyhq/forky/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("accepts events and discards them", func() {
		p := nop.NewPublisher()

		err := p.Publish(context.Background(), &eventstream.GraphEvent{
			EventType:      eventstream.EventTypeNodeAppended,
			ConversationID: "conv-1",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("rejects a nil event", func() {
		p := nop.NewPublisher()

		Expect(p.Publish(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
	})
})
