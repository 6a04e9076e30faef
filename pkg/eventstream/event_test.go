package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/eventstream"
)

var _ = Describe("GraphEvent", func() {
	It("serializes the envelope fields under stable names", func() {
		event := &eventstream.GraphEvent{
			SchemaVersion:  eventstream.SchemaVersionV1,
			EventType:      eventstream.EventTypeBranchForked,
			EventID:        "evt-1",
			EmittedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			ConversationID: "conv-1",
			NodeID:         "node-1",
			CurrentNodeID:  "node-1",
			BranchName:     "experiment",
		}

		raw, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("schema_version", float64(1)))
		Expect(decoded).To(HaveKeyWithValue("event_type", "forky.branch.forked"))
		Expect(decoded).To(HaveKeyWithValue("conversation_id", "conv-1"))
		Expect(decoded).To(HaveKeyWithValue("branch_name", "experiment"))
		Expect(decoded).NotTo(HaveKey("merge"))
	})

	It("carries merge metadata on merge events", func() {
		event := &eventstream.GraphEvent{
			SchemaVersion:  eventstream.SchemaVersionV1,
			EventType:      eventstream.EventTypeBranchesMerged,
			ConversationID: "conv-1",
			Merge: &conversation.MergeMetadata{
				LCAID:         "lca",
				LeftParentID:  "left",
				RightParentID: "right",
			},
		}

		raw, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var decoded eventstream.GraphEvent
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded.Merge).NotTo(BeNil())
		Expect(decoded.Merge.LCAID).To(Equal("lca"))
		Expect(decoded.Merge.LeftParentID).To(Equal("left"))
	})
})
