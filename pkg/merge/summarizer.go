package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/llm"
)

const stateSummaryPrompt = `Analyze the following conversation and extract a structured state summary.

<conversation>
%s
</conversation>

Extract the current state of the conversation into the following structured format.
Be precise and concise - only include items that are explicitly stated or strongly implied.

Output a valid JSON object with these fields:
- "facts": Array of established facts (things stated as true)
- "decisions": Array of decisions that have been made
- "open_questions": Array of unresolved questions
- "assumptions": Array of assumptions being made
- "topic": Short phrase naming what the conversation is about

Example output:
{
  "facts": ["The project uses Go 1.25", "Database is PostgreSQL"],
  "decisions": ["Use REST API instead of GraphQL"],
  "open_questions": ["What is the performance target?"],
  "assumptions": ["Users have admin access"],
  "topic": "API design for the billing service"
}

If a category has no items, use an empty array [].
Return ONLY the JSON object, no additional text.`

const stricterSuffix = `

IMPORTANT: your previous answer was not parseable. Respond with a single raw JSON object and nothing else: no markdown fences, no commentary, no trailing text.`

// Summarizer turns a linearized message history into a StateRecord via the
// model. Summaries are cached per node id for the lifetime of the
// Summarizer, which executors scope to a single merge request.
type Summarizer struct {
	client llm.Client
	log    *zap.Logger
	cache  map[string]*StateRecord
}

// NewSummarizer creates a summarizer backed by the given model client.
func NewSummarizer(client llm.Client, log *zap.Logger) *Summarizer {
	return &Summarizer{
		client: client,
		log:    log,
		cache:  make(map[string]*StateRecord),
	}
}

// Summarize extracts the state at the tip of history. nodeID keys the cache.
//
// Unparseable model output is retried once with a stricter prompt; a second
// failure returns an empty record with topic "unknown" and failed=true, and
// the caller downgrades conflict detection to structural-only. Transport
// errors abort instead: they return a non-nil error and no record.
func (s *Summarizer) Summarize(ctx context.Context, nodeID string, history []*conversation.Node) (record *StateRecord, failed bool, err error) {
	if cached, ok := s.cache[nodeID]; ok {
		return cached, false, nil
	}

	prompt := fmt.Sprintf(stateSummaryPrompt, formatConversation(history))

	for attempt := 0; attempt < 2; attempt++ {
		p := prompt
		if attempt > 0 {
			p += stricterSuffix
		}

		resp, err := s.client.Complete(ctx, &llm.ChatRequest{
			Messages: []llm.Message{llm.NewTextMessage("user", p)},
			JSONOnly: true,
		})
		if err != nil {
			return nil, false, fmt.Errorf("summarize node %s: %w", nodeID, err)
		}

		rec, parseErr := parseStateRecord(resp.Message.GetText())
		if parseErr != nil {
			s.log.Warn("state summary unparseable",
				zap.String("node_id", nodeID),
				zap.Int("attempt", attempt+1),
				zap.Error(parseErr))
			continue
		}

		s.cache[nodeID] = rec
		return rec, false, nil
	}

	// Both attempts produced garbage. Empty record, structural-only mode.
	rec := &StateRecord{Topic: "unknown"}
	s.cache[nodeID] = rec
	return rec, true, nil
}

// formatConversation renders history as "Role: content" paragraphs for the
// summary prompt.
func formatConversation(history []*conversation.Node) string {
	lines := make([]string, 0, len(history))
	for _, n := range history {
		role := string(n.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines = append(lines, role+": "+n.Content)
	}
	return strings.Join(lines, "\n\n")
}

// parseStateRecord extracts the JSON object from model output, tolerating
// markdown fences and minor syntax damage.
func parseStateRecord(raw string) (*StateRecord, error) {
	cleaned := stripMarkdownFences(raw)

	var rec StateRecord
	if err := json.Unmarshal([]byte(cleaned), &rec); err == nil {
		return &rec, nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, fmt.Errorf("repair summary JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal repaired summary: %w", err)
	}

	return &rec, nil
}

// stripMarkdownFences unwraps a response of the form ```json ... ``` down
// to the fenced payload. Unfenced responses pass through trimmed.
func stripMarkdownFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	lines := strings.Split(s, "\n")
	var kept []string
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inBlock {
				break
			}
			inBlock = true
			continue
		}
		if inBlock {
			kept = append(kept, line)
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}
