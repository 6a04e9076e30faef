package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/llm"
)

const mergeExecutionPrompt = `You are performing a three-way merge of two branches of a conversation.

<base_state>
%s
</base_state>

<diff_from_left_branch>
%s
</diff_from_left_branch>

<diff_from_right_branch>
%s
</diff_from_right_branch>
%s
Write the assistant message that continues the conversation from the merged state. Weave both branches' additions into a coherent summary of where the discussion now stands. %s

Do NOT auto-resolve conflicts: state each conflict plainly and ask the user to choose or clarify.`

// Eligibility is the outcome of a merge precondition check.
type Eligibility struct {
	Eligible        bool   `json:"eligible"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	LCAID           string `json:"lca_id,omitempty"`
}

// Result describes a committed merge.
type Result struct {
	NodeID       string                        `json:"node_id"`
	LCAID        string                        `json:"lca_id"`
	Conflicts    []conversation.ConflictRecord `json:"conflicts"`
	HasConflicts bool                          `json:"has_conflicts"`

	// StructuralOnly is set when summarization failed on some branch and
	// semantic conflict detection was skipped.
	StructuralOnly bool `json:"structural_only"`
}

// Executor runs the merge pipeline: eligibility, three summaries, two
// diffs, conflict classification, prompt synthesis, model call, commit.
type Executor struct {
	client llm.Client
	log    *zap.Logger
}

// NewExecutor creates an executor backed by the given model client.
func NewExecutor(client llm.Client, log *zap.Logger) *Executor {
	return &Executor{client: client, log: log}
}

// CheckEligibility decides whether a and b can merge. The check is
// symmetric in its verdict; only the reported lca_id depends on order.
func CheckEligibility(g *conversation.Graph, a, b string) (Eligibility, error) {
	if !g.Has(a) {
		return Eligibility{}, conversation.UnknownNodeError{ID: a}
	}
	if !g.Has(b) {
		return Eligibility{}, conversation.UnknownNodeError{ID: b}
	}

	if a == b {
		return Eligibility{RejectionReason: ReasonSelfMerge}, nil
	}
	if g.IsAncestor(a, b) || g.IsAncestor(b, a) {
		return Eligibility{RejectionReason: ReasonAncestorDescendant}, nil
	}

	lca, err := g.LCA(a, b)
	if err != nil {
		return Eligibility{}, err
	}
	if lca == "" {
		return Eligibility{RejectionReason: ReasonNoCommonAncestor}, nil
	}

	return Eligibility{Eligible: true, LCAID: lca}, nil
}

// Merge joins currentID (left) and targetID (right) into a new merge node
// and checks it out. The graph is mutated only on success; any failing step
// aborts with no partial node.
func (e *Executor) Merge(ctx context.Context, g *conversation.Graph, currentID, targetID, mergePrompt string) (*Result, error) {
	elig, err := CheckEligibility(g, currentID, targetID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, IneligibleError{Reason: elig.RejectionReason}
	}

	lcaHistory, err := g.History(elig.LCAID)
	if err != nil {
		return nil, err
	}
	leftHistory, err := g.History(currentID)
	if err != nil {
		return nil, err
	}
	rightHistory, err := g.History(targetID)
	if err != nil {
		return nil, err
	}

	summarizer := NewSummarizer(e.client, e.log)
	sLCA, failedLCA, err := summarizer.Summarize(ctx, elig.LCAID, lcaHistory)
	if err != nil {
		return nil, err
	}
	sLeft, failedLeft, err := summarizer.Summarize(ctx, currentID, leftHistory)
	if err != nil {
		return nil, err
	}
	sRight, failedRight, err := summarizer.Summarize(ctx, targetID, rightHistory)
	if err != nil {
		return nil, err
	}

	dLeft := Diff(sLCA, sLeft)
	dRight := Diff(sLCA, sRight)

	// Summarization failure on any branch makes semantic conflicts
	// meaningless; the merge proceeds with structural information only.
	structuralOnly := failedLCA || failedLeft || failedRight
	var conflicts []conversation.ConflictRecord
	if !structuralOnly {
		conflicts = Classify(dLeft, dRight)
	} else {
		e.log.Warn("summarization failed, merging in structural-only mode",
			zap.String("conversation_id", g.ID),
			zap.String("left", currentID),
			zap.String("right", targetID))
	}

	prompt, err := synthesizePrompt(sLCA, dLeft, dRight, conflicts, mergePrompt)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Complete(ctx, &llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage("user", prompt)},
	})
	if err != nil {
		return nil, fmt.Errorf("merge completion: %w", err)
	}
	content := resp.Message.GetText()
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("merge completion returned empty content")
	}

	meta := &conversation.MergeMetadata{
		LCAID:         elig.LCAID,
		LeftParentID:  currentID,
		RightParentID: targetID,
		Conflicts:     conflicts,
	}
	nodeID, err := g.AppendMerge(content, meta)
	if err != nil {
		return nil, err
	}

	e.log.Info("merge committed",
		zap.String("conversation_id", g.ID),
		zap.String("node_id", nodeID),
		zap.String("lca_id", elig.LCAID),
		zap.Int("conflicts", len(conflicts)))

	return &Result{
		NodeID:         nodeID,
		LCAID:          elig.LCAID,
		Conflicts:      conflicts,
		HasConflicts:   len(conflicts) > 0,
		StructuralOnly: structuralOnly,
	}, nil
}

func synthesizePrompt(base *StateRecord, dLeft, dRight *StateDiff, conflicts []conversation.ConflictRecord, mergePrompt string) (string, error) {
	baseJSON, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal base state: %w", err)
	}
	leftJSON, err := json.MarshalIndent(dLeft, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal left diff: %w", err)
	}
	rightJSON, err := json.MarshalIndent(dRight, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal right diff: %w", err)
	}

	conflictSection := ""
	if len(conflicts) > 0 {
		var b strings.Builder
		b.WriteString("\n<conflicts>\n")
		b.WriteString("The following conflicts were detected. Do not auto-resolve them; surface each to the user or ask clarifying questions.\n")
		for _, c := range conflicts {
			fmt.Fprintf(&b, "- [%s/%s] left: %q vs right: %q\n", c.Category, c.Kind, c.LeftItem, c.RightItem)
		}
		b.WriteString("</conflicts>\n")
		conflictSection = b.String()
	}

	userInstruction := ""
	if strings.TrimSpace(mergePrompt) != "" {
		userInstruction = "The user asked: " + strings.TrimSpace(mergePrompt)
	}

	return fmt.Sprintf(mergeExecutionPrompt,
		string(baseJSON), string(leftJSON), string(rightJSON),
		conflictSection, userInstruction), nil
}
