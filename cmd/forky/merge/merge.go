// Package mergecmder provides the merge command for joining two branches of
// the active conversation.
package mergecmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
	"github.com/forkyhq/forky/pkg/merge"
)

type mergeCommander struct {
	apiTarget   string
	incomingID  string
	baseID      string
	mergePrompt string
	checkOnly   bool
}

const mergeLongDesc string = `Merge another branch into the current one.

The merge is a three-way semantic merge: both branches are summarized
against their lowest common ancestor, the two change sets are compared, and
a model synthesizes a unified continuation. Contradictions and divergences
between the branches are surfaced in the merge node's metadata, never
silently resolved.

The incoming node id names the branch to merge in; the base defaults to the
current checkout. Use --check to test eligibility without merging.

Examples:
  forky merge 4f1c9b2a-...
  forky merge 4f1c9b2a-... --prompt "prefer the grpc approach where they disagree"
  forky merge 4f1c9b2a-... --check`

const mergeShortDesc string = "Merge two branches with a semantic three-way merge"

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "merge <incoming-node-id>",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			cmder.incomingID = args[0]
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVar(&cmder.baseID, "base", "", "Base node id (default: current checkout)")
	cmd.Flags().StringVar(&cmder.mergePrompt, "prompt", "", "Extra instruction for the merge synthesis")
	cmd.Flags().BoolVar(&cmder.checkOnly, "check", false, "Check eligibility without merging")

	return cmd
}

func (c *mergeCommander) run() error {
	client := apiclient.New(c.apiTarget)
	ctx := context.Background()

	active, err := client.ActiveConversation(ctx)
	if err != nil {
		return err
	}

	baseID := c.baseID
	if baseID == "" {
		baseID = active.CurrentNodeID
	}

	if c.checkOnly {
		return c.check(ctx, client, active.ID, baseID)
	}

	var result *merge.Result
	err = cliui.Step(os.Stdout, "Merging branches", func() error {
		var mergeErr error
		result, mergeErr = client.Merge(ctx, active.ID, c.baseID, c.incomingID, c.mergePrompt)
		return mergeErr
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Merged into %s %s\n",
		cliui.SuccessMark,
		cliui.IDStyle.Render(result.NodeID),
		cliui.DimStyle.Render(fmt.Sprintf("(common ancestor %s)", result.LCAID)),
	)

	switch {
	case result.StructuralOnly:
		fmt.Printf("  %s\n", cliui.DimStyle.Render("Summarization unavailable; structural merge without conflict detection."))
	case result.HasConflicts:
		fmt.Printf("  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%d conflicts surfaced:", len(result.Conflicts))))
		for _, conflict := range result.Conflicts {
			fmt.Printf("    %s %s: %q vs %q\n",
				cliui.DimStyle.Render(string(conflict.Kind)),
				conflict.Category,
				conflict.LeftItem,
				conflict.RightItem,
			)
		}
	default:
		fmt.Printf("  %s\n", cliui.DimStyle.Render("No conflicts."))
	}
	fmt.Println()

	return nil
}

func (c *mergeCommander) check(ctx context.Context, client *apiclient.Client, conversationID, baseID string) error {
	elig, err := client.MergeEligibility(ctx, conversationID, baseID, c.incomingID)
	if err != nil {
		return err
	}

	if elig.Eligible {
		fmt.Printf("\n  %s Eligible %s\n\n",
			cliui.SuccessMark,
			cliui.DimStyle.Render(fmt.Sprintf("(common ancestor %s)", elig.LCAID)),
		)
		return nil
	}

	fmt.Printf("\n  %s Not eligible: %s\n\n", cliui.FailMark, elig.RejectionReason)
	return nil
}
