// Package logcmder provides the log command for printing the active
// conversation's linear history.
package logcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
	"github.com/forkyhq/forky/pkg/utils"
)

type logCommander struct {
	apiTarget string
	full      bool
}

const logLongDesc string = `Show the active conversation's history from root to the current node.

History follows primary parents only: a merge node's history continues down
its left (base) side plus the merge node itself. Fork markers are filtered
out.

Examples:
  forky log
  forky log --full`

const logShortDesc string = "Show conversation history"

func NewLogCmd() *cobra.Command {
	cmder := &logCommander{}

	cmd := &cobra.Command{
		Use:   "log",
		Short: logShortDesc,
		Long:  logLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().BoolVar(&cmder.full, "full", false, "Print full message contents instead of previews")

	return cmd
}

func (c *logCommander) run() error {
	client := apiclient.New(c.apiTarget)
	ctx := context.Background()

	active, err := client.ActiveConversation(ctx)
	if err != nil {
		return err
	}

	history, err := client.History(ctx, active.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s %s\n\n",
		cliui.KeyStyle.Render("Conversation:"),
		cliui.NameStyle.Render(active.Name),
	)

	for i := range history {
		node := &history[i]
		if node.IsRoot() {
			continue
		}

		content := node.Content
		if !c.full {
			content = utils.Truncate(content, 72)
		}

		label := string(node.Role)
		if node.IsMerge() {
			label = "merge"
		}

		fmt.Printf("  %s %s %s\n",
			cliui.IDStyle.Render(utils.Truncate(node.ID, 8)),
			cliui.KeyStyle.Render(fmt.Sprintf("[%s]", label)),
			content,
		)

		if node.IsMerge() && len(node.MergeMetadata.Conflicts) > 0 {
			fmt.Printf("           %s\n",
				cliui.DimStyle.Render(fmt.Sprintf("%d conflicts surfaced", len(node.MergeMetadata.Conflicts))))
		}
	}
	fmt.Println()

	return nil
}
