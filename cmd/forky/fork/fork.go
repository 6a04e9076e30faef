// Package forkcmder provides the fork command for branching the active
// conversation at its current point.
package forkcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
)

type forkCommander struct {
	apiTarget  string
	branchName string
}

const forkLongDesc string = `Fork the active conversation at its current point.

A fork commits a named marker node at the current checkout and moves the
checkout onto it. Messages sent afterwards grow the new branch; the
original line of conversation is untouched and can be checked out again by
node id or by its own branch name.

Examples:
  forky fork try-grpc-instead
  forky fork`

const forkShortDesc string = "Branch the conversation at the current point"

func NewForkCmd() *cobra.Command {
	cmder := &forkCommander{}

	cmd := &cobra.Command{
		Use:   "fork [branch-name]",
		Short: forkShortDesc,
		Long:  forkLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				cmder.branchName = args[0]
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *forkCommander) run() error {
	client := apiclient.New(c.apiTarget)
	ctx := context.Background()

	active, err := client.ActiveConversation(ctx)
	if err != nil {
		return err
	}

	markerID, err := client.Fork(ctx, active.ID, c.branchName)
	if err != nil {
		return err
	}

	name := c.branchName
	if name == "" {
		name = "(generated)"
	}
	fmt.Printf("\n  %s Forked %s at %s\n\n",
		cliui.SuccessMark,
		cliui.BranchStyle.Render(name),
		cliui.IDStyle.Render(markerID),
	)
	return nil
}
