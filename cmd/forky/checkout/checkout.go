// Package checkoutcmder provides the checkout command for moving the active
// conversation's pointer.
package checkoutcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
)

type checkoutCommander struct {
	apiTarget  string
	identifier string
}

const checkoutLongDesc string = `Move the active conversation's pointer to another node.

The identifier is either a node id or a branch name. Checking out a branch
name jumps to the newest node on that branch. The next chat turn continues
from the checked-out point; sending a message from the middle of a branch
implicitly creates a sibling line of conversation.

Examples:
  forky checkout 4f1c9b2a-...
  forky checkout try-grpc-instead`

const checkoutShortDesc string = "Check out a node or branch"

func NewCheckoutCmd() *cobra.Command {
	cmder := &checkoutCommander{}

	cmd := &cobra.Command{
		Use:   "checkout <node-id | branch-name>",
		Short: checkoutShortDesc,
		Long:  checkoutLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			cmder.identifier = args[0]
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *checkoutCommander) run() error {
	client := apiclient.New(c.apiTarget)
	ctx := context.Background()

	active, err := client.ActiveConversation(ctx)
	if err != nil {
		return err
	}

	current, err := client.Checkout(ctx, active.ID, c.identifier)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Checked out %s\n\n",
		cliui.SuccessMark,
		cliui.IDStyle.Render(current),
	)
	return nil
}
