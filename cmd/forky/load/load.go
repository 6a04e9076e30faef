// Package loadcmder provides the load command for switching the active
// conversation.
package loadcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
)

type loadCommander struct {
	apiTarget string
	id        string
}

const loadLongDesc string = `Load a conversation, making it the active one.

The active conversation is the target of chat, fork, checkout, merge and
log. Find conversation ids with "forky list".

Examples:
  forky load 4f1c9b2a-...`

const loadShortDesc string = "Load a conversation"

func NewLoadCmd() *cobra.Command {
	cmder := &loadCommander{}

	cmd := &cobra.Command{
		Use:   "load <conversation-id>",
		Short: loadShortDesc,
		Long:  loadLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			cmder.id = args[0]
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *loadCommander) run() error {
	client := apiclient.New(c.apiTarget)

	currentNodeID, err := client.LoadConversation(context.Background(), c.id)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Loaded %s %s\n\n",
		cliui.SuccessMark,
		cliui.IDStyle.Render(c.id),
		cliui.DimStyle.Render(fmt.Sprintf("(current node %s)", currentNodeID)),
	)
	return nil
}
