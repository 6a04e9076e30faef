// Package newcmder provides the new command for creating a conversation.
package newcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
)

type newCommander struct {
	apiTarget string
	name      string
}

const newLongDesc string = `Create a new conversation and make it the active one.

Every conversation starts with a single system root node. An optional name
argument sets the display name; without one a timestamped name is used.

Examples:
  forky new
  forky new "API design brainstorm"`

const newShortDesc string = "Create a new conversation"

func NewNewCmd() *cobra.Command {
	cmder := &newCommander{}

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: newShortDesc,
		Long:  newLongDesc,
		Args:  cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.name = strings.Join(args, " ")
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *newCommander) run() error {
	client := apiclient.New(c.apiTarget)
	ctx := context.Background()

	id, err := client.CreateConversation(ctx, c.name)
	if err != nil {
		return err
	}

	if _, err := client.LoadConversation(ctx, id); err != nil {
		return fmt.Errorf("activating conversation: %w", err)
	}

	fmt.Printf("\n  %s Created conversation %s\n\n",
		cliui.SuccessMark,
		cliui.IDStyle.Render(id),
	)
	return nil
}
