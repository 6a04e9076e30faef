// Package listcmder provides the list command for showing stored
// conversations.
package listcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
	"github.com/forkyhq/forky/pkg/utils"
)

type listCommander struct {
	apiTarget string
}

const listLongDesc string = `List stored conversations, most recently updated first.

The active conversation (the one chat, fork, checkout and merge operate on)
is marked with an asterisk.

Examples:
  forky list`

const listShortDesc string = "List conversations"

func NewListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   listShortDesc,
		Long:    listLongDesc,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *listCommander) run() error {
	client := apiclient.New(c.apiTarget)

	summaries, err := client.ListConversations(context.Background())
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No conversations yet. Run \"forky new\" to create one."))
		return nil
	}

	fmt.Println()
	for _, s := range summaries {
		marker := " "
		if s.Active {
			marker = cliui.SuccessMark
		}
		fmt.Printf("  %s %s  %s %s\n",
			marker,
			cliui.IDStyle.Render(s.ID),
			cliui.NameStyle.Render(utils.Truncate(s.Name, 48)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d nodes, updated %s)",
				s.NodeCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))),
		)
	}
	fmt.Println()

	return nil
}
