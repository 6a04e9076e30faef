// Package searchcmder provides the search command for finding messages
// across all conversations.
package searchcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
	"github.com/forkyhq/forky/pkg/utils"
)

type searchCommander struct {
	apiTarget string
	query     string
	limit     int
}

const searchLongDesc string = `Search message content across all conversations.

Matches are case-insensitive substring matches. Each hit shows the
conversation, the node id (usable with "forky checkout"), and a snippet
around the match.

Examples:
  forky search "rate limiter"
  forky search grpc --limit 10`

const searchShortDesc string = "Search across conversations"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			cmder.query = strings.Join(args, " ")
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().IntVar(&cmder.limit, "limit", 0, "Maximum number of hits to return")

	return cmd
}

func (c *searchCommander) run() error {
	client := apiclient.New(c.apiTarget)

	hits, err := client.Search(context.Background(), c.query, c.limit)
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No matches."))
		return nil
	}

	fmt.Println()
	for _, hit := range hits {
		fmt.Printf("  %s %s %s\n    %s\n",
			cliui.NameStyle.Render(utils.Truncate(hit.ConversationName, 32)),
			cliui.IDStyle.Render(utils.Truncate(hit.NodeID, 8)),
			cliui.KeyStyle.Render(fmt.Sprintf("[%s]", hit.Role)),
			hit.Snippet,
		)
	}
	fmt.Println()

	return nil
}
