// Package forkycmder
package forkycmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/forkyhq/forky/cmd/forky/chat"
	checkoutcmder "github.com/forkyhq/forky/cmd/forky/checkout"
	configcmder "github.com/forkyhq/forky/cmd/forky/config"
	forkcmder "github.com/forkyhq/forky/cmd/forky/fork"
	graphcmder "github.com/forkyhq/forky/cmd/forky/graph"
	listcmder "github.com/forkyhq/forky/cmd/forky/list"
	loadcmder "github.com/forkyhq/forky/cmd/forky/load"
	logcmder "github.com/forkyhq/forky/cmd/forky/log"
	mergecmder "github.com/forkyhq/forky/cmd/forky/merge"
	newcmder "github.com/forkyhq/forky/cmd/forky/new"
	searchcmder "github.com/forkyhq/forky/cmd/forky/search"
	servecmder "github.com/forkyhq/forky/cmd/forky/serve"
	versioncmder "github.com/forkyhq/forky/cmd/version"
)

const forkyLongDesc string = `Forky is git-style branching for AI conversations.

Every conversation is a DAG of messages. Fork at any point to explore an
alternative direction, check out any node to rewind, and merge two branches
back together with a three-way semantic merge that surfaces conflicts
instead of silently resolving them.

Start the server with:
  forky serve

Then talk to it:
  forky new            Create a conversation
  forky chat           Chat on the active conversation
  forky fork <name>    Branch off at the current point
  forky merge <node>   Merge another branch into the current one`

const forkyShortDesc string = "Forky - branching conversations with semantic merge"

func NewForkyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forky",
		Short: forkyShortDesc,
		Long:  forkyLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .forky/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(newcmder.NewNewCmd())
	cmd.AddCommand(listcmder.NewListCmd())
	cmd.AddCommand(loadcmder.NewLoadCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(forkcmder.NewForkCmd())
	cmd.AddCommand(checkoutcmder.NewCheckoutCmd())
	cmd.AddCommand(mergecmder.NewMergeCmd())
	cmd.AddCommand(logcmder.NewLogCmd())
	cmd.AddCommand(graphcmder.NewGraphCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
