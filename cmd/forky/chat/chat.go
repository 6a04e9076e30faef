// Package chatcmder provides the chat command for an interactive session on
// the active conversation.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
	"github.com/forkyhq/forky/pkg/logger"
	"github.com/forkyhq/forky/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	apiTarget string
	model     string
	debug     bool

	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session on the active conversation.

Each turn commits a user node and an assistant node to the conversation
DAG at the current checkout. The session always continues from wherever
the conversation is checked out; use "forky checkout" first to continue
from an earlier point, or "forky fork" to branch.

In-session commands:
  /fork <name>      Branch here and continue on the new branch
  /checkout <ref>   Jump to a node id or branch name
  /exit             Quit (Ctrl+D also works)

Examples:
  forky chat
  forky chat --model llama3.2`

const chatShortDesc string = "Interactive chat on the active conversation"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ResolveAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client := apiclient.New(c.apiTarget)
	ctx := context.Background()

	active, err := client.ActiveConversation(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  %s %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(active.Name),
		cliui.DimStyle.Render(fmt.Sprintf("(at %s)", utils.Truncate(active.CurrentNodeID, 8))),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		if strings.HasPrefix(input, "/") {
			if err := c.command(ctx, client, active.ID, input); err != nil {
				fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			}
			continue
		}

		fmt.Print(assistantPrompt)
		chunk, err := client.Chat(ctx, active.ID, input, c.model, nil, func(delta string) {
			fmt.Print(delta)
		})
		if err != nil {
			fmt.Println()
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}

		c.logger.Debug("turn committed",
			zap.String("user_node_id", chunk.UserNodeID),
			zap.String("assistant_node_id", chunk.AssistantNodeID),
		)

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// command handles in-session slash commands.
func (c *chatCommander) command(ctx context.Context, client *apiclient.Client, conversationID, input string) error {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/fork":
		name := ""
		if len(fields) > 1 {
			name = fields[1]
		}
		markerID, err := client.Fork(ctx, conversationID, name)
		if err != nil {
			return err
		}
		fmt.Printf("  %s Forked at %s\n\n", cliui.SuccessMark, cliui.IDStyle.Render(utils.Truncate(markerID, 8)))
		return nil

	case "/checkout":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /checkout <node-id | branch-name>")
		}
		current, err := client.Checkout(ctx, conversationID, fields[1])
		if err != nil {
			return err
		}
		fmt.Printf("  %s Checked out %s\n\n", cliui.SuccessMark, cliui.IDStyle.Render(utils.Truncate(current, 8)))
		return nil

	default:
		return fmt.Errorf("unknown command %q (available: /fork, /checkout, /exit)", fields[0])
	}
}
