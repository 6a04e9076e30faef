// Package graphcmder provides the graph command for rendering the active
// conversation's full DAG.
package graphcmder

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/forkyhq/forky/pkg/apiclient"
	"github.com/forkyhq/forky/pkg/cliui"
	"github.com/forkyhq/forky/pkg/config"
	"github.com/forkyhq/forky/pkg/service"
	"github.com/forkyhq/forky/pkg/utils"
)

type graphCommander struct {
	apiTarget string
}

const graphLongDesc string = `Render the active conversation's full DAG.

Every node is shown with its parents, branch labels, fork markers, and
merge joins. The current checkout is marked with an arrow.

Examples:
  forky graph`

const graphShortDesc string = "Render the conversation DAG"

func NewGraphCmd() *cobra.Command {
	cmder := &graphCommander{}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: graphShortDesc,
		Long:  graphLongDesc,
		Args:  cobra.NoArgs,
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

func (c *graphCommander) run() error {
	client := apiclient.New(c.apiTarget)
	ctx := context.Background()

	active, err := client.ActiveConversation(ctx)
	if err != nil {
		return err
	}

	view, err := client.Graph(ctx, active.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s %s %s\n\n",
		cliui.KeyStyle.Render("Conversation:"),
		cliui.NameStyle.Render(view.Name),
		cliui.DimStyle.Render(fmt.Sprintf("(%d nodes)", len(view.Nodes))),
	)

	for _, node := range orderByDepth(view.Nodes) {
		printNode(node)
	}
	fmt.Println()

	return nil
}

// orderByDepth sorts nodes parents-before-children so the rendering reads
// top-down from the root.
func orderByDepth(nodes []service.NodeView) []service.NodeView {
	depth := make(map[string]int, len(nodes))
	byID := make(map[string]service.NodeView, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		n, ok := byID[id]
		if !ok || len(n.ParentIDs) == 0 {
			depth[id] = 0
			return 0
		}
		max := 0
		for _, p := range n.ParentIDs {
			if d := depthOf(p) + 1; d > max {
				max = d
			}
		}
		depth[id] = max
		return max
	}

	out := append([]service.NodeView(nil), nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		return depthOf(out[i].ID) < depthOf(out[j].ID)
	})
	return out
}

func printNode(node service.NodeView) {
	pointer := "  "
	if node.IsCurrent {
		pointer = cliui.SuccessMark + ">"
	}

	label := string(node.Role)
	switch {
	case node.IsMerge:
		label = "merge"
	case node.BranchName != "" && node.Content == "<FORK>":
		label = "fork"
	}

	content := utils.Truncate(node.Content, 60)
	if label == "fork" {
		content = cliui.BranchStyle.Render(node.BranchName)
	}

	fmt.Printf("  %s %s %s %s\n",
		pointer,
		cliui.IDStyle.Render(utils.Truncate(node.ID, 8)),
		cliui.KeyStyle.Render(fmt.Sprintf("[%s]", label)),
		content,
	)

	if node.IsMerge && node.Merge != nil {
		fmt.Printf("       %s\n", cliui.DimStyle.Render(fmt.Sprintf(
			"joins %s + %s (ancestor %s, %d conflicts)",
			utils.Truncate(node.Merge.LeftParentID, 8),
			utils.Truncate(node.Merge.RightParentID, 8),
			utils.Truncate(node.Merge.LCAID, 8),
			len(node.Merge.Conflicts),
		)))
	}
}
