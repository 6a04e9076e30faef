package service

import "github.com/forkyhq/forky/pkg/conversation"

// NodeView is the external projection of a node for graph rendering.
type NodeView struct {
	ID         string                      `json:"id"`
	Role       conversation.Role           `json:"role"`
	Content    string                      `json:"content"`
	ParentIDs  []string                    `json:"parent_ids"`
	BranchName string                      `json:"branch_name,omitempty"`
	IsCurrent  bool                        `json:"is_current"`
	IsMerge    bool                        `json:"is_merge"`
	Merge      *conversation.MergeMetadata `json:"merge_metadata,omitempty"`
	Attachment []conversation.Attachment   `json:"attachments,omitempty"`
}

// GraphView is the whole-graph projection returned by GetGraph.
type GraphView struct {
	ConversationID string     `json:"conversation_id"`
	Name           string     `json:"name"`
	CurrentNodeID  string     `json:"current_node_id"`
	Nodes          []NodeView `json:"nodes"`
}

func graphView(g *conversation.Graph) GraphView {
	nodes := g.Nodes()
	views := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, NodeView{
			ID:         n.ID,
			Role:       n.Role,
			Content:    n.Content,
			ParentIDs:  append([]string(nil), n.ParentIDs...),
			BranchName: n.BranchName,
			IsCurrent:  n.ID == g.CurrentID,
			IsMerge:    n.IsMerge(),
			Merge:      n.MergeMetadata,
			Attachment: append([]conversation.Attachment(nil), n.Attachments...),
		})
	}

	return GraphView{
		ConversationID: g.ID,
		Name:           g.Name,
		CurrentNodeID:  g.CurrentID,
		Nodes:          views,
	}
}
