package conversation

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Graph is the in-memory DAG for a single conversation. It owns the node
// index, the derived child adjacency, and the checkout pointer. A Graph is
// not safe for concurrent mutation; callers serialize writers per
// conversation (see pkg/service).
type Graph struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Active    bool

	// CurrentID is the checkout pointer. It always references an existing
	// node; only a freshly-zeroed Graph has it empty.
	CurrentID string

	nodes    map[string]*Node
	children map[string][]string
}

// New creates a conversation rooted at a system "Root" node, with the
// checkout pointer on the root.
func New(name string) *Graph {
	g := &Graph{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		nodes:     make(map[string]*Node),
		children:  make(map[string][]string),
	}

	root := NewNode(RoleSystem, RootContent)
	g.nodes[root.ID] = root
	g.CurrentID = root.ID

	return g
}

// Rehydrate rebuilds a Graph from persisted rows and validates every
// invariant. Stores call this on load; a validation failure means the
// persisted state is corrupt.
func Rehydrate(id, name string, createdAt time.Time, active bool, currentID string, nodes []*Node) (*Graph, error) {
	g := &Graph{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		Active:    active,
		CurrentID: currentID,
		nodes:     make(map[string]*Node, len(nodes)),
		children:  make(map[string][]string),
	}

	// Deterministic child ordering regardless of row order.
	sorted := append([]*Node(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, n := range sorted {
		g.nodes[n.ID] = n
	}
	for _, n := range sorted {
		for _, p := range n.ParentIDs {
			g.children[p] = append(g.children[p], n.ID)
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	return g, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, UnknownNodeError{ID: id}
	}
	return n, nil
}

// Has reports whether a node id exists in the conversation.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Root returns the unique parentless node, or nil for an empty graph.
func (g *Graph) Root() *Node {
	for _, n := range g.nodes {
		if n.IsRoot() {
			return n
		}
	}
	return nil
}

// Len returns the number of nodes in the conversation.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all nodes ordered by creation time, then id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Children returns the ids of the given node's children in insertion order.
func (g *Graph) Children(id string) []string {
	return append([]string(nil), g.children[id]...)
}

// Current returns the node the checkout pointer references.
func (g *Graph) Current() (*Node, error) {
	return g.Node(g.CurrentID)
}

// Append creates a node under parentID and moves the checkout pointer to it.
func (g *Graph) Append(parentID string, role Role, content string, attachments ...Attachment) (string, error) {
	if _, ok := g.nodes[parentID]; !ok {
		return "", InvalidParentError{ParentID: parentID}
	}

	n := NewNode(role, content, parentID)
	n.Attachments = append([]Attachment(nil), attachments...)
	g.insert(n)
	g.CurrentID = n.ID

	return n.ID, nil
}

// Fork inserts a named fork marker under fromID and checks it out. The next
// Append begins a divergent chain.
func (g *Graph) Fork(fromID, branchName string) (string, error) {
	if _, ok := g.nodes[fromID]; !ok {
		return "", UnknownNodeError{ID: fromID}
	}

	marker := NewNode(RoleSystem, ForkMarkerContent, fromID)
	marker.BranchName = branchName
	g.insert(marker)
	g.CurrentID = marker.ID

	return marker.ID, nil
}

// AppendMerge commits a merge node joining meta.LeftParentID and
// meta.RightParentID, and checks it out. The caller (pkg/merge) has already
// established eligibility; this revalidates the structural constraints so a
// bad merge can never be committed.
func (g *Graph) AppendMerge(content string, meta *MergeMetadata) (string, error) {
	left, ok := g.nodes[meta.LeftParentID]
	if !ok {
		return "", InvalidParentError{ParentID: meta.LeftParentID}
	}
	right, ok := g.nodes[meta.RightParentID]
	if !ok {
		return "", InvalidParentError{ParentID: meta.RightParentID}
	}
	if left.ID == right.ID {
		return "", CorruptError{ConversationID: g.ID, Reason: "merge parents are identical"}
	}
	if !g.IsAncestor(meta.LCAID, left.ID) || !g.IsAncestor(meta.LCAID, right.ID) {
		return "", CorruptError{ConversationID: g.ID, Reason: "merge lca is not an ancestor of both parents"}
	}

	n := NewNode(RoleAssistant, content, left.ID, right.ID)
	n.MergeMetadata = meta
	g.insert(n)
	g.CurrentID = n.ID

	return n.ID, nil
}

// Checkout moves the pointer to a node id or, failing that, to the tip of
// the named branch. Branch resolution picks the newest matching fork marker
// and descends to the deepest node, always preferring the latest-created
// child.
func (g *Graph) Checkout(identifier string) (string, error) {
	if _, ok := g.nodes[identifier]; ok {
		g.CurrentID = identifier
		return identifier, nil
	}

	marker := g.newestMarker(identifier)
	if marker == nil {
		return "", UnknownIdentifierError{Identifier: identifier}
	}

	tip := marker.ID
	for {
		next := g.latestChild(tip)
		if next == "" {
			break
		}
		tip = next
	}

	g.CurrentID = tip
	return tip, nil
}

// History linearizes root→node. At merge nodes the recorded left parent is
// followed; fork markers are filtered out because they are graph structure,
// not dialogue.
func (g *Graph) History(nodeID string) ([]*Node, error) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil, UnknownNodeError{ID: nodeID}
	}

	var chain []*Node
	seen := make(map[string]bool)
	for n != nil {
		if seen[n.ID] {
			return nil, CorruptError{ConversationID: g.ID, Reason: "cycle on primary parent chain at " + n.ID}
		}
		seen[n.ID] = true

		if !n.IsForkMarker() {
			chain = append(chain, n)
		}

		pid := n.PrimaryParentID()
		if pid == "" {
			break
		}
		parent, ok := g.nodes[pid]
		if !ok {
			return nil, CorruptError{ConversationID: g.ID, Reason: "missing primary parent " + pid}
		}
		n = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain, nil
}

// DeleteNode removes a node and rewires each child onto the deleted node's
// parent set. The root is undeletable. If the checkout pointer is on the
// deleted node it is repositioned to the node's first parent.
func (g *Graph) DeleteNode(id string) error {
	n, ok := g.nodes[id]
	if !ok {
		return UnknownNodeError{ID: id}
	}
	if n.IsRoot() {
		return ErrCannotDeleteRoot
	}

	if g.CurrentID == id {
		if len(n.ParentIDs) == 0 {
			return ErrCannotDeleteCurrent
		}
		g.CurrentID = n.ParentIDs[0]
	}

	// Rewire children: replace the deleted id with the deleted node's
	// parents, in place and deduplicated. Shortcutting through a single
	// node cannot introduce a cycle.
	for _, cid := range g.children[id] {
		child := g.nodes[cid]
		rewired := make([]string, 0, len(child.ParentIDs)+len(n.ParentIDs))
		seen := make(map[string]bool)
		for _, pid := range child.ParentIDs {
			if pid == id {
				for _, inherited := range n.ParentIDs {
					if !seen[inherited] {
						seen[inherited] = true
						rewired = append(rewired, inherited)
					}
				}
				continue
			}
			if !seen[pid] {
				seen[pid] = true
				rewired = append(rewired, pid)
			}
		}
		if len(rewired) == 0 {
			return ErrCannotDeleteRoot
		}
		child.ParentIDs = rewired

		if child.MergeMetadata != nil {
			if child.MergeMetadata.LeftParentID == id {
				child.MergeMetadata.LeftParentID = n.ParentIDs[0]
			}
			if child.MergeMetadata.RightParentID == id {
				child.MergeMetadata.RightParentID = n.ParentIDs[0]
			}
			// A merge whose parents collapsed into one is an ordinary node now.
			if len(child.ParentIDs) < 2 || child.MergeMetadata.LeftParentID == child.MergeMetadata.RightParentID {
				child.MergeMetadata = nil
			}
		}
	}

	// Any merge anywhere in the graph may record the deleted node as its
	// fork point. Rewrite those to the deleted node's primary parent, which
	// stays an ancestor of both merge parents after the shortcut.
	for _, other := range g.nodes {
		if other.ID != id && other.MergeMetadata != nil && other.MergeMetadata.LCAID == id {
			other.MergeMetadata.LCAID = n.ParentIDs[0]
		}
	}

	// Splice the adjacency: parents of the deleted node adopt its children.
	orphaned := g.children[id]
	for _, pid := range n.ParentIDs {
		kept := make([]string, 0, len(g.children[pid])+len(orphaned))
		for _, cid := range g.children[pid] {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		for _, cid := range orphaned {
			found := false
			for _, existing := range kept {
				if existing == cid {
					found = true
					break
				}
			}
			if !found {
				kept = append(kept, cid)
			}
		}
		g.children[pid] = kept
	}

	delete(g.children, id)
	delete(g.nodes, id)

	return nil
}

// AncestorSet returns the ids of every ancestor of id, including id itself.
func (g *Graph) AncestorSet(id string) (map[string]struct{}, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, UnknownNodeError{ID: id}
	}

	set := map[string]struct{}{id: {}}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, pid := range g.nodes[cur].ParentIDs {
			if _, visited := set[pid]; visited {
				continue
			}
			set[pid] = struct{}{}
			queue = append(queue, pid)
		}
	}

	return set, nil
}

// IsAncestor reports whether a is an ancestor of b (inclusive: a node is
// its own ancestor).
func (g *Graph) IsAncestor(a, b string) bool {
	set, err := g.AncestorSet(b)
	if err != nil {
		return false
	}
	_, ok := set[a]
	return ok
}

// LCA returns the lowest common ancestor of a and b, or "" when the nodes
// share no ancestor. Among the deepest common ancestors, ties break on
// highest CreatedAt, then lexicographically smallest id, which yields a
// single canonical answer.
func (g *Graph) LCA(a, b string) (string, error) {
	setA, err := g.AncestorSet(a)
	if err != nil {
		return "", err
	}
	setB, err := g.AncestorSet(b)
	if err != nil {
		return "", err
	}

	common := make(map[string]struct{})
	for id := range setA {
		if _, ok := setB[id]; ok {
			common[id] = struct{}{}
		}
	}
	if len(common) == 0 {
		return "", nil
	}

	// The intersection of two ancestor-closed sets is ancestor-closed, so a
	// common ancestor is dominated exactly when it parents another member.
	dominated := make(map[string]struct{})
	for id := range common {
		for _, pid := range g.nodes[id].ParentIDs {
			if _, ok := common[pid]; ok {
				dominated[pid] = struct{}{}
			}
		}
	}

	var best *Node
	for id := range common {
		if _, ok := dominated[id]; ok {
			continue
		}
		cand := g.nodes[id]
		switch {
		case best == nil:
			best = cand
		case cand.CreatedAt.After(best.CreatedAt):
			best = cand
		case cand.CreatedAt.Equal(best.CreatedAt) && cand.ID < best.ID:
			best = cand
		}
	}
	if best == nil {
		return "", nil
	}

	return best.ID, nil
}

// BranchNameAt returns the nearest branch label on the primary ancestor
// chain of id, for display. Empty when id sits on the unnamed trunk.
func (g *Graph) BranchNameAt(id string) string {
	n, ok := g.nodes[id]
	for ok {
		if n.BranchName != "" {
			return n.BranchName
		}
		pid := n.PrimaryParentID()
		if pid == "" {
			return ""
		}
		n, ok = g.nodes[pid]
	}
	return ""
}

// TopoOrder returns node ids in an order where every parent precedes its
// children, or a CorruptError when the graph contains a cycle.
func (g *Graph) TopoOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.ParentIDs)
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := g.children[id]
		for _, cid := range next {
			indegree[cid]--
			if indegree[cid] == 0 {
				ready = append(ready, cid)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, CorruptError{ConversationID: g.ID, Reason: "graph contains a cycle"}
	}

	return order, nil
}

// Validate checks every structural invariant. It runs on load and may be
// called after any mutation in tests.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		if g.CurrentID != "" {
			return CorruptError{ConversationID: g.ID, Reason: "checkout pointer set on empty conversation"}
		}
		return nil
	}

	roots := 0
	for _, n := range g.nodes {
		if n.IsRoot() {
			roots++
		}
		for _, pid := range n.ParentIDs {
			if _, ok := g.nodes[pid]; !ok {
				return CorruptError{ConversationID: g.ID, Reason: "node " + n.ID + " references missing parent " + pid}
			}
		}
	}
	if roots != 1 {
		return CorruptError{ConversationID: g.ID, Reason: "conversation must have exactly one root"}
	}

	if _, ok := g.nodes[g.CurrentID]; !ok {
		return CorruptError{ConversationID: g.ID, Reason: "checkout pointer references missing node " + g.CurrentID}
	}

	if _, err := g.TopoOrder(); err != nil {
		return err
	}

	for _, n := range g.nodes {
		if n.IsForkMarker() {
			if len(n.ParentIDs) != 1 {
				return CorruptError{ConversationID: g.ID, Reason: "fork marker " + n.ID + " must have exactly one parent"}
			}
			if n.MergeMetadata != nil {
				return CorruptError{ConversationID: g.ID, Reason: "fork marker " + n.ID + " carries merge metadata"}
			}
		}

		switch {
		case len(n.ParentIDs) > 2:
			return CorruptError{ConversationID: g.ID, Reason: "node " + n.ID + " has more than two parents"}
		case len(n.ParentIDs) == 2:
			if n.ParentIDs[0] == n.ParentIDs[1] {
				return CorruptError{ConversationID: g.ID, Reason: "merge node " + n.ID + " has duplicate parents"}
			}
			meta := n.MergeMetadata
			if meta == nil {
				return CorruptError{ConversationID: g.ID, Reason: "two-parent node " + n.ID + " is missing merge metadata"}
			}
			if !sameParentSet(n.ParentIDs, meta.LeftParentID, meta.RightParentID) {
				return CorruptError{ConversationID: g.ID, Reason: "merge metadata of " + n.ID + " disagrees with parent set"}
			}
			if !g.IsAncestor(meta.LCAID, meta.LeftParentID) || !g.IsAncestor(meta.LCAID, meta.RightParentID) {
				return CorruptError{ConversationID: g.ID, Reason: "merge lca of " + n.ID + " is not an ancestor of both parents"}
			}
		}
	}

	return nil
}

func sameParentSet(parents []string, left, right string) bool {
	return (parents[0] == left && parents[1] == right) ||
		(parents[0] == right && parents[1] == left)
}

func (g *Graph) insert(n *Node) {
	g.nodes[n.ID] = n
	for _, pid := range n.ParentIDs {
		g.children[pid] = append(g.children[pid], n.ID)
	}
}

// newestMarker returns the most recent fork marker labeled name: highest
// CreatedAt, ties broken by lexicographically smallest id.
func (g *Graph) newestMarker(name string) *Node {
	var best *Node
	for _, n := range g.nodes {
		if !n.IsForkMarker() || n.BranchName != name {
			continue
		}
		switch {
		case best == nil:
			best = n
		case n.CreatedAt.After(best.CreatedAt):
			best = n
		case n.CreatedAt.Equal(best.CreatedAt) && n.ID < best.ID:
			best = n
		}
	}
	return best
}

// latestChild returns the child of id with the highest CreatedAt, ties
// broken by lexicographically greatest id. Empty when id is a leaf.
func (g *Graph) latestChild(id string) string {
	var best *Node
	for _, cid := range g.children[id] {
		c := g.nodes[cid]
		switch {
		case best == nil:
			best = c
		case c.CreatedAt.After(best.CreatedAt):
			best = c
		case c.CreatedAt.Equal(best.CreatedAt) && c.ID > best.ID:
			best = c
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}
