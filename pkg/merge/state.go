// Package merge implements three-way semantic merge over conversation
// branches: model-produced state summaries, a deterministic diff between
// summaries, conflict classification, and the executor that commits the
// merge node.
package merge

// Summary categories. Category order is fixed so diffs and conflict lists
// are deterministic.
const (
	CategoryFacts         = "facts"
	CategoryDecisions     = "decisions"
	CategoryOpenQuestions = "open_questions"
	CategoryAssumptions   = "assumptions"
)

// Categories lists every summary category in canonical order.
var Categories = []string{
	CategoryFacts,
	CategoryDecisions,
	CategoryOpenQuestions,
	CategoryAssumptions,
}

// StateRecord is the structured state of a conversation at a node, as
// extracted by the summarizer. Item order within each list is
// summarizer-chosen and significant.
type StateRecord struct {
	Facts         []string `json:"facts"`
	Decisions     []string `json:"decisions"`
	OpenQuestions []string `json:"open_questions"`
	Assumptions   []string `json:"assumptions"`
	Topic         string   `json:"topic"`
}

// Category returns the item list for a category name.
func (s *StateRecord) Category(name string) []string {
	switch name {
	case CategoryFacts:
		return s.Facts
	case CategoryDecisions:
		return s.Decisions
	case CategoryOpenQuestions:
		return s.OpenQuestions
	case CategoryAssumptions:
		return s.Assumptions
	}
	return nil
}

// IsEmpty reports whether no category holds any item.
func (s *StateRecord) IsEmpty() bool {
	for _, name := range Categories {
		if len(s.Category(name)) > 0 {
			return false
		}
	}
	return true
}

// ChangedItem is one item whose text changed between base and side.
type ChangedItem struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// StateDiff is the deterministic difference between two StateRecords,
// keyed by category.
type StateDiff struct {
	Added   map[string][]string      `json:"added"`
	Removed map[string][]string      `json:"removed"`
	Changed map[string][]ChangedItem `json:"changed"`
}

// IsEmpty reports whether the diff carries no entries.
func (d *StateDiff) IsEmpty() bool {
	for _, name := range Categories {
		if len(d.Added[name]) > 0 || len(d.Removed[name]) > 0 || len(d.Changed[name]) > 0 {
			return false
		}
	}
	return true
}
