package merge

// Named rejection reasons for merge eligibility. These are stable codes the
// API and CLI branch on.
const (
	ReasonSelfMerge          = "cannot_merge_node_with_itself"
	ReasonAncestorDescendant = "cannot_merge_ancestor_with_descendant"
	ReasonNoCommonAncestor   = "no_common_ancestor_found"
)

// IneligibleError rejects a merge attempt with one of the named reasons.
type IneligibleError struct {
	Reason string
}

func (e IneligibleError) Error() string {
	return "merge ineligible: " + e.Reason
}
