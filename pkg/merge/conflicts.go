package merge

import "github.com/forkyhq/forky/pkg/conversation"

// Classify detects overlaps between the two branches' diffs against their
// common ancestor. Per category:
//
//   - both_modified: an item's handle appears in both sides' changed lists
//     with differing after values.
//   - contradicts: one side added an item whose handle the other side
//     removed.
//   - diverges: both sides added different items sharing a handle.
//
// Conflicts are reported, never resolved.
func Classify(left, right *StateDiff) []conversation.ConflictRecord {
	var out []conversation.ConflictRecord

	for _, name := range Categories {
		rightChanged := byHandleChanged(right.Changed[name])
		rightAdded := byHandle(right.Added[name])
		leftRemoved := byHandle(left.Removed[name])
		rightRemoved := byHandle(right.Removed[name])

		// both_modified
		for _, lc := range left.Changed[name] {
			rc, ok := rightChanged[Handle(lc.Before)]
			if !ok || normalize(lc.After) == normalize(rc.After) {
				continue
			}
			out = append(out, conversation.ConflictRecord{
				Category:  name,
				LeftItem:  lc.After,
				RightItem: rc.After,
				Kind:      conversation.ConflictBothModified,
			})
		}

		// contradicts, both directions
		for _, item := range left.Added[name] {
			if removed, ok := rightRemoved[Handle(item)]; ok {
				out = append(out, conversation.ConflictRecord{
					Category:  name,
					LeftItem:  item,
					RightItem: removed,
					Kind:      conversation.ConflictContradicts,
				})
			}
		}
		for _, item := range right.Added[name] {
			if removed, ok := leftRemoved[Handle(item)]; ok {
				out = append(out, conversation.ConflictRecord{
					Category:  name,
					LeftItem:  removed,
					RightItem: item,
					Kind:      conversation.ConflictContradicts,
				})
			}
		}

		// diverges
		for _, item := range left.Added[name] {
			other, ok := rightAdded[Handle(item)]
			if !ok || normalize(item) == normalize(other) {
				continue
			}
			out = append(out, conversation.ConflictRecord{
				Category:  name,
				LeftItem:  item,
				RightItem: other,
				Kind:      conversation.ConflictDiverges,
			})
		}
	}

	return out
}

func byHandle(items []string) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		h := Handle(item)
		if _, ok := out[h]; !ok {
			out[h] = item
		}
	}
	return out
}

func byHandleChanged(items []ChangedItem) map[string]ChangedItem {
	out := make(map[string]ChangedItem, len(items))
	for _, item := range items {
		h := Handle(item.Before)
		if _, ok := out[h]; !ok {
			out[h] = item
		}
	}
	return out
}
