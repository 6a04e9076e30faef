package merge

import (
	"strings"
	"unicode"
)

const handleTokens = 5

// normalize is the equality key for items: trimmed and case-folded.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Handle approximates an item's "first noun phrase": tokenize on whitespace
// and punctuation, keep the leading five tokens, case-folded. Items sharing
// a handle are treated as being about the same thing.
func Handle(s string) string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) > handleTokens {
		tokens = tokens[:handleTokens]
	}
	return strings.Join(tokens, " ")
}

// Diff computes the per-category difference between base and side. It is
// pure and deterministic: item order follows the input records.
//
// An item pair with matching handles but differing text is a changed entry
// and is excluded from added and removed.
func Diff(base, side *StateRecord) *StateDiff {
	out := &StateDiff{
		Added:   make(map[string][]string),
		Removed: make(map[string][]string),
		Changed: make(map[string][]ChangedItem),
	}

	for _, name := range Categories {
		baseItems := base.Category(name)
		sideItems := side.Category(name)

		baseKeys := make(map[string]bool, len(baseItems))
		for _, item := range baseItems {
			baseKeys[normalize(item)] = true
		}
		sideKeys := make(map[string]bool, len(sideItems))
		for _, item := range sideItems {
			sideKeys[normalize(item)] = true
		}

		var added []string
		for _, item := range sideItems {
			if !baseKeys[normalize(item)] {
				added = append(added, item)
			}
		}
		var removed []string
		for _, item := range baseItems {
			if !sideKeys[normalize(item)] {
				removed = append(removed, item)
			}
		}

		// Pair removed items with added items by handle; each pair becomes a
		// changed entry. First unmatched candidate wins, in input order.
		usedAdded := make([]bool, len(added))
		keptRemoved := removed[:0]
		for _, before := range removed {
			h := Handle(before)
			paired := false
			for i, after := range added {
				if usedAdded[i] || Handle(after) != h {
					continue
				}
				out.Changed[name] = append(out.Changed[name], ChangedItem{Before: before, After: after})
				usedAdded[i] = true
				paired = true
				break
			}
			if !paired {
				keptRemoved = append(keptRemoved, before)
			}
		}
		var keptAdded []string
		for i, item := range added {
			if !usedAdded[i] {
				keptAdded = append(keptAdded, item)
			}
		}

		if len(keptAdded) > 0 {
			out.Added[name] = keptAdded
		}
		if len(keptRemoved) > 0 {
			out.Removed[name] = keptRemoved
		}
	}

	return out
}
