package diff

import (
	"sort"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/state"
)

// RenderText turns a text container's materialised value into an
// attributed Quill-delta form: one insert op per maximal run of constant
// style attributes, in left-to-right order.
// This is a point-in-time rendering (from Container.Value), independent of
// the incremental per-commit TextDelta the Calculator produces.
func RenderText(v state.TextValue) TextDelta {
	text := v.Text
	if len(text) == 0 {
		return TextDelta{}
	}
	boundaries := map[int]bool{0: true, len(text): true}
	for _, s := range v.Styles {
		boundaries[s.StartPos] = true
		if s.HasEnd {
			boundaries[s.EndPos] = true
		} else {
			boundaries[len(text)] = true
		}
	}
	cuts := make([]int, 0, len(boundaries))
	for b := range boundaries {
		cuts = append(cuts, b)
	}
	sort.Ints(cuts)

	var out TextDelta
	for i := 0; i+1 < len(cuts); i++ {
		start, end := cuts[i], cuts[i+1]
		if start >= end {
			continue
		}
		attrs := attributesAt(v, start)
		out.insert(string(text[start:end]), attrs)
	}
	return out
}

// attributesAt returns every style active at byte offset pos (start
// inclusive, end exclusive or unbounded).
func attributesAt(v state.TextValue, pos int) map[string]arena.Value {
	var attrs map[string]arena.Value
	for _, s := range v.Styles {
		if pos < s.StartPos {
			continue
		}
		if s.HasEnd && pos >= s.EndPos {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]arena.Value)
		}
		attrs[s.Key] = s.Value
	}
	return attrs
}
