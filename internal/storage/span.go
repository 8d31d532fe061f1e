package storage

import "sort"

// mergeSpan inserts add into spans, keeping the list sorted and merging
// overlapping or adjacent intervals.
func mergeSpan(spans []span, add span) []span {
	if add.start >= add.end {
		return spans
	}
	spans = append(spans, add)
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := spans[:0]
	for _, sp := range spans {
		if len(merged) > 0 && sp.start <= merged[len(merged)-1].end {
			if sp.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

// removeSpan subtracts rm from every interval in spans.
func removeSpan(spans []span, rm span) []span {
	var out []span
	for _, sp := range spans {
		out = append(out, subtractSpans(sp, []span{rm})...)
	}
	return out
}

// mergeAll returns the union of two already-merged span lists.
func mergeAll(a, b []span) []span {
	out := append([]span(nil), a...)
	for _, sp := range b {
		out = mergeSpan(out, sp)
	}
	return out
}

// subtractSpans returns the parts of target not covered by any span in from.
func subtractSpans(target span, from []span) []span {
	remaining := []span{target}
	for _, f := range from {
		var next []span
		for _, r := range remaining {
			if f.end <= r.start || f.start >= r.end {
				next = append(next, r)
				continue
			}
			if f.start > r.start {
				next = append(next, span{r.start, f.start})
			}
			if f.end < r.end {
				next = append(next, span{f.end, r.end})
			}
		}
		remaining = next
	}
	return remaining
}

// isCovered reports whether target is entirely contained within the union
// of the (already-merged, sorted) spans list.
func isCovered(spans []span, target span) bool {
	return len(subtractSpans(target, spans)) == 0
}
