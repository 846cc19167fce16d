package graphview

// ConsolidateEdges merges every reciprocal pair of opposite-direction edges
// (A→B and B→A) into a single bidirectional edge. The merged edge takes the
// more active of the two styles (error > traversed > in-flight > default)
// and joins both condition labels for display. Non-reciprocal edges pass
// through unchanged, already-bidirectional edges are left alone, and the
// operation is idempotent: re-applying it to its own output is a no-op.
// When disabled it is the identity function.
func ConsolidateEdges(edges []Edge, enabled bool) []Edge {
	if !enabled {
		return edges
	}

	type pairKey struct {
		lo, hi string
	}
	keyOf := func(a, b string) pairKey {
		if a < b {
			return pairKey{a, b}
		}
		return pairKey{b, a}
	}

	// First pass: count normal edges per ordered direction so reciprocal
	// unordered pairs can be detected.
	forward := make(map[edgeKey]bool, len(edges))
	for _, e := range edges {
		if e.Kind == EdgeKindNormal {
			forward[edgeKey{e.Source, e.Target}] = true
		}
	}

	out := make([]Edge, 0, len(edges))
	merged := make(map[pairKey]int) // pair → index of merged edge in out

	for _, e := range edges {
		// Self-loops are their own reverse; leave them alone.
		if e.Kind != EdgeKindNormal || e.Source == e.Target || !forward[edgeKey{e.Target, e.Source}] {
			out = append(out, e)
			continue
		}

		key := keyOf(e.Source, e.Target)
		idx, seen := merged[key]
		if !seen {
			e.Kind = EdgeKindBidirectional
			merged[key] = len(out)
			out = append(out, e)
			continue
		}

		// Fold this direction into the already-merged edge.
		m := &out[idx]
		if styleRank(e) > styleRank(*m) {
			m.Style = e.Style
			m.Animated = e.Animated
		}
		if e.ConditionLabel != "" {
			if m.ConditionLabel == "" {
				m.ConditionLabel = e.ConditionLabel
			} else if m.ConditionLabel != e.ConditionLabel {
				m.ConditionLabel = m.ConditionLabel + " / " + e.ConditionLabel
			}
		}
	}

	return out
}
