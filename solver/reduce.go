package solver

import "github.com/tos-network/electsim/account"

// Reduce prunes negligible edges from a set of ratio-based assignments:
// for each voter on its own, every edge whose ratio is below
// negligibleRatio is dropped and its ratio is folded into that voter's
// largest remaining edge, so each voter's total ratio is unchanged. It
// does not search for cycles through targets shared by several voters,
// so an edge that is redundant only in combination with other voters'
// edges is kept, unlike sp_npos_elections::reduce.
func Reduce(assignments []Assignment) []Assignment {
	out := make([]Assignment, len(assignments))
	for i, a := range assignments {
		out[i] = Assignment{Who: a.Who, Edges: dropNegligibleEdges(a.Edges)}
	}
	return out
}

// negligibleRatio is the threshold below which an edge is folded into
// its assignment's largest remaining edge rather than kept as a
// separate, near-zero support line.
const negligibleRatio = 1e-9

func dropNegligibleEdges(edges []Edge) []Edge {
	if len(edges) <= 1 {
		return edges
	}
	var kept []Edge
	var dropped float64
	largest := 0
	for i, e := range edges {
		if e.Ratio < negligibleRatio {
			dropped += e.Ratio
			continue
		}
		kept = append(kept, e)
		if e.Ratio > edges[largest].Ratio {
			largest = i
		}
	}
	if len(kept) == 0 {
		return edges
	}
	if dropped > 0 {
		for i := range kept {
			if kept[i].Target == edges[largest].Target {
				kept[i].Ratio += dropped
				break
			}
		}
	}
	return kept
}

// TotalRatio sums an assignment's edge ratios, used by tests to assert
// Reduce never changes a voter's total allocated stake share.
func TotalRatio(edges []Edge) float64 {
	var total float64
	for _, e := range edges {
		total += e.Ratio
	}
	return total
}

// TargetsOf returns the distinct targets referenced across assignments,
// in the order they are first seen.
func TargetsOf(assignments []Assignment) []account.ID {
	seen := make(map[account.ID]bool)
	var out []account.ID
	for _, a := range assignments {
		for _, e := range a.Edges {
			if !seen[e.Target] {
				seen[e.Target] = true
				out = append(out, e.Target)
			}
		}
	}
	return out
}
