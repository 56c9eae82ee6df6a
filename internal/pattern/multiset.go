package pattern

import "sort"

// MatchMultiset reports whether pattern and candidate partition their
// positions identically: the sorted collection of per-character position
// lists must be equal.
func MatchMultiset(pattern, candidate string) bool {
	if len(pattern) != len(candidate) {
		return false
	}
	return equalShape(shapeOf(pattern), candidate)
}

// shapeOf maps each position to the index of the position group it belongs
// to, with groups numbered in order of their first position. Two strings
// have equal sorted position-list collections exactly when their shapes
// are equal, because the groups are disjoint and ordering them by content
// is ordering them by first position.
func shapeOf(s string) []int {
	groups := positionGroups(s)
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	shape := make([]int, len(s))
	for g, positions := range groups {
		for _, p := range positions {
			shape[p] = g
		}
	}
	return shape
}

func positionGroups(s string) [][]int {
	index := make(map[byte]int)
	var groups [][]int
	for i := 0; i < len(s); i++ {
		g, ok := index[s[i]]
		if !ok {
			g = len(groups)
			index[s[i]] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func equalShape(shape []int, candidate string) bool {
	if len(shape) != len(candidate) {
		return false
	}
	got := shapeOf(candidate)
	for i := range shape {
		if shape[i] != got[i] {
			return false
		}
	}
	return true
}
