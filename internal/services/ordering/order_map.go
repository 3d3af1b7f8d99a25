package ordering

import (
	"math"

	"github.com/asakaida/junban/internal/entities"
)

// BuildOrderMap spreads every group of entries sharing an order value over
// (floor(order), floor(order)+1), keeping sequence order inside the group.
// Groups made only of original entries are left out.
func BuildOrderMap(s *OrderedRelationSet) entities.OrderMap {
	result := make(entities.OrderMap)

	for _, group := range groupByOrder(s.entries) {
		if allOriginal(group) {
			continue
		}

		base := math.Floor(group[0].Order)
		size := float64(len(group) + 1)
		for k, e := range group {
			result[e.ID] = base + float64(k+1)/size
		}
	}

	return result
}

// groupByOrder groups entries by identical order, in order of first appearance
func groupByOrder(entries []*entities.RelationEntry) [][]*entities.RelationEntry {
	index := make(map[float64]int)
	var groups [][]*entities.RelationEntry

	for _, e := range entries {
		g, ok := index[e.Order]
		if !ok {
			g = len(groups)
			index[e.Order] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], e)
	}

	return groups
}

func allOriginal(group []*entities.RelationEntry) bool {
	for _, e := range group {
		if !e.IsOriginal {
			return false
		}
	}
	return true
}
