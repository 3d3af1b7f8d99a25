package entities

import (
	"fmt"
	"sort"
)

// OrderedID is one persisted member of a to-many relation together with its stored position
type OrderedID struct {
	ID    string  `json:"id"`    // Related record ID (e.g., "article-42")
	Order float64 `json:"order"` // Stored position, ascending
}

// RelationEntry is a member of an ordered relation while a batch is being applied
type RelationEntry struct {
	ID         string  // Related record ID
	Order      float64 // Current position, may be fractional while the batch is open
	IsOriginal bool    // True if loaded from storage and not touched by the batch
}

// String returns a string representation of the entry
// Format: id@order (original entries are suffixed with "*")
func (e *RelationEntry) String() string {
	if e.IsOriginal {
		return fmt.Sprintf("%s@%g*", e.ID, e.Order)
	}
	return fmt.Sprintf("%s@%g", e.ID, e.Order)
}

// OrderMap maps a related record ID to the position that must be written back.
// IDs that are absent keep their stored position.
type OrderMap map[string]float64

// IDs returns the IDs in the map sorted by their new position
func (m OrderMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if m[ids[i]] != m[ids[j]] {
			return m[ids[i]] < m[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
