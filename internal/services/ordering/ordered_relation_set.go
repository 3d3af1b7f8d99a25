// Package ordering keeps the members of a to-many relation in order while a batch of
// connect/disconnect mutations is applied, and turns the result into the positions
// that must be written back to storage.
package ordering

import (
	"fmt"

	"github.com/asakaida/junban/internal/entities"
)

// slot is the distance between a settled entry and a slot carved next to it
const slot = 0.5

// Option configures an OrderedRelationSet
type Option func(*OrderedRelationSet)

// WithLenientAnchors makes a missing before/after anchor fall back to an append
// instead of failing the batch.
func WithLenientAnchors() Option {
	return func(s *OrderedRelationSet) {
		s.lenient = true
	}
}

// OrderedRelationSet is the in-memory ordering of one relation for the length of one batch.
// It is owned by a single caller and must not be reused after its order map is built.
type OrderedRelationSet struct {
	entries []*entities.RelationEntry
	lenient bool
}

// NewOrderedRelationSet creates a set from the persisted order, keeping input order.
// Every entry starts out original. A repeated ID keeps only its first occurrence.
func NewOrderedRelationSet(existing []entities.OrderedID, opts ...Option) *OrderedRelationSet {
	s := &OrderedRelationSet{
		entries: make([]*entities.RelationEntry, 0, len(existing)),
	}
	seen := make(map[string]struct{}, len(existing))
	for _, o := range existing {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}
		s.entries = append(s.entries, &entities.RelationEntry{
			ID:         o.ID,
			Order:      o.Order,
			IsOriginal: true,
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindRelation returns the index and entry for id, or found=false
func (s *OrderedRelationSet) FindRelation(id string) (int, *entities.RelationEntry, bool) {
	for i, e := range s.entries {
		if e.ID == id {
			return i, e, true
		}
	}
	return -1, nil, false
}

// Disconnect removes the given IDs. IDs that are not present are ignored.
func (s *OrderedRelationSet) Disconnect(ids ...string) {
	for _, id := range ids {
		s.remove(id)
	}
}

// Connect inserts (or moves) each mutation in request order.
// The first failing mutation aborts the batch and leaves the set unusable.
func (s *OrderedRelationSet) Connect(mutations ...entities.RelationMutation) error {
	for i := range mutations {
		if err := s.connect(&mutations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderedRelationSet) connect(m *entities.RelationMutation) error {
	s.remove(m.ID)
	if _, _, found := s.FindRelation(m.ID); found {
		return fmt.Errorf("%w: %q still present after disconnect", ErrDuplicateID, m.ID)
	}

	idx, order, err := s.place(m)
	if err != nil {
		return err
	}

	s.insert(idx, &entities.RelationEntry{ID: m.ID, Order: order})
	return nil
}

// place applies the position-assignment rule and returns the splice index and order.
func (s *OrderedRelationSet) place(m *entities.RelationMutation) (int, float64, error) {
	switch kind := m.Position.Kind(); kind {
	case entities.PositionBefore, entities.PositionAfter:
		i, anchor, found := s.FindRelation(m.Position.Anchor())
		if !found {
			if s.lenient {
				idx, order := s.tail()
				return idx, order, nil
			}
			return 0, 0, &ReferenceError{ID: m.ID, Position: m.Position, Kind: kind}
		}
		if kind == entities.PositionBefore {
			if anchor.IsOriginal {
				return i, anchor.Order - slot, nil
			}
			return i, anchor.Order, nil
		}
		if !anchor.IsOriginal {
			return i + 1, anchor.Order, nil
		}
		order := anchor.Order + slot
		// append into the slot behind entries already placed after this anchor
		idx := i + 1
		for idx < len(s.entries) && !s.entries[idx].IsOriginal && s.entries[idx].Order == order {
			idx++
		}
		return idx, order, nil
	case entities.PositionStart:
		return 0, slot, nil
	default:
		idx, order := s.tail()
		return idx, order, nil
	}
}

func (s *OrderedRelationSet) tail() (int, float64) {
	n := len(s.entries)
	if n == 0 {
		return 0, slot
	}
	last := s.entries[n-1]
	if last.IsOriginal {
		return n, last.Order + slot
	}
	return n, last.Order
}

func (s *OrderedRelationSet) remove(id string) {
	if i, _, found := s.FindRelation(id); found {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
}

func (s *OrderedRelationSet) insert(idx int, e *entities.RelationEntry) {
	s.entries = append(s.entries, nil)
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = e
}

// Len returns the number of entries
func (s *OrderedRelationSet) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the current sequence
func (s *OrderedRelationSet) Entries() []entities.RelationEntry {
	out := make([]entities.RelationEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// IDs returns the IDs in sequence order
func (s *OrderedRelationSet) IDs() []string {
	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ID
	}
	return ids
}

// OrderMap builds the positions to persist for the current sequence
func (s *OrderedRelationSet) OrderMap() entities.OrderMap {
	return BuildOrderMap(s)
}
