package entities

import (
	"fmt"
	"strconv"
)

// PositionKind is the anchor vocabulary of a connect mutation
type PositionKind string

const (
	PositionBefore PositionKind = "before"
	PositionAfter  PositionKind = "after"
	PositionStart  PositionKind = "start"
	PositionEnd    PositionKind = "end"
)

// Position describes where a connected entry goes.
// At most one field may be set; the zero value appends.
type Position struct {
	Before string // Anchor ID to precede
	After  string // Anchor ID to follow
	Start  bool   // Insert at head
	End    bool   // Insert at tail (same as the zero value)
}

// Kind returns which anchor form the position uses
func (p Position) Kind() PositionKind {
	switch {
	case p.Before != "":
		return PositionBefore
	case p.After != "":
		return PositionAfter
	case p.Start:
		return PositionStart
	default:
		return PositionEnd
	}
}

// Anchor returns the referenced anchor ID for before/after positions
func (p Position) Anchor() string {
	switch p.Kind() {
	case PositionBefore:
		return p.Before
	case PositionAfter:
		return p.After
	}
	return ""
}

// String returns a string representation of the position
// Format: before:id | after:id | start | end
func (p Position) String() string {
	switch k := p.Kind(); k {
	case PositionBefore, PositionAfter:
		return fmt.Sprintf("%s:%s", k, p.Anchor())
	default:
		return string(k)
	}
}

// Validate checks that at most one anchor form is set
func (p Position) Validate() error {
	set := 0
	if p.Before != "" {
		set++
	}
	if p.After != "" {
		set++
	}
	if p.Start {
		set++
	}
	if p.End {
		set++
	}
	if set > 1 {
		return fmt.Errorf("position must set exactly one of before, after, start or end (got %d)", set)
	}
	return nil
}

// RelationMutation asks for ID to be connected at Position.
// Connecting an ID that is already present moves it.
type RelationMutation struct {
	ID       string
	Position Position
}

// String returns a string representation of the mutation
// Format: id->position
func (m *RelationMutation) String() string {
	return fmt.Sprintf("%s->%s", m.ID, m.Position)
}

// Validate checks if the mutation is valid
func (m *RelationMutation) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("relation ID is required")
	}
	if err := m.Position.Validate(); err != nil {
		return fmt.Errorf("invalid position for %s: %w", strconv.Quote(m.ID), err)
	}
	return nil
}

// RelationBatch is one set of disconnects followed by connects applied atomically
type RelationBatch struct {
	Disconnect []string
	Connect    []RelationMutation
}

// IsEmpty reports whether the batch carries no mutation
func (b *RelationBatch) IsEmpty() bool {
	return len(b.Disconnect) == 0 && len(b.Connect) == 0
}

// Validate checks every mutation of the batch
func (b *RelationBatch) Validate() error {
	for i, id := range b.Disconnect {
		if id == "" {
			return fmt.Errorf("disconnect at index %d: relation ID is required", i)
		}
	}
	for i := range b.Connect {
		if err := b.Connect[i].Validate(); err != nil {
			return fmt.Errorf("connect at index %d: %w", i, err)
		}
	}
	return nil
}
