package repositories

import (
	"context"

	"github.com/asakaida/junban/internal/entities"
)

// RelationOrderRepository defines the interface for ordered relation data access
type RelationOrderRepository interface {
	// Read retrieves the persisted order of a relation, ascending
	Read(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error)

	// RunInTx runs fn inside a transaction that holds an exclusive lock on the relation.
	// The transaction commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, tenantID string, ref *entities.RelationRef, fn func(tx RelationOrderTx) error) error
}

// RelationOrderTx is a handle on one locked relation.
// It is only valid inside the callback passed to RunInTx.
type RelationOrderTx interface {
	// Load retrieves the persisted order under the lock
	Load(ctx context.Context) ([]entities.OrderedID, error)

	// Remove deletes the rows of the given related IDs
	Remove(ctx context.Context, ids []string) error

	// Apply writes the positions of the order map, inserting missing rows
	Apply(ctx context.Context, orders entities.OrderMap) error

	// Compact renumbers every position of the relation to 1..n, keeping order
	Compact(ctx context.Context) error

	// WriteToken returns a token identifying this write
	WriteToken(ctx context.Context) (string, error)
}
