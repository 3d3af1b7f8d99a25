package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/asakaida/junban/internal/entities"
	"github.com/asakaida/junban/internal/repositories"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const relationOrdersTable = "relation_orders"

// RelationOrderChannel is notified with the relation key on every committed write
const RelationOrderChannel = "relation_order_changed"

// relationOrderRow represents one row of relation_orders
type relationOrderRow struct {
	RelatedID string  `db:"related_id"`
	Position  float64 `db:"position"`
}

// PostgresRelationOrderRepository implements RelationOrderRepository using PostgreSQL
type PostgresRelationOrderRepository struct {
	db *sqlx.DB
}

// NewPostgresRelationOrderRepository creates a new PostgreSQL relation order repository
func NewPostgresRelationOrderRepository(db *sqlx.DB) repositories.RelationOrderRepository {
	return &PostgresRelationOrderRepository{db: db}
}

// Read retrieves the persisted order of a relation
func (r *PostgresRelationOrderRepository) Read(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relation reference: %w", err)
	}
	return selectOrder(ctx, r.db, tenantID, ref)
}

// RunInTx runs fn in a transaction holding an advisory lock on the relation.
// The lock is released when the transaction ends.
func (r *PostgresRelationOrderRepository) RunInTx(ctx context.Context, tenantID string, ref *entities.RelationRef, fn func(tx repositories.RelationOrderTx) error) error {
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("invalid relation reference: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, ref.LockKey(tenantID)); err != nil {
		return fmt.Errorf("failed to lock relation %s: %w", ref, err)
	}

	if err := fn(&relationOrderTx{tx: tx, tenantID: tenantID, ref: *ref}); err != nil {
		return err
	}

	// NOTIFY is delivered only if the transaction commits
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, RelationOrderChannel, ref.LockKey(tenantID)); err != nil {
		return fmt.Errorf("failed to notify relation change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// relationOrderTx implements RelationOrderTx on an open sqlx transaction
type relationOrderTx struct {
	tx       *sqlx.Tx
	tenantID string
	ref      entities.RelationRef
}

func (t *relationOrderTx) Load(ctx context.Context) ([]entities.OrderedID, error) {
	return selectOrder(ctx, t.tx, t.tenantID, &t.ref)
}

func (t *relationOrderTx) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom(relationOrdersTable)
	del.Where(append(relationScope(del, t.tenantID, &t.ref),
		fmt.Sprintf("related_id = ANY(%s)", del.Var(pq.Array(ids))),
	)...)

	query, args := del.Build()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove relations: %w", err)
	}

	return nil
}

func (t *relationOrderTx) Apply(ctx context.Context, orders entities.OrderMap) error {
	if len(orders) == 0 {
		return nil
	}

	now := time.Now()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(relationOrdersTable)
	ib.Cols("tenant_id", "owner_type", "owner_id", "field", "related_id", "position", "created_at", "updated_at")
	for _, id := range orders.IDs() {
		ib.Values(t.tenantID, t.ref.OwnerType, t.ref.OwnerID, t.ref.Field, id, orders[id], now, now)
	}
	ib.SQL(`ON CONFLICT (tenant_id, owner_type, owner_id, field, related_id)
		DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`)

	query, args := ib.Build()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write relation order: %w", err)
	}

	return nil
}

func (t *relationOrderTx) Compact(ctx context.Context) error {
	query := `
		UPDATE relation_orders AS r
		SET position = ranked.rn, updated_at = $5
		FROM (
			SELECT related_id, ROW_NUMBER() OVER (ORDER BY position, related_id) AS rn
			FROM relation_orders
			WHERE tenant_id = $1 AND owner_type = $2 AND owner_id = $3 AND field = $4
		) AS ranked
		WHERE r.tenant_id = $1
			AND r.owner_type = $2
			AND r.owner_id = $3
			AND r.field = $4
			AND r.related_id = ranked.related_id
			AND r.position <> ranked.rn
	`
	_, err := t.tx.ExecContext(ctx, query,
		t.tenantID, t.ref.OwnerType, t.ref.OwnerID, t.ref.Field, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to compact relation order: %w", err)
	}

	return nil
}

func (t *relationOrderTx) WriteToken(ctx context.Context) (string, error) {
	return GenerateWriteToken(ctx, t.tx)
}

// selectOrder reads the order of a relation through db or tx
func selectOrder(ctx context.Context, q sqlx.QueryerContext, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("related_id", "position")
	sb.From(relationOrdersTable)
	sb.Where(relationScope(sb, tenantID, ref)...)
	sb.OrderBy("position", "related_id").Asc()

	query, args := sb.Build()

	var rows []relationOrderRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read relation order: %w", err)
	}

	result := make([]entities.OrderedID, 0, len(rows))
	for _, row := range rows {
		result = append(result, entities.OrderedID{ID: row.RelatedID, Order: row.Position})
	}

	return result, nil
}

// equalBuilder is satisfied by every sqlbuilder builder that embeds a Cond
type equalBuilder interface {
	Equal(field string, value interface{}) string
}

// relationScope returns the WHERE expressions selecting one relation
func relationScope(cond equalBuilder, tenantID string, ref *entities.RelationRef) []string {
	return []string{
		cond.Equal("tenant_id", tenantID),
		cond.Equal("owner_type", ref.OwnerType),
		cond.Equal("owner_id", ref.OwnerID),
		cond.Equal("field", ref.Field),
	}
}
