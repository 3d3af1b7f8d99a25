package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/asakaida/junban/internal/entities"
	"github.com/asakaida/junban/internal/infrastructure/logging"
	"github.com/asakaida/junban/internal/infrastructure/metrics"
	"github.com/asakaida/junban/internal/repositories"
	"github.com/asakaida/junban/internal/services/ordering"
	"github.com/asakaida/junban/pkg/cache"
)

// ErrInvalidArgument marks request validation failures
var ErrInvalidArgument = errors.New("invalid argument")

// RelationOrderServiceInterface defines the interface for relation ordering operations
type RelationOrderServiceInterface interface {
	Reorder(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*ReorderResult, error)
	ReadOrder(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error)
	PreviewOrder(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*ReorderResult, error)
}

// ReorderResult is the outcome of one batch
type ReorderResult struct {
	// OrderMap holds the positions the batch wrote (or would write)
	OrderMap entities.OrderMap
	// Entries is the resulting sequence with the positions storage holds afterwards
	Entries []entities.OrderedID
	// SnapToken identifies the write; empty for previews
	SnapToken string
}

// RelationOrderServiceConfig controls batch application
type RelationOrderServiceConfig struct {
	StrictAnchors bool
	CacheTTL      time.Duration
}

// RelationOrderService applies connect/disconnect batches to persisted relation orders
type RelationOrderService struct {
	repo     repositories.RelationOrderRepository
	cache    cache.Cache // optional
	exporter *metrics.PrometheusExporter
	logger   *zap.Logger
	cfg      RelationOrderServiceConfig
	fence    readFence
}

// NewRelationOrderService creates a new RelationOrderService.
// cache and exporter may be nil.
func NewRelationOrderService(
	repo repositories.RelationOrderRepository,
	c cache.Cache,
	exporter *metrics.PrometheusExporter,
	logger *zap.Logger,
	cfg RelationOrderServiceConfig,
) *RelationOrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationOrderService{
		repo:     repo,
		cache:    c,
		exporter: exporter,
		logger:   logger.Named("relation_order"),
		cfg:      cfg,
	}
}

// Reorder applies batch to the relation under an exclusive lock and persists the resulting positions.
// Positions are renumbered to 1..n before commit: the slot rules assume every settled entry sits
// on a distinct integer, so fractional positions must never survive a batch.
func (s *RelationOrderService) Reorder(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*ReorderResult, error) {
	if err := validateRequest(tenantID, ref, batch); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx, s.logger).With(zap.String("relation", ref.LockKey(tenantID)))

	var result *ReorderResult
	err := s.repo.RunInTx(ctx, tenantID, ref, func(tx repositories.RelationOrderTx) error {
		existing, err := tx.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load relation order: %w", err)
		}

		set, err := s.apply(existing, batch)
		if err != nil {
			return err
		}
		orderMap := set.OrderMap()

		if removed := droppedIDs(existing, set); len(removed) > 0 {
			if err := tx.Remove(ctx, removed); err != nil {
				return fmt.Errorf("failed to remove relations: %w", err)
			}
		}
		if err := tx.Apply(ctx, orderMap); err != nil {
			return fmt.Errorf("failed to write relation order: %w", err)
		}
		if err := tx.Compact(ctx); err != nil {
			return fmt.Errorf("failed to compact relation order: %w", err)
		}

		token, err := tx.WriteToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to get write token: %w", err)
		}

		result = &ReorderResult{
			OrderMap:  orderMap,
			Entries:   finalEntries(set),
			SnapToken: token,
		}
		return nil
	})
	if err != nil {
		s.recordFailure(log, err)
		return nil, err
	}

	if err := s.Evict(ctx, ref.LockKey(tenantID)); err != nil {
		log.Warn("Cache invalidation failed", zap.Error(err))
	}
	s.recordSuccess(batch, len(result.OrderMap))
	log.Info("Relation reordered",
		zap.Int("disconnect", len(batch.Disconnect)),
		zap.Int("connect", len(batch.Connect)),
		zap.Int("rewritten", len(result.OrderMap)),
		zap.String("snap_token", result.SnapToken),
	)
	return result, nil
}

// PreviewOrder computes the result of batch against the current order without writing
func (s *RelationOrderService) PreviewOrder(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*ReorderResult, error) {
	if err := validateRequest(tenantID, ref, batch); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx, s.logger).With(zap.String("relation", ref.LockKey(tenantID)))

	existing, err := s.repo.Read(ctx, tenantID, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read relation order: %w", err)
	}

	set, err := s.apply(existing, batch)
	if err != nil {
		s.recordFailure(log, err)
		return nil, err
	}
	orderMap := set.OrderMap()

	s.exporter.RecordBatch("preview")
	log.Debug("Relation reorder previewed", zap.Int("rewritten", len(orderMap)))
	return &ReorderResult{
		OrderMap: orderMap,
		Entries:  previewEntries(set, orderMap),
	}, nil
}

// ReadOrder returns the persisted order of the relation, served from cache when possible
func (s *RelationOrderService) ReadOrder(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error) {
	if err := validateRef(tenantID, ref); err != nil {
		return nil, err
	}
	key := ref.LockKey(tenantID)
	log := logging.FromContext(ctx, s.logger).With(zap.String("relation", key))

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var cached []entities.OrderedID
			if err := json.Unmarshal(raw, &cached); err == nil {
				s.exporter.RecordOrderRead("hit")
				return cached, nil
			}
			log.Warn("Discarding undecodable cache entry", zap.Error(err))
		case !errors.Is(err, cache.ErrMiss):
			log.Warn("Cache read failed", zap.Error(err))
		}
	}

	gen := s.fence.load(key)
	order, err := s.repo.Read(ctx, tenantID, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read relation order: %w", err)
	}
	s.exporter.RecordOrderRead("miss")

	if s.cache != nil {
		s.fill(ctx, log, key, gen, order)
	}
	return order, nil
}

// fill caches order unless key was evicted after generation gen was observed.
// An eviction landing between the check and the Set is caught by the second check.
func (s *RelationOrderService) fill(ctx context.Context, log *zap.Logger, key string, gen uint64, order []entities.OrderedID) {
	if s.fence.load(key) != gen {
		log.Debug("Skipping cache fill for relation written during read")
		return
	}

	raw, err := json.Marshal(order)
	if err == nil {
		err = s.cache.Set(ctx, key, raw, s.cfg.CacheTTL)
	}
	if err != nil {
		log.Warn("Cache write failed", zap.Error(err))
		return
	}

	if s.fence.load(key) != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Warn("Cache invalidation failed", zap.Error(err))
		}
	}
}

// Evict drops the cached order stored under key, a relation's LockKey.
// Read-throughs already in flight for key will not cache what they read.
func (s *RelationOrderService) Evict(ctx context.Context, key string) error {
	if s.cache == nil {
		return nil
	}
	s.fence.bump(key)
	return s.cache.Delete(ctx, key)
}

// EvictAll drops every cached order
func (s *RelationOrderService) EvictAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	s.fence.bumpAll()
	return s.cache.Clear(ctx)
}

// apply runs the disconnects, then the connects, of batch against existing
func (s *RelationOrderService) apply(existing []entities.OrderedID, batch *entities.RelationBatch) (*ordering.OrderedRelationSet, error) {
	var opts []ordering.Option
	if !s.cfg.StrictAnchors {
		opts = append(opts, ordering.WithLenientAnchors())
	}

	set := ordering.NewOrderedRelationSet(existing, opts...)
	set.Disconnect(batch.Disconnect...)
	if err := set.Connect(batch.Connect...); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *RelationOrderService) recordSuccess(batch *entities.RelationBatch, rewritten int) {
	s.exporter.RecordBatch("applied")
	s.exporter.RecordRowsRewritten(rewritten)
	for range batch.Disconnect {
		s.exporter.RecordMutation("disconnect")
	}
	for i := range batch.Connect {
		s.exporter.RecordMutation(string(batch.Connect[i].Position.Kind()))
	}
}

func (s *RelationOrderService) recordFailure(log *zap.Logger, err error) {
	s.exporter.RecordBatch("failed")

	var refErr *ordering.ReferenceError
	if errors.As(err, &refErr) {
		s.exporter.RecordReferenceError(string(refErr.Kind))
		log.Warn("Relation reorder rejected",
			zap.String("id", refErr.ID),
			zap.String("anchor", refErr.Anchor()),
			zap.Error(err),
		)
		return
	}
	log.Error("Relation reorder failed", zap.Error(err))
}

func validateRef(tenantID string, ref *entities.RelationRef) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant ID is required", ErrInvalidArgument)
	}
	if ref == nil {
		return fmt.Errorf("%w: relation is required", ErrInvalidArgument)
	}
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("%w: invalid relation: %v", ErrInvalidArgument, err)
	}
	return nil
}

func validateRequest(tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) error {
	if err := validateRef(tenantID, ref); err != nil {
		return err
	}
	if batch == nil || batch.IsEmpty() {
		return fmt.Errorf("%w: at least one connect or disconnect is required", ErrInvalidArgument)
	}
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// droppedIDs returns the persisted IDs that are no longer part of the relation
func droppedIDs(existing []entities.OrderedID, set *ordering.OrderedRelationSet) []string {
	kept := make(map[string]struct{}, set.Len())
	for _, id := range set.IDs() {
		kept[id] = struct{}{}
	}

	var dropped []string
	for _, o := range existing {
		if _, ok := kept[o.ID]; !ok {
			dropped = append(dropped, o.ID)
		}
	}
	return dropped
}

// finalEntries returns the sequence with the compacted positions storage holds after the write
func finalEntries(set *ordering.OrderedRelationSet) []entities.OrderedID {
	ids := set.IDs()
	out := make([]entities.OrderedID, len(ids))
	for i, id := range ids {
		out[i] = entities.OrderedID{ID: id, Order: float64(i + 1)}
	}
	return out
}

// previewEntries returns the sequence with the order map applied, before compaction
func previewEntries(set *ordering.OrderedRelationSet, orderMap entities.OrderMap) []entities.OrderedID {
	entries := set.Entries()
	out := make([]entities.OrderedID, len(entries))
	for i, e := range entries {
		order := e.Order
		if v, ok := orderMap[e.ID]; ok {
			order = v
		}
		out[i] = entities.OrderedID{ID: e.ID, Order: order}
	}
	return out
}
