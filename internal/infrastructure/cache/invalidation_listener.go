package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/asakaida/junban/internal/repositories/postgres"
)

// pingInterval keeps an idle LISTEN connection from being dropped
const pingInterval = 90 * time.Second

// Evictor drops cached relation orders
type Evictor interface {
	// Evict drops the order cached under a relation's lock key
	Evict(ctx context.Context, key string) error
	// EvictAll drops every cached order
	EvictAll(ctx context.Context) error
}

// InvalidationListener evicts relation orders from the read cache when any instance
// commits a write. It uses PostgreSQL LISTEN/NOTIFY on postgres.RelationOrderChannel.
type InvalidationListener struct {
	mu       sync.Mutex
	evictor  Evictor
	connStr  string
	logger   *zap.Logger
	listener *pq.Listener
	stopCh   chan struct{}
	done     chan struct{}
	stopped  bool
}

// NewInvalidationListener creates a listener evicting through e.
// connStr is the PostgreSQL connection string used for the dedicated LISTEN connection.
func NewInvalidationListener(e Evictor, connStr string, logger *zap.Logger) *InvalidationListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationListener{
		evictor: e,
		connStr: connStr,
		logger:  logger.Named("cache_invalidation"),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start opens the LISTEN connection and begins processing notifications.
func (l *InvalidationListener) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn("Listener connection problem", zap.Error(err))
		}
	}

	l.listener = pq.NewListener(l.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := l.listener.Listen(postgres.RelationOrderChannel); err != nil {
		_ = l.listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", postgres.RelationOrderChannel, err)
	}

	go l.run(l.listener.Notify)
	return nil
}

// Stop closes the LISTEN connection. It is safe to call more than once.
func (l *InvalidationListener) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	close(l.stopCh)
	l.mu.Unlock()

	if l.listener == nil {
		return nil
	}
	<-l.done
	return l.listener.Close()
}

func (l *InvalidationListener) run(notifications <-chan *pq.Notification) {
	defer close(l.done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case n := <-notifications:
			l.handle(context.Background(), n)
		case <-ticker.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.Warn("Listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// handle applies one notification. A nil notification means the connection was
// re-established and events may have been missed, so the whole cache is dropped.
func (l *InvalidationListener) handle(ctx context.Context, n *pq.Notification) {
	if n == nil {
		if err := l.evictor.EvictAll(ctx); err != nil {
			l.logger.Warn("Failed to clear cache after reconnect", zap.Error(err))
			return
		}
		l.logger.Info("Cache cleared after listener reconnect")
		return
	}

	if err := l.evictor.Evict(ctx, n.Extra); err != nil {
		l.logger.Warn("Failed to evict relation", zap.String("relation", n.Extra), zap.Error(err))
		return
	}
	l.logger.Debug("Evicted relation", zap.String("relation", n.Extra))
}
