package handlers

import (
	"context"
	"net"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/junban/internal/entities"
	"github.com/asakaida/junban/internal/infrastructure/config"
	"github.com/asakaida/junban/internal/infrastructure/database"
	"github.com/asakaida/junban/internal/infrastructure/logging"
	"github.com/asakaida/junban/internal/infrastructure/metrics"
	"github.com/asakaida/junban/internal/repositories"
	"github.com/asakaida/junban/internal/repositories/postgres"
	"github.com/asakaida/junban/internal/services"
	"github.com/asakaida/junban/pkg/cache/memorycache"
)

// skipIfNotIntegration skips the test if INTEGRATION environment variable is not set
func skipIfNotIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION=1 to run")
	}
}

// memoryRelationOrderRepository keeps relation orders in process for transport tests
type memoryRelationOrderRepository struct {
	mu   sync.Mutex
	rows map[string]map[string]float64
	txid int64
}

func newMemoryRelationOrderRepository() *memoryRelationOrderRepository {
	return &memoryRelationOrderRepository{rows: make(map[string]map[string]float64)}
}

func sortRows(rows map[string]float64) []entities.OrderedID {
	out := make([]entities.OrderedID, 0, len(rows))
	for id, order := range rows {
		out = append(out, entities.OrderedID{ID: id, Order: order})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memoryRelationOrderRepository) Read(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortRows(m.rows[ref.LockKey(tenantID)]), nil
}

func (m *memoryRelationOrderRepository) RunInTx(ctx context.Context, tenantID string, ref *entities.RelationRef, fn func(tx repositories.RelationOrderTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ref.LockKey(tenantID)
	staged := make(map[string]float64)
	for id, order := range m.rows[key] {
		staged[id] = order
	}
	m.txid++
	if err := fn(&memoryRelationOrderTx{rows: staged, txid: m.txid}); err != nil {
		return err
	}
	m.rows[key] = staged
	return nil
}

type memoryRelationOrderTx struct {
	rows map[string]float64
	txid int64
}

func (t *memoryRelationOrderTx) Load(ctx context.Context) ([]entities.OrderedID, error) {
	return sortRows(t.rows), nil
}

func (t *memoryRelationOrderTx) Remove(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.rows, id)
	}
	return nil
}

func (t *memoryRelationOrderTx) Apply(ctx context.Context, orders entities.OrderMap) error {
	for id, order := range orders {
		t.rows[id] = order
	}
	return nil
}

func (t *memoryRelationOrderTx) Compact(ctx context.Context) error {
	for i, row := range sortRows(t.rows) {
		t.rows[row.ID] = float64(i + 1)
	}
	return nil
}

func (t *memoryRelationOrderTx) WriteToken(ctx context.Context) (string, error) {
	return postgres.FormatWriteToken(t.txid), nil
}

// startTestServer serves repo over an in-memory listener with the production interceptor chain
func startTestServer(t *testing.T, repo repositories.RelationOrderRepository) (*RelationOrderServiceClient, *prometheus.Registry) {
	t.Helper()

	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	exporter := metrics.NewPrometheusExporter(reg)
	c := memorycache.New(&memorycache.Config{MaxSizeBytes: 1 << 20, EnableMetrics: true})

	service := services.NewRelationOrderService(repo, c, exporter, logger, services.RelationOrderServiceConfig{
		StrictAnchors: true,
	})

	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(logger),
		metrics.UnaryServerInterceptor(exporter),
	))
	RegisterRelationOrderServiceServer(server, NewRelationOrderHandler(service))

	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return NewRelationOrderServiceClient(conn), reg
}

func entryIDs(t *testing.T, resp *structpb.Struct) []string {
	t.Helper()
	var ids []string
	for _, v := range resp.GetFields()["entries"].GetListValue().GetValues() {
		ids = append(ids, v.GetStructValue().GetFields()["id"].GetStringValue())
	}
	return ids
}

func TestRelationOrderService_EndToEnd(t *testing.T) {
	client, reg := startTestServer(t, newMemoryRelationOrderRepository())
	ctx := context.Background()

	// Seed 1, 2, 3 by appending.
	resp, err := client.Reorder(ctx, mustStruct(map[string]interface{}{
		"relation": articleTags(),
		"connect":  []interface{}{"1", "2", "3"},
	}))
	if err != nil {
		t.Fatalf("seed Reorder() error = %v", err)
	}
	if got := entryIDs(t, resp); len(got) != 3 {
		t.Fatalf("seeded entries = %v, want 3", got)
	}

	resp, err = client.Reorder(ctx, mustStruct(map[string]interface{}{
		"relation": articleTags(),
		"connect": []interface{}{
			map[string]interface{}{"id": "4", "position": map[string]interface{}{"after": "1"}},
			map[string]interface{}{"id": "5", "position": map[string]interface{}{"after": "1"}},
		},
	}))
	if err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	want := []string{"1", "4", "5", "2", "3"}
	if got := entryIDs(t, resp); !equalStrings(got, want) {
		t.Errorf("Reorder entries = %v, want %v", got, want)
	}
	if resp.GetFields()["snap_token"].GetStringValue() == "" {
		t.Error("snap_token should be set")
	}

	read, err := client.ReadOrder(ctx, mustStruct(map[string]interface{}{"relation": articleTags()}))
	if err != nil {
		t.Fatalf("ReadOrder() error = %v", err)
	}
	if got := entryIDs(t, read); !equalStrings(got, want) {
		t.Errorf("ReadOrder entries = %v, want %v", got, want)
	}

	preview, err := client.PreviewOrder(ctx, mustStruct(map[string]interface{}{
		"relation":   articleTags(),
		"disconnect": []interface{}{"1"},
	}))
	if err != nil {
		t.Fatalf("PreviewOrder() error = %v", err)
	}
	if got := entryIDs(t, preview); !equalStrings(got, want[1:]) {
		t.Errorf("PreviewOrder entries = %v, want %v", got, want[1:])
	}

	_, err = client.Reorder(ctx, mustStruct(map[string]interface{}{
		"relation": articleTags(),
		"connect": []interface{}{
			map[string]interface{}{"id": "6", "position": map[string]interface{}{"before": "missing"}},
		},
	}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing anchor, got %v", err)
	}

	if got, err := testutil.GatherAndCount(reg, "junban_grpc_requests_total"); err != nil || got != 3 {
		t.Errorf("request series = %d, want 3 (one per method)", got)
	}
	if got, err := testutil.GatherAndCount(reg, "junban_grpc_errors_total"); err != nil || got != 1 {
		t.Errorf("error series = %d, want 1", got)
	}
}

func TestRelationOrderService_EndToEnd_Postgres(t *testing.T) {
	skipIfNotIntegration(t)

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := pg.RunMigrations("../../internal/infrastructure/database/migrations/postgres"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pg.DB.Exec("DELETE FROM relation_orders WHERE tenant_id = 'e2e'")
		_ = pg.Close()
	})

	client, _ := startTestServer(t, postgres.NewPostgresRelationOrderRepository(pg.DB))
	ctx := context.Background()

	for _, batch := range []map[string]interface{}{
		{"connect": []interface{}{"a", "b", "c"}},
		{"connect": []interface{}{map[string]interface{}{"id": "c", "position": map[string]interface{}{"start": true}}}},
		{"disconnect": []interface{}{"b"}},
	} {
		batch["tenant_id"] = "e2e"
		batch["relation"] = articleTags()
		if _, err := client.Reorder(ctx, mustStruct(batch)); err != nil {
			t.Fatalf("Reorder(%v) error = %v", batch, err)
		}
	}

	read, err := client.ReadOrder(ctx, mustStruct(map[string]interface{}{
		"tenant_id": "e2e",
		"relation":  articleTags(),
	}))
	if err != nil {
		t.Fatalf("ReadOrder() error = %v", err)
	}
	if got := entryIDs(t, read); !equalStrings(got, []string{"c", "a"}) {
		t.Errorf("ReadOrder entries = %v, want [c a]", got)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
