package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pdv/internal/cache"
	"github.com/vladislavdragonenkov/pdv/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pdv/internal/health"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
	"github.com/vladislavdragonenkov/pdv/internal/service/sale"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "app-test")
}

func freeAddr(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestConfig_DefaultIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.True(t, cfg.PostgresAutoMigrate)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestConfig_ValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = " "
	cfg.StorageDriver = StorageDriverPostgres
	cfg.OutboxBatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grpc address is required")
	assert.Contains(t, err.Error(), "postgres dsn is required")
	assert.Contains(t, err.Error(), "outbox batch size must be positive")

	cfg = DefaultConfig()
	cfg.StorageDriver = "sqlite"
	require.ErrorContains(t, cfg.Validate(), `unsupported storage driver "sqlite"`)
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	cfg := DefaultConfig()
	deps, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer deps.close(testLogger())

	assert.NotNil(t, deps.outbox)
	assert.Empty(t, deps.checkers)

	method, err := deps.sale.PaymentMethods.Get(context.Background(), "term-30-60")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentKindTerm, method.Behavior.Kind)

	title, err := deps.sale.Titles.Get(context.Background(), "din")
	require.NoError(t, err)
	assert.True(t, title.IsCash())

	user, err := deps.sale.Users.Lookup(context.Background(), cfg.SeedOperator)
	require.NoError(t, err)
	assert.Equal(t, cfg.SeedOperator, user.Username)
}

func TestInitRuntimeDependencies_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	_, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.ErrorContains(t, err, "postgres dsn is required")

	cfg.StorageDriver = "bolt"
	_, err = initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	deps, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer deps.close(testLogger())

	_, ok := deps.sale.PaymentMethods.(*cache.PaymentMethodCatalog)
	assert.True(t, ok, "payment methods must be cached")
	_, ok = deps.sale.Titles.(*cache.TitleCatalog)
	assert.True(t, ok, "titles must be cached")
	require.Contains(t, deps.checkers, "redis")
	assert.Equal(t, healthcheck.StatusHealthy, deps.checkers["redis"].Check().Status)

	_, err = deps.sale.PaymentMethods.Get(context.Background(), "cash")
	require.NoError(t, err)
	assert.True(t, mr.Exists("pdv:payment_method:cash"))

	mr.Close()
	assert.Equal(t, healthcheck.StatusDegraded, deps.checkers["redis"].Check().Status)
}

func TestInitRuntimeDependencies_RedisUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = freeAddr(t)
	deps, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer deps.close(testLogger())

	_, cached := deps.sale.PaymentMethods.(*cache.PaymentMethodCatalog)
	assert.False(t, cached)
	assert.NotContains(t, deps.checkers, "redis")
}

func TestRuntimeDependencies_CloseRunsInReverseOrder(t *testing.T) {
	var order []int
	deps := &runtimeDependencies{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return errors.New("boom") },
	}}
	deps.close(testLogger())
	deps.close(testLogger())

	assert.Equal(t, []int{2, 1}, order)
}

func TestNewSaleService_MemoryFlow(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), testLogger())
	require.NoError(t, err)
	defer deps.close(testLogger())

	svc, err := newSaleService(deps, nil, metrics.NewSaleMetricsWithRegisterer(prometheus.NewRegistry()), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	actor := domain.Principal{Username: "operator"}
	id, err := svc.Open(ctx, actor, domain.Sale{CustomerID: "customer-1"})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, sale.AddItemRequest{SaleID: id, ProductID: "p-1", UnitPrice: decimal.NewFromInt(45), Quantity: 2})
	require.NoError(t, err)

	msg, err := svc.Close(ctx, actor, sale.CloseRequest{
		SaleID:          id,
		PaymentMethodID: "card-debit",
		ProductTotal:    decimal.NewFromInt(90),
	})
	require.NoError(t, err)
	assert.Equal(t, sale.SuccessMessage, msg)

	open, err := svc.CountOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, open)

	pending, err := deps.outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, pending, "sale events must land in the outbox")
}

func TestKafkaHelpers_WithoutBrokers(t *testing.T) {
	producer, err := initKafkaProducer([]string{" ", ""}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, producer)

	closeKafka(nil, testLogger())
	assert.Nil(t, newOutboxWorker(nil, nil, DefaultConfig(), testLogger()))
}

func TestMetricsMux_Routes(t *testing.T) {
	handler := healthcheck.NewHandler("test")
	handler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error { return nil }))
	srv := httptest.NewServer(newMetricsMux(handler))
	defer srv.Close()

	for path, want := range map[string]string{
		"/livez":  "ok",
		"/readyz": "ready",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, want, string(body), path)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"postgres"`)

	handler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error { return errors.New("down") }))
	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "bolt"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid config"))
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.MetricsAddr + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
