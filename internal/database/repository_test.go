package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"watcher/internal/model"
)

var (
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

// startContainer turns the provider panic raised when no Docker daemon is
// reachable into an error.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container provider unavailable: %v", r)
		}
	}()
	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
}

func run(m *testing.M) int {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pgContainer, err := startContainer(ctx, req)
	if err != nil {
		// No Docker: the integration tests skip themselves.
		log.Printf("could not start postgres container: %s", err)
		return m.Run()
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("could not stop postgres container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Printf("could not get container host: %s", err)
		return 1
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Printf("could not get mapped port: %s", err)
		return 1
	}

	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"

	repo, err := NewPostgresRepository(ctx, connStr)
	if err != nil {
		log.Printf("could not connect to database: %s", err)
		return 1
	}
	defer repo.Close()
	pool = repo.Pool

	if err := repo.Migrate(ctx); err != nil {
		log.Printf("could not migrate: %s", err)
		return 1
	}

	return m.Run()
}

func requirePool(t *testing.T) {
	t.Helper()
	if pool == nil {
		t.Skip("postgres container unavailable")
	}
}

func TestPostgresRepository_LogSignal(t *testing.T) {
	requirePool(t)
	ctx := context.Background()
	repo := &PostgresRepository{Pool: pool}

	signal := model.Signal{
		ID:         uuid.NewString(),
		Symbol:     "XYZUSDT",
		SignalType: model.Long,
		Price:      50.1,
		Volume:     4000,
		AvgVolume:  1000,
		Timestamp:  time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC).UnixMilli(),
		Reason:     "Silent Alert! Vol: 4.0x (Avg $50k), Price stable (0.20%)",
	}

	require.NoError(t, repo.LogSignal(ctx, signal))
	// Same ID again is ignored.
	require.NoError(t, repo.LogSignal(ctx, signal))

	var (
		count      int
		symbol     string
		signalType string
		price      float64
		firedAt    time.Time
	)
	err := pool.QueryRow(ctx, "SELECT COUNT(*) OVER (), symbol, signal_type, price, fired_at FROM signals WHERE id = $1", signal.ID).
		Scan(&count, &symbol, &signalType, &price, &firedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "XYZUSDT", symbol)
	assert.Equal(t, "Long", signalType)
	assert.Equal(t, 50.1, price)
	assert.Equal(t, signal.Timestamp, firedAt.UnixMilli())
}

func TestPostgresRepository_Handle(t *testing.T) {
	requirePool(t)
	ctx := context.Background()
	repo := &PostgresRepository{Pool: pool}

	id := uuid.NewString()
	require.NoError(t, repo.Handle(ctx, model.NewUpdateMessage(model.SignalUpdate{Symbol: "XYZUSDT"})))
	require.NoError(t, repo.Handle(ctx, model.NewSignalMessage(model.Signal{ID: id, Symbol: "ABCUSDT", SignalType: model.Short, Timestamp: 1})))

	var symbol string
	require.NoError(t, pool.QueryRow(ctx, "SELECT symbol FROM signals WHERE id = $1", id).Scan(&symbol))
	assert.Equal(t, "ABCUSDT", symbol)
}

func TestPostgresRepository_MigrateIsIdempotent(t *testing.T) {
	requirePool(t)
	repo := &PostgresRepository{Pool: pool}
	assert.NoError(t, repo.Migrate(context.Background()))
}
