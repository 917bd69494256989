package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"watcher/internal/config"
	"watcher/internal/model"
)

func startRedis(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %s", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return "redis://" + host + ":" + port.Port() + "/0"
}

func TestRedisSink(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	cfg := config.RedisConfig{
		Enabled:      true,
		URL:          url,
		StatsTTL:     time.Minute,
		Stream:       "watcher:signals",
		StreamMaxLen: 100,
	}
	s, err := NewRedisSink(ctx, cfg, testLogger)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Handle(ctx, model.NewStatsMessage(model.Stats{TotalSignals: 3, WinRate: 66.7, TopGainer: "LINKUSDT +4.5%"})))
	require.NoError(t, s.Handle(ctx, model.NewSignalMessage(model.Signal{ID: "a", Symbol: "XYZUSDT", SignalType: model.Short})))
	require.NoError(t, s.Handle(ctx, model.NewUpdateMessage(model.SignalUpdate{Symbol: "XYZUSDT"})))

	raw, err := s.client.Get(ctx, StatsKey).Bytes()
	require.NoError(t, err)
	var stats model.Stats
	require.NoError(t, json.Unmarshal(raw, &stats))
	assert.Equal(t, "LINKUSDT +4.5%", stats.TopGainer)

	ttl, err := s.client.TTL(ctx, StatsKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	entries, err := s.client.XRange(ctx, "watcher:signals", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "XYZUSDT", entries[0].Values["symbol"])
	assert.Equal(t, "a", entries[0].Values["id"])
}

func TestNewRedisSink_BadURL(t *testing.T) {
	_, err := NewRedisSink(context.Background(), config.RedisConfig{URL: "not-a-url"}, testLogger)
	assert.Error(t, err)
}
