package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"watcher/internal/bus"
	"watcher/internal/metrics"
	"watcher/internal/model"
)

type MockHistoryProvider struct {
	mock.Mock
}

func (m *MockHistoryProvider) Stats() model.Stats {
	return m.Called().Get(0).(model.Stats)
}

func (m *MockHistoryProvider) RecentSignals() []model.Signal {
	signals, _ := m.Called().Get(0).([]model.Signal)
	return signals
}

func (m *MockHistoryProvider) Records() []model.SignalRecord {
	records, _ := m.Called().Get(0).([]model.SignalRecord)
	return records
}

func newTestServer(t *testing.T, history HistoryProvider) (*Server, *bus.Bus, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	b := bus.New(16)
	s := New(logger, ":0", b, history, metrics.New())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, b, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) model.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg model.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestServer_WebsocketSendsStatsHistoryThenLive(t *testing.T) {
	history := new(MockHistoryProvider)
	history.On("Stats").Return(model.Stats{TotalSignals: 2, WinRate: 50, TopGainer: "LINKUSDT +4.5%"})
	history.On("RecentSignals").Return([]model.Signal{{ID: "old", Symbol: "LINKUSDT"}})

	_, b, ts := newTestServer(t, history)
	conn := dial(t, ts)

	b.Publish(model.NewSignalMessage(model.Signal{ID: "live", Symbol: "XYZUSDT", SignalType: model.Long}))

	first := readMessage(t, conn)
	require.Equal(t, model.MessageStats, first.Type)
	assert.Equal(t, 2, first.Stats.TotalSignals)

	second := readMessage(t, conn)
	require.Equal(t, model.MessageHistory, second.Type)
	require.Len(t, second.History, 1)
	assert.Equal(t, "old", second.History[0].ID)

	third := readMessage(t, conn)
	require.Equal(t, model.MessageSignal, third.Type)
	assert.Equal(t, "live", third.Signal.ID)
}

func TestServer_EmptyHistoryStillSent(t *testing.T) {
	history := new(MockHistoryProvider)
	history.On("Stats").Return(model.Stats{TopGainer: "None"})
	history.On("RecentSignals").Return(nil)

	_, b, ts := newTestServer(t, history)
	conn := dial(t, ts)

	assert.Equal(t, model.MessageStats, readMessage(t, conn).Type)
	msg := readMessage(t, conn)
	require.Equal(t, model.MessageHistory, msg.Type)
	assert.Empty(t, msg.History)

	b.Publish(model.NewUpdateMessage(model.SignalUpdate{Symbol: "XYZUSDT", Price: 50.2}))
	update := readMessage(t, conn)
	require.Equal(t, model.MessageUpdate, update.Type)
	assert.Equal(t, 50.2, update.Update.Price)
}

func TestServer_DisconnectUnsubscribes(t *testing.T) {
	history := new(MockHistoryProvider)
	history.On("Stats").Return(model.Stats{TopGainer: "None"})
	history.On("RecentSignals").Return([]model.Signal{})

	_, b, ts := newTestServer(t, history)
	conn := dial(t, ts)
	readMessage(t, conn)
	readMessage(t, conn)
	assert.Equal(t, 1, b.Subscribers())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RESTEndpoints(t *testing.T) {
	history := new(MockHistoryProvider)
	history.On("Stats").Return(model.Stats{TotalSignals: 1, WinRate: 100, TopGainer: "XYZUSDT +2.0%"})
	history.On("RecentSignals").Return([]model.Signal{{ID: "a", Symbol: "XYZUSDT"}})
	history.On("Records").Return(nil)

	s, _, _ := newTestServer(t, history)
	h := s.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := get("/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy","subscribers":0}`, rec.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		rec := get("/api/stats")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"total_signals":1,"win_rate":100,"top_gainer":"XYZUSDT +2.0%"}`, rec.Body.String())
	})

	t.Run("signals", func(t *testing.T) {
		rec := get("/api/signals")
		var signals []model.Signal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signals))
		require.Len(t, signals, 1)
		assert.Equal(t, "a", signals[0].ID)
	})

	t.Run("records empty", func(t *testing.T) {
		rec := get("/api/records")
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get("/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "watcher_subscribers")
	})

	t.Run("unknown route", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/nope").Code)
	})
}
