package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/model"
	"watcher/internal/store"
)

const baseTS = int64(1_700_000_000_000)

func windowState(symbol string, n int, price, volume float64) store.SymbolState {
	st := store.SymbolState{Symbol: symbol}
	for i := 0; i < n; i++ {
		st.Window = append(st.Window, model.BucketPoint{
			Symbol:    symbol,
			Price:     price,
			Volume:    volume,
			Timestamp: baseTS - int64(n-i)*60_000,
		})
	}
	return st
}

func candidate(symbol string, price, volume float64) model.BucketPoint {
	return model.BucketPoint{Symbol: symbol, Price: price, Volume: volume, Timestamp: baseTS}
}

func TestDetect_EndToEndScenario(t *testing.T) {
	d := New(DefaultParams())
	state := windowState("XYZUSDT", 60, 50, 1000)

	t.Run("buy dominant is long", func(t *testing.T) {
		sig := d.Detect(state, candidate("XYZUSDT", 50.10, 4000), 3000)
		require.NotNil(t, sig)
		assert.Equal(t, model.Long, sig.SignalType)
		assert.Equal(t, "XYZUSDT", sig.Symbol)
		assert.Equal(t, 50.10, sig.Price)
		assert.Equal(t, 4000.0, sig.Volume)
		assert.InDelta(t, 1000.0, sig.AvgVolume, 1e-9)
		assert.Equal(t, baseTS, sig.Timestamp)
		assert.Contains(t, sig.Reason, "Silent Alert!")
		assert.Contains(t, sig.Reason, "4.0x")
		assert.Contains(t, sig.Reason, "(0.20%)")
	})

	t.Run("sell dominant is short", func(t *testing.T) {
		sig := d.Detect(state, candidate("XYZUSDT", 50.10, 4000), 1000)
		require.NotNil(t, sig)
		assert.Equal(t, model.Short, sig.SignalType)
	})

	t.Run("no taker data is short", func(t *testing.T) {
		sig := d.Detect(state, candidate("XYZUSDT", 50.10, 4000), 0)
		require.NotNil(t, sig)
		assert.Equal(t, model.Short, sig.SignalType)
	})
}

func TestDetect_Filters(t *testing.T) {
	d := New(DefaultParams())

	tests := []struct {
		name      string
		state     store.SymbolState
		candidate model.BucketPoint
		want      bool
	}{
		{
			name:      "empty window has no average",
			state:     store.SymbolState{Symbol: "NEWUSDT"},
			candidate: candidate("NEWUSDT", 10, 100_000),
			want:      false,
		},
		{
			name:      "dust below notional floor",
			state:     windowState("DUSTUSDT", 60, 1, 100),
			candidate: candidate("DUSTUSDT", 1, 9_999),
			want:      false,
		},
		{
			name:      "illiquid average below floor",
			state:     windowState("THINUSDT", 60, 10, 4_000),
			candidate: candidate("THINUSDT", 10, 40_000),
			want:      false,
		},
		{
			name:      "ratio exactly at spike threshold",
			state:     windowState("AAAUSDT", 60, 200, 1000),
			candidate: candidate("AAAUSDT", 200, 3000),
			want:      false,
		},
		{
			name:      "ratio just above spike threshold",
			state:     windowState("AAAUSDT", 60, 200, 1000),
			candidate: candidate("AAAUSDT", 200, 3001),
			want:      true,
		},
		{
			name:      "price change exactly at limit",
			state:     windowState("BBBUSDT", 60, 125, 1000),
			candidate: candidate("BBBUSDT", 126, 3500),
			want:      false,
		},
		{
			name:      "price change just under limit",
			state:     windowState("BBBUSDT", 60, 125, 1000),
			candidate: candidate("BBBUSDT", 125.9, 3500),
			want:      true,
		},
		{
			name:      "large move is a breakout not a silent spike",
			state:     windowState("CCCUSDT", 60, 100, 1000),
			candidate: candidate("CCCUSDT", 103, 10_000),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := d.Detect(tt.state, tt.candidate, 0)
			assert.Equal(t, tt.want, sig != nil)
		})
	}
}

func TestDetect_Cooldown(t *testing.T) {
	d := New(DefaultParams())
	state := windowState("XYZUSDT", 60, 50, 1000)
	cand := candidate("XYZUSDT", 50.10, 4000)

	state.HasSignal = true
	state.LastSignalTime = baseTS - (29 * time.Minute).Milliseconds()
	assert.Nil(t, d.Detect(state, cand, 0))

	state.LastSignalTime = baseTS - (31 * time.Minute).Milliseconds()
	assert.NotNil(t, d.Detect(state, cand, 0))
}

func TestDetect_DormantWakeup(t *testing.T) {
	params := DefaultParams()
	params.SpikeRatio = 10
	d := New(params)

	// Average value 60k is under the dormant ceiling; ratio 6 wakes it up.
	dormant := windowState("ZZZUSDT", 60, 60, 1000)
	assert.NotNil(t, d.Detect(dormant, candidate("ZZZUSDT", 60, 6000), 0))
	assert.Nil(t, d.Detect(dormant, candidate("ZZZUSDT", 60, 5000), 0))

	// Average value 150k is an active market; ratio 6 is not enough.
	active := windowState("YYYUSDT", 60, 150, 1000)
	assert.Nil(t, d.Detect(active, candidate("YYYUSDT", 150, 6000), 0))
}

func TestDetect_IsPure(t *testing.T) {
	d := New(DefaultParams())
	state := windowState("XYZUSDT", 60, 50, 1000)
	before := append([]model.BucketPoint(nil), state.Window...)

	_ = d.Detect(state, candidate("XYZUSDT", 50.10, 4000), 0)

	assert.Equal(t, before, state.Window)
	assert.False(t, state.HasSignal)
}
