package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/ticktime"
)

func TestHistory_AdvanceAndGet(t *testing.T) {
	h := NewHistory(4)

	_, ok := h.Get(0)
	assert.False(t, ok, "empty history retains nothing")

	seeds := map[ticktime.Tick]crypto.Hash{}
	for tick := ticktime.Tick(1); tick <= 6; tick++ {
		s, err := h.Advance(uint64(tick)*10, tick)
		require.NoError(t, err)
		assert.Equal(t, Derive(uint64(tick)*10, tick), s)
		seeds[tick] = s
	}

	tests := []struct {
		tick ticktime.Tick
		ok   bool
	}{
		{tick: 1, ok: false},
		{tick: 2, ok: false},
		{tick: 3, ok: true},
		{tick: 6, ok: true},
		{tick: 7, ok: false},
	}
	for _, tc := range tests {
		got, ok := h.Get(tc.tick)
		assert.Equal(t, tc.ok, ok, "tick %d", tc.tick)
		if tc.ok {
			assert.Equal(t, seeds[tc.tick], got)
		}
	}

	current, ok := h.Current()
	assert.True(t, ok)
	assert.Equal(t, ticktime.Tick(6), current)
}

func TestHistory_FirstTickBound(t *testing.T) {
	h := NewHistory(8)
	_, err := h.Advance(1, 5)
	require.NoError(t, err)

	assert.True(t, h.Retains(5))
	assert.False(t, h.Retains(4), "ticks before the first seed were never written")
}

func TestHistory_OutOfOrder(t *testing.T) {
	h := NewHistory(4)
	_, err := h.Advance(1, 1)
	require.NoError(t, err)

	_, err = h.Advance(2, 3)
	assert.ErrorIs(t, err, ErrOutOfOrderTick)
	_, err = h.Advance(2, 1)
	assert.ErrorIs(t, err, ErrOutOfOrderTick)
}

func TestDerive_DependsOnTicker(t *testing.T) {
	assert.NotEqual(t, Derive(1, 5), Derive(2, 5))
	assert.NotEqual(t, Derive(1, 5), Derive(1, 6))
}

func TestHistory_SnapshotRestore(t *testing.T) {
	h := NewHistory(4)
	for tick := ticktime.Tick(1); tick <= 5; tick++ {
		_, err := h.Advance(uint64(tick), tick)
		require.NoError(t, err)
	}

	restored := NewHistory(4)
	require.NoError(t, restored.Restore(h.Snapshot()))
	assert.Equal(t, h, restored)

	assert.Error(t, NewHistory(5).Restore(h.Snapshot()))
}
