package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

func openJournal(t *testing.T, path string, dryRun bool) *Journal {
	t.Helper()
	j, err := Open(path, dryRun)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalFills(t *testing.T) {
	j := openJournal(t, filepath.Join(t.TempDir(), "journal.db"), false)
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordFill(ctx, types.Fill{Symbol: "BTCUSDT", Side: types.SideBuy, Price: 100, Quantity: 5, Fee: 0.5, Timestamp: ts, Reason: "entry", OrderID: "o1"}))
	require.NoError(t, j.RecordFill(ctx, types.Fill{Symbol: "ETHUSDT", Side: types.SideBuy, Price: 10, Quantity: 1, Timestamp: ts.Add(time.Minute), Reason: "entry"}))
	require.NoError(t, j.RecordFill(ctx, types.Fill{Symbol: "BTCUSDT", Side: types.SideSell, Price: 110, Quantity: 5, Timestamp: ts.Add(time.Hour), Reason: "take-profit-L2"}))

	fills, err := j.Fills(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "entry", fills[0].Reason)
	assert.Equal(t, types.SideSell, fills[1].Side)
	assert.True(t, ts.Equal(fills[0].Timestamp))

	all, err := j.Fills(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJournalPositionUpsertAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	ctx := context.Background()

	j := openJournal(t, path, false)
	_, err := j.LoadPosition(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoPosition)

	first := dca.Snapshot{Symbol: "BTCUSDT", AvgEntryPrice: 100, TotalInvested: 500, QuantityHeld: 5, ReferencePrice: 100, ExecutedDca: []int{1}}
	require.NoError(t, j.SavePosition(ctx, first))
	second := first
	second.ExecutedDca = []int{1, 2}
	second.QuantityHeld = 7.5
	require.NoError(t, j.SavePosition(ctx, second))
	require.NoError(t, j.Close())

	reopened := openJournal(t, path, false)
	got, err := reopened.LoadPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.True(t, dca.FromSnapshot(got).ExecutedDca.Has(2))
}

func TestJournalSeparatesDryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	paper := openJournal(t, path, true)
	require.NoError(t, paper.RecordFill(ctx, types.Fill{Symbol: "BTCUSDT", Side: types.SideBuy, Price: 1, Quantity: 1}))

	fills, err := paper.Fills(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, fills, 1)

	live := openJournal(t, path, false)
	fills, err = live.Fills(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, fills)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ", false)
	assert.Error(t, err)
}

func TestJournalPendingOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j := openJournal(t, path, false)
	_, err := j.LoadPending(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoPending)

	p := PendingOrder{
		Symbol:   "BTCUSDT",
		LinkID:   "link-1",
		Side:     types.SideBuy,
		Action:   dca.Action{Type: dca.ActionAdd, Level: 2, Reason: "dca-L2", Price: 90, Amount: 200},
		Next:     dca.Snapshot{Symbol: "BTCUSDT", AvgEntryPrice: 100, TotalInvested: 100, QuantityHeld: 1, ReferencePrice: 100, ExecutedDca: []int{1, 2}},
		PlacedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, j.SavePending(ctx, p))
	p.OrderID = "o-2"
	require.NoError(t, j.SavePending(ctx, p))
	require.NoError(t, j.Close())

	reopened := openJournal(t, path, false)
	got, err := reopened.LoadPending(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "o-2", got.OrderID)
	assert.Equal(t, p.Action, got.Action)
	assert.Equal(t, p.Next, got.Next)
	assert.True(t, p.PlacedAt.Equal(got.PlacedAt))

	require.NoError(t, reopened.ClearPending(ctx, "BTCUSDT"))
	require.NoError(t, reopened.ClearPending(ctx, "BTCUSDT"))
	_, err = reopened.LoadPending(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoPending)
}
