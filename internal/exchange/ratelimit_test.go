package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, 8, l.Order.Requests)
	assert.Equal(t, 30, l.Account.Requests)
	assert.Equal(t, 600, l.Market.Requests)
	assert.Equal(t, time.Minute, l.Market.Interval)
}

// TestBucketsBlockInsteadOfFailing tests that an exhausted bucket delays the caller
func TestBucketsBlockInsteadOfFailing(t *testing.T) {
	b := NewBuckets(Limits{
		Order:   Limit{Requests: 2, Interval: 200 * time.Millisecond},
		Account: Limit{Requests: 100, Interval: time.Second},
		Market:  Limit{Requests: 100, Interval: time.Second},
	})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, b.Wait(ctx, CategoryOrder))
	require.NoError(t, b.Wait(ctx, CategoryOrder))
	require.NoError(t, b.Wait(ctx, CategoryOrder))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// other categories are independent
	start = time.Now()
	require.NoError(t, b.Wait(ctx, CategoryAccount))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBucketsSharedAcrossGoroutines(t *testing.T) {
	b := NewBuckets(Limits{
		Order:   Limit{Requests: 5, Interval: 100 * time.Millisecond},
		Account: Limit{Requests: 5, Interval: 100 * time.Millisecond},
		Market:  Limit{Requests: 5, Interval: 100 * time.Millisecond},
	})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Wait(context.Background(), CategoryMarket))
		}()
	}
	wg.Wait()

	// five tokens up front, five more at 20ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestBucketsWaitHonoursContext(t *testing.T) {
	b := NewBuckets(Limits{
		Order:   Limit{Requests: 1, Interval: time.Hour},
		Account: Limit{Requests: 1, Interval: time.Hour},
		Market:  Limit{Requests: 1, Interval: time.Hour},
	})
	require.NoError(t, b.Wait(context.Background(), CategoryOrder))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Wait(ctx, CategoryOrder))
	assert.Error(t, b.Wait(context.Background(), Category("bogus")))
}
