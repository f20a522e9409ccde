package cache

import (
	"testing"
	"time"

	"signal-enginev1/internal/model"
)

func testCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			Time:  int64(1700000000 + i*60),
			Open:  100, High: 101, Low: 99, Close: 100.5,
			Volume: 10,
		}
	}
	return out
}

func TestCache_HitWithinTTL(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	data := testCandles(3)
	c.Set("BTC/USD", 1, data, 0)

	now = now.Add(3 * time.Second)
	got, ok := c.Get("BTC/USD", 1)
	if !ok {
		t.Fatal("expected cache hit within TTL")
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	c.Set("BTC/USD", 1, testCandles(3), 0)

	now = now.Add(DefaultTTL + time.Second)
	if _, ok := c.Get("BTC/USD", 1); ok {
		t.Fatal("expected miss after TTL expiry")
	}
	// The expired entry is evicted on read.
	if len(c.entries) != 0 {
		t.Fatalf("expected eviction, %d entries remain", len(c.entries))
	}
}

func TestCache_MinuteBucketRollover(t *testing.T) {
	// Entry TTL clearly covers the read, but the key embeds the minute:
	// crossing a minute boundary must miss even within a long TTL.
	now := time.Date(2024, 3, 1, 10, 30, 59, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	c.Set("BTC/USD", 1, testCandles(3), time.Minute)

	now = now.Add(2 * time.Second) // 10:31:01, next minute bucket
	if _, ok := c.Get("BTC/USD", 1); ok {
		t.Fatal("expected miss after minute rollover")
	}
}

func TestCache_KeysAreInstrumentScoped(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	c.Set("BTC/USD", 1, testCandles(1), 0)

	if _, ok := c.Get("ETH/USD", 1); ok {
		t.Fatal("different pair must not hit")
	}
	if _, ok := c.Get("BTC/USD", 5); ok {
		t.Fatal("different timeframe must not hit")
	}
	if _, ok := c.Get("BTC/USD", 1); !ok {
		t.Fatal("same key must hit")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New()
	c.Set("BTC/USD", 1, testCandles(1), 0)
	c.Clear()
	if _, ok := c.Get("BTC/USD", 1); ok {
		t.Fatal("expected miss after Clear")
	}
}
