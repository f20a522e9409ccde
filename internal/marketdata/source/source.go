// Package source fetches OHLCV candles for a (pair, timeframe) from a
// CryptoCompare-style histominute API, with strict validation, a shared
// short-TTL cache in front, and bounded retry with exponential backoff.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signal-enginev1/internal/marketdata/cache"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/retry"
)

// Config configures the market data source.
type Config struct {
	BaseURL string // e.g. "https://min-api.cryptocompare.com/data"
	APIKey  string
	Window  int // candles per fetch; 0 = 100

	RetryAttempts int           // 0 = 3
	RetryBase     time.Duration // 0 = 1s
	HTTPTimeout   time.Duration // 0 = 15s
	CacheTTL      time.Duration // 0 = cache.DefaultTTL
}

// Source is the cache-backed candle fetcher.
type Source struct {
	cfg    Config
	client *http.Client
	cache  *cache.Cache
	policy retry.Policy

	// OnCacheResult, when set, is invoked with true on a cache hit and
	// false on a miss. Used for metrics.
	OnCacheResult func(hit bool)
}

// New creates a Source in front of the given cache.
func New(cfg Config, c *cache.Cache) *Source {
	if cfg.Window <= 0 {
		cfg.Window = 100
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		cache:  c,
		policy: retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBase,
			Strategy:    retry.Exponential,
		},
	}
}

// Fetch returns the candle series for (pair, timeframe), most-recent last.
// pair is "BASE/QUOTE"; timeframe is in minutes. Failures carry a *DataError.
// Only a fully-valid series is written to the cache.
func (s *Source) Fetch(ctx context.Context, pair string, timeframe int) ([]model.Candle, error) {
	base, quote, ok := strings.Cut(pair, "/")
	if !ok || base == "" || quote == "" {
		return nil, dataErr(KindInvalid, fmt.Sprintf("invalid trading pair %q", pair), nil)
	}

	if data, ok := s.cache.Get(pair, timeframe); ok {
		if s.OnCacheResult != nil {
			s.OnCacheResult(true)
		}
		return data, nil
	}
	if s.OnCacheResult != nil {
		s.OnCacheResult(false)
	}

	var candles []model.Candle
	err := s.policy.Do(ctx, func() error {
		var reqErr error
		candles, reqErr = s.request(ctx, base, quote, timeframe)
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(pair, timeframe, candles, s.cfg.CacheTTL)
	return candles, nil
}

// apiCandle mirrors one histominute bar. Volume is decoded leniently:
// an unparsable volume degrades to 0 instead of failing the candle.
type apiCandle struct {
	Time   int64       `json:"time"`
	Open   float64     `json:"open"`
	High   float64     `json:"high"`
	Low    float64     `json:"low"`
	Close  float64     `json:"close"`
	Volume json.Number `json:"volumefrom"`
}

type apiResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []apiCandle `json:"Data"`
	} `json:"Data"`
}

func (s *Source) request(ctx context.Context, base, quote string, timeframe int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("fsym", base)
	q.Set("tsym", quote)
	q.Set("limit", strconv.Itoa(s.cfg.Window))
	q.Set("aggregate", strconv.Itoa(timeframe))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v2/histominute?"+q.Encode(), nil)
	if err != nil {
		return nil, dataErr(KindInvalid, "build request", err)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return nil, dataErr(KindTimeout, "request timed out", err)
		}
		return nil, dataErr(KindUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, dataErr(KindRateLimited, "rate limit exceeded", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dataErr(KindUnavailable, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, dataErr(KindInvalid, "decode response", err)
	}
	if payload.Response == "Error" {
		msg := payload.Message
		if msg == "" {
			msg = "API error"
		}
		return nil, dataErr(KindInvalid, msg, nil)
	}
	if len(payload.Data.Data) == 0 {
		return nil, dataErr(KindUnavailable, "no market data for requested period", nil)
	}

	candles := make([]model.Candle, 0, len(payload.Data.Data))
	for i, raw := range payload.Data.Data {
		vol, err := raw.Volume.Float64()
		if err != nil || vol < 0 {
			vol = 0
		}
		c := model.Candle{
			Time:   raw.Time,
			Open:   raw.Open,
			High:   raw.High,
			Low:    raw.Low,
			Close:  raw.Close,
			Volume: vol,
		}
		// A single invalid candle fails the whole fetch.
		if c.Time <= 0 || !c.Valid() {
			return nil, dataErr(KindInvalid, fmt.Sprintf("invalid candle at index %d", i), nil)
		}
		candles = append(candles, c)
	}

	log.Printf("[marketdata] fetched %d candles for %s/%s tf=%dm", len(candles), base, quote, timeframe)
	return candles, nil
}
