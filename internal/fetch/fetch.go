// Package fetch implements the rate-limited, conditionally-cached HTTP
// client described in SPEC_FULL.md §4.4: a token bucket hard-capped at 8
// requests per second, ETag/Last-Modified conditional GETs, inter-entity
// jitter, and Retry-After-driven backoff escalating into a cooldown after
// repeated rate-limit responses.
//
// The client shape (typed request/response helpers over a plain
// *http.Client) follows the donor's discovery-service scanner client; the
// token bucket itself uses golang.org/x/time/rate, already present as an
// indirect dependency across every donor go.mod.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HardCapRPS is the absolute ceiling on request rate regardless of
// configuration, named explicitly in SPEC_FULL.md §4.4.
const HardCapRPS = 8.0

// DefaultRPS is used when a caller configures a non-positive rate.
const DefaultRPS = 2.0

// Config configures one Client.
type Config struct {
	// MaxRPS is the configured pacing; it is clamped to HardCapRPS.
	MaxRPS float64
	// UserAgent is sent on every request. Required to be non-empty; the
	// distilled spec requires the form "<name> <email> (<component>)".
	UserAgent string
	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
}

// Client is a polite, rate-limited, conditionally-cached HTTP client.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *zap.Logger

	consecutiveErrors int
	rng               *rand.Rand
}

// NewClient builds a Client from cfg. UserAgent must be non-empty.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("fetch: User-Agent must be non-empty")
	}
	rps := cfg.MaxRPS
	if rps <= 0 {
		rps = DefaultRPS
	}
	if rps > HardCapRPS {
		rps = HardCapRPS
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		userAgent: cfg.UserAgent,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Result is the outcome of one conditional GET.
type Result struct {
	// NotModified is true when the server returned 304; Body is empty and
	// the caller should not update its cached ETag/Last-Modified.
	NotModified bool
	// Skip is true when the request failed transiently (5xx or a transport
	// error) and the caller should skip this entity for the current cycle
	// without treating it as a fatal error.
	Skip bool
	Body []byte
	ETag string
	LastModified string
}

// ConditionalGet performs one rate-limited GET against url, sending
// If-None-Match/If-Modified-Since when etag/lastModified are non-empty. It
// blocks on the token bucket before sending and handles 429/403 (sleeping
// for Retry-After, escalating to a jittered cooldown after three
// consecutive rate-limit responses), 5xx (skip, no escalation), and
// transport failures (skip, no escalation) per SPEC_FULL.md §4.4/§7.
func (c *Client) ConditionalGet(ctx context.Context, url, etag, lastModified string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("fetch: rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("fetch: transport failure, skipping entity", zap.String("url", url), zap.Error(err))
		return Result{Skip: true}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		c.consecutiveErrors = 0
		return Result{NotModified: true}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		c.handleRateLimit(ctx, resp)
		return Result{Skip: true}, nil

	case resp.StatusCode >= 500:
		c.logger.Warn("fetch: server error, skipping entity this cycle",
			zap.String("url", url), zap.Int("status", resp.StatusCode))
		return Result{Skip: true}, nil

	case resp.StatusCode >= 400:
		return Result{}, fmt.Errorf("fetch: unexpected status %d for %s", resp.StatusCode, url)
	}

	c.consecutiveErrors = 0
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: read body: %w", err)
	}

	return Result{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// handleRateLimit implements §4.4's Retry-After/cooldown escalation: sleep
// Retry-After seconds (default 60), and after three consecutive rate-limit
// responses, sleep a randomized 10-minute cooldown and reset the counter.
func (c *Client) handleRateLimit(ctx context.Context, resp *http.Response) {
	c.consecutiveErrors++

	retryAfter := 60 * time.Second
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	if c.consecutiveErrors >= 3 {
		jitter := 0.8 + c.rng.Float64()*0.4 // U(0.8, 1.2)
		cooldown := time.Duration(float64(10*time.Minute) * jitter)
		c.logger.Warn("fetch: entering cooldown after repeated rate limiting", zap.Duration("cooldown", cooldown))
		sleepCtx(ctx, cooldown)
		c.consecutiveErrors = 0
		return
	}

	c.logger.Warn("fetch: rate limited, sleeping", zap.Duration("retry_after", retryAfter))
	sleepCtx(ctx, retryAfter)
}

// Jitter pauses for a uniform random duration in [100ms, 500ms], inserted
// between successive entity fetches to smooth bursts (SPEC_FULL.md §4.4).
func (c *Client) Jitter(ctx context.Context) {
	d := 100*time.Millisecond + time.Duration(c.rng.Int63n(int64(400*time.Millisecond)))
	sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
