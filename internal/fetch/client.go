// Package fetch implements rate-aware, domain-restricted HTTP retrieval
// with retry and backoff. It is the only component that touches the
// network on behalf of source adapters.
package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/metrics"
)

// Config controls Client behavior.
type Config struct {
	UserAgent      string
	AllowedDomains []string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Delay          time.Duration
	DelayJitter    time.Duration
	PerDomainRPS   float64
	PerDomainBurst int
	SnapshotPrefix string
}

// Renderer produces a fully rendered DOM for JS-gated pages.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// PromotionDetector decides whether a static body warrants a headless
// re-fetch.
type PromotionDetector interface {
	ShouldPromote(body []byte, statusCode int) bool
}

// Client implements grants.Fetcher using a Colly collector per request.
// It is stateless across invocations apart from rate-limiter buckets.
type Client struct {
	cfg       Config
	allowlist *domainAllowlist
	limiter   *politenessLimiter
	policy    *ExponentialRetryPolicy
	base      *colly.Collector
	renderer  Renderer
	detector  PromotionDetector
	snapshots grants.SnapshotStore
	clock     grants.Clock
	logger    *zap.Logger
}

// NewClient builds a Client. Renderer, detector, snapshot store and
// clock are optional; nil disables the corresponding behavior.
func NewClient(
	cfg Config,
	logger *zap.Logger,
	renderer Renderer,
	detector PromotionDetector,
	snapshots grants.SnapshotStore,
	clock grants.Clock,
) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	base := colly.NewCollector(colly.Async(false))
	// Clones share the visited-URL store and every run re-fetches the
	// same listing pages.
	base.AllowURLRevisit = true
	return &Client{
		cfg:       cfg,
		allowlist: newDomainAllowlist(cfg.AllowedDomains),
		limiter: newPolitenessLimiter(
			cfg.PerDomainRPS,
			cfg.PerDomainBurst,
			cfg.Delay,
			cfg.DelayJitter,
		),
		policy:    NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		base:      base,
		renderer:  renderer,
		detector:  detector,
		snapshots: snapshots,
		clock:     clock,
		logger:    logger,
	}
}

// Fetch retrieves one URL, enforcing the domain allow-list before any
// network call and retrying transient failures with backoff.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, &Error{Kind: KindNetwork, URL: rawURL, Err: fmt.Errorf("invalid url: %v", err)}
	}
	if !c.allowlist.Allows(u.Hostname()) {
		c.logger.Warn("domain not in allow-list",
			zap.String("url", rawURL),
			zap.String("host", u.Hostname()),
		)
		metrics.ObserveFetch(rawURL, "denied", 0)
		return nil, &Error{Kind: KindDomainNotAllowed, URL: rawURL}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}

		body, status, fetchErr := c.doFetch(ctx, rawURL)
		if fetchErr == nil {
			metrics.ObserveFetch(rawURL, "success", len(body))
			body = c.maybeRender(ctx, rawURL, body, status)
			c.archive(ctx, u.Hostname(), rawURL, body)
			return body, nil
		}
		lastErr = fetchErr

		if !c.policy.ShouldRetry(fetchErr, attempt) {
			break
		}
		backoff := c.policy.Backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(fetchErr),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	metrics.ObserveFetch(rawURL, "failure", 0)
	return nil, lastErr
}

func (c *Client) doFetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		body   []byte
		status int
		cbErr  error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		cbErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, &Error{Kind: KindTimeout, URL: rawURL, Err: ctx.Err()}
	case visitErr := <-done:
		if visitErr == nil && cbErr == nil {
			return body, status, nil
		}
		cause := cbErr
		if cause == nil {
			cause = visitErr
		}
		return nil, status, c.classify(rawURL, status, cause)
	}
}

func (c *Client) classify(rawURL string, status int, cause error) error {
	if status >= 400 {
		return &Error{Kind: KindHTTP, URL: rawURL, Status: status, Err: cause}
	}
	var netErr net.Error
	if errors.As(cause, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: cause}
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: cause}
	}
	return &Error{Kind: KindNetwork, URL: rawURL, Err: cause}
}

func (c *Client) maybeRender(ctx context.Context, rawURL string, body []byte, status int) []byte {
	if c.renderer == nil || c.detector == nil {
		return body
	}
	if !c.detector.ShouldPromote(body, status) {
		return body
	}
	rendered, err := c.renderer.Render(ctx, rawURL)
	if err != nil {
		c.logger.Warn("headless render failed, keeping static body",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return body
	}
	c.logger.Debug("headless promotion applied", zap.String("url", rawURL))
	return rendered
}

func (c *Client) archive(ctx context.Context, host, rawURL string, body []byte) {
	if c.snapshots == nil || len(body) == 0 {
		return
	}
	fetchedAt := time.Now().UTC()
	if c.clock != nil {
		fetchedAt = c.clock.Now()
	}
	urlHash := fmt.Sprintf("%x", sha256.Sum256([]byte(rawURL)))
	key := path.Join(
		c.cfg.SnapshotPrefix,
		host,
		fetchedAt.Format("2006-01-02"),
		fmt.Sprintf("%s.html", urlHash),
	)
	if _, err := c.snapshots.Put(ctx, key, "text/html; charset=utf-8", body); err != nil {
		c.logger.Error("snapshot archive failed", zap.String("url", rawURL), zap.Error(err))
	}
}
