package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rotisserie/eris"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/cartlens/backend/internal/domain"
)

// Config controls the page fetcher
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	UserAgent    string
	MaxBodyBytes int64
	PerHostRPS   float64
	PerHostBurst int
}

// Client downloads product pages with retries and per-host rate limiting
type Client struct {
	httpClient   *retryablehttp.Client
	userAgent    string
	maxBodyBytes int64

	perHostRPS   rate.Limit
	perHostBurst int
	limiters     map[string]*hostLimiter
	lastSweep    time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// hostIdleTTL is how long a host's limiter outlives its last request
const hostIdleTTL = 10 * time.Minute

type hostLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClient creates a new page fetcher
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 * 1024 * 1024
	}
	if cfg.PerHostBurst <= 0 {
		cfg.PerHostBurst = 1
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil
	// Hand the last response back instead of a generic "giving up" error so
	// the status code ends up in the record's error message
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limit := rate.Inf
	if cfg.PerHostRPS > 0 {
		limit = rate.Limit(cfg.PerHostRPS)
	}

	return &Client{
		httpClient:   retryClient,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		perHostRPS:   limit,
		perHostBurst: cfg.PerHostBurst,
		limiters:     make(map[string]*hostLimiter),
		now:          time.Now,
	}
}

// limiterFor returns the shared limiter for a host, creating it on first use.
// Hosts not seen for hostIdleTTL are dropped on the way.
func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= hostIdleTTL {
		for key, l := range c.limiters {
			if now.Sub(l.lastSeen) >= hostIdleTTL {
				delete(c.limiters, key)
			}
		}
		c.lastSweep = now
	}

	l, ok := c.limiters[host]
	if !ok {
		l = &hostLimiter{limiter: rate.NewLimiter(c.perHostRPS, c.perHostBurst)}
		c.limiters[host] = l
	}
	l.lastSeen = now
	return l.limiter
}

// Fetch downloads a page and decodes it to UTF-8. Any non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*domain.Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, eris.Wrapf(domain.ErrFetchFailed, "invalid url %q", rawURL)
	}

	if err := c.limiterFor(strings.ToLower(parsed.Host)).Wait(ctx); err != nil {
		return nil, eris.Wrapf(domain.ErrFetchFailed, "rate limiter: %v", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(domain.ErrFetchFailed, "create request: %v", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().Debug("fetcher: request failed", zap.String("url", rawURL), zap.Error(err))
		return nil, eris.Wrapf(domain.ErrFetchFailed, "%v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Wrapf(domain.ErrFetchFailed, "status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(domain.ErrFetchFailed, "read body: %v", err)
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := decodeToUTF8(raw, contentType)
	if err != nil {
		zap.L().Debug("fetcher: charset decode failed, using raw body",
			zap.String("url", rawURL), zap.Error(err))
		body = raw
	}

	return &domain.Page{
		URL:      rawURL,
		FinalURL: resp.Request.URL.String(),
		Body:     body,
	}, nil
}

// decodeToUTF8 converts the body using the declared charset, falling back to
// chardet detection when the server did not declare one.
func decodeToUTF8(raw []byte, contentType string) ([]byte, error) {
	if !hasCharset(contentType) {
		contentType = fmt.Sprintf("text/html; charset=%s", DetectCharset(raw))
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

func hasCharset(contentType string) bool {
	if contentType == "" {
		return false
	}
	_, params, err := mime.ParseMediaType(contentType)
	return err == nil && params["charset"] != ""
}

// DetectCharset detects and returns charset from HTML bytes
func DetectCharset(data []byte) string {
	detector := chardet.NewHtmlDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}
