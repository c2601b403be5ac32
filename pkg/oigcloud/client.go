package oigcloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL  = "https://www.oigpower.cz/cez/"
	DefaultCacheTTL = 10 * time.Second

	loginPath    = "inc/php/scripts/Login.php"
	statsPath    = "json.php"
	setValuePath = "inc/php/scripts/Device.Set.Value.php"
	toGridPath   = "inc/php/scripts/ToGrid.Toggle.php"

	loginSuccessBody = `[[2,"",false]]`
	sessionCookie    = "PHPSESSID"
)

var tracer = otel.Tracer("github.com/berfenger/oigshield2mqtt/pkg/oigcloud")

type Client struct {
	baseURL   string
	username  string
	password  string
	emailHash string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	cacheTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
	onRequest RequestHook
	onBreaker BreakerHook

	mu         sync.Mutex
	sessionID  string
	boxID      string
	lastStats  Stats
	lastUpdate time.Time
}

type Option func(*Client)

// RequestHook is called after every guarded request.
type RequestHook func(op string, elapsed time.Duration, err error)

// BreakerHook is called when the circuit breaker changes state.
type BreakerHook func(from, to gobreaker.State)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithCacheTTL sets how long a stats payload is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithRequestHook(hook RequestHook) Option {
	return func(c *Client) {
		c.onRequest = hook
	}
}

func WithBreakerHook(hook BreakerHook) Option {
	return func(c *Client) {
		c.onBreaker = hook
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(username, password string, opts ...Option) *Client {
	sum := sha256.Sum256([]byte(username))
	c := &Client{
		baseURL:   DefaultBaseURL,
		username:  username,
		password:  password,
		emailHash: hex.EncodeToString(sum[:])[:12],
		http:      &http.Client{Timeout: 10 * time.Second},
		cacheTTL:  DefaultCacheTTL,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "oigcloud",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("oigcloud: circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if c.onBreaker != nil {
				c.onBreaker(from, to)
			}
		},
	})
	return c
}

func (c *Client) BoxID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boxID
}

func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.guard(ctx, "authenticate", func(ctx context.Context) (any, error) {
		return nil, c.authenticate(ctx)
	})
	return err
}

func (c *Client) authenticate(ctx context.Context) error {
	c.logger.Debug("oigcloud: authenticating")
	body, err := json.Marshal(map[string]string{"email": c.username, "password": c.password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("oigcloud: login request: %w", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("oigcloud: login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(content)) != loginSuccessBody {
		return ErrAuthentication
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookie {
			c.sessionID = cookie.Value
			return nil
		}
	}
	return fmt.Errorf("%w: no session cookie", ErrAuthentication)
}

// GetStats returns the latest stats payload. Payloads younger than the cache
// TTL are reused. A non-object response means the session expired: the client
// logs in again and retries once.
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastStats != nil && c.cacheTTL > 0 && c.now().Sub(c.lastUpdate) < c.cacheTTL {
		c.logger.Debug("oigcloud: using cached stats")
		return c.lastStats, nil
	}

	res, err := c.guard(ctx, "get_stats", func(ctx context.Context) (any, error) {
		if c.sessionID == "" {
			if err := c.authenticate(ctx); err != nil {
				return nil, err
			}
		}
		stats, err := c.getStats(ctx)
		if errors.Is(err, errSessionExpired) {
			c.logger.Info("oigcloud: session expired, retrying authentication")
			if err := c.authenticate(ctx); err != nil {
				return nil, err
			}
			stats, err = c.getStats(ctx)
		}
		return stats, err
	})
	if err != nil {
		return nil, err
	}
	stats := res.(Stats)
	if c.boxID == "" {
		if id, _, err := stats.Box(); err == nil {
			c.boxID = id
		}
	}
	c.lastStats = stats
	c.lastUpdate = c.now()
	return stats, nil
}

var errSessionExpired = errors.New("oigcloud: session expired")

func (c *Client) getStats(ctx context.Context) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statsPath, nil)
	if err != nil {
		return nil, err
	}
	c.setSession(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oigcloud: stats request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: stats status %d", ErrUnexpectedResponse, resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oigcloud: stats response: %w", err)
	}
	var raw any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errSessionExpired
	}
	return Stats(obj), nil
}

func (c *Client) SetBoxMode(ctx context.Context, mode int) error {
	return c.setValue(ctx, "set_box_mode", "box_prms", "mode", strconv.Itoa(mode))
}

func (c *Client) SetGridDeliveryLimit(ctx context.Context, limit int) error {
	return c.setValue(ctx, "set_grid_delivery_limit", "invertor_prm1", "p_max_feed_grid", strconv.Itoa(limit))
}

func (c *Client) SetBoilerMode(ctx context.Context, mode int) error {
	return c.setValue(ctx, "set_boiler_mode", "boiler_prms", "manual", strconv.Itoa(mode))
}

func (c *Client) SetGridDelivery(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := 0
	if enabled {
		value = 1
	}
	_, err := c.guard(ctx, "set_grid_delivery", func(ctx context.Context) (any, error) {
		boxID, err := c.ensureBox(ctx)
		if err != nil {
			return nil, err
		}
		return nil, c.post(ctx, toGridPath, map[string]any{"id_device": boxID, "value": value})
	})
	return err
}

func (c *Client) setValue(ctx context.Context, op, table, column, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.guard(ctx, op, func(ctx context.Context) (any, error) {
		boxID, err := c.ensureBox(ctx)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("oigcloud: set value", zap.String("table", table), zap.String("column", column), zap.String("value", value))
		return nil, c.post(ctx, setValuePath, map[string]any{
			"id_device": boxID,
			"table":     table,
			"column":    column,
			"value":     value,
		})
	})
	return err
}

// ensureBox resolves the box id from a fresh stats call when none is known.
func (c *Client) ensureBox(ctx context.Context) (string, error) {
	if c.boxID != "" {
		return c.boxID, nil
	}
	if c.sessionID == "" {
		if err := c.authenticate(ctx); err != nil {
			return "", err
		}
	}
	stats, err := c.getStats(ctx)
	if err != nil {
		return "", err
	}
	id, _, err := stats.Box()
	if err != nil {
		return "", err
	}
	c.boxID = id
	return id, nil
}

// post sends a write request. The session is renewed once on 401/403.
func (c *Client) post(ctx context.Context, path string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		url := fmt.Sprintf("%s%s?_nonce=%d", c.baseURL, path, c.now().UnixMilli())
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setSession(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("oigcloud: %s: %w", path, err)
		}
		content, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			c.logger.Debug("oigcloud: write accepted", zap.String("path", path), zap.ByteString("response", content))
			return nil
		case (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && attempt == 0:
			if err := c.authenticate(ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s status %d: %s", ErrUnexpectedResponse, path, resp.StatusCode, strings.TrimSpace(string(content)))
		}
	}
}

func (c *Client) setSession(req *http.Request) {
	if c.sessionID != "" {
		req.Header.Set("Cookie", fmt.Sprintf("%s=%s", sessionCookie, c.sessionID))
	}
}

// guard runs fn inside a span and the circuit breaker.
func (c *Client) guard(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	ctx, span := tracer.Start(ctx, "oigcloud."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("email_hash", c.emailHash),
			attribute.String("oigcloud.base_url", c.baseURL),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := c.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if c.onRequest != nil {
		c.onRequest(op, time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("oigcloud: %s unavailable: %w", op, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("oigcloud: request failed", zap.String("op", op), zap.Error(err))
		return nil, err
	}
	return res, nil
}
