package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	maxBodyBytes = 1 << 20
)

var errServerStatus = errors.New("daraja server error")

type Option func(*Client)

// WithHTTPClient replaces the default http.Client (timeout from Config.HTTPTimeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the clock used for request timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = gobreaker.NewCircuitBreaker(st) }
}

// WithRateLimit caps outbound requests. A zero limit removes the cap.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// Client talks to the Daraja STK push API. It is safe for concurrent use.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	tokens     *TokenSource
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Environment == "" {
		cfg.Environment = EnvironmentSandbox
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    cfg.ResolvedBaseURL(),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(defaultBreakerSettings()),
		now:        time.Now,
	}
	WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst)(c)
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = NewTokenSource(c.fetchToken)
	c.tokens.now = c.now

	log.Infof("[Daraja] Initialized in %s mode", cfg.Environment)
	return c, nil
}

func NewClientFromEnv() (*Client, error) {
	return NewClient(ConfigFromEnv())
}

func defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "daraja",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[Daraja] Circuit breaker %s: %s -> %s", name, from, to)
		},
	}
}

// Token returns a valid bearer token, refreshing it when needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   interface{} `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", 0, apperror.Auth(err, "daraja auth request")
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	req.Header.Set("Accept", "application/json")

	status, body, err := c.send(req)
	if err != nil {
		return "", 0, apperror.Auth(err, "daraja auth request failed")
	}
	if status < 200 || status >= 300 {
		return "", 0, apperror.Auth(nil,
			"daraja auth failed (HTTP %d), check MPESA_CONSUMER_KEY and MPESA_CONSUMER_SECRET. Body: %s",
			status, snippet(body, 150))
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", 0, apperror.Auth(err, "daraja auth returned invalid JSON")
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", 0, apperror.Auth(nil, "access token not found in daraja response")
	}

	log.Info("[Daraja] Successfully obtained access token")
	return out.AccessToken, expiresIn(out.ExpiresIn), nil
}

// expiresIn accepts a number or a numeric string, Daraja has sent both.
func expiresIn(v interface{}) time.Duration {
	switch t := v.(type) {
	case float64:
		return time.Duration(t) * time.Second
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultTokenTTL
}

// postJSON sends payload with a bearer token and decodes the JSON object response.
func (c *Client) postJSON(ctx context.Context, op, path string, payload interface{}) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperror.Gateway(err, "daraja %s rate limited", op)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, apperror.Gateway(err, "daraja %s request", op)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.send(req)
	if err != nil {
		return nil, apperror.Gateway(err, "daraja %s request failed", op)
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if status < 200 || status >= 300 {
		return nil, apperror.Gateway(nil, "daraja %s failed (HTTP %d). Body: %s", op, status, snippet(body, 200))
	}

	resp, err := decodeResponse(body)
	if err != nil {
		return nil, apperror.Gateway(err, "daraja %s returned empty or invalid JSON. Body: %s", op, snippet(body, 200))
	}
	return resp, nil
}

// send runs one round trip through the circuit breaker. Transport errors and 5xx
// responses count as breaker failures, 4xx responses do not.
func (c *Client) send(req *http.Request) (int, []byte, error) {
	type result struct {
		status int
		body   []byte
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		res := &result{status: resp.StatusCode, body: body}
		if resp.StatusCode >= 500 {
			return res, errServerStatus
		}
		return res, nil
	})

	if res, ok := out.(*result); ok && res != nil {
		return res.status, res.body, nil
	}
	if err == nil {
		err = errors.New("empty response")
	}
	return 0, nil, err
}

func snippet(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty"
	}
	return Truncate(s, n)
}
