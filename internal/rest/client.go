package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/monitoring"
	"github.com/groundplan/client/internal/resilience"
	"github.com/groundplan/client/internal/shared/id"
)

// ErrNotAuthenticated is returned when an authorized call is attempted
// without an access token in the credential store.
var ErrNotAuthenticated = errors.New("no access token available")

// TokenProvider supplies the bearer credential for authorized calls.
type TokenProvider interface {
	Token() (string, bool)
}

// Config tunes the REST transport. RetryCount of zero disables
// transport retries.
type Config struct {
	BaseURL string

	Timeout      time.Duration
	RetryCount   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RequestsPerSecond caps outbound call rate; zero means unlimited.
	RequestsPerSecond float64

	UserAgent string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = time.Second
	}
	if c.RetryWaitMax <= 0 {
		c.RetryWaitMax = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "groundplan-client/1.0"
	}
	return c
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service returned %d: %s", e.Status, e.Detail)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is the shared REST transport.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	ids     *id.Generator
	tokens  TokenProvider
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewClient builds the transport. tokens may be nil for a client that
// only calls unauthenticated endpoints.
func NewClient(cfg Config, tokens TokenProvider, ids *id.Generator, metrics *monitoring.Metrics, log *logging.Logger) *Client {
	cfg = cfg.withDefaults()
	log = log.Named("rest")

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	if cfg.RetryCount > 0 {
		retryClient := retryablehttp.NewClient()
		retryClient.RetryMax = cfg.RetryCount
		retryClient.RetryWaitMin = cfg.RetryWaitMin
		retryClient.RetryWaitMax = cfg.RetryWaitMax
		retryClient.Logger = nil
		httpClient.SetTransport(&retryablehttp.RoundTripper{Client: retryClient})
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breaker := resilience.New("groundplan-api", resilience.Settings{
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		http:    httpClient,
		limiter: limiter,
		breaker: breaker,
		ids:     ids,
		tokens:  tokens,
		metrics: metrics,
		log:     log,
	}
}

// Request returns a rate-limited request carrying a fresh request id.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", c.ids.Request().String()), nil
}

// Authorized returns a request with the bearer credential attached.
func (c *Client) Authorized(ctx context.Context) (*resty.Request, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}
	if c.tokens == nil {
		return nil, ErrNotAuthenticated
	}
	token, ok := c.tokens.Token()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return req.SetAuthToken(token), nil
}

// Do executes one operation through the circuit breaker. Transport
// failures and 5xx responses count against the breaker; 4xx responses
// are the upstream working as intended and do not.
func (c *Client) Do(op string, fn func() (*resty.Response, error)) (*resty.Response, error) {
	start := time.Now()

	resp, err := resilience.Do(c.breaker, func() (*resty.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, apiError(resp)
		}
		return resp, nil
	})

	c.record(op, resp, err, time.Since(start))

	if err != nil {
		return resp, err
	}
	if resp.IsError() {
		return resp, apiError(resp)
	}
	return resp, nil
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) record(op string, resp *resty.Response, err error, elapsed time.Duration) {
	status := "error"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "circuit_open"
	case resp != nil:
		status = strconv.Itoa(resp.StatusCode())
	}
	c.metrics.RecordRESTRequest(op, status, elapsed)

	if err != nil {
		c.log.Warn("rest call failed", zap.String("operation", op), zap.Error(err))
	}
}

// Parse decodes a JSON response body into T.
func Parse[T any](resp *resty.Response) (T, error) {
	var out T
	if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// apiError extracts the service's detail message. Bodies are
// {"detail": ...} where detail is usually a string but may be a
// structured validation report.
func apiError(resp *resty.Response) error {
	detail := strings.TrimSpace(resp.String())

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := sonic.Unmarshal(resp.Body(), &body); err == nil && len(body.Detail) > 0 {
		var s string
		if sonic.Unmarshal(body.Detail, &s) == nil {
			detail = s
		} else {
			detail = string(body.Detail)
		}
	}

	return &APIError{Status: resp.StatusCode(), Detail: detail}
}
