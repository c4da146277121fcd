package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Default endpoint paths relative to the base URL.
const (
	DefaultQuotesPath  = "/api/quotes"
	DefaultDetailPath  = "/api/quote-equity"
	DefaultIndicesPath = "/api/allIndices"

	primeLandingPath = "/"
	primeMarketPath  = "/market-data/live-equity-market"
)

// Client provides access to the upstream market-data API.
type Client struct {
	baseURL     string
	quotesPath  string
	detailPath  string
	indicesPath string
	catalogURL  string

	httpClient *http.Client
	jar        *resettableJar
	logger     *slog.Logger
	userAgents []string

	maxRetries   int
	retryBackoff time.Duration

	breaker *gobreaker.CircuitBreaker
	pacer   Pacer
}

// Pacer blocks until the next outbound request may be sent.
type Pacer func(ctx context.Context) error

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new upstream client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		quotesPath:  DefaultQuotesPath,
		detailPath:  DefaultDetailPath,
		indicesPath: DefaultIndicesPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		jar:          newResettableJar(),
		logger:       slog.Default(),
		userAgents:   defaultUserAgents,
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Jar = c.jar
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client. Its Jar is replaced by the
// client's session jar.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPaths overrides the endpoint paths. Empty values keep the default.
func WithPaths(quotes, detail, indices string) ClientOption {
	return func(c *Client) {
		if quotes != "" {
			c.quotesPath = quotes
		}
		if detail != "" {
			c.detailPath = detail
		}
		if indices != "" {
			c.indicesPath = indices
		}
	}
}

// WithCatalogURL sets the absolute URL of the equity list CSV.
func WithCatalogURL(u string) ClientOption {
	return func(c *Client) {
		c.catalogURL = u
	}
}

// WithUserAgents sets the pool of User-Agent strings rotated per request.
func WithUserAgents(agents []string) ClientOption {
	return func(c *Client) {
		if len(agents) > 0 {
			c.userAgents = agents
		}
	}
}

// WithPacer makes every outbound request, retries and handshake steps
// included, wait for a turn from pace.
func WithPacer(pace Pacer) ClientOption {
	return func(c *Client) {
		c.pacer = pace
	}
}

// WithBreaker wraps data requests in a circuit breaker that opens after
// failureThreshold consecutive failures and half-opens after openTimeout.
// A zero threshold leaves the breaker disabled.
func WithBreaker(failureThreshold uint32, openTimeout time.Duration) ClientOption {
	return func(c *Client) {
		if failureThreshold == 0 {
			c.breaker = nil
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "upstream",
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failureThreshold
			},
			IsSuccessful: breakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("upstream circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
}

// BreakerState reports the circuit breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}
