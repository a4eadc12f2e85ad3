package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appconfig "satellite/config"
	"satellite/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "satellite-cli/1.0"
	authTokenHeader  = "X-Auth-Token"
)

// Client talks to one satellite API deployment. It keeps no per-call state
// and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	subscriber appconfig.SubscriberConfig
	log        *logger.Log
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit throttles requests to rps with the given burst. A
// non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithSubscriber sets the transmissions subscription path, default retry
// delay and line limit.
func WithSubscriber(cfg appconfig.SubscriberConfig) Option {
	return func(c *Client) {
		if cfg.Path != "" {
			c.subscriber.Path = cfg.Path
		}
		if cfg.DefaultRetry > 0 {
			c.subscriber.DefaultRetry = cfg.DefaultRetry
		}
		if cfg.MaxLineBytes > 0 {
			c.subscriber.MaxLineBytes = cfg.MaxLineBytes
		}
	}
}

func WithLogger(log *logger.Log) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New returns a client for baseURL, which must be an absolute http or https
// URL. Otherwise a *ConfigurationError is returned.
func New(baseURL string, opts ...Option) (*Client, error) {
	normalized, err := validateBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	defaults := appconfig.Default()
	c := &Client{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
		subscriber: defaults.Subscriber,
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.WithComponent("api_client").WithFields(logger.Fields{
		"base_url":     c.baseURL,
		"rate_limited": c.limiter != nil,
	}).Debug("api client initialized")

	return c, nil
}

// NewFromConfig builds a client from the application configuration. test and
// customURL come from the command line and take precedence over cfg.
func NewFromConfig(cfg *appconfig.Config, test bool, customURL string) (*Client, error) {
	baseURL, err := cfg.ResolveAPIURL(test, customURL)
	if err != nil {
		return nil, &ConfigurationError{URL: cfg.API.Network, Reason: err.Error()}
	}
	return New(baseURL,
		WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		WithRateLimit(cfg.API.RateLimit.RequestsPerSecond, cfg.API.RateLimit.BurstSize),
		WithUserAgent(cfg.API.UserAgent),
		WithSubscriber(cfg.Subscriber),
	)
}

// BaseURL is the API root every endpoint path is appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func validateBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ConfigurationError{URL: raw, Reason: "empty URL"}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &ConfigurationError{URL: raw, Reason: err.Error()}
	}
	if !u.IsAbs() {
		return "", &ConfigurationError{URL: raw, Reason: "URL must be absolute"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ConfigurationError{URL: raw, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &ConfigurationError{URL: raw, Reason: "missing host"}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", &ConfigurationError{URL: raw, Reason: "query and fragment are not allowed"}
	}
	return strings.TrimRight(trimmed, "/"), nil
}
