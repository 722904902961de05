package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gustycube/asmap/internal/circuitbreaker"
	"github.com/gustycube/asmap/internal/logging"
	"github.com/gustycube/asmap/internal/rate"
)

// Default returns a client for long archive downloads. There is no overall
// timeout since a full-table dump can take minutes; stalled servers are caught
// by the header timeout and the caller's context.
func Default() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          64,
		MaxConnsPerHost:       8,
		MaxIdleConnsPerHost:   8,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Dumps are already compressed.
		DisableCompression: true,
	}
	return &http.Client{Transport: tr}
}

// ResilientClient wraps http.Client with a per-host rate limit and circuit
// breaker and stamps every request with the configured user agent.
type ResilientClient struct {
	client      *http.Client
	hostBreaker *circuitbreaker.HostBreaker
	limiter     *rate.PerHost
	ua          string
}

// NewResilientClient creates a client allowing perSecond requests to each host.
func NewResilientClient(client *http.Client, ua string, perSecond float64, log *logging.Logger) *ResilientClient {
	if client == nil {
		client = Default()
	}
	if log == nil {
		log = logging.Nop()
	}

	config := circuitbreaker.DefaultConfig()
	config.OnStateChange = func(host string, from, to circuitbreaker.State) {
		log.Warnw("circuit breaker", "host", host, "from", from.String(), "to", to.String())
	}

	return &ResilientClient{
		client:      client,
		hostBreaker: circuitbreaker.NewHostBreaker(config),
		limiter:     rate.New(perSecond, 1),
		ua:          ua,
	}
}

// Do waits for the host's rate limit, then executes req under its circuit
// breaker. Any status outside 2xx is returned as *HTTPError with the body
// closed; only 5xx and transport errors count against the breaker.
func (c *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if err := c.limiter.Wait(req.Context(), host); err != nil {
		return nil, err
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	var resp *http.Response
	var clientErr error
	err := c.hostBreaker.Execute(host, func() error {
		var err error
		resp, err = c.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return &HTTPError{URL: req.URL.String(), StatusCode: resp.StatusCode, Status: resp.Status}
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			clientErr = &HTTPError{URL: req.URL.String(), StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if clientErr != nil {
		return nil, clientErr
	}
	return resp, nil
}

// Get performs a GET request bound to ctx.
func (c *ResilientClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// BreakerState reports host's circuit breaker state.
func (c *ResilientClient) BreakerState(host string) circuitbreaker.State {
	return c.hostBreaker.State(host)
}

// UserAgent is the agent string sent with each request.
func (c *ResilientClient) UserAgent() string { return c.ua }

// Close stops the limiter's background loop.
func (c *ResilientClient) Close() {
	c.limiter.Stop()
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Temporary reports whether retrying might help.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// StatusCode returns the HTTP status code carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
