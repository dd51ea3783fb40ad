// Package esios talks to the system operator's indicator API. It
// fetches indicator time series (day-ahead market prices, reported
// capacities) with token auth, rate limiting, retries and an optional
// TTL cache in front of the HTTP round trip.
package esios

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
)

// HTTPClient interface allows mocking http.Client in tests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CacheInterface is the cache the client consults before going to the
// network. Keys encode indicator, geo and time range.
type CacheInterface interface {
	Get(key string) (*Indicator, bool)
	Set(key string, data *Indicator)
}

// Client handles interactions with the indicator API
type Client struct {
	cfg         config.ESIOSConfig
	httpClient  HTTPClient
	rateLimiter *time.Ticker
	cache       CacheInterface
}

// Indicator is one decoded indicator response.
type Indicator struct {
	ID        int
	Name      string
	ShortName string
	Values    []IndicatorPoint
}

// IndicatorPoint is a single value of an indicator series.
type IndicatorPoint struct {
	IndicatorID int
	GeoID       int
	Timestamp   time.Time
	Value       float64
}

// indicatorResponse mirrors the API payload.
type indicatorResponse struct {
	Indicator struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		ShortName string `json:"short_name"`
		Values    []struct {
			Value       float64 `json:"value"`
			DatetimeUTC string  `json:"datetime_utc"`
			GeoID       int     `json:"geo_id"`
		} `json:"values"`
	} `json:"indicator"`
}

// ClientOption allows customizing the client
type ClientOption func(*Client)

// WithHTTPClient allows injecting a custom HTTP client
func WithHTTPClient(client HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCache adds a cache to the client
func WithCache(cache CacheInterface) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithTimeout overrides the HTTP timeout when the default client is
// used.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if hc, ok := c.httpClient.(*http.Client); ok {
			hc.Timeout = d
		}
	}
}

// WithRateLimit overrides the minimum interval between requests.
func WithRateLimit(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval <= 0 {
			return
		}
		c.rateLimiter.Stop()
		c.rateLimiter = time.NewTicker(interval)
	}
}

// NewClient creates a new API client
func NewClient(cfg config.ESIOSConfig, opts ...ClientOption) *Client {
	client := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout),
		},
		rateLimiter: time.NewTicker(time.Second / time.Duration(ensureNonZero(cfg.RateLimit))),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// GetIndicator fetches one indicator over a time range, with caching
// and retries. Rate-limit and server errors are retried with
// exponential backoff; authentication failures are not.
func (c *Client) GetIndicator(ctx context.Context, id, geoID int, start, end time.Time) (*Indicator, error) {
	key := cacheKey(id, geoID, start, end)
	if c.cache != nil {
		if data, fresh := c.cache.Get(key); fresh {
			klog.V(2).InfoS("Using cached indicator data",
				"indicator", id,
				"geo", geoID,
				"points", len(data.Values))
			return data, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %v", ctx.Err())
		case <-c.rateLimiter.C:
			data, err := c.doRequest(ctx, id, geoID, start, end)
			if err == nil {
				if c.cache != nil {
					c.cache.Set(key, data)
					klog.V(2).InfoS("Stored indicator data in cache",
						"indicator", id,
						"points", len(data.Values))
				}
				return data, nil
			}
			if !isRetryable(err) {
				return nil, err
			}
			lastErr = err
			// No backoff after the last attempt: there is nothing
			// left to wait for.
			if attempt == c.cfg.MaxRetries {
				return nil, fmt.Errorf("all retries failed: %v", lastErr)
			}
			klog.V(2).InfoS("API request failed, retrying",
				"attempt", attempt+1,
				"maxRetries", c.cfg.MaxRetries,
				"error", err)

			backoff := c.getBackoffDuration(attempt)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled during backoff: %v", ctx.Err())
			case <-timer.C:
				continue
			}
		}
	}
	return nil, fmt.Errorf("all retries failed: %v", lastErr)
}

// httpError carries the status code so the retry loop can distinguish
// transient statuses from fatal ones.
type httpError struct {
	status int
	detail string
}

func (e *httpError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s (status %d)", e.detail, e.status)
	}
	return fmt.Sprintf("unexpected status code: %d", e.status)
}

// isRetryable treats transport failures, rate limiting and server
// errors as transient. Everything else, notably bad tokens and
// unknown indicators, fails immediately.
func isRetryable(err error) bool {
	if he, ok := err.(*httpError); ok {
		return he.status == http.StatusTooManyRequests || he.status >= 500
	}
	_, terminal := err.(*decodeError)
	return !terminal
}

// decodeError marks responses that arrived but could not be used.
type decodeError struct {
	msg string
}

func (e *decodeError) Error() string {
	return e.msg
}

func (c *Client) doRequest(ctx context.Context, id, geoID int, start, end time.Time) (*Indicator, error) {
	if id <= 0 {
		return nil, &decodeError{msg: fmt.Sprintf("invalid indicator id %d", id)}
	}
	if !end.After(start) {
		return nil, &decodeError{msg: "end must be after start"}
	}

	endpoint := fmt.Sprintf("%s/indicators/%d", c.cfg.BaseURL, id)
	query := url.Values{}
	query.Set("start_date", start.UTC().Format(time.RFC3339))
	query.Set("end_date", end.UTC().Format(time.RFC3339))
	if geoID > 0 {
		query.Set("geo_ids[]", strconv.Itoa(geoID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	klog.V(2).InfoS("Making indicator API request",
		"url", req.URL.String(),
		"indicator", id,
		"hasToken", c.cfg.Token != "")

	req.Header.Set("x-api-key", c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json; application/vnd.esios-api-v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Continue processing
	case http.StatusTooManyRequests:
		return nil, &httpError{status: resp.StatusCode, detail: "rate limit exceeded"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &decodeError{msg: "invalid API token"}
	case http.StatusNotFound:
		return nil, &decodeError{msg: fmt.Sprintf("indicator not found: %d", id)}
	default:
		return nil, &httpError{status: resp.StatusCode}
	}

	var payload indicatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &decodeError{msg: fmt.Sprintf("failed to decode response: %v", err)}
	}

	data := &Indicator{
		ID:        payload.Indicator.ID,
		Name:      payload.Indicator.Name,
		ShortName: payload.Indicator.ShortName,
	}
	if data.ID == 0 {
		data.ID = id
	}
	for _, v := range payload.Indicator.Values {
		stamp, err := time.Parse(time.RFC3339, v.DatetimeUTC)
		if err != nil {
			return nil, &decodeError{msg: fmt.Sprintf("invalid timestamp %q in indicator %d", v.DatetimeUTC, id)}
		}
		data.Values = append(data.Values, IndicatorPoint{
			IndicatorID: data.ID,
			GeoID:       v.GeoID,
			Timestamp:   stamp.UTC(),
			Value:       v.Value,
		})
	}
	if len(data.Values) == 0 {
		return nil, &decodeError{msg: fmt.Sprintf("indicator %d returned no values for %s to %s",
			id, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))}
	}

	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Timestamp.Before(data.Values[j].Timestamp)
	})

	return data, nil
}

func (c *Client) getBackoffDuration(attempt int) time.Duration {
	// Exponential backoff with jitter
	backoff := time.Duration(c.cfg.RetryDelay) * time.Duration(1<<uint(attempt))
	maxBackoff := 1 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	// Add jitter (80 to 120 percent)
	jitter := time.Duration(float64(backoff) * (0.8 + 0.4*float64(time.Now().UnixNano()%100)/100.0))
	return jitter
}

func cacheKey(id, geoID int, start, end time.Time) string {
	return fmt.Sprintf("%d:%d:%d:%d", id, geoID, start.UTC().Unix(), end.UTC().Unix())
}

func ensureNonZero(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Close cleans up client resources
func (c *Client) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
}
