package esios

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/model"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
)

// MockHTTPClient is a mock implementation of HTTPClient for testing
type MockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	return nil, errors.New("mock http client not implemented")
}

// MockCache is a mock implementation of CacheInterface for testing
type MockCache struct {
	GetFunc func(key string) (*Indicator, bool)
	SetFunc func(key string, data *Indicator)
}

func (m *MockCache) Get(key string) (*Indicator, bool) {
	if m.GetFunc != nil {
		return m.GetFunc(key)
	}
	return nil, false
}

func (m *MockCache) Set(key string, data *Indicator) {
	if m.SetFunc != nil {
		m.SetFunc(key, data)
	}
}

func testConfig() config.ESIOSConfig {
	return config.ESIOSConfig{
		BaseURL:    "https://api.example.test",
		Token:      "test-token",
		Timeout:    model.Duration(10 * time.Second),
		MaxRetries: 3,
		RetryDelay: model.Duration(time.Microsecond),
		RateLimit:  1000,
	}
}

const indicatorJSON = `{
	"indicator": {
		"id": 600,
		"name": "Day-ahead market price",
		"short_name": "Market price",
		"values": [
			{"value": 50.1, "datetime_utc": "2030-01-01T00:00:00Z", "geo_id": 3},
			{"value": 48.2, "datetime_utc": "2030-01-01T01:00:00Z", "geo_id": 3},
			{"value": 47.0, "datetime_utc": "2030-01-01T02:00:00Z", "geo_id": 3}
		]
	}
}`

func testRange() (time.Time, time.Time) {
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.Add(3 * time.Hour)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		options     []ClientOption
		expectCache bool
	}{
		{
			name:        "default client",
			options:     []ClientOption{},
			expectCache: false,
		},
		{
			name: "with custom HTTP client",
			options: []ClientOption{
				WithHTTPClient(&MockHTTPClient{}),
			},
			expectCache: false,
		},
		{
			name: "with cache",
			options: []ClientOption{
				WithHTTPClient(&MockHTTPClient{}),
				WithCache(&MockCache{}),
			},
			expectCache: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(testConfig(), tt.options...)
			defer client.Close()

			if client.httpClient == nil {
				t.Error("Expected HTTP client to be set, got nil")
			}
			if (client.cache != nil) != tt.expectCache {
				t.Errorf("Expected cache to be %v, got %v", tt.expectCache, client.cache != nil)
			}
			if client.rateLimiter == nil {
				t.Error("Expected rate limiter to be set, got nil")
			}
			if client.BaseURL() != "https://api.example.test" {
				t.Errorf("BaseURL() = %s", client.BaseURL())
			}
		})
	}
}

func TestEnsureNonZero(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{name: "positive number", input: 5, expected: 5},
		{name: "zero", input: 0, expected: 1},
		{name: "negative number", input: -3, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ensureNonZero(tt.input); got != tt.expected {
				t.Errorf("ensureNonZero(%d) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGetIndicator(t *testing.T) {
	mockHTTP := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("x-api-key"); got != "test-token" {
				t.Errorf("x-api-key header = %q, want test-token", got)
			}
			if !strings.Contains(req.URL.Path, "/indicators/600") {
				t.Errorf("request path = %s, want /indicators/600", req.URL.Path)
			}
			if got := req.URL.Query().Get("geo_ids[]"); got != "3" {
				t.Errorf("geo_ids[] = %q, want 3", got)
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(indicatorJSON)),
			}, nil
		},
	}

	client := NewClient(testConfig(), WithHTTPClient(mockHTTP))
	defer client.Close()

	start, end := testRange()
	data, err := client.GetIndicator(context.Background(), 600, 3, start, end)
	if err != nil {
		t.Fatalf("GetIndicator() error = %v", err)
	}

	if data.ID != 600 || data.ShortName != "Market price" {
		t.Errorf("indicator metadata = %d %q", data.ID, data.ShortName)
	}
	if len(data.Values) != 3 {
		t.Fatalf("got %d values, want 3", len(data.Values))
	}
	if data.Values[0].Value != 50.1 || data.Values[2].Value != 47.0 {
		t.Errorf("values = %v", data.Values)
	}
	if !data.Values[0].Timestamp.Equal(start) {
		t.Errorf("first timestamp = %v, want %v", data.Values[0].Timestamp, start)
	}
	if data.Values[1].GeoID != 3 {
		t.Errorf("geo id = %d, want 3", data.Values[1].GeoID)
	}
}

func TestGetIndicatorCacheHit(t *testing.T) {
	cached := &Indicator{
		ID:     600,
		Values: []IndicatorPoint{{IndicatorID: 600, GeoID: 3, Value: 55.5}},
	}

	mockCache := &MockCache{
		GetFunc: func(key string) (*Indicator, bool) {
			return cached, true
		},
	}
	mockHTTP := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			t.Error("HTTP client should not be called on cache hit")
			return nil, errors.New("http client should not be called")
		},
	}

	client := NewClient(testConfig(), WithHTTPClient(mockHTTP), WithCache(mockCache))
	defer client.Close()

	start, end := testRange()
	data, err := client.GetIndicator(context.Background(), 600, 3, start, end)
	if err != nil {
		t.Fatalf("GetIndicator() error = %v", err)
	}
	if data.Values[0].Value != 55.5 {
		t.Errorf("cached value = %v, want 55.5", data.Values[0].Value)
	}
}

func TestGetIndicatorCacheMiss(t *testing.T) {
	var cacheSet bool
	var cachedData *Indicator

	mockCache := &MockCache{
		GetFunc: func(key string) (*Indicator, bool) {
			return nil, false
		},
		SetFunc: func(key string, data *Indicator) {
			cacheSet = true
			cachedData = data
		},
	}
	mockHTTP := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(indicatorJSON)),
			}, nil
		},
	}

	client := NewClient(testConfig(), WithHTTPClient(mockHTTP), WithCache(mockCache))
	defer client.Close()

	start, end := testRange()
	if _, err := client.GetIndicator(context.Background(), 600, 3, start, end); err != nil {
		t.Fatalf("GetIndicator() error = %v", err)
	}
	if !cacheSet {
		t.Error("Expected data to be cached, but Set was not called")
	}
	if cachedData == nil || len(cachedData.Values) != 3 {
		t.Errorf("cached data = %+v", cachedData)
	}
}

func TestGetIndicatorRetriesRateLimit(t *testing.T) {
	calls := 0
	mockHTTP := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return &http.Response{
					StatusCode: http.StatusTooManyRequests,
					Body:       io.NopCloser(strings.NewReader("")),
				}, nil
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(indicatorJSON)),
			}, nil
		},
	}

	client := NewClient(testConfig(), WithHTTPClient(mockHTTP))
	defer client.Close()

	start, end := testRange()
	data, err := client.GetIndicator(context.Background(), 600, 3, start, end)
	if err != nil {
		t.Fatalf("GetIndicator() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("HTTP calls = %d, want 2 (one retry)", calls)
	}
	if len(data.Values) != 3 {
		t.Errorf("got %d values after retry", len(data.Values))
	}
}

func TestGetIndicatorInvalidTokenDoesNotRetry(t *testing.T) {
	calls := 0
	mockHTTP := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			calls++
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		},
	}

	client := NewClient(testConfig(), WithHTTPClient(mockHTTP))
	defer client.Close()

	start, end := testRange()
	_, err := client.GetIndicator(context.Background(), 600, 3, start, end)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "invalid API token") {
		t.Errorf("error = %v, want invalid API token", err)
	}
	if calls != 1 {
		t.Errorf("HTTP calls = %d, want 1 (no retries on auth failure)", calls)
	}
}

func TestGetIndicatorAllRetriesFail(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1

	mockHTTP := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("simulated network error")
		},
	}

	client := NewClient(cfg, WithHTTPClient(mockHTTP))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start, end := testRange()
	_, err := client.GetIndicator(ctx, 600, 3, start, end)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "all retries failed") {
		t.Errorf("Expected 'all retries failed' error, got %v", err)
	}
}

func TestGetIndicatorNoBackoffAfterFinalAttempt(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.RetryDelay = model.Duration(time.Hour)

	client := NewClient(cfg, WithHTTPClient(&MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("simulated network error")
		},
	}))
	defer client.Close()

	begin := time.Now()
	start, end := testRange()
	_, err := client.GetIndicator(context.Background(), 600, 3, start, end)
	if err == nil || !strings.Contains(err.Error(), "all retries failed") {
		t.Fatalf("GetIndicator() error = %v, want all retries failed", err)
	}
	if elapsed := time.Since(begin); elapsed > 5*time.Second {
		t.Errorf("final attempt waited %v before failing", elapsed)
	}
}

func TestGetIndicatorEmptyResponse(t *testing.T) {
	mockHTTP := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"indicator": {"id": 600, "values": []}}`)),
			}, nil
		},
	}

	client := NewClient(testConfig(), WithHTTPClient(mockHTTP))
	defer client.Close()

	start, end := testRange()
	_, err := client.GetIndicator(context.Background(), 600, 3, start, end)
	if err == nil || !strings.Contains(err.Error(), "no values") {
		t.Errorf("GetIndicator() error = %v, want no-values error", err)
	}
}

func TestGetIndicatorInvalidRange(t *testing.T) {
	client := NewClient(testConfig(), WithHTTPClient(&MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			t.Error("request should not be sent for an invalid range")
			return nil, errors.New("unreachable")
		},
	}))
	defer client.Close()

	start, _ := testRange()
	_, err := client.GetIndicator(context.Background(), 600, 3, start, start)
	if err == nil || !strings.Contains(err.Error(), "end must be after start") {
		t.Errorf("GetIndicator() error = %v, want range error", err)
	}
}

func TestGetIndicatorContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 1 // one request per second keeps the ticker slow

	client := NewClient(cfg, WithHTTPClient(&MockHTTPClient{}))
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start, end := testRange()
	_, err := client.GetIndicator(ctx, 600, 3, start, end)
	if err == nil || !strings.Contains(err.Error(), "context cancelled") {
		t.Errorf("GetIndicator() error = %v, want context cancelled", err)
	}
}
