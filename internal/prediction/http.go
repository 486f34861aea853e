package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/resilience"
)

const (
	// HTTPStoreName identifies the remote prediction service.
	HTTPStoreName = "prediction-service"

	// DefaultHTTPTimeout is the default request timeout.
	DefaultHTTPTimeout = 2 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPStoreConfig holds configuration for the remote prediction store.
type HTTPStoreConfig struct {
	// BaseURL is the prediction service base URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 2s).
	Timeout time.Duration

	// Registry tracks the health of the remote service (optional).
	Registry *resilience.Registry

	// Logger for store operations.
	Logger zerolog.Logger
}

// HTTPStore reads series from a remote prediction service:
// GET {BaseURL}/v1/models/{model}/sites/{site}/predictions.
type HTTPStore struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewHTTPStore creates a remote prediction store.
func NewHTTPStore(cfg HTTPStoreConfig) *HTTPStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(HTTPStoreName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 2
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &HTTPStore{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name implements Store.
func (s *HTTPStore) Name() string {
	return HTTPStoreName
}

// Series implements Store.
func (s *HTTPStore) Series(ctx context.Context, siteID int, model string) (Series, error) {
	endpoint := fmt.Sprintf("%s/v1/models/%s/sites/%s/predictions",
		s.baseURL, url.PathEscape(model), strconv.Itoa(siteID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting predictions: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSeriesNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("prediction service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var payload struct {
		Values *[]float64 `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if payload.Values == nil {
		return nil, ErrValueColumnMissing
	}

	s.logger.Debug().
		Int("site_id", siteID).
		Str("model", model).
		Int("slots", len(*payload.Values)).
		Msg("fetched prediction series")

	return Series(*payload.Values), nil
}
