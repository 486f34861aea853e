// Package prediction resolves per-site traffic volume predictions for a
// 15-minute slot, degrading to a default volume whenever a prediction is missing.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Sentinel errors returned by stores.
var (
	// ErrSeriesNotFound indicates no prediction series exists for a site and model.
	ErrSeriesNotFound = errors.New("prediction series not found")
	// ErrValueColumnMissing indicates a series source lacks its value column.
	ErrValueColumnMissing = errors.New("prediction value column missing")
	// ErrInvalidModel indicates a model name that cannot address a series.
	ErrInvalidModel = errors.New("invalid model name")
)

// Series holds predicted volumes indexed by 15-minute slot.
type Series []float64

// Store provides prediction series by site and model.
type Store interface {
	// Series returns the series for a site and model, or ErrSeriesNotFound.
	Series(ctx context.Context, siteID int, model string) (Series, error)
	// Name identifies the store for logging and metrics.
	Name() string
}

// ValidateModel checks that a model name is safe to embed in file paths,
// cache keys and URLs.
func ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModel)
	}
	if len(model) > 64 {
		return fmt.Errorf("%w: longer than 64 characters", ErrInvalidModel)
	}
	if strings.IndexFunc(model, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' || r == '.')
	}) >= 0 || strings.Contains(model, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidModel, model)
	}
	return nil
}

type seriesKey struct {
	site  int
	model string
}

// MemoryStore is an in-memory Store, used for tests and fixtures.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[seriesKey]Series
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[seriesKey]Series)}
}

// Put stores a copy of s for a site and model.
func (m *MemoryStore) Put(siteID int, model string, s Series) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[seriesKey{siteID, model}] = append(Series(nil), s...)
}

// Series implements Store.
func (m *MemoryStore) Series(_ context.Context, siteID int, model string) (Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[seriesKey{siteID, model}]
	if !ok {
		return nil, ErrSeriesNotFound
	}
	return s, nil
}

// Name implements Store.
func (m *MemoryStore) Name() string {
	return "memory"
}
