package prediction

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/scatsroute/scatsroute/internal/traffic"
)

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads series from the volume_predictions table.
// Slots missing from the table are returned as NaN and resolve to the default volume.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a PostgreSQL prediction store.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Name implements Store.
func (s *PostgresStore) Name() string {
	return "postgres"
}

// Series implements Store.
func (s *PostgresStore) Series(ctx context.Context, siteID int, model string) (Series, error) {
	query := `
		SELECT slot, volume
		FROM volume_predictions
		WHERE site_id = $1 AND model = $2
		ORDER BY slot
	`

	rows, err := s.db.Query(ctx, query, siteID, model)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var series Series
	for rows.Next() {
		var (
			slot   int
			volume float64
		)
		if err := rows.Scan(&slot, &volume); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if slot < 0 || slot >= traffic.SlotsPerDay {
			continue
		}
		for len(series) < slot {
			series = append(series, math.NaN())
		}
		if slot == len(series) {
			series = append(series, volume)
		} else {
			series[slot] = volume
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}

	if len(series) == 0 {
		return nil, ErrSeriesNotFound
	}
	return series, nil
}
