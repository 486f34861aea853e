package network

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jszwec/csvutil"

	"github.com/scatsroute/scatsroute/internal/geo"
)

// siteRecord is one row of the topology CSV.
type siteRecord struct {
	SiteID     int     `csv:"SCATS Number"`
	Latitude   float64 `csv:"Latitude"`
	Longitude  float64 `csv:"Longitude"`
	Neighbours string  `csv:"Neighbours,omitempty"`
}

// LoadCSV reads a topology from CSV with the columns
// "SCATS Number", "Latitude", "Longitude" and an optional
// semicolon-separated "Neighbours" list.
func LoadCSV(r io.Reader) (*Topology, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyTopology
		}
		return nil, fmt.Errorf("create topology decoder: %w", err)
	}

	var records []siteRecord
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode topology: %w", err)
	}

	sites := make([]Site, 0, len(records))
	var links []Link
	for _, rec := range records {
		sites = append(sites, Site{
			ID:         rec.SiteID,
			Coordinate: geo.Coordinate{Lat: rec.Latitude, Lon: rec.Longitude},
		})
		for _, n := range parseNeighbours(rec.Neighbours) {
			links = append(links, Link{From: rec.SiteID, To: n})
		}
	}

	return NewTopology(sites, links)
}

// LoadFile reads a CSV topology from path.
func LoadFile(path string) (*Topology, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("open topology: %w", err)
	}
	defer f.Close()

	return LoadCSV(f)
}

// parseNeighbours splits a "3001;3002" cell, skipping tokens that are not integers.
func parseNeighbours(cell string) []int {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, ";")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Querier is the subset of pgxpool.Pool used by LoadPostgres.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadPostgres reads a topology from the sites and site_links tables.
func LoadPostgres(ctx context.Context, db Querier) (*Topology, error) {
	rows, err := db.Query(ctx, `
		SELECT site_id, latitude, longitude
		FROM sites
		ORDER BY site_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	var sites []Site
	for rows.Next() {
		var s Site
		if err := rows.Scan(&s.ID, &s.Coordinate.Lat, &s.Coordinate.Lon); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}

	rows, err = db.Query(ctx, `SELECT from_site, to_site FROM site_links`)
	if err != nil {
		return nil, fmt.Errorf("query site links: %w", err)
	}
	defer rows.Close()
	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.From, &l.To); err != nil {
			return nil, fmt.Errorf("scan site link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site links: %w", err)
	}

	return NewTopology(sites, links)
}
