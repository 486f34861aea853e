package prediction

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
)

// ValueColumn is the CSV column holding predicted volumes.
const ValueColumn = "Values"

type predictionRow struct {
	Value float64 `csv:"Values"`
}

// FileStore reads series from <Dir>/<site>/<model>_<site>.csv.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Name implements Store.
func (s *FileStore) Name() string {
	return "file"
}

// Path returns the file that holds the series for a site and model.
func (s *FileStore) Path(siteID int, model string) string {
	site := strconv.Itoa(siteID)
	return filepath.Join(s.dir, site, model+"_"+site+".csv")
}

// Series implements Store.
func (s *FileStore) Series(ctx context.Context, siteID int, model string) (Series, error) {
	if err := ValidateModel(model); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path(siteID, model))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSeriesNotFound
		}
		return nil, fmt.Errorf("open prediction file: %w", err)
	}
	defer f.Close()

	return decodeSeries(f)
}

// decodeSeries reads the Values column of a prediction CSV.
func decodeSeries(r io.Reader) (Series, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrValueColumnMissing
		}
		return nil, fmt.Errorf("create prediction decoder: %w", err)
	}
	if !hasColumn(dec.Header(), ValueColumn) {
		return nil, ErrValueColumnMissing
	}

	var rows []predictionRow
	if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode prediction file: %w", err)
	}

	series := make(Series, len(rows))
	for i, row := range rows {
		series[i] = row.Value
	}
	return series, nil
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
