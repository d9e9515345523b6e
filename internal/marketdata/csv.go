package marketdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoadCSVDir builds a StaticProvider from a directory of per-node CSV
// files. Each <node>.csv holds "date,price" rows with an optional header;
// dates are ISO (2006-01-02). This is the file-backed stand-in for a live
// market data source.
func LoadCSVDir(dir string) (*StaticProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read market data dir: %w", err)
	}

	provider := NewStaticProvider()
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		node := strings.TrimSuffix(entry.Name(), ".csv")
		points, err := loadCSVFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("load series for node %s: %w", node, err)
		}
		provider.Add(node, points...)
		loaded++
	}

	if loaded == 0 {
		return nil, fmt.Errorf("no series files found in %s", dir)
	}
	return provider, nil
}

func loadCSVFile(path string) ([]PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var points []PricePoint
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "date") {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad date %q: %w", i+1, row[0], err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad price %q: %w", i+1, row[1], err)
		}
		points = append(points, PricePoint{Date: date, Price: price})
	}
	return points, nil
}
