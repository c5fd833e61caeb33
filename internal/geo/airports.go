package geo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// OpenFlights airports.dat column layout.
const (
	colIATA      = 4
	colLatitude  = 6
	colLongitude = 7
	minColumns   = colLongitude + 1
)

// nullCode marks an airport without an IATA code in airports.dat.
const nullCode = `\N`

// ErrEmptyAirportTable is returned when a source yields no usable airports.
var ErrEmptyAirportTable = errors.New("airport table is empty")

// Loader produces the airport code to coordinates table.
type Loader func(ctx context.Context) (map[string]Point, error)

// FileLoader returns a Loader reading an OpenFlights airports.dat file from disk.
func FileLoader(path string) Loader {
	return func(ctx context.Context) (map[string]Point, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open airports file: %w", err)
		}
		defer f.Close()
		return ParseAirports(ctx, f)
	}
}

// ParseAirports reads OpenFlights CSV rows into a code to coordinates table.
// Rows without an IATA code (\N) are ignored. Rows with unparseable or
// out-of-range coordinates are skipped and logged.
func ParseAirports(ctx context.Context, r io.Reader) (map[string]Point, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	airports := make(map[string]Point)
	skipped := 0
	line := 0

	for {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read airports CSV: %w", err)
		}
		line++

		if len(row) < minColumns {
			skipped++
			continue
		}

		code := strings.TrimSpace(row[colIATA])
		if code == "" || code == nullCode {
			continue
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[colLatitude]), 64)
		lng, lngErr := strconv.ParseFloat(strings.TrimSpace(row[colLongitude]), 64)
		p := Point{Lat: lat, Lng: lng}
		if latErr != nil || lngErr != nil || !p.Valid() {
			skipped++
			continue
		}

		airports[code] = p
	}

	if skipped > 0 {
		slog.WarnContext(ctx, "skipped invalid airport rows", "skipped", skipped, "loaded", len(airports))
	}
	if len(airports) == 0 {
		return nil, ErrEmptyAirportTable
	}

	return airports, nil
}
