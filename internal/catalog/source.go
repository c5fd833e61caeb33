// Package catalog provides the flight catalog record streams consumed by search.
//
// Every source implements Records(ctx) and yields one flight.RawRecord at a
// time; nothing is buffered beyond the current entry. A yielded error
// wrapping flight.ErrMalformedRecord concerns one entry and the stream goes
// on; any other error is the last thing a stream yields.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/onnwee/flightrank/internal/flight"
)

// Catalog formats.
const (
	FormatJSON = "json" // JSON array or newline-delimited JSON objects
	FormatCBOR = "cbor" // CBOR sequence (RFC 8742) of record maps
)

// Catalog errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported catalog format")
	ErrUnsupportedURL    = errors.New("unsupported catalog URL")
)

// Opener opens a fresh byte stream of a catalog.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// StreamSource decodes a byte stream opened per pass.
type StreamSource struct {
	open   Opener
	format string
	name   string
}

// NewStreamSource creates a source decoding the given format from open.
// name is used in errors and logs.
func NewStreamSource(name, format string, open Opener) (*StreamSource, error) {
	switch format {
	case FormatJSON, FormatCBOR:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &StreamSource{open: open, format: format, name: name}, nil
}

// Name identifies the source.
func (s *StreamSource) Name() string {
	return s.name
}

// Records opens the catalog and streams its entries.
func (s *StreamSource) Records(ctx context.Context) iter.Seq2[flight.RawRecord, error] {
	return func(yield func(flight.RawRecord, error) bool) {
		rc, err := s.open(ctx)
		if err != nil {
			yield(flight.RawRecord{}, fmt.Errorf("failed to open catalog %s: %w", s.name, err))
			return
		}
		defer rc.Close()

		switch s.format {
		case FormatCBOR:
			decodeCBOR(ctx, rc, yield)
		default:
			decodeJSON(ctx, rc, yield)
		}
	}
}

// FormatFromName infers the catalog format and compression from a file name
// or object key, e.g. "flights.cbor.zst" is CBOR compressed with zstd.
func FormatFromName(name string) (format, compression string, err error) {
	base := strings.ToLower(path.Base(name))

	ext := path.Ext(base)
	switch ext {
	case ExtGzip, ExtZstd, ExtLZ4:
		compression = ext
		base = strings.TrimSuffix(base, ext)
		ext = path.Ext(base)
	}

	switch ext {
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, compression, nil
	case ".cbor":
		return FormatCBOR, compression, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}
