package catalog

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressed catalog file extensions.
const (
	ExtGzip = ".gz"
	ExtZstd = ".zst"
	ExtLZ4  = ".lz4"
)

// decompress wraps rc with a streaming decompressor for the given extension.
// Closing the result closes both the decompressor and rc.
func decompress(rc io.ReadCloser, ext string) (io.ReadCloser, error) {
	switch ext {
	case "":
		return rc, nil
	case ExtGzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []func() error{zr.Close, rc.Close}}, nil
	case ExtZstd:
		zr, err := zstd.NewReader(rc, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			rc.Close,
		}}, nil
	case ExtLZ4:
		return &stackedCloser{Reader: lz4.NewReader(rc), closers: []func() error{rc.Close}}, nil
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrUnsupportedFormat, ext)
	}
}

// stackedCloser closes a decompressor and the underlying stream in order.
type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
