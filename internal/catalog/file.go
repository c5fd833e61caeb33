package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// NewFileSource creates a source reading a catalog file from disk. The format
// and compression are inferred from the file name (see FormatFromName).
func NewFileSource(filename string) (*StreamSource, error) {
	format, compression, err := FormatFromName(filename)
	if err != nil {
		return nil, err
	}
	return NewStreamSource("file:"+filename, format, fileOpener(filename, compression))
}

func fileOpener(filename, compression string) Opener {
	return func(context.Context) (io.ReadCloser, error) {
		f, err := os.Open(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog file: %w", err)
		}
		rc, err := decompress(f, compression)
		if err != nil {
			f.Close()
			return nil, err
		}
		return rc, nil
	}
}

// compressionFromName returns the compression extension of name, or "".
func compressionFromName(name string) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ExtGzip, ExtZstd, ExtLZ4:
		return ext
	default:
		return ""
	}
}
