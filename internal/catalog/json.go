package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/onnwee/flightrank/internal/flight"
)

// decodeJSON streams either a top-level JSON array of records or a sequence
// of whitespace-separated record objects (JSON Lines).
func decodeJSON(ctx context.Context, r io.Reader, yield func(flight.RawRecord, error) bool) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return
	}
	if err != nil {
		yield(flight.RawRecord{}, fmt.Errorf("failed to read catalog: %w", err))
		return
	}

	dec := json.NewDecoder(br)
	array := first == '['
	if array {
		if _, err := dec.Token(); err != nil {
			yield(flight.RawRecord{}, fmt.Errorf("failed to read catalog: %w", err))
			return
		}
	}

	position := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if array && !dec.More() {
			break
		}

		var rec flight.RawRecord
		err := dec.Decode(&rec)
		if !array && errors.Is(err, io.EOF) {
			return
		}
		position++
		if err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				// The decoder has consumed the whole entry; the stream can go on.
				if !yield(flight.RawRecord{}, &flight.MalformedRecordError{
					Field:  typeErr.Field,
					Value:  typeErr.Value,
					Reason: fmt.Sprintf("entry %d: expected %s", position, typeErr.Type),
				}) {
					return
				}
				continue
			}
			yield(flight.RawRecord{}, fmt.Errorf("failed to decode catalog entry %d: %w", position, err))
			return
		}

		if !yield(rec, nil) {
			return
		}
	}

	if _, err := dec.Token(); err != nil {
		yield(flight.RawRecord{}, fmt.Errorf("failed to read end of catalog: %w", err))
	}
}

// peekNonSpace returns the first non-whitespace byte without consuming it.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
