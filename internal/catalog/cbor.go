package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/onnwee/flightrank/internal/flight"
)

// decodeCBOR streams a CBOR sequence of record maps.
func decodeCBOR(ctx context.Context, r io.Reader, yield func(flight.RawRecord, error) bool) {
	dec := cbor.NewDecoder(r)

	position := 0
	for {
		if ctx.Err() != nil {
			return
		}

		var rec flight.RawRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return
		}
		position++
		if err != nil {
			var typeErr *cbor.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				// Well-formed item of the wrong shape; the decoder is past it.
				if !yield(flight.RawRecord{}, &flight.MalformedRecordError{
					Field:  typeErr.StructFieldName,
					Value:  typeErr.CBORType,
					Reason: fmt.Sprintf("entry %d: expected %s", position, typeErr.GoType),
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
}

// EncodeCBOR writes records as a CBOR sequence.
func EncodeCBOR(w io.Writer, records []flight.RawRecord) error {
	enc := cbor.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return nil
}
