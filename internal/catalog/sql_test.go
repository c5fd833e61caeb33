package catalog

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/onnwee/flightrank/internal/flight"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, driver, err := OpenDB(context.Background(), "sqlite://:memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	if driver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", driver)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seqOf(items ...any) iter.Seq2[flight.RawRecord, error] {
	return func(yield func(flight.RawRecord, error) bool) {
		for _, item := range items {
			var ok bool
			switch v := item.(type) {
			case flight.RawRecord:
				ok = yield(v, nil)
			case error:
				ok = yield(flight.RawRecord{}, v)
			}
			if !ok {
				return
			}
		}
	}
}

func TestImportAndStream_SQLite(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	bad := flight.RawRecord{DepartureTime: "soon", ArrivalTime: "2024-01-01T10:00:00Z", Carrier: "DL", Origin: "ATL", Destination: "TPA"}
	result, err := Import(ctx, db, DriverSQLite, seqOf(
		sampleRecords[0],
		bad,
		&flight.MalformedRecordError{Field: "carrier", Value: "number", Reason: "expected string"},
		sampleRecords[1],
		sampleRecords[2],
	), nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Imported != 3 || result.Skipped != 2 {
		t.Errorf("expected 3 imported and 2 skipped, got %+v", result)
	}

	src := NewSQLSource(db, DriverSQLite)
	records, malformed, fatal := collect(t, src)
	if fatal != nil || malformed != 0 {
		t.Fatalf("unexpected errors: fatal=%v malformed=%d", fatal, malformed)
	}
	assertSample(t, records)
}

func TestImport_StreamErrorRollsBack(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	streamErr := errors.New("connection reset")

	_, err := Import(ctx, db, DriverSQLite, seqOf(sampleRecords[0], streamErr), nil)
	if !errors.Is(err, streamErr) {
		t.Fatalf("expected stream error, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flights").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback to leave 0 rows, got %d", count)
	}
}

func TestSQLSource_NullColumns(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Bypass NOT NULL with a table that allows nulls.
	if _, err := db.ExecContext(ctx, "DROP TABLE flights"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE flights (departure_time TEXT, arrival_time TEXT, carrier TEXT, origin TEXT, destination TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO flights VALUES ('2024-01-01T08:00:00Z', NULL, 'DL', 'ATL', 'TPA')"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	records, _, fatal := collect(t, NewSQLSource(db, DriverSQLite))
	if fatal != nil {
		t.Fatalf("unexpected error: %v", fatal)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if _, err := records[0].Parse(); !errors.Is(err, flight.ErrMalformedRecord) {
		t.Errorf("expected NULL arrival to fail validation, got %v", err)
	}
}

func TestSQLSource_MissingTable(t *testing.T) {
	db := openMemoryDB(t)
	_, _, fatal := collect(t, NewSQLSource(db, DriverSQLite))
	if fatal == nil {
		t.Fatal("expected fatal error for missing flights table")
	}
}

func TestSQLSource_CancelledContext(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	if _, err := Import(ctx, db, DriverSQLite, seqOf(sampleRecords[0], sampleRecords[1]), nil); err != nil {
		t.Fatalf("Import: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	for rec, err := range NewSQLSource(db, DriverSQLite).Records(cancelled) {
		// A cancelled query may surface as an error; it must never be a record.
		if err == nil {
			t.Fatalf("expected no records from a cancelled context, got %+v", rec)
		}
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	url := "sqlite://" + filepath.Join(t.TempDir(), "flights.db")

	db, driver, err := OpenDB(ctx, url)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	if _, err := Import(ctx, db, driver, seqOf(sampleRecords[0], sampleRecords[1], sampleRecords[2]), nil); err != nil {
		t.Fatalf("Import: %v", err)
	}
	db.Close()

	cat, err := Open(ctx, url, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()
	if cat.DB == nil {
		t.Fatal("expected DB handle for SQL catalog")
	}

	records, _, fatal := collect(t, cat.Source)
	if fatal != nil {
		t.Fatalf("unexpected error: %v", fatal)
	}
	assertSample(t, records)
}
