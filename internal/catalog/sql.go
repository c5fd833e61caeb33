package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/onnwee/flightrank/internal/flight"
	"github.com/onnwee/flightrank/internal/tracing"
)

// SQL driver names registered by the imported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// FlightsTable is the catalog table name.
const FlightsTable = "flights"

// CreateFlightsTable creates the catalog table. Timestamps are stored as
// ISO-8601 text, exactly as they appear in JSON catalogs.
const CreateFlightsTable = `CREATE TABLE IF NOT EXISTS flights (
	departure_time TEXT NOT NULL,
	arrival_time   TEXT NOT NULL,
	carrier        TEXT NOT NULL,
	origin         TEXT NOT NULL,
	destination    TEXT NOT NULL
)`

const selectFlights = `SELECT departure_time, arrival_time, carrier, origin, destination FROM flights`

// SQLSource streams the flights table through a database cursor.
type SQLSource struct {
	db     *sql.DB
	system string
}

// NewSQLSource creates a source over db. driver is DriverPostgres or DriverSQLite.
func NewSQLSource(db *sql.DB, driver string) *SQLSource {
	system := driver
	if driver == DriverPostgres {
		system = "postgresql"
	}
	return &SQLSource{db: db, system: system}
}

// Records runs one query and yields rows as they are fetched.
// NULL columns come through as empty strings and fail record validation.
func (s *SQLSource) Records(ctx context.Context) iter.Seq2[flight.RawRecord, error] {
	return func(yield func(flight.RawRecord, error) bool) {
		var err error
		ctx, endSpan := tracing.StartDBSpan(ctx, s.system, FlightsTable, tracing.DBOperationQuery)
		defer func() { endSpan(err) }()

		rows, err := s.db.QueryContext(ctx, selectFlights)
		if err != nil {
			err = fmt.Errorf("failed to query flights: %w", err)
			yield(flight.RawRecord{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var dep, arr, carrier, origin, dest sql.NullString
			if err = rows.Scan(&dep, &arr, &carrier, &origin, &dest); err != nil {
				err = fmt.Errorf("failed to scan flight row: %w", err)
				yield(flight.RawRecord{}, err)
				return
			}

			rec := flight.RawRecord{
				DepartureTime: dep.String,
				ArrivalTime:   arr.String,
				Carrier:       carrier.String,
				Origin:        origin.String,
				Destination:   dest.String,
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err = rows.Err(); err != nil {
			// A cancelled query surfaces here; the caller reports ctx.Err() itself.
			if ctx.Err() != nil {
				return
			}
			err = fmt.Errorf("failed to iterate flights: %w", err)
			yield(flight.RawRecord{}, err)
		}
	}
}
