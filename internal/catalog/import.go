package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/lib/pq"

	"github.com/onnwee/flightrank/internal/flight"
	"github.com/onnwee/flightrank/internal/tracing"
)

// ImportResult counts the outcome of an Import.
type ImportResult struct {
	Imported int
	Skipped  int // malformed entries left out
}

// EnsureSchema creates the flights table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, CreateFlightsTable); err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}
	return nil
}

// Import copies records into the flights table of db in one transaction.
// Postgres uses COPY; other drivers use a prepared INSERT. Entries failing
// validation are skipped and counted; any other stream error rolls back.
func Import(ctx context.Context, db *sql.DB, driver string, records iter.Seq2[flight.RawRecord, error], logger *slog.Logger) (result ImportResult, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	system := driver
	if driver == DriverPostgres {
		system = "postgresql"
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, system, FlightsTable, tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if err = EnsureSchema(ctx, db); err != nil {
		return result, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Error("failed to roll back import", "error", rbErr)
			}
		}
	}()

	query := `INSERT INTO flights (departure_time, arrival_time, carrier, origin, destination) VALUES (?, ?, ?, ?, ?)`
	if driver == DriverPostgres {
		query = pq.CopyIn(FlightsTable, "departure_time", "arrival_time", "carrier", "origin", "destination")
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return result, fmt.Errorf("failed to prepare import: %w", err)
	}
	defer stmt.Close()

	for raw, recErr := range records {
		if recErr != nil {
			if errors.Is(recErr, flight.ErrMalformedRecord) {
				result.Skipped++
				logger.Debug("skipping malformed catalog entry", "error", recErr)
				continue
			}
			err = recErr
			return result, err
		}
		if _, parseErr := raw.Parse(); parseErr != nil {
			result.Skipped++
			logger.Debug("skipping malformed catalog entry", "error", parseErr)
			continue
		}

		if _, err = stmt.ExecContext(ctx, raw.DepartureTime, raw.ArrivalTime, raw.Carrier, raw.Origin, raw.Destination); err != nil {
			err = fmt.Errorf("failed to insert flight: %w", err)
			return result, err
		}
		result.Imported++
	}

	if driver == DriverPostgres {
		// Flush the COPY buffer.
		if _, err = stmt.ExecContext(ctx); err != nil {
			err = fmt.Errorf("failed to flush copy: %w", err)
			return result, err
		}
		if err = stmt.Close(); err != nil {
			err = fmt.Errorf("failed to close copy: %w", err)
			return result, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit import: %w", err)
		return result, err
	}
	return result, nil
}
