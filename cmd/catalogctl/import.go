package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/flightrank/internal/catalog"
	"github.com/onnwee/flightrank/internal/jobs"
)

func newImportCmd(global *globalOptions) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a catalog into a SQL database",
		Long: `Streams every record of the source catalog into the flights table of the
target database, creating the table when missing. PostgreSQL targets are
loaded with COPY, SQLite targets with a prepared insert. The load runs in a
single transaction; malformed records are skipped and counted.`,
		Example: `  catalogctl import --from file:///data/flights.json.zst --to postgres://app@db/flights
  catalogctl import --from s3://catalogs/flights.cbor --to sqlite:///var/lib/flights.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || to == "" {
				return errors.New("--from and --to are required")
			}
			ctx := cmd.Context()
			logger := global.logger(cmd.ErrOrStderr())

			src, err := catalog.Open(ctx, from, catalogOptions())
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			defer src.Close()

			db, driver, err := catalog.OpenDB(ctx, to)
			if err != nil {
				return fmt.Errorf("open target: %w", err)
			}
			defer db.Close()

			var result catalog.ImportResult
			job := jobs.New(jobs.Config{Type: jobs.JobTypeCatalogImport, Logger: logger}, func(ctx context.Context) error {
				var err error
				result, err = catalog.Import(ctx, db, driver, src.Source.Records(ctx), logger)
				return err
			})
			if err := job.RunOnce(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records (%d skipped) from %s\n", result.Imported, result.Skipped, src.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source catalog URL or path")
	cmd.Flags().StringVar(&to, "to", "", "target postgres:// or sqlite:// URL")
	return cmd
}
