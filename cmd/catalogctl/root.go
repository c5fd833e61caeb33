package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/onnwee/flightrank/internal/catalog"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Manage and query flight catalogs",
		Long: `catalogctl imports flight catalogs into PostgreSQL or SQLite and runs
ranked searches against any catalog URL the API server accepts:
file://, cbor://, postgres://, sqlite:// and s3://.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newImportCmd(opts), newSearchCmd(opts))
	return root
}

// logger writes to stderr so stdout stays machine-readable.
func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// catalogOptions reads S3 credentials from the same variables as the server.
func catalogOptions() catalog.Options {
	region := os.Getenv("S3_REGION")
	if region == "" {
		region = "auto"
	}
	return catalog.Options{
		S3: catalog.S3Config{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Region:          region,
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
	}
}
