package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/onnwee/flightrank/internal/api"
	"github.com/onnwee/flightrank/internal/catalog"
	"github.com/onnwee/flightrank/internal/geo"
	"github.com/onnwee/flightrank/internal/ranking"
	"github.com/onnwee/flightrank/internal/search"
)

type searchOptions struct {
	catalogURL    string
	airportsPath  string
	calibration   string
	malformed     string
	carrierFilter bool

	from        string
	departure   string
	maxDuration int64
	carrier     string
	limit       int
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank flights from a catalog",
		Long: `Runs the same ranking as GET /search and prints the results as a JSON
array. Parameters are validated exactly as the API validates them.`,
		Example: `  catalogctl search --catalog flights.json --airports airports.dat \
    --from ATL --departure 2024-01-01T00:00:00Z --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.catalogURL, "catalog", "", "catalog URL or path (required)")
	f.StringVar(&opts.airportsPath, "airports", "", "OpenFlights airports.dat path (required)")
	f.StringVar(&opts.calibration, "calibration", "", "ranking calibration JSON file")
	f.StringVar(&opts.malformed, "malformed", string(search.MalformedAbort), "malformed record policy: abort or skip")
	f.BoolVar(&opts.carrierFilter, "carrier-filter", false, "treat --carrier as a hard filter")
	f.StringVar(&opts.from, "from", "", "departure airport code (required)")
	f.StringVar(&opts.departure, "departure", "", "latest departure, RFC 3339 (required)")
	f.Int64Var(&opts.maxDuration, "max-duration", -1, "maximum flight duration in milliseconds")
	f.StringVar(&opts.carrier, "carrier", "", "preferred carrier")
	f.IntVarP(&opts.limit, "limit", "n", 10, "number of results (1-100)")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("airports")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("departure")
	return cmd
}

// queryValues renders the flags as GET /search parameters.
func (o *searchOptions) queryValues() url.Values {
	v := url.Values{}
	v.Set("departureAirport", o.from)
	v.Set("departure", o.departure)
	v.Set("limit", strconv.Itoa(o.limit))
	if o.maxDuration >= 0 {
		v.Set("maxDuration", strconv.FormatInt(o.maxDuration, 10))
	}
	if o.carrier != "" {
		v.Set("preferredCarrier", o.carrier)
	}
	return v
}

func runSearch(cmd *cobra.Command, global *globalOptions, opts *searchOptions) error {
	ctx := cmd.Context()
	logger := global.logger(cmd.ErrOrStderr())

	q, err := api.ParseSearchQuery(opts.queryValues())
	if err != nil {
		return err
	}
	policy, err := search.ParseMalformedPolicy(opts.malformed)
	if err != nil {
		return err
	}

	weights, err := ranking.LoadCalibration(opts.calibration, logger)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(ctx, opts.catalogURL, catalogOptions())
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	airports := geo.NewProvider(geo.FileLoader(opts.airportsPath), logger)
	svc := search.NewService(cat.Source, airports, weights, search.Config{
		MalformedPolicy:         policy,
		RequirePreferredCarrier: opts.carrierFilter,
	}, nil, logger)

	candidates, err := svc.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	logger.Debug("search complete", "catalog", cat.Name, "results", len(candidates))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(api.FlightResults(candidates))
}
