package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/agri-data-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/agri-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/agri-data-etl/internal/config"
	"github.com/couchcryptid/agri-data-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// options are the flags shared by every subcommand. Defaults come from the
// same environment variables the service reads.
type options struct {
	rulesFile string
	stations  string
	dbPath    string
	query     string
	renames   string
	weather   string
	timeout   time.Duration
	logLevel  string

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "agriclean",
		Short:         "Clean and merge field survey and weather station data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			// Logs go to stderr so stdout stays free for records.
			opts.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	// Flag defaults read the environment, so load .env first.
	_ = godotenv.Load()

	flags := root.PersistentFlags()
	flags.StringVar(&opts.rulesFile, "rules", sharedcfg.EnvOrDefault("RULES_FILE", "rules.yaml"), "cleaning rules YAML file")
	flags.StringVar(&opts.stations, "stations", sharedcfg.EnvOrDefault("STATION_MAP_URL", ""), "field-to-station CSV (path or URL), merged into the rules map")
	flags.StringVar(&opts.dbPath, "db", sharedcfg.EnvOrDefault("FIELD_DB_PATH", "data/maji_ndogo_farm_survey.db"), "field survey SQLite database")
	flags.StringVar(&opts.query, "query", sharedcfg.EnvOrDefault("FIELD_QUERY", config.DefaultFieldQuery), "SQL query returning one row per field")
	flags.StringVar(&opts.renames, "renames", sharedcfg.EnvOrDefault("FIELD_COLUMN_RENAMES", ""), "simultaneous column renames, e.g. a:b,b:a")
	flags.StringVar(&opts.weather, "weather", sharedcfg.EnvOrDefault("WEATHER_CSV_URL", "data/weather_station_data.csv"), "weather station CSV (path or URL)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "fetch timeout for URL inputs")
	flags.StringVar(&opts.logLevel, "log-level", sharedcfg.EnvOrDefault("LOG_LEVEL", "warn"), "debug, info, warn or error")

	root.AddCommand(newRulesCmd(opts), newRunCmd(opts), newVerifyCmd(opts))
	return root
}

// loadRules reads the rules file and merges the station table if one is given.
// The result is validated.
func (o *options) loadRules(ctx context.Context) (domain.Rules, error) {
	rules, err := config.LoadRules(o.rulesFile)
	if err != nil {
		return domain.Rules{}, err
	}
	if o.stations != "" {
		stations, err := csvsource.LoadStationMap(ctx, csvsource.New(o.stations, o.timeout, o.logger))
		if err != nil {
			return domain.Rules{}, err
		}
		rules = config.WithStations(rules, stations)
	}
	if err := rules.Validate(); err != nil {
		return domain.Rules{}, err
	}
	return rules, nil
}

func (o *options) fieldSource() (*sqlite.Source, error) {
	renames, err := config.ParseRenames(o.renames)
	if err != nil {
		return nil, err
	}
	return sqlite.Open(o.dbPath, o.query, renames, o.logger)
}

func (o *options) weatherSource() *csvsource.Source {
	return csvsource.New(o.weather, o.timeout, o.logger)
}
