package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultFieldQuery joins the survey tables into one row per field.
const DefaultFieldQuery = `SELECT *
FROM geographic_features
LEFT JOIN weather_features USING (Field_ID)
LEFT JOIN soil_and_crop_features USING (Field_ID)
LEFT JOIN farm_management_features USING (Field_ID)`

// Config holds all service settings, populated from environment variables.
type Config struct {
	RulesFile          string
	FieldDBPath        string
	FieldQuery         string
	FieldColumnRenames map[string]string
	WeatherCSVURL      string
	StationMapURL      string
	FetchTimeout       time.Duration
	RunInterval        time.Duration

	KafkaBrokers    []string
	KafkaSinkTopic  string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	runInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("RUN_INTERVAL", "0s"))
	if err != nil || runInterval < 0 {
		return nil, errors.New("invalid RUN_INTERVAL")
	}

	renames, err := ParseRenames(sharedcfg.EnvOrDefault("FIELD_COLUMN_RENAMES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RulesFile:          sharedcfg.EnvOrDefault("RULES_FILE", "rules.yaml"),
		FieldDBPath:        sharedcfg.EnvOrDefault("FIELD_DB_PATH", "data/maji_ndogo_farm_survey.db"),
		FieldQuery:         sharedcfg.EnvOrDefault("FIELD_QUERY", DefaultFieldQuery),
		FieldColumnRenames: renames,
		WeatherCSVURL:      sharedcfg.EnvOrDefault("WEATHER_CSV_URL", "data/weather_station_data.csv"),
		StationMapURL:      sharedcfg.EnvOrDefault("STATION_MAP_URL", ""),
		FetchTimeout:       fetchTimeout,
		RunInterval:        runInterval,

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:  sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "merged-field-weather"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.FieldDBPath == "" {
		return nil, errors.New("FIELD_DB_PATH is required")
	}
	if strings.TrimSpace(cfg.FieldQuery) == "" {
		return nil, errors.New("FIELD_QUERY is required")
	}
	if cfg.WeatherCSVURL == "" {
		return nil, errors.New("WEATHER_CSV_URL is required")
	}

	return cfg, nil
}

// ParseRenames reads "from:to" pairs separated by commas. The renames are
// applied simultaneously, so "a:b,b:a" swaps two columns.
func ParseRenames(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, ":")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid FIELD_COLUMN_RENAMES entry %q", pair)
		}
		if _, dup := out[from]; dup {
			return nil, fmt.Errorf("invalid FIELD_COLUMN_RENAMES: %q renamed twice", from)
		}
		out[from] = to
	}
	return out, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
