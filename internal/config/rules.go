package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

// rulesFile is the on-disk layout of the cleaning rules.
type rulesFile struct {
	Field           fieldSection      `yaml:"field"`
	Weather         weatherSection    `yaml:"weather"`
	FieldStationMap map[string]string `yaml:"field_station_map"`
}

type fieldSection struct {
	IDColumn          string                    `yaml:"id_column"`
	CropColumn        string                    `yaml:"crop_column"`
	Measurements      []string                  `yaml:"measurements"`
	UnitConversionMap map[string]unitConversion `yaml:"unit_conversion_map"`
	AbsoluteColumns   []string                  `yaml:"absolute_columns"`
	CropVocabulary    []string                  `yaml:"crop_vocabulary"`
	CropAliases       map[string]string         `yaml:"crop_aliases"`
	MissingSentinels  []string                  `yaml:"missing_sentinels"`
}

type unitConversion struct {
	CanonicalUnit string  `yaml:"canonical_unit"`
	SourceUnit    string  `yaml:"source_unit"`
	Factor        float64 `yaml:"factor"`
	Offset        float64 `yaml:"offset"`
}

type weatherSection struct {
	StationColumn      string               `yaml:"station_column"`
	MessageColumn      string               `yaml:"message_column"`
	TimestampColumn    string               `yaml:"timestamp_column"`
	Readings           []string             `yaml:"readings"`
	Labels             map[string][]string  `yaml:"labels"`
	Patterns           map[string]string    `yaml:"patterns"`
	WeatherFieldRanges map[string][]float64 `yaml:"weather_field_ranges"`
	MissingSentinels   []string             `yaml:"missing_sentinels"`
}

// LoadRules reads and converts a YAML rules file. The result is not yet
// validated because the station map may still be extended from another source.
func LoadRules(path string) (domain.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Rules{}, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules converts YAML rules into domain form.
func ParseRules(data []byte) (domain.Rules, error) {
	var f rulesFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return domain.Rules{}, fmt.Errorf("parse rules: %w", err)
	}

	units := make(map[string]domain.UnitConversion, len(f.Field.UnitConversionMap))
	for col, u := range f.Field.UnitConversionMap {
		units[col] = domain.UnitConversion{
			CanonicalUnit: u.CanonicalUnit,
			SourceUnit:    u.SourceUnit,
			Factor:        u.Factor,
			Offset:        u.Offset,
		}
	}

	ranges := make(map[string]domain.Range, len(f.Weather.WeatherFieldRanges))
	for name, bounds := range f.Weather.WeatherFieldRanges {
		if len(bounds) != 2 {
			return domain.Rules{}, &domain.ConfigError{
				Option: "weather_field_ranges",
				Reason: fmt.Sprintf("reading %q needs [min, max], got %d values", name, len(bounds)),
			}
		}
		ranges[name] = domain.Range{Min: bounds[0], Max: bounds[1]}
	}

	var stations domain.StationMap
	if f.FieldStationMap != nil {
		stations = domain.StationMap(f.FieldStationMap)
	}

	return domain.Rules{
		Field: domain.FieldRules{
			IDColumn:         f.Field.IDColumn,
			CropColumn:       f.Field.CropColumn,
			Measurements:     f.Field.Measurements,
			Units:            units,
			AbsoluteColumns:  f.Field.AbsoluteColumns,
			CropVocabulary:   f.Field.CropVocabulary,
			CropAliases:      f.Field.CropAliases,
			MissingSentinels: f.Field.MissingSentinels,
		},
		Weather: domain.WeatherRules{
			StationColumn:    f.Weather.StationColumn,
			MessageColumn:    f.Weather.MessageColumn,
			TimestampColumn:  f.Weather.TimestampColumn,
			Readings:         f.Weather.Readings,
			Labels:           f.Weather.Labels,
			Patterns:         f.Weather.Patterns,
			Ranges:           ranges,
			MissingSentinels: f.Weather.MissingSentinels,
		},
		Stations: stations,
	}, nil
}

// WithStations returns a copy of rules whose station map also holds extra.
// Keys are compared in normalized form and entries already in rules win.
func WithStations(rules domain.Rules, extra map[string]string) domain.Rules {
	if len(extra) == 0 {
		return rules
	}
	merged := make(domain.StationMap, len(rules.Stations)+len(extra))
	for k, v := range extra {
		merged[domain.NormalizeKey(k)] = v
	}
	for k, v := range rules.Stations {
		merged[domain.NormalizeKey(k)] = v
	}
	rules.Stations = merged
	return rules
}
