package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Default column names used when the rules leave them unset.
const (
	DefaultFieldIDColumn    = "Field_ID"
	DefaultCropColumn       = "Crop_type"
	DefaultStationColumn    = "Weather_station_ID"
	DefaultMessageColumn    = "Message"
	DefaultTimestampColumn  = "Timestamp"
	CropUnknown             = "unknown"
	defaultConversionFactor = 1.0
)

// ErrConfiguration is the sentinel wrapped by every ConfigError.
var ErrConfiguration = errors.New("configuration error")

// ConfigError reports a rule that makes the whole batch meaningless. Runs must
// abort before producing output when one is returned.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configErrorf(option, format string, args ...any) error {
	return &ConfigError{Option: option, Reason: fmt.Sprintf(format, args...)}
}

// UnitConversion describes how a measurement column becomes canonical:
// canonical = raw*Factor + Offset. A zero Factor means 1.
type UnitConversion struct {
	CanonicalUnit string
	SourceUnit    string
	Factor        float64
	Offset        float64
}

func (u UnitConversion) factor() float64 {
	if u.Factor == 0 {
		return defaultConversionFactor
	}
	return u.Factor
}

func (u UnitConversion) isIdentity() bool {
	return u.factor() == 1 && u.Offset == 0
}

func (u UnitConversion) apply(v float64) float64 {
	return v*u.factor() + u.Offset
}

// Range is an inclusive physically plausible interval.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// FieldRules configures the FieldCleaner.
type FieldRules struct {
	IDColumn         string
	CropColumn       string
	Measurements     []string
	Units            map[string]UnitConversion
	AbsoluteColumns  []string
	CropVocabulary   []string
	CropAliases      map[string]string
	MissingSentinels []string
}

// WeatherRules configures the WeatherCleaner.
type WeatherRules struct {
	StationColumn    string
	MessageColumn    string
	TimestampColumn  string
	Readings         []string
	Labels           map[string][]string
	Patterns         map[string]string
	Ranges           map[string]Range
	MissingSentinels []string
}

// StationMap assigns each field identifier its canonical weather station.
type StationMap map[string]string

// Rules bundles the static configuration of one pipeline run.
type Rules struct {
	Field    FieldRules
	Weather  WeatherRules
	Stations StationMap
}

// Validate checks every section without building any component.
func (r Rules) Validate() error {
	if _, err := r.Field.compile(); err != nil {
		return err
	}
	if _, err := r.Weather.compile(); err != nil {
		return err
	}
	if _, err := r.Stations.normalized(); err != nil {
		return err
	}
	return nil
}

// compiledFieldRules is the lookup-ready form of FieldRules.
type compiledFieldRules struct {
	idColumn     string
	cropColumn   string
	measurements []string
	units        map[string]UnitConversion
	absolute     map[string]bool
	vocabulary   map[string]string
	aliases      map[string]string
	sentinels    sentinels
}

func (f FieldRules) compile() (compiledFieldRules, error) {
	c := compiledFieldRules{
		idColumn:   orDefault(f.IDColumn, DefaultFieldIDColumn),
		cropColumn: orDefault(f.CropColumn, DefaultCropColumn),
		units:      make(map[string]UnitConversion, len(f.Units)),
		absolute:   make(map[string]bool, len(f.AbsoluteColumns)),
		vocabulary: make(map[string]string, len(f.CropVocabulary)),
		aliases:    make(map[string]string, len(f.CropAliases)),
		sentinels:  newSentinels(f.MissingSentinels),
	}

	c.measurements = append([]string(nil), f.Measurements...)
	if len(c.measurements) == 0 {
		c.measurements = sortedKeys(f.Units)
	}
	if len(c.measurements) == 0 {
		return c, configErrorf("unit_conversion_map", "no measurement columns configured")
	}

	seen := make(map[string]bool, len(c.measurements))
	for _, col := range c.measurements {
		if seen[col] {
			return c, configErrorf("measurements", "column %q listed twice", col)
		}
		seen[col] = true
		conv, ok := f.Units[col]
		if !ok {
			return c, configErrorf("unit_conversion_map", "no unit mapping for measurement column %q", col)
		}
		if !conv.isIdentity() && conv.CanonicalUnit == "" {
			return c, configErrorf("unit_conversion_map", "column %q converts values but names no canonical unit", col)
		}
		c.units[col] = conv
	}

	for _, col := range f.AbsoluteColumns {
		if !seen[col] {
			return c, configErrorf("absolute_columns", "column %q is not a measurement column", col)
		}
		c.absolute[col] = true
	}

	for _, term := range f.CropVocabulary {
		key := NormalizeKey(term)
		if key == "" {
			return c, configErrorf("crop_vocabulary", "empty term")
		}
		c.vocabulary[key] = term
	}
	if _, ok := c.vocabulary[CropUnknown]; ok {
		return c, configErrorf("crop_vocabulary", "%q is reserved for unmapped crops", CropUnknown)
	}

	// An alias may not shadow a vocabulary term.
	for from, to := range f.CropAliases {
		if _, isTerm := c.vocabulary[NormalizeKey(from)]; isTerm {
			return c, configErrorf("crop_aliases", "alias %q is itself a vocabulary term", from)
		}
		target, ok := c.vocabulary[NormalizeKey(to)]
		if !ok {
			return c, configErrorf("crop_aliases", "alias %q targets %q which is not in the vocabulary", from, to)
		}
		c.aliases[NormalizeKey(from)] = target
	}

	return c, nil
}

// compiledWeatherRules is the lookup-ready form of WeatherRules.
type compiledWeatherRules struct {
	stationColumn   string
	messageColumn   string
	timestampColumn string
	readings        []string
	labels          map[string]string
	patterns        map[string]*regexp.Regexp
	ranges          map[string]Range
	sentinels       sentinels
}

func (w WeatherRules) compile() (compiledWeatherRules, error) {
	c := compiledWeatherRules{
		stationColumn:   orDefault(w.StationColumn, DefaultStationColumn),
		messageColumn:   orDefault(w.MessageColumn, DefaultMessageColumn),
		timestampColumn: orDefault(w.TimestampColumn, DefaultTimestampColumn),
		labels:          make(map[string]string),
		patterns:        make(map[string]*regexp.Regexp, len(w.Patterns)),
		ranges:          make(map[string]Range, len(w.Ranges)),
		sentinels:       newSentinels(w.MissingSentinels),
	}

	c.readings = append([]string(nil), w.Readings...)
	if len(c.readings) == 0 {
		names := make(map[string]bool)
		for k := range w.Labels {
			names[k] = true
		}
		for k := range w.Patterns {
			names[k] = true
		}
		for k := range w.Ranges {
			names[k] = true
		}
		c.readings = sortedKeys(names)
	}
	if len(c.readings) == 0 {
		return c, configErrorf("weather_field_ranges", "no weather readings configured")
	}

	known := make(map[string]bool, len(c.readings))
	for _, name := range c.readings {
		if known[name] {
			return c, configErrorf("readings", "reading %q listed twice", name)
		}
		known[name] = true
		if err := c.addLabel(name, name); err != nil {
			return c, err
		}
	}

	for name, labels := range w.Labels {
		if !known[name] {
			return c, configErrorf("labels", "labels given for unknown reading %q", name)
		}
		for _, label := range labels {
			if err := c.addLabel(label, name); err != nil {
				return c, err
			}
		}
	}

	for name, expr := range w.Patterns {
		if !known[name] {
			return c, configErrorf("patterns", "pattern given for unknown reading %q", name)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return c, configErrorf("patterns", "reading %q: %v", name, err)
		}
		if re.NumSubexp() < 1 {
			return c, configErrorf("patterns", "reading %q: pattern needs a capture group", name)
		}
		c.patterns[name] = re
	}

	for name, rng := range w.Ranges {
		if !known[name] {
			return c, configErrorf("weather_field_ranges", "range given for unknown reading %q", name)
		}
		if rng.Min > rng.Max {
			return c, configErrorf("weather_field_ranges", "reading %q has min %g > max %g", name, rng.Min, rng.Max)
		}
		c.ranges[name] = rng
	}

	return c, nil
}

func (c *compiledWeatherRules) addLabel(label, reading string) error {
	key := NormalizeKey(label)
	if key == "" {
		return configErrorf("labels", "empty label for reading %q", reading)
	}
	if prev, ok := c.labels[key]; ok && prev != reading {
		return configErrorf("labels", "label %q claimed by both %q and %q", label, prev, reading)
	}
	c.labels[key] = reading
	return nil
}

// normalized returns the map with both sides normalized like join keys.
func (m StationMap) normalized() (map[string]string, error) {
	if m == nil {
		return nil, configErrorf("field_station_map", "mapping is not configured")
	}
	out := make(map[string]string, len(m))
	for field, station := range m {
		f := NormalizeKey(field)
		s := NormalizeKey(station)
		if f == "" {
			return nil, configErrorf("field_station_map", "empty field identifier")
		}
		if s == "" {
			return nil, configErrorf("field_station_map", "field %q maps to an empty station", field)
		}
		if prev, ok := out[f]; ok && prev != s {
			return nil, configErrorf("field_station_map", "field %q maps to both %q and %q", field, prev, station)
		}
		out[f] = s
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
