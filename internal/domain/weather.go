package domain

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// pairSplitRe separates "label:value" pairs inside a station message.
var pairSplitRe = regexp.MustCompile(`[,;\n]+`)

// timestampLayouts are tried in order for string timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// WeatherSummary counts what the WeatherCleaner did to one table.
type WeatherSummary struct {
	RowsIn            int            `json:"rows_in"`
	RowsOut           int            `json:"rows_out"`
	Malformed         int            `json:"malformed"`
	MalformedReadings int            `json:"malformed_readings"`
	DroppedAnomalous  int            `json:"dropped_anomalous"`
	Duplicates        int            `json:"duplicates"`
	Anomalies         map[string]int `json:"anomalies"`
}

// AnomalyTotal sums anomalies across readings.
func (s WeatherSummary) AnomalyTotal() int {
	n := 0
	for _, v := range s.Anomalies {
		n += v
	}
	return n
}

// WeatherCleaner decomposes station messages, filters out-of-range readings
// and collapses duplicate observations. It is safe for concurrent use.
type WeatherCleaner struct {
	rules  compiledWeatherRules
	logger *slog.Logger
}

// NewWeatherCleaner validates the rules and returns a cleaner. Any returned
// error is a *ConfigError.
func NewWeatherCleaner(rules WeatherRules, logger *slog.Logger) (*WeatherCleaner, error) {
	compiled, err := rules.compile()
	if err != nil {
		return nil, err
	}
	return &WeatherCleaner{rules: compiled, logger: logger}, nil
}

// Readings returns the configured sub-reading names in output order.
func (c *WeatherCleaner) Readings() []string {
	return append([]string(nil), c.rules.readings...)
}

// Rules returns the column layout the cleaner was built with.
func (c *WeatherCleaner) Rules() WeatherRules {
	return WeatherRules{
		StationColumn:   c.rules.stationColumn,
		MessageColumn:   c.rules.messageColumn,
		TimestampColumn: c.rules.timestampColumn,
	}
}

// Clean returns one record per (station, timestamp). Records whose readings
// are all anomalous or absent are dropped. Duplicates are averaged per reading
// over valid values only.
func (c *WeatherCleaner) Clean(raw []RawRecord) ([]CleanWeatherRecord, WeatherSummary) {
	summary := WeatherSummary{RowsIn: len(raw), Anomalies: make(map[string]int)}

	var keys []string
	groups := make(map[string][]CleanWeatherRecord)

	for i, row := range raw {
		rec, malformed, ok := c.cleanRow(row)
		summary.MalformedReadings += malformed
		if !ok {
			summary.Malformed++
			c.logger.Warn("weather row dropped: malformed station or timestamp", "row", i)
			continue
		}

		for name, rd := range rec.Readings {
			if rd.Status == ReadingAnomalous {
				summary.Anomalies[name]++
			}
		}
		if rec.ValidCount() == 0 {
			summary.DroppedAnomalous++
			c.logger.Debug("weather row dropped: no valid readings", "row", i, "station_id", rec.StationID)
			continue
		}

		key := rec.StationID + "\x00" + rec.Timestamp.Format(time.RFC3339Nano)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		} else {
			summary.Duplicates++
		}
		groups[key] = append(groups[key], rec)
	}

	out := make([]CleanWeatherRecord, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.collapse(groups[key]))
	}
	summary.RowsOut = len(out)

	c.logger.Info("weather records cleaned",
		"rows_in", summary.RowsIn,
		"rows_out", summary.RowsOut,
		"malformed", summary.Malformed,
		"dropped_anomalous", summary.DroppedAnomalous,
		"duplicates", summary.Duplicates,
		"anomalies", summary.AnomalyTotal(),
	)
	return out, summary
}

// collapse merges observations of one station at one instant. A single record
// passes through untouched.
func (c *WeatherCleaner) collapse(group []CleanWeatherRecord) CleanWeatherRecord {
	if len(group) == 1 {
		return group[0]
	}
	merged := CleanWeatherRecord{
		StationID: group[0].StationID,
		Timestamp: group[0].Timestamp,
		Readings:  make(map[string]Reading, len(c.rules.readings)),
	}
	for _, name := range c.rules.readings {
		var values []float64
		for _, rec := range group {
			if f, ok := rec.Readings[name].Valid(); ok {
				values = append(values, f)
			}
		}
		v := meanOf(values)
		if v.IsAbsent() {
			merged.Readings[name] = Reading{Value: v, Status: ReadingAbsent}
			continue
		}
		merged.Readings[name] = Reading{Value: v, Status: ReadingValid}
	}
	return merged
}

// cleanRow decomposes one row. It reports the number of unparseable readings
// and false when the station or timestamp is unusable.
func (c *WeatherCleaner) cleanRow(row RawRecord) (CleanWeatherRecord, int, bool) {
	stationText, _ := rawText(row[c.rules.stationColumn])
	station := NormalizeKey(stationText)
	if station == "" {
		return CleanWeatherRecord{}, 0, false
	}
	ts, ok := parseTimestamp(row[c.rules.timestampColumn])
	if !ok {
		return CleanWeatherRecord{}, 0, false
	}

	message, _ := rawText(row[c.rules.messageColumn])
	values, malformed := c.parseMessage(message)

	rec := CleanWeatherRecord{
		StationID: station,
		Timestamp: ts,
		Readings:  make(map[string]Reading, len(c.rules.readings)),
	}
	for _, name := range c.rules.readings {
		rec.Readings[name] = c.classify(name, values[name])
	}
	return rec, malformed, true
}

// classify tags a parsed value against the reading's inclusive range.
func (c *WeatherCleaner) classify(name string, v Value) Reading {
	f, ok := v.Get()
	if !ok {
		return Reading{Value: v, Status: ReadingAbsent}
	}
	if rng, bounded := c.rules.ranges[name]; bounded && !rng.Contains(f) {
		return Reading{Value: v, Status: ReadingAnomalous}
	}
	return Reading{Value: v, Status: ReadingValid}
}

// ParseMessage decomposes a station payload into one Value per configured
// reading. Labels missing from the message yield Absent.
func (c *WeatherCleaner) ParseMessage(message string) map[string]Value {
	values, _ := c.parseMessage(message)
	return values
}

func (c *WeatherCleaner) parseMessage(message string) (map[string]Value, int) {
	values := make(map[string]Value, len(c.rules.readings))
	for _, name := range c.rules.readings {
		values[name] = Absent()
	}
	found := make(map[string]bool, len(c.rules.readings))
	malformed := 0

	for _, part := range pairSplitRe.Split(message, -1) {
		label, text, ok := splitPair(part)
		if !ok {
			continue
		}
		name, known := c.rules.labels[NormalizeKey(label)]
		if !known || found[name] {
			continue
		}
		found[name] = true
		f, _, outcome := parseQuantity(text, c.rules.sentinels)
		switch outcome {
		case cellPresent:
			values[name] = Present(f)
		case cellMalformed:
			malformed++
		}
	}

	// Free-text fallback for readings not given as label pairs.
	for name, re := range c.rules.patterns {
		if found[name] {
			continue
		}
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		for _, group := range m[1:] {
			if group == "" {
				continue
			}
			f, _, outcome := parseQuantity(group, c.rules.sentinels)
			if outcome == cellPresent {
				values[name] = Present(f)
			} else if outcome == cellMalformed {
				malformed++
			}
			break
		}
	}
	return values, malformed
}

// splitPair cuts "label:value" or "label=value".
func splitPair(part string) (string, string, bool) {
	i := strings.IndexAny(part, ":=")
	if i < 0 {
		return "", "", false
	}
	label := strings.TrimSpace(part[:i])
	value := strings.TrimSpace(part[i+1:])
	if label == "" {
		return "", "", false
	}
	return label, value, true
}

// parseTimestamp accepts time values, unix seconds (native or as text) and
// common text layouts.
// Missing timestamps are the zero time; unparseable ones report false.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, true
	case time.Time:
		return t.UTC(), true
	}
	if f, ok := rawNumber(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, false
		}
		return unixSeconds(f), true
	}

	text, _ := rawText(v)
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, true
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts.UTC(), true
		}
	}
	// CSV cells are always text, so epoch seconds arrive as "1677650400".
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return unixSeconds(f), true
	}
	return time.Time{}, false
}

func unixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
