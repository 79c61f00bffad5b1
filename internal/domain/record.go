package domain

import (
	"strings"
	"time"
)

// RawRecord is one loosely typed upstream row keyed by column name. Values may
// be strings, numbers, byte slices or nil. Unknown columns are ignored.
type RawRecord map[string]any

// CleanFieldRecord is a field row in canonical form.
type CleanFieldRecord struct {
	FieldID      string            `json:"field_id"`
	Crop         string            `json:"crop"`
	Measurements map[string]Value  `json:"measurements"`
	Units        map[string]string `json:"units,omitempty"`
}

// AbsentCount returns how many measurements carry no value.
func (r CleanFieldRecord) AbsentCount() int {
	n := 0
	for _, v := range r.Measurements {
		if v.IsAbsent() {
			n++
		}
	}
	return n
}

// ToRaw renders the record back into upstream shape using the given rules'
// column names. Cleaning the result yields the same record.
func (r CleanFieldRecord) ToRaw(rules FieldRules) RawRecord {
	raw := RawRecord{
		orDefault(rules.IDColumn, DefaultFieldIDColumn): r.FieldID,
		orDefault(rules.CropColumn, DefaultCropColumn):  r.Crop,
	}
	for col, v := range r.Measurements {
		if f, ok := v.Get(); ok {
			raw[col] = formatQuantity(f, r.Units[col])
		} else {
			raw[col] = nil
		}
	}
	return raw
}

// ReadingStatus tags each decomposed weather sub-reading.
type ReadingStatus string

const (
	ReadingValid     ReadingStatus = "valid"
	ReadingAnomalous ReadingStatus = "filtered-anomalous"
	ReadingAbsent    ReadingStatus = "absent"
)

// Reading is one sub-reading parsed out of a station message. Anomalous
// readings keep their value for reporting but never enter an aggregate.
type Reading struct {
	Value  Value         `json:"value"`
	Status ReadingStatus `json:"status"`
}

// Valid returns the value only when the reading passed range checks.
func (r Reading) Valid() (float64, bool) {
	if r.Status != ReadingValid {
		return 0, false
	}
	return r.Value.Get()
}

// CleanWeatherRecord is a station observation with its payload decomposed.
type CleanWeatherRecord struct {
	StationID string             `json:"station_id"`
	Timestamp time.Time          `json:"timestamp"`
	Readings  map[string]Reading `json:"readings"`
}

// ValidCount returns how many readings passed range checks.
func (r CleanWeatherRecord) ValidCount() int {
	n := 0
	for _, rd := range r.Readings {
		if rd.Status == ReadingValid {
			n++
		}
	}
	return n
}

// Message re-renders the payload as "name:value" pairs in the given reading
// order. Anomalous values are included so re-cleaning classifies them again.
func (r CleanWeatherRecord) Message(order []string) string {
	parts := make([]string, 0, len(r.Readings))
	for _, name := range order {
		rd, ok := r.Readings[name]
		if !ok {
			continue
		}
		if f, ok := rd.Value.Get(); ok {
			parts = append(parts, name+":"+formatQuantity(f, ""))
		}
	}
	return strings.Join(parts, ", ")
}

// ToRaw renders the record back into upstream shape.
func (r CleanWeatherRecord) ToRaw(rules WeatherRules, order []string) RawRecord {
	raw := RawRecord{
		orDefault(rules.StationColumn, DefaultStationColumn): r.StationID,
		orDefault(rules.MessageColumn, DefaultMessageColumn): r.Message(order),
	}
	if !r.Timestamp.IsZero() {
		raw[orDefault(rules.TimestampColumn, DefaultTimestampColumn)] = r.Timestamp.Format(time.RFC3339Nano)
	}
	return raw
}

// MergedRecord is one field joined with its aggregated weather.
type MergedRecord struct {
	FieldID      string            `json:"field_id"`
	Crop         string            `json:"crop"`
	Measurements map[string]Value  `json:"measurements"`
	Units        map[string]string `json:"units,omitempty"`
	StationID    string            `json:"station_id,omitempty"`
	Weather      map[string]Value  `json:"weather"`
	Matched      bool              `json:"matched"`
	Observations int               `json:"observations"`
	LastObserved *time.Time        `json:"last_observed,omitempty"`
}

// MergedBatch is the unit handed to a sink: the complete output of one run.
type MergedBatch struct {
	RunID       string         `json:"run_id"`
	ProcessedAt time.Time      `json:"processed_at"`
	Records     []MergedRecord `json:"records"`
}
