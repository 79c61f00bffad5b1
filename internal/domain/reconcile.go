package domain

import (
	"log/slog"
	"sort"
	"time"
)

// MergeSummary counts join outcomes for one run.
type MergeSummary struct {
	Fields                 int `json:"fields"`
	Matched                int `json:"matched"`
	Unmatched              int `json:"unmatched"`
	UnmappedFields         int `json:"unmapped_fields"`
	StationsWithoutWeather int `json:"stations_without_weather"`
	SharedStations         int `json:"shared_stations"`
	DuplicateFields        int `json:"duplicate_fields"`
}

// Reconciler joins clean field records to clean weather records through the
// configured field-to-station map.
type Reconciler struct {
	stations map[string]string
	readings []string
	shared   map[string][]string
	logger   *slog.Logger
}

// NewReconciler validates the station map and returns a Reconciler. readings
// names the weather columns every merged record carries. Distinct fields that
// share a station are reported, not rejected.
func NewReconciler(stations StationMap, readings []string, logger *slog.Logger) (*Reconciler, error) {
	normalized, err := stations.normalized()
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, configErrorf("weather_field_ranges", "no weather readings to merge")
	}

	byStation := make(map[string][]string)
	for field, station := range normalized {
		byStation[station] = append(byStation[station], field)
	}
	shared := make(map[string][]string)
	for station, fields := range byStation {
		if len(fields) > 1 {
			sort.Strings(fields)
			shared[station] = fields
			logger.Warn("station assigned to multiple fields", "station_id", station, "fields", fields)
		}
	}

	return &Reconciler{
		stations: normalized,
		readings: append([]string(nil), readings...),
		shared:   shared,
		logger:   logger,
	}, nil
}

// SharedStations returns stations assigned to more than one field.
func (r *Reconciler) SharedStations() map[string][]string {
	out := make(map[string][]string, len(r.shared))
	for k, v := range r.shared {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Merge emits exactly one MergedRecord per field, in field order. Weather is
// the mean of valid readings across all of the station's records. Fields with
// no station or no weather rows are kept with Matched=false and absent weather.
func (r *Reconciler) Merge(fields []CleanFieldRecord, weather []CleanWeatherRecord) ([]MergedRecord, MergeSummary) {
	summary := MergeSummary{SharedStations: len(r.shared)}

	byStation := make(map[string][]CleanWeatherRecord)
	for _, w := range weather {
		byStation[w.StationID] = append(byStation[w.StationID], w)
	}

	out := make([]MergedRecord, 0, len(fields))
	emitted := make(map[string]bool, len(fields))
	for _, f := range fields {
		if emitted[f.FieldID] {
			summary.DuplicateFields++
			r.logger.Warn("duplicate field identifier in clean input, keeping first", "field_id", f.FieldID)
			continue
		}
		emitted[f.FieldID] = true

		m := MergedRecord{
			FieldID:      f.FieldID,
			Crop:         f.Crop,
			Measurements: copyValues(f.Measurements),
			Units:        copyUnits(f.Units),
			Weather:      r.absentWeather(),
		}

		station, mapped := r.stations[f.FieldID]
		switch {
		case !mapped:
			summary.UnmappedFields++
			r.logger.Debug("field has no station mapping", "field_id", f.FieldID)
		case len(byStation[station]) == 0:
			m.StationID = station
			summary.StationsWithoutWeather++
			r.logger.Debug("mapped station has no weather rows", "field_id", f.FieldID, "station_id", station)
		default:
			m.StationID = station
			r.aggregate(&m, byStation[station])
		}

		if m.Matched {
			summary.Matched++
		} else {
			summary.Unmatched++
		}
		out = append(out, m)
	}
	summary.Fields = len(out)

	r.logger.Info("field and weather records merged",
		"fields", summary.Fields,
		"matched", summary.Matched,
		"unmatched", summary.Unmatched,
		"unmapped_fields", summary.UnmappedFields,
		"stations_without_weather", summary.StationsWithoutWeather,
	)
	return out, summary
}

func (r *Reconciler) aggregate(m *MergedRecord, records []CleanWeatherRecord) {
	var latest time.Time
	for _, name := range r.readings {
		var values []float64
		for _, w := range records {
			if f, ok := w.Readings[name].Valid(); ok {
				values = append(values, f)
			}
		}
		m.Weather[name] = meanOf(values)
	}
	for _, w := range records {
		if w.Timestamp.After(latest) {
			latest = w.Timestamp
		}
	}
	m.Matched = true
	m.Observations = len(records)
	if !latest.IsZero() {
		m.LastObserved = &latest
	}
}

func (r *Reconciler) absentWeather() map[string]Value {
	w := make(map[string]Value, len(r.readings))
	for _, name := range r.readings {
		w[name] = Absent()
	}
	return w
}

func copyValues(in map[string]Value) map[string]Value {
	out := make(map[string]Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyUnits(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
