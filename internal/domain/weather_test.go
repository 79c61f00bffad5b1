package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStamp = "2023-03-01 06:00:00"

func weatherRow(station, ts, message string) RawRecord {
	return RawRecord{"Weather_station_ID": station, "Timestamp": ts, "Message": message}
}

func TestWeatherCleaner_DropsFullyAnomalousRecord(t *testing.T) {
	c := newTestWeatherCleaner()

	out, summary := c.Clean([]RawRecord{weatherRow("WS1", testStamp, "Temp:999, Hum:-5")})

	assert.Empty(t, out)
	assert.Equal(t, 1, summary.DroppedAnomalous)
	assert.Equal(t, 1, summary.Anomalies["temperature"])
	assert.Equal(t, 1, summary.Anomalies["humidity"])
	assert.Equal(t, 2, summary.AnomalyTotal())
}

func TestWeatherCleaner_InclusiveBounds(t *testing.T) {
	tests := []struct {
		name    string
		message string
		reading string
		status  ReadingStatus
	}{
		{"at min", "Temp:-10, Rain:1", "temperature", ReadingValid},
		{"at max", "Temp:60, Rain:1", "temperature", ReadingValid},
		{"below min", "Temp:-11, Rain:1", "temperature", ReadingAnomalous},
		{"above max", "Temp:61, Rain:1", "temperature", ReadingAnomalous},
		{"humidity zero", "Hum:0, Rain:1", "humidity", ReadingValid},
		{"humidity full", "Hum:100, Rain:1", "humidity", ReadingValid},
		{"humidity over", "Hum:101, Rain:1", "humidity", ReadingAnomalous},
		{"humidity under", "Hum:-1, Rain:1", "humidity", ReadingAnomalous},
	}

	c := newTestWeatherCleaner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := c.Clean([]RawRecord{weatherRow("WS1", testStamp, tt.message)})

			require.Len(t, out, 1)
			assert.Equal(t, tt.status, out[0].Readings[tt.reading].Status)
		})
	}
}

func TestWeatherCleaner_RetainsPartiallyAnomalousRecord(t *testing.T) {
	c := newTestWeatherCleaner()

	out, summary := c.Clean([]RawRecord{weatherRow("WS1", testStamp, "Temp:99, Hum:50")})

	require.Len(t, out, 1)
	temp := out[0].Readings["temperature"]
	assert.Equal(t, ReadingAnomalous, temp.Status)
	assert.Equal(t, Present(99), temp.Value)
	_, ok := temp.Valid()
	assert.False(t, ok)
	assert.Equal(t, Reading{Value: Present(50), Status: ReadingValid}, out[0].Readings["humidity"])
	assert.Equal(t, Reading{Value: Absent(), Status: ReadingAbsent}, out[0].Readings["rainfall"])
	assert.Equal(t, 1, summary.Anomalies["temperature"])
	assert.Zero(t, summary.DroppedAnomalous)
}

func TestWeatherCleaner_ParseMessage(t *testing.T) {
	c := newTestWeatherCleaner()

	tests := []struct {
		name     string
		message  string
		expected map[string]Value
	}{
		{
			name:     "colon pairs",
			message:  "Temp:23.4, Hum:81, Rain:0",
			expected: map[string]Value{"temperature": Present(23.4), "humidity": Present(81), "rainfall": Present(0)},
		},
		{
			name:     "mixed separators and units",
			message:  "T=21.5; hum: 80 %\nRAIN = 2 mm",
			expected: map[string]Value{"temperature": Present(21.5), "humidity": Present(80), "rainfall": Present(2)},
		},
		{
			name:     "canonical names",
			message:  "temperature:12, rainfall:3",
			expected: map[string]Value{"temperature": Present(12), "humidity": Absent(), "rainfall": Present(3)},
		},
		{
			name:     "missing labels are absent",
			message:  "Temp:20",
			expected: map[string]Value{"temperature": Present(20), "humidity": Absent(), "rainfall": Absent()},
		},
		{
			name:     "unknown labels ignored",
			message:  "Wind:12, Temp:20",
			expected: map[string]Value{"temperature": Present(20), "humidity": Absent(), "rainfall": Absent()},
		},
		{
			name:     "sentinel and garbage",
			message:  "Temp:NA, Hum:wet",
			expected: map[string]Value{"temperature": Absent(), "humidity": Absent(), "rainfall": Absent()},
		},
		{
			name:     "first occurrence wins",
			message:  "Temp:20, Temp:30",
			expected: map[string]Value{"temperature": Present(20), "humidity": Absent(), "rainfall": Absent()},
		},
		{
			name:     "empty",
			message:  "",
			expected: map[string]Value{"temperature": Absent(), "humidity": Absent(), "rainfall": Absent()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.ParseMessage(tt.message))
		})
	}
}

func TestWeatherCleaner_PatternFallback(t *testing.T) {
	rules := testWeatherRules()
	rules.Patterns = map[string]string{
		"rainfall":    `(\d+(?:\.\d+)?)\s*mm`,
		"temperature": `(?:temperature|temp) (?:of|at) (-?\d+(?:\.\d+)?)`,
	}
	c, err := NewWeatherCleaner(rules, discardLogger())
	require.NoError(t, err)

	values := c.ParseMessage("Recorded rainfall of 12.5 mm with a temperature of 18")

	assert.Equal(t, Present(12.5), values["rainfall"])
	assert.Equal(t, Present(18), values["temperature"])
	assert.Equal(t, Absent(), values["humidity"])
}

func TestWeatherCleaner_LabelPairsBeatPatterns(t *testing.T) {
	rules := testWeatherRules()
	rules.Patterns = map[string]string{"rainfall": `(\d+)\s*mm`}
	c, err := NewWeatherCleaner(rules, discardLogger())
	require.NoError(t, err)

	values := c.ParseMessage("Rain:4, note: 99 mm last week")

	assert.Equal(t, Present(4), values["rainfall"])
}

func TestWeatherCleaner_AveragesDuplicatesOverValidValues(t *testing.T) {
	c := newTestWeatherCleaner()

	out, summary := c.Clean([]RawRecord{
		weatherRow("WS1", testStamp, "Temp:20, Hum:150"),
		weatherRow(" ws1 ", "2023-03-01T06:00:00Z", "Temp:30, Hum:50"),
		weatherRow("WS1", "2023-03-01 07:00:00", "Temp:10"),
	})

	require.Len(t, out, 2)
	assert.Equal(t, 1, summary.Duplicates)

	merged := out[0]
	assert.Equal(t, "ws1", merged.StationID)
	assert.Equal(t, time.Date(2023, 3, 1, 6, 0, 0, 0, time.UTC), merged.Timestamp)
	assert.Equal(t, Reading{Value: Present(25), Status: ReadingValid}, merged.Readings["temperature"])
	assert.Equal(t, Reading{Value: Present(50), Status: ReadingValid}, merged.Readings["humidity"])
	assert.Equal(t, Reading{Value: Absent(), Status: ReadingAbsent}, merged.Readings["rainfall"])

	assert.Equal(t, Present(10), out[1].Readings["temperature"].Value)
}

func TestWeatherCleaner_DuplicatesWithOnlyAnomaliesStayAbsent(t *testing.T) {
	c := newTestWeatherCleaner()

	out, _ := c.Clean([]RawRecord{
		weatherRow("WS1", testStamp, "Temp:20, Hum:150"),
		weatherRow("WS1", testStamp, "Temp:22, Hum:140"),
	})

	require.Len(t, out, 1)
	assert.Equal(t, Reading{Value: Present(21), Status: ReadingValid}, out[0].Readings["temperature"])
	assert.Equal(t, Reading{Value: Absent(), Status: ReadingAbsent}, out[0].Readings["humidity"])
}

func TestWeatherCleaner_MalformedRows(t *testing.T) {
	c := newTestWeatherCleaner()

	out, summary := c.Clean([]RawRecord{
		weatherRow("", testStamp, "Temp:20"),
		weatherRow("WS1", "yesterday", "Temp:20"),
		{"Weather_station_ID": "WS2", "Message": "Temp:20"},
		{"Weather_station_ID": "WS3", "Timestamp": int64(1677650400), "Message": "Temp:20"},
	})

	require.Len(t, out, 2)
	assert.Equal(t, 2, summary.Malformed)
	assert.True(t, out[0].Timestamp.IsZero())
	assert.Equal(t, time.Unix(1677650400, 0).UTC(), out[1].Timestamp)
}

func TestWeatherCleaner_UnixSecondsTimestamps(t *testing.T) {
	c := newTestWeatherCleaner()
	want := time.Unix(1677650400, 0).UTC()

	tests := []struct {
		name string
		ts   any
		want time.Time
	}{
		{"int64", int64(1677650400), want},
		{"float64", float64(1677650400), want},
		{"csv text", "1677650400", want},
		{"csv text with spaces", " 1677650400 ", want},
		{"fractional text", "1677650400.5", want.Add(500 * time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, summary := c.Clean([]RawRecord{
				{"Weather_station_ID": "WS1", "Timestamp": tt.ts, "Message": "Temp:20"},
			})

			require.Len(t, out, 1)
			assert.Zero(t, summary.Malformed)
			assert.Equal(t, tt.want, out[0].Timestamp)
		})
	}
}

func TestWeatherCleaner_TextAndNativeEpochCollapse(t *testing.T) {
	c := newTestWeatherCleaner()

	out, summary := c.Clean([]RawRecord{
		{"Weather_station_ID": "WS1", "Timestamp": "1677650400", "Message": "Temp:20"},
		{"Weather_station_ID": "WS1", "Timestamp": int64(1677650400), "Message": "Temp:30"},
	})

	require.Len(t, out, 1)
	assert.Zero(t, summary.Malformed)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, Present(25), out[0].Readings["temperature"].Value)
}

func TestWeatherCleaner_Idempotent(t *testing.T) {
	c := newTestWeatherCleaner()
	raw := []RawRecord{
		weatherRow("WS1", testStamp, "Temp:20, Hum:150"),
		weatherRow("ws1", testStamp, "Temp:30.3, Hum:50, Rain:0"),
		weatherRow("WS2", "", "Temp:99, Rain:4.25"),
		weatherRow("WS3", "2023-03-02", "Hum:70"),
	}

	first, _ := c.Clean(raw)

	again := make([]RawRecord, 0, len(first))
	for _, r := range first {
		again = append(again, r.ToRaw(c.Rules(), c.Readings()))
	}
	second, summary := c.Clean(again)

	assert.Equal(t, first, second)
	assert.Zero(t, summary.Duplicates)
	assert.Zero(t, summary.DroppedAnomalous)
}

func TestWeatherCleaner_EmptyInput(t *testing.T) {
	c := newTestWeatherCleaner()

	out, summary := c.Clean(nil)

	assert.Empty(t, out)
	assert.Zero(t, summary.RowsIn)
	assert.Zero(t, summary.RowsOut)
}

func TestNewWeatherCleaner_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WeatherRules)
		option string
	}{
		{"min above max", func(r *WeatherRules) { r.Ranges["humidity"] = Range{Min: 100, Max: 0} }, "weather_field_ranges"},
		{"range for unknown reading", func(r *WeatherRules) { r.Ranges["wind"] = Range{Max: 1} }, "weather_field_ranges"},
		{"invalid pattern", func(r *WeatherRules) { r.Patterns = map[string]string{"rainfall": "("} }, "patterns"},
		{"pattern without group", func(r *WeatherRules) { r.Patterns = map[string]string{"rainfall": `\d+`} }, "patterns"},
		{"label claimed twice", func(r *WeatherRules) { r.Labels["rainfall"] = []string{"temp"} }, "labels"},
		{"labels for unknown reading", func(r *WeatherRules) { r.Labels["wind"] = []string{"W"} }, "labels"},
		{"nothing configured", func(r *WeatherRules) { *r = WeatherRules{} }, "weather_field_ranges"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := testWeatherRules()
			tt.mutate(&rules)

			_, err := NewWeatherCleaner(rules, discardLogger())

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.option, cfgErr.Option)
		})
	}
}

func TestNewWeatherCleaner_DerivesReadingsFromRanges(t *testing.T) {
	c, err := NewWeatherCleaner(WeatherRules{
		Ranges: map[string]Range{"temp": {Min: -10, Max: 60}, "humidity": {Min: 0, Max: 100}},
	}, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"humidity", "temp"}, c.Readings())

	out, summary := c.Clean([]RawRecord{weatherRow("WS", "", "temp:999, humidity:-5")})
	assert.Empty(t, out)
	assert.Equal(t, 1, summary.DroppedAnomalous)
}
