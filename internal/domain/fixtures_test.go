package domain

import (
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFieldRules() FieldRules {
	return FieldRules{
		Measurements: []string{"Rainfall", "Elevation", "pH", "Min_temperature_C"},
		Units: map[string]UnitConversion{
			"Rainfall":          {CanonicalUnit: "mm", SourceUnit: "cm", Factor: 10},
			"Elevation":         {CanonicalUnit: "m"},
			"pH":                {},
			"Min_temperature_C": {CanonicalUnit: "C"},
		},
		AbsoluteColumns:  []string{"Elevation"},
		CropVocabulary:   []string{"cassava", "maize", "wheat", "tea"},
		CropAliases:      map[string]string{"cassaval": "cassava", "wheatn": "wheat", "teaa": "tea"},
		MissingSentinels: []string{"NA", "-999"},
	}
}

func testWeatherRules() WeatherRules {
	return WeatherRules{
		Readings: []string{"temperature", "humidity", "rainfall"},
		Labels: map[string][]string{
			"temperature": {"Temp", "T"},
			"humidity":    {"Hum"},
			"rainfall":    {"Rain"},
		},
		Ranges: map[string]Range{
			"temperature": {Min: -10, Max: 60},
			"humidity":    {Min: 0, Max: 100},
			"rainfall":    {Min: 0, Max: 500},
		},
		MissingSentinels: []string{"NA"},
	}
}

func newTestFieldCleaner() *FieldCleaner {
	c, err := NewFieldCleaner(testFieldRules(), discardLogger())
	if err != nil {
		panic(err)
	}
	return c
}

func newTestWeatherCleaner() *WeatherCleaner {
	c, err := NewWeatherCleaner(testWeatherRules(), discardLogger())
	if err != nil {
		panic(err)
	}
	return c
}
