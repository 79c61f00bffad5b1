// Package domain cleans agricultural field observations and weather station
// observations and reconciles them into one table keyed by field.
//
// # Field data
//
// Field rows arrive as loosely typed records from the survey database:
//
//	Field_ID | Crop_type | Rainfall | Elevation | pH | ...
//	"F1 "    | "Maize"   | "50"     | "-120"    | "6.4"
//
// Identifiers are trimmed and case-folded ("F1 " and "f1" are one field).
// Each measurement column names a canonical unit and the factor from its source
// unit, so "50" in a cm column becomes 500 mm. A value that already carries the
// canonical unit ("500 mm") is left alone, which keeps cleaning idempotent.
// Blank cells, configured sentinels ("NA", "-999") and unparseable text are
// Absent, never zero.
//
// Crop types are matched case-insensitively against a closed vocabulary after
// alias correction ("cassaval" -> "cassava"); anything else is "unknown".
//
// # Weather data
//
// Station rows carry a free-text payload:
//
//	Weather_station_ID | Timestamp            | Message
//	"WS-01"            | "2023-03-01 06:00"   | "Temp:23.4, Hum:81, Rain:0"
//
// Labels are mapped to reading names; readings outside their inclusive
// [min, max] range are tagged filtered-anomalous and never aggregated. A row
// with no valid reading is dropped. Rows for the same station and instant are
// averaged per reading over valid values.
//
// # Merge
//
// Each field maps to at most one station. A field's weather is the mean of
// valid readings over all of its station's rows. Fields with no station or no
// weather keep their row with Matched=false, so totals downstream stay whole.
package domain
