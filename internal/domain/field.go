package domain

import (
	"log/slog"
	"math"
)

// FieldSummary counts what the FieldCleaner did to one table.
type FieldSummary struct {
	RowsIn          int `json:"rows_in"`
	RowsOut         int `json:"rows_out"`
	DroppedEmptyID  int `json:"dropped_empty_id"`
	Duplicates      int `json:"duplicates"`
	MalformedValues int `json:"malformed_values"`
	AbsentValues    int `json:"absent_values"`
	UnknownCrops    int `json:"unknown_crops"`
}

// FieldCleaner normalizes raw field observations. It holds only immutable
// rules and is safe for concurrent use.
type FieldCleaner struct {
	rules  compiledFieldRules
	logger *slog.Logger
}

// NewFieldCleaner validates the rules and returns a cleaner. Any returned error
// is a *ConfigError.
func NewFieldCleaner(rules FieldRules, logger *slog.Logger) (*FieldCleaner, error) {
	compiled, err := rules.compile()
	if err != nil {
		return nil, err
	}
	return &FieldCleaner{rules: compiled, logger: logger}, nil
}

// Clean produces one CleanFieldRecord per distinct normalized field identifier.
// Among duplicates the row with the fewest absent measurements wins, ties going
// to the first seen. Output follows the first appearance of each identifier.
func (c *FieldCleaner) Clean(raw []RawRecord) ([]CleanFieldRecord, FieldSummary) {
	summary := FieldSummary{RowsIn: len(raw)}

	out := make([]CleanFieldRecord, 0, len(raw))
	index := make(map[string]int, len(raw))

	for i, row := range raw {
		rec, malformed, ok := c.cleanRow(row)
		summary.MalformedValues += malformed
		if !ok {
			summary.DroppedEmptyID++
			c.logger.Warn("field row dropped: empty identifier", "row", i)
			continue
		}

		pos, seen := index[rec.FieldID]
		if !seen {
			index[rec.FieldID] = len(out)
			out = append(out, rec)
			continue
		}

		summary.Duplicates++
		if rec.AbsentCount() < out[pos].AbsentCount() {
			c.logger.Debug("duplicate field row replaces earlier row",
				"field_id", rec.FieldID, "row", i,
				"absent", rec.AbsentCount(), "previous_absent", out[pos].AbsentCount())
			out[pos] = rec
		}
	}

	for _, rec := range out {
		summary.AbsentValues += rec.AbsentCount()
		if rec.Crop == CropUnknown {
			summary.UnknownCrops++
		}
	}
	summary.RowsOut = len(out)

	c.logger.Info("field records cleaned",
		"rows_in", summary.RowsIn,
		"rows_out", summary.RowsOut,
		"dropped_empty_id", summary.DroppedEmptyID,
		"duplicates", summary.Duplicates,
		"malformed_values", summary.MalformedValues,
		"unknown_crops", summary.UnknownCrops,
	)
	return out, summary
}

// cleanRow normalizes a single row. It reports how many cells were malformed
// and false when the identifier is empty.
func (c *FieldCleaner) cleanRow(row RawRecord) (CleanFieldRecord, int, bool) {
	idText, _ := rawText(row[c.rules.idColumn])
	id := NormalizeKey(idText)
	if id == "" {
		return CleanFieldRecord{}, 0, false
	}

	rec := CleanFieldRecord{
		FieldID:      id,
		Crop:         c.NormalizeCrop(row[c.rules.cropColumn]),
		Measurements: make(map[string]Value, len(c.rules.measurements)),
		Units:        make(map[string]string, len(c.rules.measurements)),
	}

	malformed := 0
	for _, col := range c.rules.measurements {
		conv := c.rules.units[col]
		v, outcome := convertMeasurement(row[col], conv, c.rules.sentinels)
		if outcome == cellMalformed {
			malformed++
			c.logger.Debug("field measurement not numeric", "field_id", id, "column", col)
		}
		if f, ok := v.Get(); ok && c.rules.absolute[col] {
			v = Present(math.Abs(f))
		}
		rec.Measurements[col] = v
		if conv.CanonicalUnit != "" {
			rec.Units[col] = conv.CanonicalUnit
		}
	}
	return rec, malformed, true
}

// NormalizeCrop maps free text onto the controlled vocabulary. Aliases are
// applied first; anything unmatched becomes CropUnknown.
func (c *FieldCleaner) NormalizeCrop(v any) string {
	text, _ := rawText(v)
	key := NormalizeKey(text)
	if key == "" {
		return CropUnknown
	}
	if term, ok := c.rules.aliases[key]; ok {
		return term
	}
	if term, ok := c.rules.vocabulary[key]; ok {
		return term
	}
	return CropUnknown
}

// Rules returns the column layout the cleaner was built with, for rendering
// records back into raw form.
func (c *FieldCleaner) Rules() FieldRules {
	return FieldRules{IDColumn: c.rules.idColumn, CropColumn: c.rules.cropColumn}
}
