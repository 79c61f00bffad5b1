package csvsource

import (
	"context"
	"fmt"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

// stationColumns are accepted names for the station column of a mapping table.
var stationColumns = []string{"Weather_station", domain.DefaultStationColumn}

// LoadStationMap reads a field-to-station table with a Field_ID column and a
// Weather_station or Weather_station_ID column. Rows with an empty field are
// skipped; an empty station, or one field listed against two stations, is a
// configuration error.
func LoadStationMap(ctx context.Context, src *Source) (domain.StationMap, error) {
	rows, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("load station map: %w", err)
	}

	out := make(domain.StationMap, len(rows))
	for i, row := range rows {
		field := cellText(row[domain.DefaultFieldIDColumn])
		if field == "" {
			src.logger.Warn("station map row without field id", "row", i+1)
			continue
		}
		station := ""
		for _, col := range stationColumns {
			if station = cellText(row[col]); station != "" {
				break
			}
		}
		if station == "" {
			return nil, &domain.ConfigError{
				Option: "field_station_map",
				Reason: fmt.Sprintf("field %q has no station in row %d", field, i+1),
			}
		}
		key := domain.NormalizeKey(field)
		if prev, ok := out[key]; ok && domain.NormalizeKey(prev) != domain.NormalizeKey(station) {
			return nil, &domain.ConfigError{
				Option: "field_station_map",
				Reason: fmt.Sprintf("field %q maps to both %q and %q", field, prev, station),
			}
		}
		out[key] = station
	}
	return out, nil
}

func cellText(v any) string {
	s, _ := v.(string)
	return s
}
