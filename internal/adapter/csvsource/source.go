// Package csvsource reads comma-separated tables from an HTTP(S) URL or a local path.
package csvsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

// Source fetches one CSV table per extraction. Every cell is kept as text; the
// cleaners do the typing.
type Source struct {
	location   string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Source. Locations starting with http:// or https:// are fetched
// with the given timeout; anything else is opened as a file.
func New(location string, timeout time.Duration, logger *slog.Logger) *Source {
	return &Source{
		location: location,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ExtractWeather reads the weather station table.
func (s *Source) ExtractWeather(ctx context.Context) ([]domain.RawRecord, error) {
	return s.Read(ctx)
}

// Read returns one RawRecord per data row, keyed by header. Blank header
// cells and the pandas index column "Unnamed: 0" are skipped. Empty cells
// become nil.
func (s *Source) Read(ctx context.Context) ([]domain.RawRecord, error) {
	body, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var out []domain.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(out)+1, err)
		}
		rec := make(domain.RawRecord, len(header))
		for i, name := range header {
			name = strings.TrimSpace(name)
			if skipColumn(name) {
				continue
			}
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				rec[name] = nil
				continue
			}
			rec[name] = row[i]
		}
		out = append(out, rec)
	}

	s.logger.Debug("csv rows extracted", "location", s.location, "rows", len(out))
	return out, nil
}

func (s *Source) open(ctx context.Context) (io.ReadCloser, error) {
	if !isURL(s.location) {
		f, err := os.Open(s.location)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch csv: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("fetch csv: status %d: %s", resp.StatusCode, body)
	}
	return resp.Body, nil
}

func isURL(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func skipColumn(name string) bool {
	return name == "" || strings.HasPrefix(name, "Unnamed:")
}
