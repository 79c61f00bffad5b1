package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

// Report collects the cleaning and merge summaries of one run.
type Report struct {
	Field   domain.FieldSummary   `json:"field"`
	Weather domain.WeatherSummary `json:"weather"`
	Merge   domain.MergeSummary   `json:"merge"`
}

// RulesTransformer implements Transformer with the domain cleaners and
// reconciler built from one validated rule set.
type RulesTransformer struct {
	fields     *domain.FieldCleaner
	weather    *domain.WeatherCleaner
	reconciler *domain.Reconciler
	logger     *slog.Logger
}

// NewTransformer validates rules and builds the cleaners. Any returned error
// wraps domain.ErrConfiguration.
func NewTransformer(rules domain.Rules, logger *slog.Logger) (*RulesTransformer, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	fields, err := domain.NewFieldCleaner(rules.Field, logger)
	if err != nil {
		return nil, err
	}
	weather, err := domain.NewWeatherCleaner(rules.Weather, logger)
	if err != nil {
		return nil, err
	}
	reconciler, err := domain.NewReconciler(rules.Stations, weather.Readings(), logger)
	if err != nil {
		return nil, err
	}
	return &RulesTransformer{
		fields:     fields,
		weather:    weather,
		reconciler: reconciler,
		logger:     logger,
	}, nil
}

// FieldCleaner returns the field cleaner in use.
func (t *RulesTransformer) FieldCleaner() *domain.FieldCleaner { return t.fields }

// WeatherCleaner returns the weather cleaner in use.
func (t *RulesTransformer) WeatherCleaner() *domain.WeatherCleaner { return t.weather }

// Transform cleans both tables concurrently and then joins them. The merge
// only starts once both cleaners have finished.
func (t *RulesTransformer) Transform(ctx context.Context, fieldRows, weatherRows []domain.RawRecord) ([]domain.MergedRecord, Report, error) {
	var (
		report  Report
		fields  []domain.CleanFieldRecord
		weather []domain.CleanWeatherRecord
	)

	var g errgroup.Group
	g.Go(func() error {
		fields, report.Field = t.fields.Clean(fieldRows)
		return nil
	})
	g.Go(func() error {
		weather, report.Weather = t.weather.Clean(weatherRows)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	merged, summary := t.reconciler.Merge(fields, weather)
	report.Merge = summary
	return merged, report, nil
}
