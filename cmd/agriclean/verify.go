package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
	"github.com/couchcryptid/agri-data-etl/internal/pipeline"
)

// phase tracks pass/fail for a verification phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps the detail lines printed per phase.
const maxReported = 20

func newVerifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check cleaning invariants against the configured inputs",
		Long: `verify cleans the configured inputs and checks that re-cleaning the output
changes nothing, that every clean field yields exactly one merged record in
order, and that no aggregated weather value falls outside its range.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := opts.loadRules(cmd.Context())
			if err != nil {
				return err
			}
			phases, err := verify(cmd.Context(), opts, rules)
			if err != nil {
				return err
			}
			if !report(cmd.OutOrStdout(), phases) {
				return fmt.Errorf("verification failed")
			}
			return nil
		},
	}
}

func verify(ctx context.Context, opts *options, rules domain.Rules) ([]*phase, error) {
	transformer, err := pipeline.NewTransformer(rules, opts.logger)
	if err != nil {
		return nil, err
	}
	fieldSrc, err := opts.fieldSource()
	if err != nil {
		return nil, err
	}
	defer fieldSrc.Close()

	fieldRows, err := fieldSrc.ExtractFields(ctx)
	if err != nil {
		return nil, err
	}
	weatherRows, err := opts.weatherSource().ExtractWeather(ctx)
	if err != nil {
		return nil, err
	}

	fc, wc := transformer.FieldCleaner(), transformer.WeatherCleaner()
	fields, _ := fc.Clean(fieldRows)
	weather, _ := wc.Clean(weatherRows)
	merged, _, err := transformer.Transform(ctx, fieldRows, weatherRows)
	if err != nil {
		return nil, err
	}

	return []*phase{
		verifyFieldIdempotence(fc, fields),
		verifyWeatherIdempotence(wc, weather),
		verifyMergeCompleteness(fields, merged),
		verifyWeatherRanges(rules.Weather, merged),
	}, nil
}

func verifyFieldIdempotence(fc *domain.FieldCleaner, fields []domain.CleanFieldRecord) *phase {
	p := &phase{name: "Field cleaning is idempotent"}
	raw := make([]domain.RawRecord, 0, len(fields))
	for _, f := range fields {
		raw = append(raw, f.ToRaw(fc.Rules()))
	}
	again, _ := fc.Clean(raw)
	if len(again) != len(fields) {
		p.errorf("re-cleaning produced %d records, want %d", len(again), len(fields))
		return p
	}
	for i := range fields {
		if diff := cmp.Diff(fields[i], again[i], cmp.AllowUnexported(domain.Value{})); diff != "" {
			p.errorf("field %s changed on re-clean (-first +second):\n%s", fields[i].FieldID, diff)
		}
	}
	return p
}

func verifyWeatherIdempotence(wc *domain.WeatherCleaner, weather []domain.CleanWeatherRecord) *phase {
	p := &phase{name: "Weather cleaning is idempotent"}
	raw := make([]domain.RawRecord, 0, len(weather))
	for _, w := range weather {
		raw = append(raw, w.ToRaw(wc.Rules(), wc.Readings()))
	}
	again, _ := wc.Clean(raw)
	if len(again) != len(weather) {
		p.errorf("re-cleaning produced %d records, want %d", len(again), len(weather))
		return p
	}
	for i := range weather {
		if diff := cmp.Diff(weather[i], again[i], cmp.AllowUnexported(domain.Value{})); diff != "" {
			p.errorf("station %s at %s changed on re-clean (-first +second):\n%s",
				weather[i].StationID, weather[i].Timestamp, diff)
		}
	}
	return p
}

func verifyMergeCompleteness(fields []domain.CleanFieldRecord, merged []domain.MergedRecord) *phase {
	p := &phase{name: "One merged record per field, in order"}
	if len(merged) != len(fields) {
		p.errorf("%d merged records for %d fields", len(merged), len(fields))
		return p
	}
	for i := range fields {
		if merged[i].FieldID != fields[i].FieldID {
			p.errorf("position %d: merged %s, field %s", i, merged[i].FieldID, fields[i].FieldID)
		}
	}
	return p
}

func verifyWeatherRanges(rules domain.WeatherRules, merged []domain.MergedRecord) *phase {
	p := &phase{name: "Aggregated weather within ranges"}
	for _, m := range merged {
		for name, v := range m.Weather {
			f, ok := v.Get()
			if !ok {
				continue
			}
			if !m.Matched {
				p.errorf("field %s is unmatched but carries %s=%v", m.FieldID, name, f)
				continue
			}
			if rng, bounded := rules.Ranges[name]; bounded && !rng.Contains(f) {
				p.errorf("field %s: %s=%v outside [%v, %v]", m.FieldID, name, f, rng.Min, rng.Max)
			}
		}
	}
	return p
}

// report prints one line per phase followed by the details of failed phases.
func report(w io.Writer, phases []*phase) bool {
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Fprintf(w, "  ... %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}
	return allPassed
}
