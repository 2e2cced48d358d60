package validation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"caravel/internal/layout"
	"caravel/internal/logging"
)

// Runner executes the selected validators of a resolved family.
type Runner struct {
	selector Selector
	subjects []string
	logger   *slog.Logger
}

// NewRunner builds a runner. subjects is the optional allow-list.
func NewRunner(restricted bool, subjects []string, logger *slog.Logger) *Runner {
	return &Runner{
		selector: SelectorFor(restricted),
		subjects: subjects,
		logger:   logging.NewComponentLogger(logger, "validation"),
	}
}

// Run loads the baseline from collectDir and runs every selected validator
// against idx. Hook errors and panics become an InternalFailure report.
func (r *Runner) Run(ctx context.Context, family string, caps Capabilities, collectDir string, idx *layout.Index) Report {
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldFamily, family))

	var baseline Baseline
	if err := guard(logger, func() error {
		var err error
		baseline, err = caps.Status(ctx, collectDir)
		return err
	}); err != nil {
		logging.ErrorWithContext(logger, "status hook failed", "validation_internal_error",
			logging.String("hook", "status"), logging.Error(err))
		return NewInternalFailure(nil, "status", err)
	}
	if baseline == nil {
		baseline = Baseline{}
	}

	var validators []Validator
	if err := guard(logger, func() error {
		validators = caps.Validators(r.selector)
		return nil
	}); err != nil {
		logging.ErrorWithContext(logger, "validators hook failed", "validation_internal_error",
			logging.String("hook", "validators"), logging.Error(err))
		return NewInternalFailure(nil, "validators", err)
	}

	in := Input{Family: family, Index: idx, Baseline: baseline, Subjects: r.subjects}
	issues := make(map[string][]string, len(validators))
	for _, v := range validators {
		var found []string
		err := guard(logger, func() error {
			var err error
			found, err = v.Check(ctx, in)
			return err
		})
		if err != nil {
			logging.ErrorWithContext(logger, "validator failed", "validation_internal_error",
				logging.String("validator", v.Name), logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the validator plugin; support has been notified"))
			return NewInternalFailure(issues, v.Name, err)
		}
		issues[v.Name] = append(issues[v.Name], found...)
		logger.Debug("validator finished", logging.String("validator", v.Name), logging.Int("issues", len(found)))
	}

	report := NewReport(issues)
	logger.Info("validation finished",
		logging.String("selector", string(r.selector)),
		logging.Int("validators", len(validators)),
		logging.Int("issues", report.IssueCount()),
		logging.String("outcome", report.Kind().String()),
	)
	return report
}

// guard runs fn and converts a panic into an error. The stack goes to the
// debug log only.
func guard(logger *slog.Logger, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Debug("recovered panic", logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return fn()
}

// ListDatasets calls the family's dataset lister with the same panic
// protection as the validators.
func (r *Runner) ListDatasets(ctx context.Context, family string, caps Capabilities, uploadDir string) ([]string, error) {
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldFamily, family))
	var datasets []string
	err := guard(logger, func() error {
		var err error
		datasets, err = caps.ListDatasets(ctx, uploadDir)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return datasets, nil
}
