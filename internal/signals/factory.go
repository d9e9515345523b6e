package signals

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"tremor/pkg/contracts/domain"
)

// SkipReason distinguishes why a matching transform produced no signal.
type SkipReason string

const (
	// SkipMissingField means the expression references a raw_data field the
	// event does not carry, so the transform does not apply to this event.
	SkipMissingField SkipReason = "missing_field"

	// SkipInvalidExpression means the expression could not be parsed or
	// uses a disallowed operation. This is a configuration problem.
	SkipInvalidExpression SkipReason = "invalid_expression"

	// SkipEvaluationFailed means the expression parsed but evaluation
	// failed, e.g. division by zero with this event's field values.
	SkipEvaluationFailed SkipReason = "evaluation_failed"
)

// Skip records one transform that matched the event's type but produced no
// signal. Exposing skips keeps the silent-skip policy observable: callers
// can tell "no transform matched" apart from "transforms errored".
type Skip struct {
	TransformID   string     `json:"transform_id"`
	TransformName string     `json:"transform_name"`
	Reason        SkipReason `json:"reason"`
	Detail        string     `json:"detail,omitempty"`
}

// Result is the outcome of computing signals for one event.
type Result struct {
	Signals []domain.Signal `json:"signals"`
	Skipped []Skip          `json:"skipped"`
}

// HistoryProvider supplies a transform's historical signal values, used to
// z-score a freshly computed value. The history must not include the
// signal currently being computed.
type HistoryProvider interface {
	SignalValues(ctx context.Context, transformID string) ([]float64, error)
}

// Factory applies signal transforms to events.
type Factory struct {
	logger            *slog.Logger
	absoluteThreshold float64
}

// NewFactory creates a signal factory.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		logger:            logger,
		absoluteThreshold: DefaultAbsoluteThreshold,
	}
}

// WithAbsoluteThreshold overrides the fallback shock threshold used when a
// transform has too little history for a z-score. Non-positive values are
// ignored.
func (f *Factory) WithAbsoluteThreshold(threshold float64) *Factory {
	if threshold > 0 {
		f.absoluteThreshold = threshold
	}
	return f
}

// ComputeSignalsForEvent evaluates every transform matching the event's
// type and returns one Signal per successful evaluation, z-scored against
// the transform's history. Transforms with absent fields or malformed
// expressions are skipped, never surfaced as errors.
//
// The computation is deterministic: repeated calls with the same inputs
// yield value-identical signals. Upsert semantics for the
// (event, transform) identity belong to the caller.
func (f *Factory) ComputeSignalsForEvent(
	ctx context.Context,
	event domain.Event,
	transforms []domain.SignalTransform,
	histories HistoryProvider,
) (Result, error) {
	var res Result
	fields := eventFields(event)

	matched := 0
	for _, transform := range transforms {
		if !transform.AppliesTo(event.Type) {
			continue
		}
		matched++

		expr, err := ParseExpression(transform.Expression)
		if err != nil {
			f.logger.WarnContext(ctx, "transform expression rejected",
				"transform", transform.Name,
				"expression", transform.Expression,
				"error", err,
			)
			res.Skipped = append(res.Skipped, Skip{
				TransformID:   transform.ID,
				TransformName: transform.Name,
				Reason:        SkipInvalidExpression,
				Detail:        err.Error(),
			})
			continue
		}

		value, err := expr.Evaluate(fields)
		if err != nil {
			reason := SkipEvaluationFailed
			var unknownField *UnknownFieldError
			if errors.As(err, &unknownField) {
				reason = SkipMissingField
			}
			f.logger.DebugContext(ctx, "transform skipped for event",
				"transform", transform.Name,
				"event_id", event.ID,
				"reason", string(reason),
				"error", err,
			)
			res.Skipped = append(res.Skipped, Skip{
				TransformID:   transform.ID,
				TransformName: transform.Name,
				Reason:        reason,
				Detail:        err.Error(),
			})
			continue
		}

		history, err := histories.SignalValues(ctx, transform.ID)
		if err != nil {
			return Result{}, err
		}

		zScore, isShock := DetectShock(value, history, transform.EffectiveThresholdSD(), f.absoluteThreshold)

		res.Signals = append(res.Signals, domain.Signal{
			EventID:     event.ID,
			TransformID: transform.ID,
			Timestamp:   event.Timestamp,
			Value:       value,
			ZScore:      zScore,
			IsShock:     isShock,
		})

		if isShock {
			f.logger.InfoContext(ctx, "shock detected",
				"transform", transform.Name,
				"event_id", event.ID,
				"value", value,
				"node", transform.NodeMapping,
			)
		}
	}

	f.logger.DebugContext(ctx, "signals computed for event",
		"event_id", event.ID,
		"event_type", event.Type,
		"matched_transforms", matched,
		"signals", len(res.Signals),
		"skipped", len(res.Skipped),
	)

	return res, nil
}

// eventFields flattens an event's raw_data into the numeric fields the
// evaluator can bind. Numeric strings appear when upstream extraction is
// sloppy; anything else is dropped, matching the treatment of absent
// fields.
func eventFields(event domain.Event) map[string]float64 {
	fields := make(map[string]float64, len(event.RawData))
	for k, v := range event.RawData {
		if f, ok := event.NumericField(k); ok {
			fields[k] = f
			continue
		}
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				fields[k] = f
			}
		}
	}
	return fields
}
