package signals

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tremor/pkg/contracts/domain"
)

type staticHistories map[string][]float64

func (h staticHistories) SignalValues(_ context.Context, transformID string) ([]float64, error) {
	return h[transformID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fedEvent() domain.Event {
	return domain.Event{
		ID:          "evt-1",
		Timestamp:   time.Date(2024, 3, 20, 18, 0, 0, 0, time.UTC),
		Type:        "fed_announcement",
		Description: "FOMC rate decision",
		RawData: map[string]any{
			"actual_rate":   5.50,
			"expected_rate": 5.25,
		},
	}
}

func rateTransform() domain.SignalTransform {
	return domain.SignalTransform{
		ID:          "tr-rate",
		Name:        "Fed Rate Surprise",
		EventTypes:  []string{"fed_announcement"},
		Expression:  "actual_rate - expected_rate",
		NodeMapping: "d_fed_funds",
		ThresholdSD: 2.0,
	}
}

func TestEventFields(t *testing.T) {
	event := domain.Event{RawData: map[string]any{
		"actual_rate": 5.5,
		"count":       3,
		"wide":        int64(7),
		"precise":     json.Number("0.125"),
		"as_string":   "2.25",
		"label":       "hawkish",
		"padded":      " 1.5 ",
	}}

	fields := eventFields(event)

	assert.Equal(t, 5.5, fields["actual_rate"])
	assert.Equal(t, 3.0, fields["count"])
	assert.Equal(t, 7.0, fields["wide"])
	assert.Equal(t, 0.125, fields["precise"])
	assert.Equal(t, 2.25, fields["as_string"])
	assert.Equal(t, 1.5, fields["padded"])
	_, hasLabel := fields["label"]
	assert.False(t, hasLabel, "non-numeric strings must be dropped")
}

func TestFactory_ComputeSignalsForEvent(t *testing.T) {
	factory := NewFactory(testLogger())
	ctx := context.Background()

	t.Run("matching transform produces one signal", func(t *testing.T) {
		res, err := factory.ComputeSignalsForEvent(ctx, fedEvent(), []domain.SignalTransform{rateTransform()}, staticHistories{})
		require.NoError(t, err)
		require.Len(t, res.Signals, 1)
		assert.Empty(t, res.Skipped)

		sig := res.Signals[0]
		assert.Equal(t, "evt-1", sig.EventID)
		assert.Equal(t, "tr-rate", sig.TransformID)
		assert.InDelta(t, 0.25, sig.Value, 1e-12)
		assert.Nil(t, sig.ZScore, "no history means no z-score")
		assert.False(t, sig.IsShock)
	})

	t.Run("z-score against provided history", func(t *testing.T) {
		histories := staticHistories{
			"tr-rate": {0.0, 0.05, -0.05, 0.0, 0.05, -0.05, 0.0},
		}
		res, err := factory.ComputeSignalsForEvent(ctx, fedEvent(), []domain.SignalTransform{rateTransform()}, histories)
		require.NoError(t, err)
		require.Len(t, res.Signals, 1)

		sig := res.Signals[0]
		require.NotNil(t, sig.ZScore)
		assert.Positive(t, *sig.ZScore)
		assert.True(t, sig.IsShock, "a 25bp surprise against a flat history is a shock")
	})

	t.Run("non-matching event type is not a skip", func(t *testing.T) {
		event := fedEvent()
		event.Type = "earnings"
		res, err := factory.ComputeSignalsForEvent(ctx, event, []domain.SignalTransform{rateTransform()}, staticHistories{})
		require.NoError(t, err)
		assert.Empty(t, res.Signals)
		assert.Empty(t, res.Skipped)
	})

	t.Run("missing field is recorded as a skip", func(t *testing.T) {
		transform := rateTransform()
		transform.Expression = "actual_rate - dot_projection"
		res, err := factory.ComputeSignalsForEvent(ctx, fedEvent(), []domain.SignalTransform{transform}, staticHistories{})
		require.NoError(t, err)
		assert.Empty(t, res.Signals)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, SkipMissingField, res.Skipped[0].Reason)
		assert.Contains(t, res.Skipped[0].Detail, "dot_projection")
	})

	t.Run("malformed expression is recorded as a skip", func(t *testing.T) {
		transform := rateTransform()
		transform.Expression = "exp(actual_rate)"
		res, err := factory.ComputeSignalsForEvent(ctx, fedEvent(), []domain.SignalTransform{transform}, staticHistories{})
		require.NoError(t, err)
		assert.Empty(t, res.Signals)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, SkipInvalidExpression, res.Skipped[0].Reason)
	})

	t.Run("one bad transform does not block the others", func(t *testing.T) {
		bad := rateTransform()
		bad.ID = "tr-bad"
		bad.Expression = "actual_rate - "
		res, err := factory.ComputeSignalsForEvent(ctx, fedEvent(), []domain.SignalTransform{bad, rateTransform()}, staticHistories{})
		require.NoError(t, err)
		assert.Len(t, res.Signals, 1)
		assert.Len(t, res.Skipped, 1)
	})
}

func TestFactory_Idempotent(t *testing.T) {
	factory := NewFactory(testLogger())
	ctx := context.Background()
	histories := staticHistories{
		"tr-rate": {0.1, -0.1, 0.2, 0.0, -0.2, 0.1},
	}

	first, err := factory.ComputeSignalsForEvent(ctx, fedEvent(), []domain.SignalTransform{rateTransform()}, histories)
	require.NoError(t, err)
	second, err := factory.ComputeSignalsForEvent(ctx, fedEvent(), []domain.SignalTransform{rateTransform()}, histories)
	require.NoError(t, err)

	require.Len(t, first.Signals, 1)
	require.Len(t, second.Signals, 1)
	assert.Equal(t, first.Signals[0].Value, second.Signals[0].Value)
	require.NotNil(t, first.Signals[0].ZScore)
	require.NotNil(t, second.Signals[0].ZScore)
	assert.Equal(t, *first.Signals[0].ZScore, *second.Signals[0].ZScore)
	assert.Equal(t, first.Signals[0].IsShock, second.Signals[0].IsShock)
}
