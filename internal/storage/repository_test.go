package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tremor/pkg/contracts/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open("file::memory:")
	require.NoError(t, err)
	return NewRepository(db)
}

func float64Ptr(v float64) *float64 { return &v }

func TestCreateAndGetEvent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, domain.Event{
		Timestamp:   time.Date(2024, 3, 20, 18, 0, 0, 0, time.UTC),
		Type:        "fed_announcement",
		Description: "March FOMC",
		Tags:        []string{"fomc", "rates"},
		RawData: map[string]any{
			"rate_decision":  5.25,
			"expected_rate":  5.0,
			"statement_tone": "hawkish",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "fed_announcement", got.Type)
	assert.Equal(t, []string{"fomc", "rates"}, got.Tags)
	assert.InDelta(t, 5.25, got.RawData["rate_decision"].(float64), 1e-12)
	assert.Equal(t, "hawkish", got.RawData["statement_tone"])

	_, err = repo.GetEvent(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEventsFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		typ := "fed_announcement"
		if i%2 == 1 {
			typ = "economic_data"
		}
		_, err := repo.CreateEvent(ctx, domain.Event{
			Timestamp: base.AddDate(0, 0, i*7),
			Type:      typ,
		})
		require.NoError(t, err)
	}

	all, err := repo.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	// Newest first.
	assert.True(t, all[0].Timestamp.After(all[4].Timestamp))

	cpi, err := repo.ListEvents(ctx, EventFilter{Type: "economic_data"})
	require.NoError(t, err)
	assert.Len(t, cpi, 2)

	windowed, err := repo.ListEvents(ctx, EventFilter{
		From: base.AddDate(0, 0, 7),
		To:   base.AddDate(0, 0, 21),
	})
	require.NoError(t, err)
	assert.Len(t, windowed, 3)

	limited, err := repo.ListEvents(ctx, EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestEventStampsOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Inserted out of order; stamps must come back sorted.
	for _, offset := range []int{14, 0, 7} {
		_, err := repo.CreateEvent(ctx, domain.Event{
			Timestamp: base.AddDate(0, 0, offset),
			Type:      "economic_data",
		})
		require.NoError(t, err)
	}

	stamps, err := repo.EventStamps(ctx)
	require.NoError(t, err)
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.True(t, !stamps[i].Timestamp.Before(stamps[i-1].Timestamp))
	}
	assert.Equal(t, "economic_data", stamps[0].Type)
}

func TestTransformUniqueName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tr := domain.SignalTransform{
		Name:        "fomc_rate_surprise",
		EventTypes:  []string{"fed_announcement"},
		Expression:  "rate_decision - expected_rate",
		NodeMapping: "d_fed_funds",
	}
	created, err := repo.CreateTransform(ctx, tr)
	require.NoError(t, err)

	_, err = repo.CreateTransform(ctx, tr)
	assert.Error(t, err, "duplicate name must be rejected")

	byName, err := repo.GetTransformByName(ctx, "fomc_rate_surprise")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, []string{"fed_announcement"}, byName.EventTypes)
}

func TestUpsertSignalIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	event, err := repo.CreateEvent(ctx, domain.Event{
		Timestamp: time.Date(2024, 6, 12, 12, 30, 0, 0, time.UTC),
		Type:      "economic_data",
	})
	require.NoError(t, err)
	transform, err := repo.CreateTransform(ctx, domain.SignalTransform{
		Name:        "cpi_surprise",
		EventTypes:  []string{"economic_data"},
		Expression:  "actual_cpi - expected_cpi",
		NodeMapping: "d_treasury_10y",
	})
	require.NoError(t, err)

	first, err := repo.UpsertSignal(ctx, domain.Signal{
		EventID:     event.ID,
		TransformID: transform.ID,
		Timestamp:   event.Timestamp,
		Value:       0.3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Nil(t, first.ZScore)

	// Recomputation with more history overwrites in place.
	second, err := repo.UpsertSignal(ctx, domain.Signal{
		EventID:     event.ID,
		TransformID: transform.ID,
		Timestamp:   event.Timestamp,
		Value:       0.3,
		ZScore:      float64Ptr(2.4),
		IsShock:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert must keep the original row")
	require.NotNil(t, second.ZScore)
	assert.InDelta(t, 2.4, *second.ZScore, 1e-12)
	assert.True(t, second.IsShock)

	values, err := repo.SignalValuesByTransformExcluding(ctx, transform.ID, "some-other-event")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, values)

	// The history feed must never include the excluded event's own value.
	values, err = repo.SignalValuesByTransformExcluding(ctx, transform.ID, event.ID)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestListShocksJoinsEventAndTransform(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	transform, err := repo.CreateTransform(ctx, domain.SignalTransform{
		Name:        "fomc_rate_surprise",
		EventTypes:  []string{"fed_announcement"},
		Expression:  "rate_decision - expected_rate",
		NodeMapping: "d_fed_funds",
	})
	require.NoError(t, err)

	base := time.Date(2024, 1, 31, 19, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		event, err := repo.CreateEvent(ctx, domain.Event{
			Timestamp: base.AddDate(0, 0, i*42),
			Type:      "fed_announcement",
		})
		require.NoError(t, err)
		_, err = repo.UpsertSignal(ctx, domain.Signal{
			EventID:     event.ID,
			TransformID: transform.ID,
			Timestamp:   event.Timestamp,
			Value:       float64(i) * 0.25,
			IsShock:     i == 2,
		})
		require.NoError(t, err)
	}

	shocks, err := repo.ListShocks(ctx, ShockFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, shocks, 1)
	assert.True(t, shocks[0].Signal.IsShock)
	assert.Equal(t, shocks[0].Signal.EventID, shocks[0].Event.ID)
	assert.Equal(t, transform.ID, shocks[0].Transform.ID)
}

func TestListShocksFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedShock := func(node string, ts time.Time) domain.Signal {
		t.Helper()
		transform, err := repo.CreateTransform(ctx, domain.SignalTransform{
			Name:        node + " " + ts.Format("2006-01-02"),
			EventTypes:  []string{"economic_data"},
			Expression:  "actual - forecast",
			NodeMapping: node,
		})
		require.NoError(t, err)
		event, err := repo.CreateEvent(ctx, domain.Event{
			Timestamp: ts,
			Type:      "economic_data",
		})
		require.NoError(t, err)
		sig, err := repo.UpsertSignal(ctx, domain.Signal{
			EventID:     event.ID,
			TransformID: transform.ID,
			Timestamp:   ts,
			Value:       3.1,
			IsShock:     true,
		})
		require.NoError(t, err)
		return sig
	}

	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	seedShock("d_fed_funds", base)
	seedShock("d_fed_funds", base.AddDate(0, 0, 30))
	newest := seedShock("d_fed_funds", base.AddDate(0, 0, 60))
	seedShock("d_vix", base.AddDate(0, 0, 90))

	// The node filter narrows the query before the limit applies, so the
	// limit counts matching shocks, not scanned rows.
	shocks, err := repo.ListShocks(ctx, ShockFilter{Node: "d_fed_funds", Limit: 2})
	require.NoError(t, err)
	require.Len(t, shocks, 2)
	assert.Equal(t, newest.ID, shocks[0].Signal.ID, "newest matching shock first")
	for _, shock := range shocks {
		assert.Equal(t, "d_fed_funds", shock.Transform.NodeMapping)
	}

	shocks, err = repo.ListShocks(ctx, ShockFilter{
		From: base.AddDate(0, 0, 15),
		To:   base.AddDate(0, 0, 75),
	})
	require.NoError(t, err)
	require.Len(t, shocks, 2)
	for _, shock := range shocks {
		assert.False(t, shock.Signal.Timestamp.Before(base.AddDate(0, 0, 15)))
		assert.False(t, shock.Signal.Timestamp.After(base.AddDate(0, 0, 75)))
	}
}

func TestCausalTestResultRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	passed := true
	result := domain.CausalTestResult{
		TransformID:       "t-1",
		TargetNode:        "sp500_ret",
		PreWindowDays:     5,
		PostWindowDays:    5,
		GapDays:           1,
		NumEvents:         12,
		NumEventsUsed:     10,
		NumEventsExcluded: 2,
		ExcludedEventIDs:  []string{"e-3", "e-7"},
		Regression: domain.RegressionResult{
			Coefficient:       0.051,
			StdError:          0.004,
			TStatistic:        12.75,
			PValue:            0.0001,
			RSquared:          0.62,
			ConfIntervalLower: 0.042,
			ConfIntervalUpper: 0.060,
			NumObservations:   10,
		},
		PlaceboPreDrift: domain.PlaceboResult{
			Coefficient: float64Ptr(0.001),
			PValue:      float64Ptr(0.8),
			Passed:      &passed,
		},
		PlaceboZeroSurprise: domain.PlaceboResult{},
		IsCausal:            true,
		ConfidenceLevel:     domain.ConfidenceMedium,
		EventDetails: []domain.EventStudyDetail{
			{
				EventID:          "e-1",
				EventTimestamp:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
				SurpriseValue:    0.5,
				PostWindowReturn: float64Ptr(0.03),
			},
			{
				EventID:         "e-3",
				Excluded:        true,
				ExclusionReason: "no tradable price near boundary",
			},
		},
	}

	saved, err := repo.SaveCausalTestResult(ctx, result)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := repo.GetCausalTestResult(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"e-3", "e-7"}, got.ExcludedEventIDs)
	assert.InDelta(t, 0.051, got.Regression.Coefficient, 1e-12)
	assert.True(t, got.PlaceboPreDrift.Available())
	assert.True(t, got.PlaceboPreDrift.Clean())
	assert.False(t, got.PlaceboZeroSurprise.Available())
	assert.Equal(t, domain.ConfidenceMedium, got.ConfidenceLevel)
	require.Len(t, got.EventDetails, 2)
	assert.True(t, got.EventDetails[1].Excluded)
	assert.Equal(t, "no tradable price near boundary", got.EventDetails[1].ExclusionReason)

	listed, err := repo.ListCausalTestResults(ctx, "t-1", 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	other, err := repo.ListCausalTestResults(ctx, "t-other", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPropagationLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	saved, err := repo.SavePropagationResult(ctx, domain.PropagationResult{
		SignalID:          "s-1",
		SourceNode:        "d_fed_funds",
		TargetNode:        "d_treasury_10y",
		ExpectedLagWeeks:  2,
		ExpectedDirection: "positive",
		Status:            domain.PropagationStatusMonitoring,
		MonitoredFrom:     from,
		MonitoredUntil:    from.AddDate(0, 0, 28),
	})
	require.NoError(t, err)

	open, err := repo.ListOpenPropagationResults(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	matched := true
	saved.ActualChange = float64Ptr(0.31)
	saved.PropagationMatched = &matched
	lag := 2
	saved.ActualLagWeeks = &lag
	saved.Status = domain.PropagationStatusCompleted
	require.NoError(t, repo.UpdatePropagationResult(ctx, saved))

	open, err = repo.ListOpenPropagationResults(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	bySignal, err := repo.ListPropagationResultsBySignal(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, bySignal, 1)
	assert.Equal(t, domain.PropagationStatusCompleted, bySignal[0].Status)
	require.NotNil(t, bySignal[0].ActualChange)
	assert.InDelta(t, 0.31, *bySignal[0].ActualChange, 1e-12)

	err = repo.UpdatePropagationResult(ctx, domain.PropagationResult{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}
