// Package propagation turns detected shocks into forward-looking monitors:
// one per downstream edge of the shocked node, watching whether the target
// variable moves in the predicted direction within the predicted lag.
package propagation

import (
	"context"
	"log/slog"
	"time"

	"tremor/internal/causal"
	"tremor/internal/marketdata"
	"tremor/pkg/contracts/domain"
)

// DefaultBufferWeeks extends the monitoring window past the expected lag
// to absorb publication and resolution slack.
const DefaultBufferWeeks = 2

// Monitor creates and resolves propagation monitors for shock signals.
type Monitor struct {
	network     *causal.Network
	baselines   *Baselines
	provider    marketdata.Provider
	logger      *slog.Logger
	bufferWeeks int
}

// NewMonitor wires a propagation monitor over the causal network, the IRF
// baselines and a market data provider.
func NewMonitor(network *causal.Network, baselines *Baselines, provider marketdata.Provider, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if baselines == nil {
		baselines = EmptyBaselines()
	}
	return &Monitor{
		network:     network,
		baselines:   baselines,
		provider:    provider,
		logger:      logger,
		bufferWeeks: DefaultBufferWeeks,
	}
}

// CreateMonitors builds one PropagationResult per downstream node of the
// shocked transform's source node. Expected lag comes from the network
// edge, expected direction and magnitude from the baselines. IDs and
// persistence belong to the caller.
func (m *Monitor) CreateMonitors(ctx context.Context, signal domain.Signal, transform domain.SignalTransform) []domain.PropagationResult {
	source := transform.NodeMapping
	downstream := m.network.Downstream(source)

	results := make([]domain.PropagationResult, 0, len(downstream))
	for _, target := range downstream {
		lagWeeks := 1
		if meta, ok := m.network.Edge(source, target); ok && meta.Lag > 0 {
			lagWeeks = meta.Lag
		}
		direction := m.baselines.ExpectedDirection(source, target)
		if direction == "" {
			direction = "positive"
		}

		results = append(results, domain.PropagationResult{
			SignalID:          signal.ID,
			SourceNode:        source,
			TargetNode:        target,
			ExpectedLagWeeks:  lagWeeks,
			ExpectedDirection: direction,
			ExpectedMagnitude: m.baselines.ExpectedResponse(source, target, lagWeeks),
			Status:            domain.PropagationStatusMonitoring,
			MonitoredFrom:     signal.Timestamp,
			MonitoredUntil:    signal.Timestamp.Add(time.Duration(lagWeeks+m.bufferWeeks) * 7 * 24 * time.Hour),
		})
	}

	m.logger.InfoContext(ctx, "propagation monitors created",
		"signal_id", signal.ID,
		"source_node", source,
		"monitors", len(results),
	)
	return results
}

// Check resolves the monitor's state as of now: it pulls the target
// series over the elapsed monitoring window, records the actual change
// and lag, and decides whether the predicted direction materialised. A
// fetch failure leaves the monitor untouched for a later check.
func (m *Monitor) Check(ctx context.Context, result domain.PropagationResult, now time.Time) (domain.PropagationResult, error) {
	end := now
	if result.MonitoredUntil.Before(end) {
		end = result.MonitoredUntil
	}

	series, err := m.provider.DailySeries(ctx, result.TargetNode, result.MonitoredFrom, end)
	if err != nil {
		return result, err
	}

	if series.IsEmpty() {
		if now.After(result.MonitoredUntil) {
			result.Status = domain.PropagationStatusNoResponse
		}
		return result, nil
	}

	first, _ := series.First()
	last, _ := series.Last()
	change := 0.0
	if series.Len() > 1 {
		change = last.Price - first.Price
	}
	result.ActualChange = &change

	weeks := int(end.Sub(result.MonitoredFrom).Hours() / (7 * 24))
	if weeks < 1 {
		weeks = 1
	}
	result.ActualLagWeeks = &weeks

	matched := (result.ExpectedDirection == "positive" && change > 0) ||
		(result.ExpectedDirection == "negative" && change < 0)
	result.PropagationMatched = &matched

	if !now.Before(result.MonitoredUntil) {
		result.Status = domain.PropagationStatusCompleted
	} else {
		result.Status = domain.PropagationStatusMonitoring
	}

	m.logger.DebugContext(ctx, "propagation monitor checked",
		"target_node", result.TargetNode,
		"actual_change", change,
		"matched", matched,
		"status", string(result.Status),
	)
	return result, nil
}
