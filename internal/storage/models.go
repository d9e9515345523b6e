package storage

import (
	"encoding/json"
	"time"

	"tremor/pkg/contracts/domain"
)

// eventRecord is the persisted form of a domain.Event. Tags and raw data
// are JSON columns because their shape varies per event type.
type eventRecord struct {
	ID          string    `gorm:"primaryKey"`
	Timestamp   time.Time `gorm:"index;not null"`
	Type        string    `gorm:"index;not null"`
	Subtype     string
	Description string
	Tags        string `gorm:"type:text"`
	RawData     string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (eventRecord) TableName() string { return "events" }

type transformRecord struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	EventTypes  string `gorm:"type:text;not null"`
	Expression  string `gorm:"not null"`
	NodeMapping string `gorm:"index;not null"`
	Unit        string
	ThresholdSD float64
	CreatedAt   time.Time
}

func (transformRecord) TableName() string { return "signal_transforms" }

// signalRecord enforces the one-signal-per-(event, transform) identity
// with a composite unique index; recomputation upserts against it.
type signalRecord struct {
	ID          string    `gorm:"primaryKey"`
	EventID     string    `gorm:"index;uniqueIndex:idx_signal_identity;not null"`
	TransformID string    `gorm:"index;uniqueIndex:idx_signal_identity;not null"`
	Timestamp   time.Time `gorm:"index;not null"`
	Value       float64
	ZScore      *float64
	IsShock     bool `gorm:"index"`
	CreatedAt   time.Time
}

func (signalRecord) TableName() string { return "signals" }

type causalTestRecord struct {
	ID          string `gorm:"primaryKey"`
	TransformID string `gorm:"index;not null"`
	TargetNode  string `gorm:"index;not null"`

	PreWindowDays  int
	PostWindowDays int
	GapDays        int

	NumEvents         int
	NumEventsUsed     int
	NumEventsExcluded int
	ExcludedEventIDs  string `gorm:"type:text"`

	Coefficient       float64
	StdError          float64
	TStatistic        float64
	PValue            float64
	RSquared          float64
	ConfIntervalLower float64
	ConfIntervalUpper float64
	Intercept         float64
	InterceptPValue   float64

	PlaceboPreDriftCoeff  *float64
	PlaceboPreDriftPValue *float64
	PlaceboPreDriftPassed *bool
	PlaceboZeroSurpCoeff  *float64
	PlaceboZeroSurpPValue *float64
	PlaceboZeroSurpPassed *bool

	IsCausal        bool
	ConfidenceLevel string
	EventDetails    string `gorm:"type:text"`

	CreatedAt time.Time
}

func (causalTestRecord) TableName() string { return "causal_test_results" }

type propagationRecord struct {
	ID                 string `gorm:"primaryKey"`
	SignalID           string `gorm:"index;not null"`
	SourceNode         string `gorm:"index;not null"`
	TargetNode         string `gorm:"not null"`
	ExpectedLagWeeks   int
	ExpectedDirection  string
	ExpectedMagnitude  *float64
	ActualChange       *float64
	ActualLagWeeks     *int
	PropagationMatched *bool
	Status             string `gorm:"index;not null"`
	MonitoredFrom      time.Time
	MonitoredUntil     time.Time
	CreatedAt          time.Time
}

func (propagationRecord) TableName() string { return "propagation_results" }

// --- conversions ---

func toEventRecord(e domain.Event) (eventRecord, error) {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return eventRecord{}, err
	}
	raw, err := json.Marshal(e.RawData)
	if err != nil {
		return eventRecord{}, err
	}
	return eventRecord{
		ID:          e.ID,
		Timestamp:   e.Timestamp.UTC(),
		Type:        e.Type,
		Subtype:     e.Subtype,
		Description: e.Description,
		Tags:        string(tags),
		RawData:     string(raw),
		CreatedAt:   e.CreatedAt,
	}, nil
}

func (r eventRecord) toDomain() domain.Event {
	var tags []string
	_ = json.Unmarshal([]byte(r.Tags), &tags)
	var raw map[string]any
	_ = json.Unmarshal([]byte(r.RawData), &raw)
	return domain.Event{
		ID:          r.ID,
		Timestamp:   r.Timestamp.UTC(),
		Type:        r.Type,
		Subtype:     r.Subtype,
		Description: r.Description,
		Tags:        tags,
		RawData:     raw,
		CreatedAt:   r.CreatedAt,
	}
}

func toTransformRecord(t domain.SignalTransform) (transformRecord, error) {
	types, err := json.Marshal(t.EventTypes)
	if err != nil {
		return transformRecord{}, err
	}
	return transformRecord{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		EventTypes:  string(types),
		Expression:  t.Expression,
		NodeMapping: t.NodeMapping,
		Unit:        t.Unit,
		ThresholdSD: t.ThresholdSD,
		CreatedAt:   t.CreatedAt,
	}, nil
}

func (r transformRecord) toDomain() domain.SignalTransform {
	var types []string
	_ = json.Unmarshal([]byte(r.EventTypes), &types)
	return domain.SignalTransform{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		EventTypes:  types,
		Expression:  r.Expression,
		NodeMapping: r.NodeMapping,
		Unit:        r.Unit,
		ThresholdSD: r.ThresholdSD,
		CreatedAt:   r.CreatedAt,
	}
}

func toSignalRecord(s domain.Signal) signalRecord {
	return signalRecord{
		ID:          s.ID,
		EventID:     s.EventID,
		TransformID: s.TransformID,
		Timestamp:   s.Timestamp.UTC(),
		Value:       s.Value,
		ZScore:      s.ZScore,
		IsShock:     s.IsShock,
		CreatedAt:   s.CreatedAt,
	}
}

func (r signalRecord) toDomain() domain.Signal {
	return domain.Signal{
		ID:          r.ID,
		EventID:     r.EventID,
		TransformID: r.TransformID,
		Timestamp:   r.Timestamp.UTC(),
		Value:       r.Value,
		ZScore:      r.ZScore,
		IsShock:     r.IsShock,
		CreatedAt:   r.CreatedAt,
	}
}

func toCausalTestRecord(c domain.CausalTestResult) (causalTestRecord, error) {
	excluded, err := json.Marshal(c.ExcludedEventIDs)
	if err != nil {
		return causalTestRecord{}, err
	}
	details, err := json.Marshal(c.EventDetails)
	if err != nil {
		return causalTestRecord{}, err
	}
	return causalTestRecord{
		ID:                c.ID,
		TransformID:       c.TransformID,
		TargetNode:        c.TargetNode,
		PreWindowDays:     c.PreWindowDays,
		PostWindowDays:    c.PostWindowDays,
		GapDays:           c.GapDays,
		NumEvents:         c.NumEvents,
		NumEventsUsed:     c.NumEventsUsed,
		NumEventsExcluded: c.NumEventsExcluded,
		ExcludedEventIDs:  string(excluded),

		Coefficient:       c.Regression.Coefficient,
		StdError:          c.Regression.StdError,
		TStatistic:        c.Regression.TStatistic,
		PValue:            c.Regression.PValue,
		RSquared:          c.Regression.RSquared,
		ConfIntervalLower: c.Regression.ConfIntervalLower,
		ConfIntervalUpper: c.Regression.ConfIntervalUpper,
		Intercept:         c.Regression.Intercept,
		InterceptPValue:   c.Regression.InterceptPValue,

		PlaceboPreDriftCoeff:  c.PlaceboPreDrift.Coefficient,
		PlaceboPreDriftPValue: c.PlaceboPreDrift.PValue,
		PlaceboPreDriftPassed: c.PlaceboPreDrift.Passed,
		PlaceboZeroSurpCoeff:  c.PlaceboZeroSurprise.Coefficient,
		PlaceboZeroSurpPValue: c.PlaceboZeroSurprise.PValue,
		PlaceboZeroSurpPassed: c.PlaceboZeroSurprise.Passed,

		IsCausal:        c.IsCausal,
		ConfidenceLevel: string(c.ConfidenceLevel),
		EventDetails:    string(details),
		CreatedAt:       c.CreatedAt,
	}, nil
}

func (r causalTestRecord) toDomain() domain.CausalTestResult {
	var excluded []string
	_ = json.Unmarshal([]byte(r.ExcludedEventIDs), &excluded)
	var details []domain.EventStudyDetail
	_ = json.Unmarshal([]byte(r.EventDetails), &details)
	return domain.CausalTestResult{
		ID:                r.ID,
		TransformID:       r.TransformID,
		TargetNode:        r.TargetNode,
		PreWindowDays:     r.PreWindowDays,
		PostWindowDays:    r.PostWindowDays,
		GapDays:           r.GapDays,
		NumEvents:         r.NumEvents,
		NumEventsUsed:     r.NumEventsUsed,
		NumEventsExcluded: r.NumEventsExcluded,
		ExcludedEventIDs:  excluded,
		Regression: domain.RegressionResult{
			Coefficient:       r.Coefficient,
			StdError:          r.StdError,
			TStatistic:        r.TStatistic,
			PValue:            r.PValue,
			RSquared:          r.RSquared,
			ConfIntervalLower: r.ConfIntervalLower,
			ConfIntervalUpper: r.ConfIntervalUpper,
			Intercept:         r.Intercept,
			InterceptPValue:   r.InterceptPValue,
			NumObservations:   r.NumEventsUsed,
		},
		PlaceboPreDrift: domain.PlaceboResult{
			Coefficient: r.PlaceboPreDriftCoeff,
			PValue:      r.PlaceboPreDriftPValue,
			Passed:      r.PlaceboPreDriftPassed,
		},
		PlaceboZeroSurprise: domain.PlaceboResult{
			Coefficient: r.PlaceboZeroSurpCoeff,
			PValue:      r.PlaceboZeroSurpPValue,
			Passed:      r.PlaceboZeroSurpPassed,
		},
		IsCausal:        r.IsCausal,
		ConfidenceLevel: domain.Confidence(r.ConfidenceLevel),
		EventDetails:    details,
		CreatedAt:       r.CreatedAt,
	}
}

func toPropagationRecord(p domain.PropagationResult) propagationRecord {
	return propagationRecord{
		ID:                 p.ID,
		SignalID:           p.SignalID,
		SourceNode:         p.SourceNode,
		TargetNode:         p.TargetNode,
		ExpectedLagWeeks:   p.ExpectedLagWeeks,
		ExpectedDirection:  p.ExpectedDirection,
		ExpectedMagnitude:  p.ExpectedMagnitude,
		ActualChange:       p.ActualChange,
		ActualLagWeeks:     p.ActualLagWeeks,
		PropagationMatched: p.PropagationMatched,
		Status:             string(p.Status),
		MonitoredFrom:      p.MonitoredFrom.UTC(),
		MonitoredUntil:     p.MonitoredUntil.UTC(),
		CreatedAt:          p.CreatedAt,
	}
}

func (r propagationRecord) toDomain() domain.PropagationResult {
	return domain.PropagationResult{
		ID:                 r.ID,
		SignalID:           r.SignalID,
		SourceNode:         r.SourceNode,
		TargetNode:         r.TargetNode,
		ExpectedLagWeeks:   r.ExpectedLagWeeks,
		ExpectedDirection:  r.ExpectedDirection,
		ExpectedMagnitude:  r.ExpectedMagnitude,
		ActualChange:       r.ActualChange,
		ActualLagWeeks:     r.ActualLagWeeks,
		PropagationMatched: r.PropagationMatched,
		Status:             domain.PropagationStatus(r.Status),
		MonitoredFrom:      r.MonitoredFrom.UTC(),
		MonitoredUntil:     r.MonitoredUntil.UTC(),
		CreatedAt:          r.CreatedAt,
	}
}
