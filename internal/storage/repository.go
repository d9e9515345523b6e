package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tremor/internal/causal"
	"tremor/pkg/contracts/domain"
)

// ErrNotFound is returned when a lookup by identifier matches nothing.
var ErrNotFound = errors.New("record not found")

// Repository is the single persistence boundary. All domain objects cross
// it as values; gorm records never leave this package.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps an opened database handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// --- events ---

// CreateEvent persists a new event, assigning ID and CreatedAt when unset.
func (r *Repository) CreateEvent(ctx context.Context, e domain.Event) (domain.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	rec, err := toEventRecord(e)
	if err != nil {
		return domain.Event{}, fmt.Errorf("encoding event: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Event{}, fmt.Errorf("inserting event: %w", err)
	}
	return e, nil
}

// GetEvent fetches one event by ID.
func (r *Repository) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	var rec eventRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Event{}, ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("fetching event %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// EventFilter narrows ListEvents. Zero values mean "no constraint".
type EventFilter struct {
	Type  string
	From  time.Time
	To    time.Time
	Limit int
}

// ListEvents returns events matching the filter, newest first.
func (r *Repository) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	q := r.db.WithContext(ctx).Model(&eventRecord{}).Order("timestamp DESC")
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if !f.From.IsZero() {
		q = q.Where("timestamp >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("timestamp <= ?", f.To.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var recs []eventRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	events := make([]domain.Event, 0, len(recs))
	for _, rec := range recs {
		events = append(events, rec.toDomain())
	}
	return events, nil
}

// EventStamps returns the identity and timestamp of every stored event in
// ascending timestamp order. The event-study runner uses them for
// confound detection across all event types.
func (r *Repository) EventStamps(ctx context.Context) ([]causal.EventStamp, error) {
	var recs []eventRecord
	err := r.db.WithContext(ctx).
		Select("id", "timestamp", "type").
		Order("timestamp ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing event stamps: %w", err)
	}
	stamps := make([]causal.EventStamp, 0, len(recs))
	for _, rec := range recs {
		stamps = append(stamps, causal.EventStamp{
			EventID:   rec.ID,
			Type:      rec.Type,
			Timestamp: rec.Timestamp.UTC(),
		})
	}
	return stamps, nil
}

// AllEvents returns every event in ascending timestamp order.
func (r *Repository) AllEvents(ctx context.Context) ([]domain.Event, error) {
	var recs []eventRecord
	if err := r.db.WithContext(ctx).Order("timestamp ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	events := make([]domain.Event, 0, len(recs))
	for _, rec := range recs {
		events = append(events, rec.toDomain())
	}
	return events, nil
}

// --- transforms ---

// CreateTransform persists a transform definition.
func (r *Repository) CreateTransform(ctx context.Context, t domain.SignalTransform) (domain.SignalTransform, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	rec, err := toTransformRecord(t)
	if err != nil {
		return domain.SignalTransform{}, fmt.Errorf("encoding transform: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.SignalTransform{}, fmt.Errorf("inserting transform: %w", err)
	}
	return t, nil
}

// GetTransform fetches one transform by ID.
func (r *Repository) GetTransform(ctx context.Context, id string) (domain.SignalTransform, error) {
	var rec transformRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SignalTransform{}, ErrNotFound
	}
	if err != nil {
		return domain.SignalTransform{}, fmt.Errorf("fetching transform %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// GetTransformByName fetches one transform by its unique name.
func (r *Repository) GetTransformByName(ctx context.Context, name string) (domain.SignalTransform, error) {
	var rec transformRecord
	err := r.db.WithContext(ctx).First(&rec, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SignalTransform{}, ErrNotFound
	}
	if err != nil {
		return domain.SignalTransform{}, fmt.Errorf("fetching transform %q: %w", name, err)
	}
	return rec.toDomain(), nil
}

// ListTransforms returns all transforms in creation order.
func (r *Repository) ListTransforms(ctx context.Context) ([]domain.SignalTransform, error) {
	var recs []transformRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing transforms: %w", err)
	}
	transforms := make([]domain.SignalTransform, 0, len(recs))
	for _, rec := range recs {
		transforms = append(transforms, rec.toDomain())
	}
	return transforms, nil
}

// --- signals ---

// UpsertSignal inserts a signal or, when one already exists for the same
// (event, transform) pair, overwrites its computed fields in place. The
// surviving row keeps its original ID and CreatedAt.
func (r *Repository) UpsertSignal(ctx context.Context, s domain.Signal) (domain.Signal, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	rec := toSignalRecord(s)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}, {Name: "transform_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"timestamp", "value", "z_score", "is_shock",
		}),
	}).Create(&rec).Error
	if err != nil {
		return domain.Signal{}, fmt.Errorf("upserting signal: %w", err)
	}
	// The conflict path keeps the existing row; re-read for the canonical ID.
	var stored signalRecord
	err = r.db.WithContext(ctx).
		First(&stored, "event_id = ? AND transform_id = ?", s.EventID, s.TransformID).Error
	if err != nil {
		return domain.Signal{}, fmt.Errorf("reading back signal: %w", err)
	}
	return stored.toDomain(), nil
}

// SignalValuesByTransformExcluding returns the raw values of every
// signal computed for a transform, in ascending timestamp order, minus
// one event's own signal, so recomputation never z-scores a value
// against itself. This is the z-score history feed.
func (r *Repository) SignalValuesByTransformExcluding(ctx context.Context, transformID, excludeEventID string) ([]float64, error) {
	var recs []signalRecord
	err := r.db.WithContext(ctx).
		Select("value", "timestamp").
		Where("transform_id = ? AND event_id <> ?", transformID, excludeEventID).
		Order("timestamp ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("loading signal history for transform %s: %w", transformID, err)
	}
	values := make([]float64, 0, len(recs))
	for _, rec := range recs {
		values = append(values, rec.Value)
	}
	return values, nil
}

// SignalsByTransform returns full signals for a transform, ascending by
// timestamp. The event study gathers its (surprise, event) pairs here.
func (r *Repository) SignalsByTransform(ctx context.Context, transformID string) ([]domain.Signal, error) {
	var recs []signalRecord
	err := r.db.WithContext(ctx).
		Where("transform_id = ?", transformID).
		Order("timestamp ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing signals for transform %s: %w", transformID, err)
	}
	signals := make([]domain.Signal, 0, len(recs))
	for _, rec := range recs {
		signals = append(signals, rec.toDomain())
	}
	return signals, nil
}

// GetSignal fetches one signal by ID.
func (r *Repository) GetSignal(ctx context.Context, id string) (domain.Signal, error) {
	var rec signalRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Signal{}, ErrNotFound
	}
	if err != nil {
		return domain.Signal{}, fmt.Errorf("fetching signal %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// ShockFilter narrows the shock feed. Zero values mean "no constraint";
// Node matches the transform's mapped network node and the period bounds
// are inclusive on the signal timestamp.
type ShockFilter struct {
	Node  string
	From  time.Time
	To    time.Time
	Limit int
}

// ListShocks returns the most recent shock signals joined with their
// owning event and transform, newest first. Filters apply inside the
// query, so the limit counts matching rows only.
func (r *Repository) ListShocks(ctx context.Context, filter ShockFilter) ([]domain.Shock, error) {
	q := r.db.WithContext(ctx).
		Where("signals.is_shock = ?", true).
		Order("signals.timestamp DESC, signals.id DESC")
	if filter.Node != "" {
		q = q.Joins("JOIN signal_transforms ON signal_transforms.id = signals.transform_id").
			Where("signal_transforms.node_mapping = ?", filter.Node)
	}
	if !filter.From.IsZero() {
		q = q.Where("signals.timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("signals.timestamp <= ?", filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var recs []signalRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing shocks: %w", err)
	}
	shocks := make([]domain.Shock, 0, len(recs))
	for _, rec := range recs {
		sig := rec.toDomain()
		event, err := r.GetEvent(ctx, sig.EventID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		transform, err := r.GetTransform(ctx, sig.TransformID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		shocks = append(shocks, domain.Shock{Signal: sig, Event: event, Transform: transform})
	}
	return shocks, nil
}

// --- causal test results ---

// SaveCausalTestResult persists one immutable study result, assigning ID
// and CreatedAt.
func (r *Repository) SaveCausalTestResult(ctx context.Context, c domain.CausalTestResult) (domain.CausalTestResult, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	rec, err := toCausalTestRecord(c)
	if err != nil {
		return domain.CausalTestResult{}, fmt.Errorf("encoding causal test result: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.CausalTestResult{}, fmt.Errorf("inserting causal test result: %w", err)
	}
	return c, nil
}

// GetCausalTestResult fetches one result by ID.
func (r *Repository) GetCausalTestResult(ctx context.Context, id string) (domain.CausalTestResult, error) {
	var rec causalTestRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CausalTestResult{}, ErrNotFound
	}
	if err != nil {
		return domain.CausalTestResult{}, fmt.Errorf("fetching causal test result %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// ListCausalTestResults returns results newest first, optionally filtered
// by transform.
func (r *Repository) ListCausalTestResults(ctx context.Context, transformID string, limit int) ([]domain.CausalTestResult, error) {
	q := r.db.WithContext(ctx).Model(&causalTestRecord{}).Order("created_at DESC, id DESC")
	if transformID != "" {
		q = q.Where("transform_id = ?", transformID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []causalTestRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing causal test results: %w", err)
	}
	results := make([]domain.CausalTestResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, rec.toDomain())
	}
	return results, nil
}

// --- propagation results ---

// SavePropagationResult inserts a new monitor row.
func (r *Repository) SavePropagationResult(ctx context.Context, p domain.PropagationResult) (domain.PropagationResult, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	rec := toPropagationRecord(p)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.PropagationResult{}, fmt.Errorf("inserting propagation result: %w", err)
	}
	return p, nil
}

// GetPropagationResult fetches one monitor row.
func (r *Repository) GetPropagationResult(ctx context.Context, id string) (domain.PropagationResult, error) {
	var rec propagationRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PropagationResult{}, ErrNotFound
	}
	if err != nil {
		return domain.PropagationResult{}, fmt.Errorf("fetching propagation result %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// UpdatePropagationResult overwrites a monitor row after a check pass.
func (r *Repository) UpdatePropagationResult(ctx context.Context, p domain.PropagationResult) error {
	rec := toPropagationRecord(p)
	res := r.db.WithContext(ctx).Model(&propagationRecord{}).
		Where("id = ?", p.ID).
		Select("actual_change", "actual_lag_weeks", "propagation_matched", "status").
		Updates(&rec)
	if res.Error != nil {
		return fmt.Errorf("updating propagation result %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenPropagationResults returns monitors still awaiting a verdict.
func (r *Repository) ListOpenPropagationResults(ctx context.Context) ([]domain.PropagationResult, error) {
	var recs []propagationRecord
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{
			string(domain.PropagationStatusPending),
			string(domain.PropagationStatusMonitoring),
		}).
		Order("monitored_until ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing open propagation results: %w", err)
	}
	results := make([]domain.PropagationResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, rec.toDomain())
	}
	return results, nil
}

// ListPropagationResultsBySignal returns every monitor created for a
// signal, in creation order.
func (r *Repository) ListPropagationResultsBySignal(ctx context.Context, signalID string) ([]domain.PropagationResult, error) {
	var recs []propagationRecord
	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing propagation results for signal %s: %w", signalID, err)
	}
	results := make([]domain.PropagationResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, rec.toDomain())
	}
	return results, nil
}
