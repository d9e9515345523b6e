package services

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"tremor/internal/signals"
	"tremor/internal/storage"
	"tremor/pkg/contracts/domain"
)

// TransformService manages the signal transform catalog. Expressions are
// parsed at registration time so a bad transform is rejected up front
// instead of silently skipping every event.
type TransformService struct {
	repo     *storage.Repository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTransformService creates a transform service.
func NewTransformService(repo *storage.Repository, logger *slog.Logger) *TransformService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransformService{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "transform_service")),
	}
}

// Create validates and stores a transform.
func (s *TransformService) Create(ctx context.Context, transform domain.SignalTransform) (domain.SignalTransform, error) {
	if err := s.validate.Struct(transform); err != nil {
		return domain.SignalTransform{}, err
	}
	if _, err := signals.ParseExpression(transform.Expression); err != nil {
		return domain.SignalTransform{}, err
	}

	stored, err := s.repo.CreateTransform(ctx, transform)
	if err != nil {
		return domain.SignalTransform{}, err
	}
	s.logger.InfoContext(ctx, "transform registered",
		slog.String("transform_id", stored.ID),
		slog.String("name", stored.Name),
		slog.String("node", stored.NodeMapping))
	return stored, nil
}

// Get fetches one transform.
func (s *TransformService) Get(ctx context.Context, id string) (domain.SignalTransform, error) {
	return s.repo.GetTransform(ctx, id)
}

// List returns every registered transform.
func (s *TransformService) List(ctx context.Context) ([]domain.SignalTransform, error) {
	return s.repo.ListTransforms(ctx)
}
