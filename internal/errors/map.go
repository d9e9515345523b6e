package errors

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"tremor/internal/causal"
	"tremor/internal/marketdata"
	"tremor/internal/signals"
	"tremor/internal/storage"
)

// insufficientDataDetails is the payload attached to 422 responses so
// callers can see which stage starved and by how much.
type insufficientDataDetails struct {
	Stage     string `json:"stage"`
	Available int    `json:"available"`
	Required  int    `json:"required"`
}

// FromError maps any internal error to its API representation. Unknown
// errors become opaque 500s; the original error is for the logs, never
// the response body.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var insufficient *causal.InsufficientDataError
	if errors.As(err, &insufficient) {
		return NewWithDetails(
			http.StatusUnprocessableEntity,
			"INSUFFICIENT_DATA",
			insufficient.Error(),
			insufficientDataDetails{
				Stage:     string(insufficient.Stage),
				Available: insufficient.Available,
				Required:  insufficient.Required,
			},
		)
	}

	var marketData *causal.MarketDataError
	if errors.As(err, &marketData) {
		return NewWithDetails(
			http.StatusBadGateway,
			"MARKET_DATA_UNAVAILABLE",
			"Market data provider failed",
			marketData.Node,
		)
	}

	var unknownNode *marketdata.UnknownNodeError
	if errors.As(err, &unknownNode) {
		return NewWithDetails(
			http.StatusBadRequest,
			"UNKNOWN_NODE",
			unknownNode.Error(),
			nil,
		)
	}

	var syntaxErr *signals.SyntaxError
	if errors.As(err, &syntaxErr) {
		return ErrValidation("transform_expression", syntaxErr.Error())
	}
	var fieldErr *signals.UnknownFieldError
	if errors.As(err, &fieldErr) {
		return ErrValidation("transform_expression", fieldErr.Error())
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, ValidationError{
				Field:   fe.Field(),
				Message: fe.Tag(),
			})
		}
		return NewValidationErrors(details)
	}

	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}

	return ErrInternalServer
}
