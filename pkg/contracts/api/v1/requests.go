// Package api contains the v1 HTTP request and response contracts.
package api

import (
	"tremor/pkg/contracts/domain"
)

// Common request parameters

// PaginationRequest represents common pagination parameters
type PaginationRequest struct {
	Page     int `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize int `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=500"`
}

// DateRangeRequest represents a date range in requests
type DateRangeRequest struct {
	From string `json:"from" query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// Event API

// EventCreateRequest ingests one observed event.
type EventCreateRequest struct {
	Timestamp   string         `json:"timestamp" validate:"required"`
	Type        string         `json:"type" validate:"required"`
	Subtype     string         `json:"subtype,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	RawData     map[string]any `json:"raw_data" validate:"required"`
}

// EventListRequest filters the event listing.
type EventListRequest struct {
	PaginationRequest
	Type      string           `json:"type" query:"type"`
	DateRange DateRangeRequest `json:"date_range,omitempty"`
}

// Transform API

// TransformCreateRequest registers a signal transform.
type TransformCreateRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	EventTypes  []string `json:"event_types" validate:"required,min=1"`
	Expression  string   `json:"transform_expression" validate:"required"`
	NodeMapping string   `json:"node_mapping" validate:"required"`
	Unit        string   `json:"unit,omitempty"`
	ThresholdSD float64  `json:"threshold_sd" validate:"omitempty,gt=0"`
}

// Causal test API

// CausalTestRunRequest triggers one event study. Window overrides are
// optional; zero values fall back to the configured defaults.
type CausalTestRunRequest struct {
	TransformID    string `json:"transform_id" validate:"required"`
	TargetNode     string `json:"target_node" validate:"required"`
	PreWindowDays  int    `json:"pre_window_days" validate:"omitempty,min=1,max=60"`
	PostWindowDays int    `json:"post_window_days" validate:"omitempty,min=1,max=60"`
	GapDays        int    `json:"gap_days" validate:"omitempty,min=0,max=30"`
}

// CausalTestRunAllRequest triggers a study for every (transform, node)
// pair reachable in the causal network.
type CausalTestRunAllRequest struct {
	PreWindowDays  int `json:"pre_window_days" validate:"omitempty,min=1,max=60"`
	PostWindowDays int `json:"post_window_days" validate:"omitempty,min=1,max=60"`
	GapDays        int `json:"gap_days" validate:"omitempty,min=0,max=30"`
}

// RunAllOutcome is one entry of the run-all response: either a result or
// the reason the transform could not be studied.
type RunAllOutcome struct {
	TransformID   string                   `json:"transform_id"`
	TransformName string                   `json:"transform_name"`
	TargetNode    string                   `json:"target_node,omitempty"`
	Result        *domain.CausalTestResult `json:"result,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

// Generic responses

// ListResponse wraps a collection with its total count.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// HealthResponse reports service liveness and component status.
type HealthResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Components map[string]any `json:"components,omitempty"`
}
