package server

import (
	"time"

	"goalline/internal/engine"
	"goalline/internal/staging"
)

// output wraps a response body for huma.
type output[T any] struct {
	Body T
}

func reply[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}

func list[T any](items []T) *output[ListResponse[T]] {
	if items == nil {
		items = []T{}
	}
	return reply(ListResponse[T]{Items: items})
}

// Request payloads

type StageRequest struct {
	Text string `json:"text" minLength:"1" doc:"Pipe-delimited rows or one name per line"`
}

type ChoiceRequest struct {
	Kind    string `json:"kind" enum:"goal,action"`
	LocalID string `json:"local_id" example:"g1"`
	Field   string `json:"field" enum:"measure,values,measurements,goals"`
	Index   int    `json:"index,omitempty" minimum:"0"`
	// Suggestion picks one of the reference's suggestions by position.
	Suggestion *int `json:"suggestion,omitempty" minimum:"0"`
	// CreateNew marks the reference to be created from its text at commit.
	CreateNew bool `json:"create_new,omitempty"`
}

type StepRequest struct {
	Step int `json:"step" minimum:"1" maximum:"5"`
}

type CreateValueRequest struct {
	Title             string `json:"title" minLength:"1"`
	Level             string `json:"level,omitempty" example:"major"`
	Priority          int    `json:"priority,omitempty" minimum:"0" maximum:"100"`
	Description       string `json:"description,omitempty"`
	LifeDomain        string `json:"life_domain,omitempty"`
	Notes             string `json:"notes,omitempty"`
	AlignmentGuidance string `json:"alignment_guidance,omitempty"`
}

type LogActionRequest struct {
	Title                 string              `json:"title" minLength:"1"`
	OccurredAt            *time.Time          `json:"occurred_at,omitempty"`
	DurationMinutes       *float64            `json:"duration_minutes,omitempty" minimum:"0"`
	Measurements          []engine.UnitAmount `json:"measurements,omitempty"`
	Goals                 []string            `json:"goals,omitempty"`
	CreateMissingMeasures bool                `json:"create_missing_measures,omitempty"`
}

// Response payloads

type SessionResponse struct {
	Session *staging.Session `json:"session"`
	Created bool             `json:"created,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}
