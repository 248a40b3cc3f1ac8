package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"goalline/internal/domain"
	"goalline/internal/engine"
)

type listQuery struct {
	IncludeArchived bool `query:"include_archived"`
}

func (h handlers) registerRecords(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-values",
		Method:      http.MethodGet,
		Path:        "/values",
		Summary:     "List values",
	}, func(ctx context.Context, input *listQuery) (*output[ListResponse[domain.Value]], error) {
		items, err := h.engine.ListValues(ctx, input.IncludeArchived)
		if err != nil {
			return nil, handleError(err)
		}
		return list(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-value",
		Method:      http.MethodPost,
		Path:        "/values",
		Summary:     "Create one value outside an import",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateValueRequest
	}) (*output[domain.Value], error) {
		v, err := h.engine.CreateValue(ctx, engine.ValueCreateOptions{
			Title:             input.Body.Title,
			Level:             input.Body.Level,
			Priority:          input.Body.Priority,
			Description:       input.Body.Description,
			LifeDomain:        input.Body.LifeDomain,
			Notes:             input.Body.Notes,
			AlignmentGuidance: input.Body.AlignmentGuidance,
		})
		if err != nil {
			return nil, handleInputError(err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-measures",
		Method:      http.MethodGet,
		Path:        "/measures",
		Summary:     "List measures",
	}, func(ctx context.Context, input *listQuery) (*output[ListResponse[domain.Measure]], error) {
		items, err := h.engine.ListMeasures(ctx, input.IncludeArchived)
		if err != nil {
			return nil, handleError(err)
		}
		return list(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/goals",
		Summary:     "List goals",
	}, func(ctx context.Context, input *listQuery) (*output[ListResponse[domain.Goal]], error) {
		items, err := h.engine.ListGoals(ctx, input.IncludeArchived)
		if err != nil {
			return nil, handleError(err)
		}
		return list(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-progress",
		Method:      http.MethodGet,
		Path:        "/progress",
		Summary:     "Progress of every active goal",
	}, func(ctx context.Context, _ *struct{}) (*output[ListResponse[domain.GoalProgress]], error) {
		items, err := h.engine.GoalProgress(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		return list(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goal-progress",
		Method:      http.MethodGet,
		Path:        "/goals/{id}/progress",
		Summary:     "Progress of one goal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[domain.GoalProgress], error) {
		items, err := h.engine.GoalProgress(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items[0]), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "List actions, newest first",
	}, func(ctx context.Context, input *struct {
		IncludeArchived bool `query:"include_archived"`
		Limit           int  `query:"limit" default:"50"`
	}) (*output[ListResponse[domain.Action]], error) {
		items, err := h.engine.ListActions(ctx, input.IncludeArchived, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return list(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "log-action",
		Method:      http.MethodPost,
		Path:        "/actions",
		Summary:     "Log one action against existing measures and goals",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body LogActionRequest
	}) (*output[domain.Action], error) {
		opts := engine.ActionLogOptions{
			Title:                 input.Body.Title,
			DurationMinutes:       input.Body.DurationMinutes,
			Measurements:          input.Body.Measurements,
			Goals:                 input.Body.Goals,
			CreateMissingMeasures: input.Body.CreateMissingMeasures,
		}
		if input.Body.OccurredAt != nil {
			opts.OccurredAt = *input.Body.OccurredAt
		}
		a, err := h.engine.LogAction(ctx, opts)
		if err != nil {
			return nil, handleInputError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "archive-record",
		Method:        http.MethodDelete,
		Path:          "/{kind}/{id}",
		Summary:       "Archive a value, measure, goal, or action",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"values,measures,goals,actions"`
		ID   string `path:"id"`
	}) (*struct{}, error) {
		kind, herr := parseKindParam(input.Kind)
		if herr != nil {
			return nil, herr
		}
		if err := h.engine.Archive(ctx, kind, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
	}, func(ctx context.Context, input *struct {
		SessionID string `query:"session_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*output[ListResponse[domain.Event]], error) {
		items, err := h.engine.LatestEvents(ctx, input.SessionID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return list(items), nil
	})
}
