package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"goalline/internal/resolve"
	"goalline/internal/staging"
	"goalline/internal/wizard"
)

func parseKindParam(s string) (staging.Kind, huma.StatusError) {
	k, err := staging.ParseKind(s)
	if err != nil {
		return "", newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"kind": s})
	}
	return k, nil
}

func (h handlers) registerImports(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "start-import",
		Method:      http.MethodPost,
		Path:        "/imports",
		Summary:     "Start or resume the import session",
	}, func(ctx context.Context, _ *struct{}) (*output[SessionResponse], error) {
		s, created, err := h.wizard.Start()
		if err != nil {
			return nil, handleError(err)
		}
		return reply(SessionResponse{Session: s, Created: created}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-import",
		Method:      http.MethodGet,
		Path:        "/imports/current",
		Summary:     "Show the import session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*output[SessionResponse], error) {
		s, err := h.wizard.Session()
		if err != nil {
			return nil, handleError(err)
		}
		return reply(SessionResponse{Session: s}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "discard-import",
		Method:        http.MethodDelete,
		Path:          "/imports/current",
		Summary:       "Discard the import session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := h.wizard.Discard(); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-over-import",
		Method:      http.MethodPost,
		Path:        "/imports/current/start-over",
		Summary:     "Discard the session and start a fresh one",
	}, func(ctx context.Context, _ *struct{}) (*output[SessionResponse], error) {
		s, err := h.wizard.StartOver()
		if err != nil {
			return nil, handleError(err)
		}
		return reply(SessionResponse{Session: s, Created: true}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-entities",
		Method:      http.MethodPost,
		Path:        "/imports/current/entities/{kind}",
		Summary:     "Parse text into staged entities and re-resolve references",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"values,measures,goals,actions"`
		Body StageRequest
	}) (*output[wizard.StageResult], error) {
		kind, herr := parseKindParam(input.Kind)
		if herr != nil {
			return nil, herr
		}
		res, err := h.wizard.Stage(ctx, kind, input.Body.Text)
		if err != nil {
			return nil, handleInputError(err)
		}
		h.metrics.staged.WithLabelValues(string(kind)).Add(float64(len(res.IDs)))
		h.metrics.parseErrors.WithLabelValues(string(kind)).Add(float64(len(res.Errors)))
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-entity",
		Method:        http.MethodDelete,
		Path:          "/imports/current/entities/{kind}/{local_id}",
		Summary:       "Remove a staged entity",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind    string `path:"kind" enum:"values,measures,goals,actions"`
		LocalID string `path:"local_id"`
	}) (*struct{}, error) {
		kind, herr := parseKindParam(input.Kind)
		if herr != nil {
			return nil, herr
		}
		if err := h.wizard.Remove(kind, input.LocalID); err != nil {
			return nil, handleInputError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-import",
		Method:      http.MethodPost,
		Path:        "/imports/current/resolve",
		Summary:     "Re-resolve every reference against current pools",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*output[resolve.Summary], error) {
		sum, err := h.wizard.Resolve(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sum), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "choose-reference",
		Method:      http.MethodPost,
		Path:        "/imports/current/choices",
		Summary:     "Pick a suggestion or confirm create-new for one reference",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ChoiceRequest
	}) (*output[staging.Reference], error) {
		kind, herr := parseKindParam(input.Body.Kind)
		if herr != nil {
			return nil, herr
		}
		p := staging.RefPath{Field: input.Body.Field, Index: input.Body.Index}
		var ref staging.Reference
		var err error
		switch {
		case input.Body.CreateNew && input.Body.Suggestion != nil:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "suggestion and create_new are exclusive", nil)
		case input.Body.CreateNew:
			ref, err = h.wizard.CreateNew(kind, input.Body.LocalID, p)
		case input.Body.Suggestion != nil:
			ref, err = h.wizard.Choose(kind, input.Body.LocalID, p, *input.Body.Suggestion)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "one of suggestion or create_new is required", nil)
		}
		if err != nil {
			return nil, handleInputError(err)
		}
		return reply(ref), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-import-step",
		Method:      http.MethodPut,
		Path:        "/imports/current/step",
		Summary:     "Move the wizard to a step",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body StepRequest
	}) (*output[SessionResponse], error) {
		if err := h.wizard.SetStep(staging.Step(input.Body.Step)); err != nil {
			return nil, handleInputError(err)
		}
		s, err := h.wizard.Session()
		if err != nil {
			return nil, handleError(err)
		}
		return reply(SessionResponse{Session: s}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-import",
		Method:      http.MethodPost,
		Path:        "/imports/current/review",
		Summary:     "Validate the session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*output[staging.ValidationState], error) {
		state, err := h.wizard.Review()
		if err != nil {
			return nil, handleError(err)
		}
		return reply(state), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-import-draft",
		Method:      http.MethodPost,
		Path:        "/imports/current/draft",
		Summary:     "Save the session as a draft",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*output[SessionResponse], error) {
		if err := h.wizard.SaveDraft(); err != nil {
			return nil, handleError(err)
		}
		s, err := h.wizard.Session()
		if err != nil {
			return nil, handleError(err)
		}
		return reply(SessionResponse{Session: s}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "commit-import",
		Method:      http.MethodPost,
		Path:        "/imports/current/commit",
		Summary:     "Commit every staged entity atomically",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*output[staging.CommitRecord], error) {
		rec, err := h.wizard.Commit(ctx)
		if err != nil {
			h.metrics.commits.WithLabelValues("failed").Inc()
			return nil, handleError(err)
		}
		h.metrics.commits.WithLabelValues("committed").Inc()
		fields := logrus.Fields{"records": len(rec.IDs)}
		if p, ok := principalFromContext(ctx); ok {
			fields["subject"] = p.Subject
		}
		h.log.WithFields(fields).Info("import committed over http")
		return reply(*rec), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-history",
		Method:      http.MethodGet,
		Path:        "/imports/history",
		Summary:     "List committed session ids",
	}, func(ctx context.Context, _ *struct{}) (*output[ListResponse[string]], error) {
		ids, err := h.wizard.History()
		if err != nil {
			return nil, handleError(err)
		}
		return list(ids), nil
	})
}
