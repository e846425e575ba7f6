package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"chartdesk/internal/drawing"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
	"chartdesk/internal/session"
	"chartdesk/internal/workspace"
)

type sessionIDInput struct {
	ID string `path:"id" doc:"Session id returned by create-session"`
}

type snapshotOutput struct {
	Body workspace.Snapshot
}

func registerSessionHandlers(api huma.API, svc Sessions) {
	type listSessionsOutput struct {
		Body struct {
			Sessions []session.Info `json:"sessions"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-sessions", Method: http.MethodGet, Path: "/api/v1/sessions", Summary: "List open sessions", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct{}) (*listSessionsOutput, error) {
			out := &listSessionsOutput{}
			out.Body.Sessions = svc.List()
			return out, nil
		})

	type createSessionOutput struct {
		Body struct {
			ID       string             `json:"id"`
			Snapshot workspace.Snapshot `json:"snapshot"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "create-session", Method: http.MethodPost, Path: "/api/v1/sessions", Summary: "Open a workspace on a series", Tags: []string{"Sessions"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			Body struct {
				Symbol    string `json:"symbol" required:"true" minLength:"1"`
				Timeframe string `json:"timeframe" required:"true" doc:"Minutes, or D/W/M"`
			}
		}) (*createSessionOutput, error) {
			key := model.SeriesKey{Symbol: input.Body.Symbol, Timeframe: input.Body.Timeframe}
			id, snap, err := svc.Open(ctx, key)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &createSessionOutput{}
			out.Body.ID = id
			out.Body.Snapshot = snap
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-snapshot", Method: http.MethodGet, Path: "/api/v1/sessions/{id}", Summary: "Dump the workspace state", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*snapshotOutput, error) {
			snap, err := svc.Dump(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &snapshotOutput{Body: snap}, nil
		})

	type applyOutput struct {
		Body struct {
			Snapshot workspace.Snapshot `json:"snapshot"`
			Errors   []string           `json:"errors"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "apply-events", Method: http.MethodPost, Path: "/api/v1/sessions/{id}/events", Summary: "Apply a batch of host events", Description: "Events are applied in order with a single recompute pass. Failing events are skipped and reported in errors.", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			ID   string `path:"id"`
			Body struct {
				Events []workspace.Event `json:"events" required:"true"`
			}
		}) (*applyOutput, error) {
			snap, err := svc.Apply(ctx, input.ID, input.Body.Events)
			if errors.Is(err, session.ErrNotFound) {
				return nil, mapErr(err)
			}
			out := &applyOutput{}
			out.Body.Snapshot = snap
			out.Body.Errors = splitErrors(err)
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "save-layout", Method: http.MethodPost, Path: "/api/v1/sessions/{id}/layout", Summary: "Persist the session layout", Tags: []string{"Sessions"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *sessionIDInput) (*struct{}, error) {
			if err := svc.Save(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-session", Method: http.MethodDelete, Path: "/api/v1/sessions/{id}", Summary: "Save if changed and close", Tags: []string{"Sessions"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *sessionIDInput) (*struct{}, error) {
			if err := svc.Close(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}

func registerCatalogHandlers(api huma.API, svc Sessions) {
	type kindsOutput struct {
		Body struct {
			Kinds []indicator.Spec `json:"kinds"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-indicator-kinds", Method: http.MethodGet, Path: "/api/v1/indicators", Summary: "List indicator kinds with their default inputs", Tags: []string{"Catalog"}},
		func(ctx context.Context, input *struct{}) (*kindsOutput, error) {
			out := &kindsOutput{}
			out.Body.Kinds = svc.Kinds()
			return out, nil
		})

	type drawingTypesOutput struct {
		Body struct {
			Types []drawingType `json:"types"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-drawing-types", Method: http.MethodGet, Path: "/api/v1/drawings/types", Summary: "List drawing types and their anchor counts", Tags: []string{"Catalog"}},
		func(ctx context.Context, input *struct{}) (*drawingTypesOutput, error) {
			out := &drawingTypesOutput{}
			for _, t := range svc.DrawingTypes() {
				out.Body.Types = append(out.Body.Types, drawingType{Type: t, Points: t.Arity()})
			}
			return out, nil
		})
}

type drawingType struct {
	Type   drawing.Type `json:"type"`
	Points int          `json:"points"`
}

// splitErrors flattens an errors.Join result into messages.
func splitErrors(err error) []string {
	if err == nil {
		return []string{}
	}
	var out []string
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			out = append(out, splitErrors(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
