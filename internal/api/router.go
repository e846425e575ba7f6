// Package api exposes chart sessions over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chartdesk/internal/drawing"
	"chartdesk/internal/feed"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
	"chartdesk/internal/session"
	"chartdesk/internal/workspace"
)

// Sessions is what the HTTP layer drives. *session.Manager implements it.
type Sessions interface {
	Open(ctx context.Context, key model.SeriesKey) (string, workspace.Snapshot, error)
	Apply(ctx context.Context, id string, events []workspace.Event) (workspace.Snapshot, error)
	Dump(id string) (workspace.Snapshot, error)
	Save(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	List() []session.Info
	Kinds() []indicator.Spec
	DrawingTypes() []drawing.Type
}

// NewRouter returns the chi router with every operation registered. Callers
// may mount further routes on it.
func NewRouter(svc Sessions, log *slog.Logger) *chi.Mux {
	if log == nil {
		log = slog.Default()
	}
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("chartdesk", "1.0.0")
	cfg.Components.Schemas = huma.NewMapRegistry("#/components/schemas/", schemaNamer)
	api := humachi.New(router, cfg)

	router.Get("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			log.Debug("health response write failed", "error", err)
		}
	})

	registerSessionHandlers(api, svc)
	registerCatalogHandlers(api, svc)
	return router
}

// schemaNamer prefixes named types with their package so that hover.State
// and scale.State get distinct schemas.
func schemaNamer(t reflect.Type, hint string) string {
	name := huma.DefaultSchemaNamer(t, hint)
	base := t
	for base.Kind() == reflect.Pointer || base.Kind() == reflect.Slice || base.Kind() == reflect.Array || base.Kind() == reflect.Map {
		base = base.Elem()
	}
	if base.Name() == "" {
		return name
	}
	pkg := path.Base(base.PkgPath())
	if pkg == "." || pkg == "/" || pkg == "" {
		return name
	}
	return strings.ToUpper(pkg[:1]) + pkg[1:] + name
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, feed.ErrBadKey):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, feed.ErrNoData), errors.Is(err, model.ErrBadBar), errors.Is(err, model.ErrUnordered):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
