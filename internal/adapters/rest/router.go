// Package rest exposes a payflow workspace over HTTP for a rendering surface.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/app/services"
	"github.com/payflow/payflow/internal/infrastructure/logging"
	"github.com/payflow/payflow/pkg/validation"
)

// Router creates and configures the HTTP router
type Router struct {
	workspace *services.Workspace
	metrics   http.Handler
	logger    *zap.Logger
}

// NewRouter creates a new router. metrics may be nil, in which case
// /metrics is not served.
func NewRouter(ws *services.Workspace, metrics http.Handler, logger *zap.Logger) *Router {
	return &Router{
		workspace: ws,
		metrics:   metrics,
		logger:    logging.OrNop(logger),
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.logger))

	router.Get("/healthz", rt.health)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics)
	}

	h := newGraphHandler(rt.workspace, rt.logger)
	v := validation.NewMiddleware(nil)

	router.Route("/api/graph", func(r chi.Router) {
		r.Get("/", h.getGraph)

		r.Route("/nodes", func(r chi.Router) {
			r.With(v.ValidateJSON(validation.DropNodeRequest{})).Post("/", h.dropNode)
			r.Put("/", h.replaceNodes)
			r.With(v.ValidateJSON(validation.MoveNodeRequest{})).Patch("/{nodeID}/position", h.moveNode)
			r.With(v.ValidateJSON(validation.LabelRequest{})).Patch("/{nodeID}/label", h.editLabel)
			r.Delete("/{nodeID}", h.deleteNode)
		})

		r.Route("/edges", func(r chi.Router) {
			r.With(v.ValidateJSON(validation.ConnectRequest{})).Post("/", h.connect)
			r.Put("/", h.replaceEdges)
			r.Delete("/{edgeID}", h.removeEdge)
		})

		r.With(v.ValidateJSON(validation.SelectionRequest{})).Put("/selection", h.selectNode)
		r.Post("/save", h.save)
		r.Delete("/save", h.discardSaved)
		r.Get("/saves", h.listSaved)
		r.Post("/load", h.load)
	})

	return router
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(rt.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}
