package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/app/dto"
	"github.com/payflow/payflow/internal/app/services"
	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/payflow/payflow/internal/core/graph"
	"github.com/payflow/payflow/pkg/validation"
)

// maxReplaceBytes bounds raw replace payloads
const maxReplaceBytes = 4 << 20

type graphHandler struct {
	ws     *services.Workspace
	logger *zap.Logger
}

func newGraphHandler(ws *services.Workspace, logger *zap.Logger) *graphHandler {
	return &graphHandler{ws: ws, logger: logger}
}

// getGraph handles GET /api/graph
func (h *graphHandler) getGraph(w http.ResponseWriter, _ *http.Request) {
	respondJSON(h.logger, w, http.StatusOK, h.ws.State())
}

// dropNode handles POST /api/graph/nodes
func (h *graphHandler) dropNode(w http.ResponseWriter, r *http.Request) {
	req, ok := validation.Body[validation.DropNodeRequest](r)
	if !ok {
		respondError(h.logger, w, http.StatusBadRequest, "missing request body")
		return
	}
	res, err := h.ws.DropNode(graph.NodeKind(req.Kind), req.Label, graph.Position{X: req.Position.X, Y: req.Position.Y})
	if err != nil {
		h.respondFailure(w, res, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, res)
}

// moveNode handles PATCH /api/graph/nodes/{nodeID}/position
func (h *graphHandler) moveNode(w http.ResponseWriter, r *http.Request) {
	req, ok := validation.Body[validation.MoveNodeRequest](r)
	if !ok {
		respondError(h.logger, w, http.StatusBadRequest, "missing request body")
		return
	}
	pos := graph.Position{X: req.Position.X, Y: req.Position.Y}
	h.respondResult(w, h.ws.MoveNode(chi.URLParam(r, "nodeID"), pos), http.StatusNotFound)
}

// editLabel handles PATCH /api/graph/nodes/{nodeID}/label
func (h *graphHandler) editLabel(w http.ResponseWriter, r *http.Request) {
	req, ok := validation.Body[validation.LabelRequest](r)
	if !ok {
		respondError(h.logger, w, http.StatusBadRequest, "missing request body")
		return
	}
	h.respondResult(w, h.ws.EditLabel(chi.URLParam(r, "nodeID"), req.Label), http.StatusNotFound)
}

// deleteNode handles DELETE /api/graph/nodes/{nodeID}
func (h *graphHandler) deleteNode(w http.ResponseWriter, r *http.Request) {
	h.respondResult(w, h.ws.DeleteNode(chi.URLParam(r, "nodeID")), http.StatusNotFound)
}

// replaceNodes handles PUT /api/graph/nodes with a raw JSON array
func (h *graphHandler) replaceNodes(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReplaceBytes))
	if err != nil {
		respondError(h.logger, w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	res, err := h.ws.ReplaceNodesRaw(raw)
	if err != nil {
		h.respondFailure(w, res, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, res)
}

// replaceEdges handles PUT /api/graph/edges with a raw JSON array
func (h *graphHandler) replaceEdges(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReplaceBytes))
	if err != nil {
		respondError(h.logger, w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	res, err := h.ws.ReplaceEdgesRaw(raw)
	if err != nil {
		h.respondFailure(w, res, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, res)
}

// connect handles POST /api/graph/edges. An ignored connection is not an
// error; the result reports applied=false.
func (h *graphHandler) connect(w http.ResponseWriter, r *http.Request) {
	req, ok := validation.Body[validation.ConnectRequest](r)
	if !ok {
		respondError(h.logger, w, http.StatusBadRequest, "missing request body")
		return
	}
	res := h.ws.Connect(req.Source, req.Target, req.Style)
	status := http.StatusOK
	if res.Applied {
		status = http.StatusCreated
	}
	respondJSON(h.logger, w, status, res)
}

// removeEdge handles DELETE /api/graph/edges/{edgeID}
func (h *graphHandler) removeEdge(w http.ResponseWriter, r *http.Request) {
	h.respondResult(w, h.ws.RemoveEdge(chi.URLParam(r, "edgeID")), http.StatusNotFound)
}

// selectNode handles PUT /api/graph/selection
func (h *graphHandler) selectNode(w http.ResponseWriter, r *http.Request) {
	req, ok := validation.Body[validation.SelectionRequest](r)
	if !ok {
		respondError(h.logger, w, http.StatusBadRequest, "missing request body")
		return
	}
	h.respondResult(w, h.ws.Select(req.NodeID), http.StatusNotFound)
}

// save handles POST /api/graph/save
func (h *graphHandler) save(w http.ResponseWriter, r *http.Request) {
	out, err := h.ws.Save(r.Context())
	if err != nil {
		respondJSON(h.logger, w, statusFor(err), errorBody{Error: true, Message: out.Message, Detail: err.Error()})
		return
	}
	respondJSON(h.logger, w, http.StatusOK, out)
}

// load handles POST /api/graph/load
func (h *graphHandler) load(w http.ResponseWriter, r *http.Request) {
	res, err := h.ws.Load(r.Context())
	if err != nil {
		h.respondFailure(w, res, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, res)
}

// discardSaved handles DELETE /api/graph/save
func (h *graphHandler) discardSaved(w http.ResponseWriter, r *http.Request) {
	res, err := h.ws.DiscardSaved(r.Context())
	if err != nil {
		h.respondFailure(w, res, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, res)
}

// listSaved handles GET /api/graph/saves?prefix=&limit=&offset=
func (h *graphHandler) listSaved(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := checkpoint.Filter{KeyPrefix: q.Get("prefix")}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(h.logger, w, http.StatusBadRequest, "invalid "+name+" parameter")
			return
		}
		*dst = n
	}

	saved, err := h.ws.SavedFlows(r.Context(), filter)
	if err != nil {
		respondJSON(h.logger, w, statusFor(err), errorBody{Error: true, Message: "Failed to list saved flows", Detail: err.Error()})
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"saved": saved})
}

func (h *graphHandler) respondResult(w http.ResponseWriter, res dto.Result, missStatus int) {
	status := http.StatusOK
	if !res.Applied {
		status = missStatus
	}
	respondJSON(h.logger, w, status, res)
}

// failureBody carries the status message and unchanged state alongside the error
type failureBody struct {
	errorBody
	State dto.GraphState `json:"state"`
}

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (h *graphHandler) respondFailure(w http.ResponseWriter, res dto.Result, err error) {
	respondJSON(h.logger, w, statusFor(err), failureBody{
		errorBody: errorBody{Error: true, Message: res.Message, Detail: err.Error()},
		State:     res.State,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dto.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dto.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, dto.ErrInvalidSnapshot):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dto.ErrTransport):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func respondError(logger *zap.Logger, w http.ResponseWriter, status int, message string) {
	respondJSON(logger, w, status, errorBody{Error: true, Message: message})
}
