// Package debugapi exposes a tiny read-only HTTP introspection surface over
// a running server.Engine: current world property values, connected
// controllers, and a single entity's property snapshot. This is
// diagnostic tooling for operators, not the entity-replication transport
// itself.
package debugapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JeffM2501/EntityNetwork/server"
)

// NewRouter builds the chi router serving GET /world, GET /controllers, and
// GET /entities/{id} against the given engine.
func NewRouter(e *server.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	h := &handler{engine: e}
	r.Get("/world", h.world)
	r.Get("/controllers", h.controllers)
	r.Get("/entities/{id}", h.entity)
	return r
}

type handler struct {
	engine *server.Engine
}

type worldPropertyView struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

func (h *handler) world(w http.ResponseWriter, r *http.Request) {
	cells := h.engine.World.WorldCells()
	out := make([]worldPropertyView, len(cells))
	for i, c := range cells {
		out[i] = worldPropertyView{ID: i, Value: cellString(c)}
	}
	writeJSON(w, http.StatusOK, out)
}

type controllerView struct {
	ID         int64             `json:"id"`
	Properties map[string]string `json:"properties"`
}

func (h *handler) controllers(w http.ResponseWriter, r *http.Request) {
	ids := h.engine.PeerIDs()
	out := make([]controllerView, 0, len(ids))
	table := h.engine.World.ControllerPropertyTable()
	for _, id := range ids {
		ctrl, ok := h.engine.Peer(id)
		if !ok {
			continue
		}
		props := make(map[string]string, len(table))
		for i, desc := range table {
			if cell := ctrl.Cell(i); cell != nil {
				props[desc.Name] = cellString(cell)
			}
		}
		out = append(out, controllerView{ID: id, Properties: props})
	}
	writeJSON(w, http.StatusOK, out)
}

type entityView struct {
	ID         int64             `json:"id"`
	Type       string            `json:"type"`
	Owner      int64             `json:"owner"`
	Properties map[string]string `json:"properties"`
}

func (h *handler) entity(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid entity id", http.StatusBadRequest)
		return
	}
	inst, ok := h.engine.World.Entities.Get(id)
	if !ok {
		http.Error(w, "entity not found", http.StatusNotFound)
		return
	}
	props := make(map[string]string, len(inst.Desc.Properties))
	for i, desc := range inst.Desc.Properties {
		props[desc.Name] = cellString(inst.Cell(i))
	}
	writeJSON(w, http.StatusOK, entityView{
		ID:         inst.ID(),
		Type:       inst.Desc.Name,
		Owner:      inst.Owner(),
		Properties: props,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
