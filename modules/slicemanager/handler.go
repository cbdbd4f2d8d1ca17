package slicemanager

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
)

// Handler implements SM's REST surface (spec §6).
type Handler struct {
	mgr    *Manager
	logger log.Logger
}

func NewHandler(mgr *Manager, logger log.Logger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/vops", h.ActivateHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/vops", h.ListHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/vops/{id}", h.GetHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/vops/{id}", h.DeactivateHandler).Methods(http.MethodDelete)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	vop, err := h.mgr.Activate(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidVopID):
			h.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, ErrAlreadyActive):
			h.writeError(w, http.StatusConflict, err)
		default:
			level.Error(h.logger).Log("msg", "activate failed", "vop", req.VopID, "err", err)
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, vop)
}

func (h *Handler) ListHandler(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.mgr.List())
}

func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	vop, ok := h.mgr.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, ErrVopNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, vop)
}

func (h *Handler) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.mgr.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, ErrVopNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		level.Error(h.logger).Log("msg", "failed to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
