package linkdb

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

// Handler exposes LinkDB's REST surface (spec §6): topology reads, POP/link
// creation, interface reservation, and connection allocate/release, over the in-process Store.
type Handler struct {
	store  *Store
	logger log.Logger
}

// NewHandler wraps store with an HTTP handler.
func NewHandler(store *Store, logger log.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes wires LinkDB's REST surface onto r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/topology", h.TopologyHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/pops", h.CreatePOPHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/links", h.CreateLinkHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/connections/allocate", h.AllocateHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/connections/{id}", h.ReleaseHandler).Methods(http.MethodDelete)
	r.HandleFunc("/api/frequencies/{link_id}", h.FrequenciesHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/topology/path/{src}/{dst}", h.PathHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/interfaces/reserve", h.ReserveInterfacesHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/interfaces/release", h.ReleaseInterfacesHandler).Methods(http.MethodPost)
}

type reserveInterfacesRequest struct {
	Vop          string   `json:"vop"`
	InterfaceIDs []string `json:"interface_ids"`
}

func (h *Handler) ReserveInterfacesHandler(w http.ResponseWriter, r *http.Request) {
	var req reserveInterfacesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.store.ReserveInterfaces(req.Vop, req.InterfaceIDs); err != nil {
		if errors.Is(err, ErrInterfaceUnavailable) {
			h.writeError(w, http.StatusConflict, err)
			return
		}
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReleaseInterfacesHandler(w http.ResponseWriter, r *http.Request) {
	var req reserveInterfacesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.store.ReleaseInterfaces(req.Vop, req.InterfaceIDs); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PathHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	k := 1
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		if parsed, err := strconv.Atoi(kStr); err == nil && parsed > 0 {
			k = parsed
		}
	}
	paths, err := h.store.Path(vars["src"], vars["dst"], k)
	if err != nil {
		if errors.Is(err, ErrPathInfeasible) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"paths": paths})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) TopologyHandler(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.GetTopology())
}

type createPOPRequest struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Location topology.LatLong `json:"location"`
}

func (h *Handler) CreatePOPHandler(w http.ResponseWriter, r *http.Request) {
	var req createPOPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.store.CreatePOP(topology.POP{ID: req.ID, Name: req.Name, Location: req.Location}); err != nil {
		h.writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type createLinkRequest struct {
	ID         string  `json:"id"`
	PopA       string  `json:"pop_a"`
	PopB       string  `json:"pop_b"`
	DistanceKM float64 `json:"distance_km"`
	SlotCount  int     `json:"slot_count"`
}

func (h *Handler) CreateLinkHandler(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.store.CreateLink(req.ID, req.PopA, req.PopB, req.DistanceKM, req.SlotCount); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type allocateRequest struct {
	ConnectionID string   `json:"connection_id"`
	LinkIDs      []string `json:"link_ids"`
	SlotsRequired int     `json:"slots_required"`
}

type allocateResponse struct {
	StartIndex int `json:"start_index"`
	SlotCount  int `json:"slot_count"`
}

func (h *Handler) AllocateHandler(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	idx, err := h.store.Allocate(req.ConnectionID, req.LinkIDs, req.SlotsRequired)
	switch {
	case err == nil:
		allocationsTotal.WithLabelValues("success").Inc()
		h.writeJSON(w, http.StatusOK, allocateResponse{StartIndex: idx, SlotCount: req.SlotsRequired})
	case errors.Is(err, ErrNoSpectrum):
		allocationsTotal.WithLabelValues("no_spectrum").Inc()
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrConflict):
		allocationsTotal.WithLabelValues("conflict").Inc()
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrPathInfeasible):
		allocationsTotal.WithLabelValues("path_infeasible").Inc()
		h.writeError(w, http.StatusBadRequest, err)
	default:
		allocationsTotal.WithLabelValues("error").Inc()
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) ReleaseHandler(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]
	if err := h.store.Release(connID); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) FrequenciesHandler(w http.ResponseWriter, r *http.Request) {
	linkID := mux.Vars(r)["link_id"]
	t := h.store.GetTopology()
	for _, l := range t.Links {
		if l.ID == linkID {
			h.writeJSON(w, http.StatusOK, l)
			return
		}
	}
	h.writeError(w, http.StatusNotFound, ErrNotFound)
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
