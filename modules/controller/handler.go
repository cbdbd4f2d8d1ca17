package controller

import (
	"encoding/json"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
)

// AgentRegistry is the subset of the health-heartbeat tracker (modules
// agent side observation, kept by CTRL via an LRU cache keyed by agent_id)
// the status/agents endpoints need.
type AgentRegistry interface {
	Agents() []AgentStatus
}

// AgentStatus summarizes one agent's last-seen heartbeat.
type AgentStatus struct {
	AgentID      string `json:"agent_id"`
	PopID        string `json:"pop_id"`
	LastSeenUnix int64  `json:"last_seen_unix"`
}

// Handler implements CTRL's REST surface (spec §6).
type Handler struct {
	connManager *ConnectionManager
	agents      AgentRegistry
	vopID       string
	logger      log.Logger
}

// NewHandler builds a Handler.
func NewHandler(connManager *ConnectionManager, agents AgentRegistry, vopID string, logger log.Logger) *Handler {
	return &Handler{connManager: connManager, agents: agents, vopID: vopID, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/status", h.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/topology/path/{src}/{dst}", h.PathHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/connections", h.SetupHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/connections/{id}", h.TeardownHandler).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/connections/{id}/setup", h.RetrySetupHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/connections/{id}/reconfigure", h.ManualReconfigureHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/agents", h.AgentsHandler).Methods(http.MethodGet)
}

type statusResponse struct {
	VopID       string        `json:"vop_id"`
	Connections []*Connection `json:"connections"`
}

func (h *Handler) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{VopID: h.vopID, Connections: h.connManager.table.List()})
}

func (h *Handler) PathHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	paths, err := h.connManager.Path(r.Context(), vars["src"], vars["dst"])
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"paths": paths})
}

func (h *Handler) SetupHandler(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.connManager.Setup(r.Context(), req); err != nil {
		level.Error(h.logger).Log("msg", "setup failed", "connection_id", req.ConnectionID, "err", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) RetrySetupHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, ok := h.connManager.table.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, errConnectionNotFound(id))
		return
	}
	req := SetupRequest{
		ConnectionID: conn.ID,
		SrcPop:       conn.SrcPop,
		DstPop:       conn.DstPop,
		Endpoints:    conn.Endpoints,
	}
	if err := h.connManager.Setup(r.Context(), req); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ManualReconfigureHandler lets an operator force a reconfigure of every
// endpoint on a connection outside the QoT loop (e.g. to apply a manually
// computed tx-power change after a planned maintenance window).
func (h *Handler) ManualReconfigureHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, ok := h.connManager.table.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, errConnectionNotFound(id))
		return
	}
	idx := make([]int, len(conn.Endpoints))
	for i := range conn.Endpoints {
		idx[i] = i
	}
	if err := h.connManager.Reconfigure(r.Context(), id, idx, nil, manualReconfigReason); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) TeardownHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.connManager.Teardown(r.Context(), id); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AgentsHandler(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.agents.Agents())
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
