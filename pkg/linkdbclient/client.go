// Package linkdbclient is the HTTP client SM and CTRL use to reach LinkDB's
// REST surface (spec §6), grounded on the same doRequest-wrapper shape the
// teacher uses for its inter-service Tempo client.
package linkdbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

// Short names for LinkDB's allocation failure modes. LinkDB's error
// responses carry the error message text, not these names, so an
// APIError's Reason never equals one of them.
const (
	ReasonNoSpectrum     = "no_spectrum"
	ReasonConflict       = "conflict"
	ReasonPathInfeasible = "path_infeasible"
)

// Client talks to one LinkDB instance over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     log.Logger
}

// Config configures a Client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// New builds a Client. A zero Timeout defaults to 10s.
func New(cfg Config, logger log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// AllocateRequest mirrors LinkDB's POST /api/connections/allocate body.
type AllocateRequest struct {
	ConnectionID  string   `json:"connection_id"`
	LinkIDs       []string `json:"link_ids"`
	SlotsRequired int      `json:"slots_required"`
}

// AllocateResponse mirrors LinkDB's allocate success body.
type AllocateResponse struct {
	StartIndex int `json:"start_index"`
	SlotCount  int `json:"slot_count"`
}

// APIError is returned when LinkDB responds with a non-2xx status; Reason
// holds the JSON "error" field, which is the message text of LinkDB's
// error (for example "no contiguous spectrum block available").
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("linkdb: status %d: %s", e.StatusCode, e.Reason)
}

// Allocate requests a spectrum allocation for a connection.
func (c *Client) Allocate(ctx context.Context, req AllocateRequest) (AllocateResponse, error) {
	var resp AllocateResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/connections/allocate", req, &resp)
	return resp, err
}

// Release frees the allocation held by connID.
func (c *Client) Release(ctx context.Context, connID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/connections/"+connID, nil, nil)
}

type reserveRequest struct {
	Vop        string   `json:"vop"`
	InterfaceIDs []string `json:"interface_ids"`
}

// ReserveInterfaces reserves a set of interfaces for vop.
func (c *Client) ReserveInterfaces(ctx context.Context, vop string, ifaceIDs []string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/interfaces/reserve", reserveRequest{Vop: vop, InterfaceIDs: ifaceIDs}, nil)
}

// ReleaseInterfaces releases a set of interfaces held by vop.
func (c *Client) ReleaseInterfaces(ctx context.Context, vop string, ifaceIDs []string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/interfaces/release", reserveRequest{Vop: vop, InterfaceIDs: ifaceIDs}, nil)
}

// GetTopology fetches the current topology snapshot.
func (c *Client) GetTopology(ctx context.Context) (topology.Topology, error) {
	var t topology.Topology
	err := c.doJSON(ctx, http.MethodGet, "/api/topology", nil, &t)
	return t, err
}

type pathResponse struct {
	Paths []topology.Path `json:"paths"`
}

// Path fetches up to k shortest paths between src and dst.
func (c *Client) Path(ctx context.Context, src, dst string, k int) ([]topology.Path, error) {
	var resp pathResponse
	path := fmt.Sprintf("/api/topology/path/%s/%s?k=%d", src, dst, k)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &resp)
	return resp.Paths, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	level.Debug(c.logger).Log("msg", "linkdb request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("linkdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{StatusCode: resp.StatusCode, Reason: errBody.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
