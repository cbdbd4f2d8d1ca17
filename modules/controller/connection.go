// Package controller implements the per-vOp Controller service (spec §4.3):
// path computation, the connection lifecycle state machine, Kafka command
// dispatch, and the closed-loop QoT monitor.
package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
)

// ConnState is a Connection's lifecycle state (spec §3, §4.3.1).
type ConnState string

const (
	StateIdle             ConnState = "IDLE"
	StatePlanned          ConnState = "PLANNED"
	StateSetupPending     ConnState = "SETUP_PENDING"
	StateActive           ConnState = "ACTIVE"
	StateDegraded         ConnState = "DEGRADED"
	StateReconfigPending  ConnState = "RECONFIG_PENDING"
	StateTeardown         ConnState = "TEARDOWN"
	StateDeleted          ConnState = "DELETED"
	StateFailed           ConnState = "FAILED"
)

// Endpoint is one end of a connection: the POP/router/port it terminates
// on plus its current optical configuration.
type Endpoint struct {
	PopID        string
	RouterID     string
	InterfaceID  string
	FrequencyGHz float64
	TxPowerDBm   float64
}

// Connection is CTRL's single-owner record of one optical connection (spec
// §9 design note: "typed map with explicit lifecycle via a single
// state-machine entry point", replacing an ad-hoc per-connection dict).
type Connection struct {
	ID            string
	SrcPop        string
	DstPop        string
	Endpoints     []Endpoint
	LinkIDs       []string
	SlotStart     int
	SlotCount     int
	State         ConnState
	Acks          map[string]messages.AckStatus // agent_id -> last ack status
	LastCommandID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var validTransitions = map[ConnState]map[ConnState]bool{
	StateIdle:            {StatePlanned: true},
	StatePlanned:         {StateSetupPending: true, StateFailed: true},
	StateSetupPending:    {StateActive: true, StateFailed: true, StateTeardown: true},
	StateActive:          {StateDegraded: true, StateTeardown: true},
	StateDegraded:        {StateActive: true, StateReconfigPending: true, StateTeardown: true},
	StateReconfigPending: {StateActive: true, StateDegraded: true, StateFailed: true, StateTeardown: true},
	StateTeardown:        {StateDeleted: true},
	StateFailed:          {StateTeardown: true},
	StateDeleted:         {},
}

// ErrInvalidTransition is returned when Table.Transition is asked to move a
// connection between states the state machine doesn't allow.
type ErrInvalidTransition struct {
	From, To ConnState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid connection transition %s -> %s", e.From, e.To)
}

// Table owns the set of live connections; all state changes go through
// Transition so spec §3's lifecycle rules hold by construction and nothing
// outside this package can move a connection between states directly.
type Table struct {
	mu          sync.Mutex
	connections map[string]*Connection
}

// NewTable returns an empty connection table.
func NewTable() *Table {
	return &Table{connections: make(map[string]*Connection)}
}

// Create registers a new connection in IDLE.
func (t *Table) Create(id, srcPop, dstPop string) *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Connection{
		ID:        id,
		SrcPop:    srcPop,
		DstPop:    dstPop,
		State:     StateIdle,
		Acks:      make(map[string]messages.AckStatus),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	t.connections[id] = c
	return c
}

// Get returns a connection by id.
func (t *Table) Get(id string) (*Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.connections[id]
	return c, ok
}

// List returns every connection currently tracked.
func (t *Table) List() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Connection, 0, len(t.connections))
	for _, c := range t.connections {
		out = append(out, c)
	}
	return out
}

// Delete removes a connection from the table (only valid once DELETED).
func (t *Table) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connections, id)
}

// Transition is the single entry point for moving a connection between
// states. mutate runs under the table lock so callers can update other
// connection fields (endpoints, acks, slot assignment) atomically with the
// state change.
func (t *Table) Transition(id string, to ConnState, mutate func(*Connection)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.connections[id]
	if !ok {
		return fmt.Errorf("connection %s not found", id)
	}
	if !validTransitions[c.State][to] {
		return &ErrInvalidTransition{From: c.State, To: to}
	}
	c.State = to
	c.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(c)
	}
	connectionTransitionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}
