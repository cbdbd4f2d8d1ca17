package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/ipowdm/sdn-control-plane/pkg/linkdbclient"
	"github.com/ipowdm/sdn-control-plane/pkg/messages"
	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

// LinkDB is the full subset of linkdbclient.Client the Controller depends
// on: path computation (PathComputer) and allocate/release.
type LinkDB interface {
	LinkDBReader
	Allocate(ctx context.Context, req linkdbclient.AllocateRequest) (linkdbclient.AllocateResponse, error)
	Release(ctx context.Context, connID string) error
}

// CommandPublisher publishes a command onto config_<vop>, keyed by
// connection id so Kafka's per-partition ordering keeps commands for one
// connection in order (spec §5).
type CommandPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// SetupRequest is CTRL's POST /api/v1/connections body.
type SetupRequest struct {
	ConnectionID  string
	SrcPop        string
	DstPop        string
	Endpoints     []Endpoint
	BandwidthGbps int
	Modulation    string
}

// pendingCommand tracks one outstanding command awaiting acks from every
// endpoint's agent, so a command_timeout can fail the connection per spec
// §4.3.1/§4.3.2.
type pendingCommand struct {
	connID      string
	expectedAck int
	gotAck      map[string]bool
	onTimeout   ConnState
	timer       *time.Timer
}

// ConnectionManager drives the connection lifecycle: path computation,
// LinkDB allocation, command dispatch over Kafka, ack bookkeeping, command
// timeouts, and QoT-driven reconfiguration (spec §4.3).
type ConnectionManager struct {
	table          *Table
	pathComputer   *PathComputer
	linkDB         LinkDB
	publisher      CommandPublisher
	commandTimeout time.Duration
	logger         log.Logger

	mu       sync.Mutex
	pending  map[string]*pendingCommand // command_id -> pending
}

// NewConnectionManager builds a ConnectionManager. commandTimeout defaults
// to 30s (spec §5) when zero.
func NewConnectionManager(table *Table, pathComputer *PathComputer, linkDB LinkDB, publisher CommandPublisher, commandTimeout time.Duration, logger log.Logger) *ConnectionManager {
	if commandTimeout <= 0 {
		commandTimeout = 30 * time.Second
	}
	return &ConnectionManager{
		table:          table,
		pathComputer:   pathComputer,
		linkDB:         linkDB,
		publisher:      publisher,
		commandTimeout: commandTimeout,
		logger:         logger,
		pending:        make(map[string]*pendingCommand),
	}
}

// Setup computes a path, allocates spectrum on LinkDB, and publishes
// setupConnection to every endpoint's agent, transitioning the connection
// PLANNED -> SETUP_PENDING. ACTIVE follows once every endpoint acks
// (HandleAck); FAILED follows a nack or command_timeout.
func (m *ConnectionManager) Setup(ctx context.Context, req SetupRequest) error {
	conn := m.table.Create(req.ConnectionID, req.SrcPop, req.DstPop)

	plan, err := m.pathComputer.Compute(ctx, req.SrcPop, req.DstPop, req.BandwidthGbps, req.Modulation)
	if err != nil {
		_ = m.table.Transition(conn.ID, StateFailed, nil)
		return fmt.Errorf("path computation: %w", err)
	}

	if err := m.table.Transition(conn.ID, StatePlanned, func(c *Connection) {
		c.LinkIDs = plan.LinkIDs
		c.SlotCount = plan.SlotsRequired
		c.Endpoints = req.Endpoints
	}); err != nil {
		return err
	}

	allocResp, err := m.linkDB.Allocate(ctx, linkdbclient.AllocateRequest{
		ConnectionID:  conn.ID,
		LinkIDs:       plan.LinkIDs,
		SlotsRequired: plan.SlotsRequired,
	})
	if err != nil {
		_ = m.table.Transition(conn.ID, StateFailed, nil)
		return fmt.Errorf("allocate spectrum: %w", err)
	}

	commandID := conn.ID + "-setup"
	if err := m.table.Transition(conn.ID, StateSetupPending, func(c *Connection) {
		c.SlotStart = allocResp.StartIndex
		c.LastCommandID = commandID
	}); err != nil {
		return err
	}

	m.trackPending(commandID, conn.ID, len(req.Endpoints), StateFailed)

	for _, ep := range req.Endpoints {
		cmd := messages.Command{
			Action:    messages.ActionSetupConnection,
			CommandID: commandID,
			TargetPop: ep.PopID,
			Parameters: messages.CommandParameters{
				ConnectionID: conn.ID,
				EndpointConfig: []messages.EndpointConfig{{
					PopID:        ep.PopID,
					NodeID:       ep.RouterID,
					PortID:       ep.InterfaceID,
					Frequency:    ep.FrequencyGHz,
					TxPowerLevel: ep.TxPowerDBm,
				}},
			},
		}
		if err := m.publish(ctx, conn.ID, cmd); err != nil {
			return fmt.Errorf("publish setupConnection: %w", err)
		}
	}

	return nil
}

// Reconfigure implements the Reconfigurer interface the QoT monitor drives:
// it writes the new per-endpoint tx-powers into the connection (so the
// published command and the table agree on what the agent now holds), then
// publishes reconfigConnection for the selected endpoints and moves the
// connection to RECONFIG_PENDING. newTxDBm is parallel to endpointIdx; pass
// nil to resend each endpoint's current tx-power unchanged (the manual
// reconfigure path).
func (m *ConnectionManager) Reconfigure(ctx context.Context, connID string, endpointIdx []int, newTxDBm []float64, reason messages.ReconfigReason) error {
	_, ok := m.table.Get(connID)
	if !ok {
		return fmt.Errorf("connection %s not found", connID)
	}

	commandID := fmt.Sprintf("%s-reconfig-%s", connID, uuid.NewString())
	if err := m.table.Transition(connID, StateReconfigPending, func(c *Connection) {
		c.LastCommandID = commandID
		for i, idx := range endpointIdx {
			if newTxDBm == nil {
				continue
			}
			c.Endpoints[idx].TxPowerDBm = newTxDBm[i]
		}
	}); err != nil {
		return err
	}

	conn, ok := m.table.Get(connID)
	if !ok {
		return fmt.Errorf("connection %s not found", connID)
	}

	m.trackPending(commandID, connID, len(endpointIdx), StateDegraded)

	for _, idx := range endpointIdx {
		ep := conn.Endpoints[idx]
		cmd := messages.Command{
			Action:    messages.ActionReconfigConnection,
			CommandID: commandID,
			TargetPop: ep.PopID,
			Parameters: messages.CommandParameters{
				ConnectionID: connID,
				EndpointConfig: []messages.EndpointConfig{{
					PopID:        ep.PopID,
					NodeID:       ep.RouterID,
					PortID:       ep.InterfaceID,
					Frequency:    ep.FrequencyGHz,
					TxPowerLevel: ep.TxPowerDBm,
				}},
				Reason: &reason,
			},
		}
		if err := m.publish(ctx, connID, cmd); err != nil {
			return fmt.Errorf("publish reconfigConnection: %w", err)
		}
	}
	return nil
}

// Teardown publishes teardownConnection to every endpoint and, once
// LinkDB's allocation is released, moves the connection to DELETED.
func (m *ConnectionManager) Teardown(ctx context.Context, connID string) error {
	conn, ok := m.table.Get(connID)
	if !ok {
		return fmt.Errorf("connection %s not found", connID)
	}

	if err := m.table.Transition(connID, StateTeardown, nil); err != nil {
		return err
	}

	commandID := connID + "-teardown"
	for _, ep := range conn.Endpoints {
		cmd := messages.Command{
			Action:    messages.ActionTeardownConnection,
			CommandID: commandID,
			TargetPop: ep.PopID,
			Parameters: messages.CommandParameters{
				ConnectionID: connID,
			},
		}
		if err := m.publish(ctx, connID, cmd); err != nil {
			level.Error(m.logger).Log("msg", "publish teardownConnection failed", "connection_id", connID, "err", err)
		}
	}

	if err := m.linkDB.Release(ctx, connID); err != nil {
		return fmt.Errorf("release allocation: %w", err)
	}

	return m.table.Transition(connID, StateDeleted, nil)
}

// HandleAck applies one agent's ack for an outstanding command. Once every
// expected endpoint has acked ok, the connection advances out of
// SETUP_PENDING/RECONFIG_PENDING; any error ack fails the command
// immediately.
func (m *ConnectionManager) HandleAck(ctx context.Context, ack messages.Ack) error {
	m.mu.Lock()
	pc, ok := m.pending[ack.CommandID]
	if !ok {
		m.mu.Unlock()
		return nil // stale or already-resolved command; ignore (spec §4.4 idempotence is the agent's job)
	}

	if ack.Status == messages.AckError {
		delete(m.pending, ack.CommandID)
		pc.timer.Stop()
		m.mu.Unlock()
		return m.failConnection(ctx, pc.connID)
	}

	pc.gotAck[ack.AgentID] = true
	complete := len(pc.gotAck) >= pc.expectedAck
	if complete {
		delete(m.pending, ack.CommandID)
		pc.timer.Stop()
	}
	m.mu.Unlock()

	if !complete {
		return nil
	}

	conn, ok := m.table.Get(pc.connID)
	if !ok {
		return nil
	}
	switch conn.State {
	case StateSetupPending:
		return m.table.Transition(pc.connID, StateActive, nil)
	case StateReconfigPending:
		return m.table.Transition(pc.connID, StateActive, nil)
	default:
		return nil
	}
}

func (m *ConnectionManager) failConnection(ctx context.Context, connID string) error {
	if err := m.linkDB.Release(ctx, connID); err != nil {
		level.Error(m.logger).Log("msg", "release after failure errored", "connection_id", connID, "err", err)
	}
	return m.table.Transition(connID, StateFailed, nil)
}

func (m *ConnectionManager) trackPending(commandID, connID string, expectedAck int, onTimeout ConnState) {
	pc := &pendingCommand{
		connID:      connID,
		expectedAck: expectedAck,
		gotAck:      make(map[string]bool),
		onTimeout:   onTimeout,
	}
	pc.timer = time.AfterFunc(m.commandTimeout, func() {
		m.mu.Lock()
		_, stillPending := m.pending[commandID]
		delete(m.pending, commandID)
		m.mu.Unlock()
		if !stillPending {
			return
		}
		level.Error(m.logger).Log("msg", "command timed out", "command_id", commandID, "connection_id", connID)
		commandTimeoutsTotal.Inc()
		if err := m.failConnection(context.Background(), connID); err != nil {
			level.Error(m.logger).Log("msg", "failConnection after timeout errored", "connection_id", connID, "err", err)
		}
	})

	m.mu.Lock()
	m.pending[commandID] = pc
	m.mu.Unlock()
}

func (m *ConnectionManager) publish(ctx context.Context, connID string, cmd messages.Command) error {
	data, err := cmd.Marshal()
	if err != nil {
		return err
	}
	return m.publisher.Publish(ctx, connID, data)
}

// Path exposes path computation directly for CTRL's GET
// /api/v1/topology/path/{src}/{dst}.
func (m *ConnectionManager) Path(ctx context.Context, src, dst string) ([]topology.Path, error) {
	return m.linkDB.Path(ctx, src, dst, 1)
}
