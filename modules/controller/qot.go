package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
)

// QoTConfig holds the thresholds and defaults spec §4.3.2 fixes exactly.
type QoTConfig struct {
	OSNRThresholdDB    float64
	BERThreshold       float64
	PersistencySamples int
	CooldownSec        time.Duration
	TxStepDB           float64
	TxMinDBm           float64
	TxMaxDBm           float64
	AdjustMode         string // "both" or "one"
}

const (
	AdjustModeBoth = "both"
	AdjustModeOne  = "one"
)

// DefaultQoTConfig returns spec §4.3.2's defaults.
func DefaultQoTConfig() QoTConfig {
	return QoTConfig{
		OSNRThresholdDB:    18.0,
		BERThreshold:       1e-3,
		PersistencySamples: 3,
		CooldownSec:        20 * time.Second,
		TxStepDB:           1.0,
		TxMinDBm:           -15.0,
		TxMaxDBm:           0.0,
		AdjustMode:         AdjustModeBoth,
	}
}

// Reconfigurer is the action the QoT monitor drives when a connection needs
// a tx-power bump: write the new per-endpoint tx-powers (parallel to
// endpointIdx) into the connection, publish reconfigConnection commands
// carrying them, and transition the connection's state.
type Reconfigurer interface {
	Reconfigure(ctx context.Context, connID string, endpointIdx []int, newTxDBm []float64, reason messages.ReconfigReason) error
}

type connQoTState struct {
	badCount     int
	lastActionTs time.Time
	lastTx       []float64 // per endpoint index, mirrors Connection.Endpoints
}

// QoTMonitor evaluates incoming telemetry against the degraded predicate
// and drives bounded, cooled-down tx-power reconfiguration (spec §4.3.2).
type QoTMonitor struct {
	cfg    QoTConfig
	table  *Table
	action Reconfigurer
	logger log.Logger

	mu    sync.Mutex
	state map[string]*connQoTState
}

// NewQoTMonitor builds a QoTMonitor.
func NewQoTMonitor(cfg QoTConfig, table *Table, action Reconfigurer, logger log.Logger) *QoTMonitor {
	return &QoTMonitor{
		cfg:    cfg,
		table:  table,
		action: action,
		logger: logger,
		state:  make(map[string]*connQoTState),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Observe feeds one telemetry sample for (connID, interfaceID, agentID)
// into the QoT loop. now is passed in rather than read from time.Now so
// tests can drive the cooldown/persistency logic deterministically.
func (m *QoTMonitor) Observe(ctx context.Context, connID, interfaceID, agentID string, fields messages.TelemetryFields, now time.Time) error {
	conn, ok := m.table.Get(connID)
	if !ok {
		return fmt.Errorf("connection %s not found", connID)
	}

	degraded := fields.OSNR < m.cfg.OSNRThresholdDB || fields.PreFECBER > m.cfg.BERThreshold

	m.mu.Lock()
	st, ok := m.state[connID]
	if !ok {
		st = &connQoTState{lastTx: initialTx(conn)}
		m.state[connID] = st
	}

	if degraded {
		st.badCount++
	} else {
		st.badCount = 0
	}

	shouldAct := st.badCount >= m.cfg.PersistencySamples && now.Sub(st.lastActionTs) >= m.cfg.CooldownSec
	if !shouldAct {
		m.mu.Unlock()
		if degraded {
			_ = m.table.Transition(connID, StateDegraded, nil)
		}
		return nil
	}

	endpointIdx := m.selectEndpoints(conn)
	newTxDBm := make([]float64, len(endpointIdx))
	for i, idx := range endpointIdx {
		st.lastTx[idx] = clamp(st.lastTx[idx]+m.cfg.TxStepDB, m.cfg.TxMinDBm, m.cfg.TxMaxDBm)
		newTxDBm[i] = st.lastTx[idx]
	}
	st.lastActionTs = now
	badCount := st.badCount
	st.badCount = 0
	m.mu.Unlock()

	reason := messages.ReconfigReason{
		BadCount:  badCount,
		OSNR:      fields.OSNR,
		PreFECBER: fields.PreFECBER,
		Interface: interfaceID,
		AgentID:   agentID,
	}

	if err := m.action.Reconfigure(ctx, connID, endpointIdx, newTxDBm, reason); err != nil {
		level.Error(m.logger).Log("msg", "reconfigure dispatch failed", "connection_id", connID, "err", err)
		return err
	}
	reconfigurationsTotal.Inc()

	level.Info(m.logger).Log("msg", "qot-triggered reconfigure", "connection_id", connID, "bad_count", badCount, "osnr", fields.OSNR, "pre_fec_ber", fields.PreFECBER)
	return nil
}

// selectEndpoints picks which endpoints to adjust per AdjustMode: "both"
// adjusts every endpoint on the connection, "one" adjusts only the first.
func (m *QoTMonitor) selectEndpoints(conn *Connection) []int {
	if len(conn.Endpoints) == 0 {
		return nil
	}
	if m.cfg.AdjustMode == AdjustModeOne {
		return []int{0}
	}
	idx := make([]int, len(conn.Endpoints))
	for i := range conn.Endpoints {
		idx[i] = i
	}
	return idx
}

// LastTxPower returns the tx-power the monitor currently believes each
// endpoint holds, for tests and the status endpoint.
func (m *QoTMonitor) LastTxPower(connID string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[connID]
	if !ok {
		return nil
	}
	return append([]float64(nil), st.lastTx...)
}

func initialTx(conn *Connection) []float64 {
	tx := make([]float64, len(conn.Endpoints))
	for i, ep := range conn.Endpoints {
		tx[i] = ep.TxPowerDBm
	}
	return tx
}
