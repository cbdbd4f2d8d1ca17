// Package agent implements the SONiC Agent (spec §4.4): one process per
// switch, consuming config_<vop>, driving the transceiver hardware
// abstraction, and publishing acks and periodic telemetry on
// monitoring_<vop>.
package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
	"github.com/ipowdm/sdn-control-plane/pkg/transceiver"
)

// Publisher publishes a record keyed by connection id onto monitoring_<vop>.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Config holds an Agent's identity and QoT-unrelated tunables (spec §6
// environment variables AGENT-side: AGENT's own identity isn't listed
// explicitly, VIRTUAL_OPERATOR/pop scoping comes from deployment).
type Config struct {
	AgentID               string
	PopID                 string
	TelemetryIntervalSec  float64
	DedupeCacheSize       int
}

// DefaultConfig returns reasonable defaults; TelemetryIntervalSec matches
// spec §6's TELEMETRY_INTERVAL_SEC default of 3.0s.
func DefaultConfig(agentID, popID string) Config {
	return Config{AgentID: agentID, PopID: popID, TelemetryIntervalSec: 3.0, DedupeCacheSize: 4096}
}

// Agent dispatches config_<vop> commands to the hardware driver and runs
// telemetry sessions for connections it owns.
type Agent struct {
	cfg       Config
	driver    transceiver.Driver
	publisher Publisher
	logger    log.Logger

	dedupe *lru.Cache[string, messages.Ack]

	ifaceLocksMu sync.Mutex
	ifaceLocks   map[string]*sync.Mutex

	sessionsMu sync.Mutex
	sessions   map[string]*telemetrySession // connection_id -> session
}

// New builds an Agent.
func New(cfg Config, driver transceiver.Driver, publisher Publisher, logger log.Logger) *Agent {
	size := cfg.DedupeCacheSize
	if size <= 0 {
		size = 4096
	}
	dedupe, _ := lru.New[string, messages.Ack](size)
	return &Agent{
		cfg:        cfg,
		driver:     driver,
		publisher:  publisher,
		logger:     logger,
		dedupe:     dedupe,
		ifaceLocks: make(map[string]*sync.Mutex),
		sessions:   make(map[string]*telemetrySession),
	}
}

// Handle implements pkg/kafkaio.RecordHandler for the config_<vop> consumer.
func (a *Agent) Handle(ctx context.Context, _, value []byte) {
	var raw struct {
		CommandID string `json:"command_id"`
	}
	_ = json.Unmarshal(value, &raw)

	cmd, err := messages.ParseCommand(value)
	if err != nil {
		level.Warn(a.logger).Log("msg", "rejecting malformed command", "command_id", raw.CommandID, "err", err)
		if raw.CommandID != "" {
			a.publishAck(ctx, messages.NewAck(raw.CommandID, a.cfg.AgentID, messages.AckError, map[string]any{"reason": "schema"}))
		}
		return
	}

	if !cmd.MatchesPop(a.cfg.PopID) {
		return
	}

	if prior, ok := a.dedupe.Get(cmd.CommandID); ok {
		level.Debug(a.logger).Log("msg", "duplicate command, re-emitting prior ack", "command_id", cmd.CommandID)
		dedupeHitsTotal.Inc()
		a.publishAck(ctx, prior)
		return
	}

	ack := a.dispatch(ctx, cmd)
	commandsTotal.WithLabelValues(string(cmd.Action), string(ack.Status)).Inc()
	if ack.Status == messages.AckError {
		hardwareFaultsTotal.WithLabelValues(string(cmd.Action)).Inc()
	}
	a.dedupe.Add(cmd.CommandID, ack)
	a.publishAck(ctx, ack)
}

func (a *Agent) dispatch(ctx context.Context, cmd messages.Command) messages.Ack {
	switch cmd.Action {
	case messages.ActionSetupConnection:
		return a.handleSetup(ctx, cmd)
	case messages.ActionReconfigConnection:
		return a.handleReconfig(ctx, cmd)
	case messages.ActionTeardownConnection:
		return a.handleTeardown(ctx, cmd)
	case messages.ActionHealthCheck:
		return a.handleHealthCheck(cmd)
	default:
		return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckError, map[string]any{"reason": "schema"})
	}
}

// endpointsForThisPop resolves spec §9's open-question answer: apply only
// the endpoints in endpoint_config that match this agent's own pop,
// regardless of how coarse or fine target_pop was.
func (a *Agent) endpointsForThisPop(endpoints []messages.EndpointConfig) []messages.EndpointConfig {
	var out []messages.EndpointConfig
	for _, ep := range endpoints {
		if ep.PopID == a.cfg.PopID {
			out = append(out, ep)
		}
	}
	return out
}

func (a *Agent) handleSetup(ctx context.Context, cmd messages.Command) messages.Ack {
	connID := cmd.Parameters.ConnectionID
	for _, ep := range a.endpointsForThisPop(cmd.Parameters.EndpointConfig) {
		if err := a.withInterfaceLock(ep.PortID, func() error {
			return a.driver.Configure(ctx, ep.PortID, ep.Frequency, ep.TxPowerLevel)
		}); err != nil {
			level.Error(a.logger).Log("msg", "hardware configure failed", "interface", ep.PortID, "err", err)
			return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckError, map[string]any{"reason": "hardware_fault", "interface": ep.PortID})
		}
		a.startTelemetry(connID, ep.PortID, ep.NodeID)
	}
	return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckOK, nil)
}

func (a *Agent) handleReconfig(ctx context.Context, cmd messages.Command) messages.Ack {
	for _, ep := range a.endpointsForThisPop(cmd.Parameters.EndpointConfig) {
		if err := a.withInterfaceLock(ep.PortID, func() error {
			return a.driver.Configure(ctx, ep.PortID, ep.Frequency, ep.TxPowerLevel)
		}); err != nil {
			level.Error(a.logger).Log("msg", "hardware reconfigure failed", "interface", ep.PortID, "err", err)
			return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckError, map[string]any{"reason": "hardware_fault", "interface": ep.PortID})
		}
		// telemetry session keeps running across a reconfigure (spec §4.4).
	}
	return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckOK, nil)
}

func (a *Agent) handleTeardown(ctx context.Context, cmd messages.Command) messages.Ack {
	connID := cmd.Parameters.ConnectionID
	ifaces := a.stopTelemetry(connID)

	for _, iface := range ifaces {
		if err := a.withInterfaceLock(iface, func() error {
			return a.driver.Disable(ctx, iface)
		}); err != nil {
			level.Error(a.logger).Log("msg", "hardware disable failed", "interface", iface, "err", err)
			return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckError, map[string]any{"reason": "hardware_fault"})
		}
	}
	return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckOK, nil)
}

func (a *Agent) handleHealthCheck(cmd messages.Command) messages.Ack {
	return messages.NewAck(cmd.CommandID, a.cfg.AgentID, messages.AckOK, map[string]any{
		"active_sessions": a.activeSessionCount(),
	})
}

func (a *Agent) publishAck(ctx context.Context, ack messages.Ack) {
	data, err := ack.Marshal()
	if err != nil {
		level.Error(a.logger).Log("msg", "marshal ack failed", "err", err)
		return
	}
	if err := a.publisher.Publish(ctx, ack.CommandID, data); err != nil {
		level.Error(a.logger).Log("msg", "publish ack failed", "command_id", ack.CommandID, "err", err)
	}
}

func (a *Agent) withInterfaceLock(iface string, fn func() error) error {
	a.ifaceLocksMu.Lock()
	lock, ok := a.ifaceLocks[iface]
	if !ok {
		lock = &sync.Mutex{}
		a.ifaceLocks[iface] = lock
	}
	a.ifaceLocksMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// Shutdown stops every running telemetry session, draining within one
// sampling interval each (spec §5 "telemetry sessions are cancellable
// within one sampling interval").
func (a *Agent) Shutdown() {
	a.sessionsMu.Lock()
	sessions := make([]*telemetrySession, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = make(map[string]*telemetrySession)
	a.sessionsMu.Unlock()

	for _, s := range sessions {
		s.StopAsync()
	}
	for _, s := range sessions {
		if err := s.AwaitTerminated(context.Background()); err != nil {
			level.Error(a.logger).Log("msg", "telemetry session did not terminate cleanly", "connection_id", s.connID, "err", err)
		}
	}
}

func (a *Agent) activeSessionCount() int {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	return len(a.sessions)
}
