// Package messages defines the Kafka wire schemas carried on a vOp's
// config_<vop>, monitoring_<vop>, and health_<vop> topics (spec §6), modeled
// as tagged sum types parsed and validated at the boundary rather than
// passed around as loose maps.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action identifies the kind of command published on config_<vop>.
type Action string

const (
	ActionSetupConnection    Action = "setupConnection"
	ActionReconfigConnection Action = "reconfigConnection"
	ActionTeardownConnection Action = "teardownConnection"
	ActionHealthCheck        Action = "healthCheck"
)

// TargetAll matches every agent regardless of POP.
const TargetAll = "all"

// EndpointConfig describes one connection endpoint's desired transceiver
// configuration, as carried in setupConnection/reconfigConnection parameters.
type EndpointConfig struct {
	PopID        string  `json:"pop_id"`
	NodeID       string  `json:"node_id"`
	PortID       string  `json:"port_id"`
	Frequency    float64 `json:"frequency"`
	TxPowerLevel float64 `json:"tx_power_level"`
}

// CommandParameters is the union of fields any command action may carry.
// Only the fields relevant to Action are populated; json.Marshal omits the
// rest via omitempty.
type CommandParameters struct {
	ConnectionID   string           `json:"connection_id,omitempty"`
	EndpointConfig []EndpointConfig `json:"endpoint_config,omitempty"`
	Reason         *ReconfigReason  `json:"reason,omitempty"`
}

// ReconfigReason documents why a reconfigConnection was issued, per the QoT
// loop payload in spec §4.3.2.
type ReconfigReason struct {
	BadCount  int     `json:"bad_count"`
	OSNR      float64 `json:"osnr"`
	PreFECBER float64 `json:"pre_fec_ber"`
	Interface string  `json:"interface"`
	AgentID   string  `json:"agent_id"`
}

// Command is a message published by CTRL on config_<vop>.
type Command struct {
	Action     Action            `json:"action"`
	CommandID  string            `json:"command_id"`
	TargetPop  string            `json:"target_pop"`
	Parameters CommandParameters `json:"parameters"`
	IssuedAt   int64             `json:"issued_at,omitempty"`
}

// Validate rejects malformed commands before they reach the dispatcher,
// per spec §4.4 step 1 ("malformed -> ack status=error reason=schema").
func (c Command) Validate() error {
	if c.CommandID == "" {
		return fmt.Errorf("%w: missing command_id", ErrSchema)
	}
	if c.TargetPop == "" {
		return fmt.Errorf("%w: missing target_pop", ErrSchema)
	}
	switch c.Action {
	case ActionSetupConnection, ActionReconfigConnection:
		if c.Parameters.ConnectionID == "" {
			return fmt.Errorf("%w: %s missing connection_id", ErrSchema, c.Action)
		}
		if len(c.Parameters.EndpointConfig) == 0 {
			return fmt.Errorf("%w: %s missing endpoint_config", ErrSchema, c.Action)
		}
	case ActionTeardownConnection:
		if c.Parameters.ConnectionID == "" {
			return fmt.Errorf("%w: teardownConnection missing connection_id", ErrSchema)
		}
	case ActionHealthCheck:
		// no required parameters
	default:
		return fmt.Errorf("%w: unknown action %q", ErrSchema, c.Action)
	}
	return nil
}

// MatchesPop reports whether an agent serving popID should process this
// command at all. Per-endpoint filtering happens separately in the
// dispatcher (spec §9 open question resolution: a specific target_pop is a
// pre-filter, not a change to per-endpoint semantics).
func (c Command) MatchesPop(popID string) bool {
	return c.TargetPop == TargetAll || c.TargetPop == popID
}

// Marshal encodes a Command for publishing on config_<vop>.
func (c Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// ParseCommand decodes and validates a config_<vop> payload.
func ParseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// TelemetryFields holds the QoT-relevant measurements for one sample.
// pre_fec_ber is the canonical field name (spec §9 open question
// resolution); the source's "ber" alias is never produced or accepted.
type TelemetryFields struct {
	RxPower   float64 `json:"rx_power"`
	TxPower   float64 `json:"tx_power"`
	OSNR      float64 `json:"osnr"`
	PreFECBER float64 `json:"pre_fec_ber"`
}

// TelemetryData is the per-sample payload nested under a telemetry message.
type TelemetryData struct {
	ConnectionID string          `json:"connection_id"`
	Interface    string          `json:"interface"`
	Timestamp    int64           `json:"timestamp"`
	Fields       TelemetryFields `json:"fields"`
}

// Telemetry is a message published by an agent on monitoring_<vop>.
type Telemetry struct {
	Type     string        `json:"type"` // always "telemetry"
	AgentID  string        `json:"agent_id"`
	PopID    string        `json:"pop_id"`
	RouterID string        `json:"router_id"`
	Data     TelemetryData `json:"data"`
}

// NewTelemetry builds a Telemetry message with Type set correctly.
func NewTelemetry(agentID, popID, routerID string, data TelemetryData) Telemetry {
	return Telemetry{Type: "telemetry", AgentID: agentID, PopID: popID, RouterID: routerID, Data: data}
}

// Marshal encodes a Telemetry message for publishing on monitoring_<vop>.
func (t Telemetry) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// AckStatus is the outcome an agent reports for a processed command.
type AckStatus string

const (
	AckOK    AckStatus = "ok"
	AckError AckStatus = "error"
)

// Ack is a message published by an agent on monitoring_<vop> in response to
// a command. Agents must re-emit the identical Ack for a duplicate
// command_id rather than re-executing (spec §8 "Command idempotence").
type Ack struct {
	Type      string         `json:"type"` // always "ack"
	CommandID string         `json:"command_id"`
	AgentID   string         `json:"agent_id"`
	Status    AckStatus      `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewAck builds an Ack message with Type set correctly.
func NewAck(commandID, agentID string, status AckStatus, details map[string]any) Ack {
	return Ack{Type: "ack", CommandID: commandID, AgentID: agentID, Status: status, Details: details}
}

// Marshal encodes an Ack message for publishing on monitoring_<vop>.
func (a Ack) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Envelope is used to sniff the "type" discriminator of a monitoring_<vop>
// record before unmarshaling it into Telemetry or Ack.
type Envelope struct {
	Type string `json:"type"`
}

// ParseMonitoringMessage decodes a monitoring_<vop> record into exactly one
// of the two concrete shapes it may carry.
func ParseMonitoringMessage(data []byte) (ack *Ack, telemetry *Telemetry, err error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	switch env.Type {
	case "ack":
		var a Ack
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		return &a, nil, nil
	case "telemetry":
		var t Telemetry
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		return nil, &t, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown monitoring message type %q", ErrSchema, env.Type)
	}
}

// Heartbeat is published by an agent on health_<vop>: a periodic liveness
// and capability advertisement (spec §6 "heartbeats, capability
// advertisements"). The topic is recommended compact (spec §9), so only the
// latest heartbeat per agent_id need be retained.
type Heartbeat struct {
	Type         string   `json:"type"` // always "heartbeat"
	AgentID      string   `json:"agent_id"`
	PopID        string   `json:"pop_id"`
	Capabilities []string `json:"capabilities,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

// NewHeartbeat builds a Heartbeat message with Type set correctly.
func NewHeartbeat(agentID, popID string, capabilities []string, timestamp int64) Heartbeat {
	return Heartbeat{Type: "heartbeat", AgentID: agentID, PopID: popID, Capabilities: capabilities, Timestamp: timestamp}
}

// Marshal encodes a Heartbeat message for publishing on health_<vop>.
func (h Heartbeat) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// ParseHeartbeat decodes a health_<vop> record.
func ParseHeartbeat(data []byte) (Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return Heartbeat{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if h.AgentID == "" {
		return Heartbeat{}, fmt.Errorf("%w: heartbeat missing agent_id", ErrSchema)
	}
	return h, nil
}

// ErrSchema marks any message rejected for not matching its wire schema.
var ErrSchema = errors.New("schema")
