package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
	"github.com/ipowdm/sdn-control-plane/pkg/transceiver"
)

type fakePublisher struct {
	published []capturedPublish
}

type capturedPublish struct {
	key   string
	value []byte
}

func (f *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	f.published = append(f.published, capturedPublish{key, value})
	return nil
}

func (f *fakePublisher) lastAck(t *testing.T) messages.Ack {
	t.Helper()
	require.NotEmpty(t, f.published)
	var ack messages.Ack
	require.NoError(t, json.Unmarshal(f.published[len(f.published)-1].value, &ack))
	return ack
}

func newTestAgent() (*Agent, *transceiver.Mock, *fakePublisher) {
	driver := transceiver.NewMock()
	pub := &fakePublisher{}
	a := New(DefaultConfig("agent-pop1", "pop1"), driver, pub, log.NewNopLogger())
	return a, driver, pub
}

func setupCommand(commandID, connID string) []byte {
	cmd := messages.Command{
		Action:    messages.ActionSetupConnection,
		CommandID: commandID,
		TargetPop: messages.TargetAll,
		Parameters: messages.CommandParameters{
			ConnectionID: connID,
			EndpointConfig: []messages.EndpointConfig{
				{PopID: "pop1", NodeID: "router1", PortID: "Ethernet56", Frequency: 193.1, TxPowerLevel: -2.0},
			},
		},
	}
	data, _ := cmd.Marshal()
	return data
}

func TestAgent_HandleSetup_ConfiguresHardwareAndAcksOK(t *testing.T) {
	a, driver, pub := newTestAgent()

	a.Handle(context.Background(), nil, setupCommand("cmd-1", "conn-1"))

	ack := pub.lastAck(t)
	assert.Equal(t, messages.AckOK, ack.Status)
	assert.Equal(t, "cmd-1", ack.CommandID)

	sample, err := driver.ReadSample(context.Background(), "Ethernet56")
	require.NoError(t, err)
	assert.InDelta(t, -2.0, sample.TxPower, 0.01)

	assert.Equal(t, 1, a.activeSessionCount())
}

func TestAgent_DuplicateCommand_ReemitsAckWithoutReexecuting(t *testing.T) {
	a, _, pub := newTestAgent()

	cmd := setupCommand("cmd-1", "conn-1")
	a.Handle(context.Background(), nil, cmd)
	require.Len(t, pub.published, 1)

	a.Handle(context.Background(), nil, cmd)
	require.Len(t, pub.published, 2, "a re-delivery still produces an ack")
	assert.Equal(t, 1, a.activeSessionCount(), "duplicate delivery must not re-run setup")

	first := pub.published[0].value
	second := pub.published[1].value
	assert.JSONEq(t, string(first), string(second), "the re-emitted ack must be the one stored from the first execution")
}

func TestAgent_MalformedCommand_AcksSchemaErrorWhenIDRecoverable(t *testing.T) {
	a, _, pub := newTestAgent()

	malformed := []byte(`{"command_id":"cmd-bad","action":"setupConnection"}`)
	a.Handle(context.Background(), nil, malformed)

	ack := pub.lastAck(t)
	assert.Equal(t, messages.AckError, ack.Status)
	assert.Equal(t, "cmd-bad", ack.CommandID)
	assert.Equal(t, "schema", ack.Details["reason"])
}

func TestAgent_CommandForDifferentPop_IsIgnored(t *testing.T) {
	a, _, pub := newTestAgent()

	cmd := messages.Command{
		Action:    messages.ActionSetupConnection,
		CommandID: "cmd-1",
		TargetPop: "pop-other",
		Parameters: messages.CommandParameters{
			ConnectionID:   "conn-1",
			EndpointConfig: []messages.EndpointConfig{{PopID: "pop-other", PortID: "Ethernet1"}},
		},
	}
	data, _ := cmd.Marshal()
	a.Handle(context.Background(), nil, data)

	assert.Empty(t, pub.published, "a command targeting a different pop produces no ack at all")
}

func TestAgent_Teardown_DisablesInterfaceAndStopsTelemetry(t *testing.T) {
	a, driver, pub := newTestAgent()

	a.Handle(context.Background(), nil, setupCommand("cmd-1", "conn-1"))
	require.Equal(t, 1, a.activeSessionCount())

	teardown := messages.Command{
		Action:    messages.ActionTeardownConnection,
		CommandID: "cmd-2",
		TargetPop: messages.TargetAll,
		Parameters: messages.CommandParameters{ConnectionID: "conn-1"},
	}
	data, _ := teardown.Marshal()
	a.Handle(context.Background(), nil, data)

	ack := pub.lastAck(t)
	assert.Equal(t, messages.AckOK, ack.Status)
	assert.Equal(t, 0, a.activeSessionCount())

	present, err := driver.GetPresence(context.Background(), "Ethernet56")
	require.NoError(t, err)
	assert.True(t, present, "presence remains true, only the laser is disabled")

	_, err = driver.ReadSample(context.Background(), "Ethernet56")
	assert.ErrorContains(t, err, "laser disabled", "teardown must disable the laser, not just drop the telemetry session")
}

func TestAgent_HealthCheck_DoesNotTouchHardware(t *testing.T) {
	a, _, pub := newTestAgent()
	a.Handle(context.Background(), nil, setupCommand("cmd-1", "conn-1"))

	health := messages.Command{
		Action:    messages.ActionHealthCheck,
		CommandID: "cmd-health",
		TargetPop: messages.TargetAll,
	}
	data, _ := health.Marshal()
	a.Handle(context.Background(), nil, data)

	ack := pub.lastAck(t)
	assert.Equal(t, messages.AckOK, ack.Status)
	assert.EqualValues(t, 1, ack.Details["active_sessions"])
}
