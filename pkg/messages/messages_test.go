package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand_RejectsMissingFields(t *testing.T) {
	_, err := ParseCommand([]byte(`{"action":"setupConnection","target_pop":"all","parameters":{}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestParseCommand_SetupConnectionRoundTrip(t *testing.T) {
	raw := []byte(`{
		"action":"setupConnection","command_id":"cmd-1","target_pop":"pop1",
		"parameters":{"connection_id":"conn-1","endpoint_config":[
			{"pop_id":"pop1","node_id":"router1","port_id":"Ethernet56","frequency":193.1,"tx_power_level":-2.0}
		]}
	}`)
	cmd, err := ParseCommand(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionSetupConnection, cmd.Action)
	assert.True(t, cmd.MatchesPop("pop1"))
	assert.False(t, cmd.MatchesPop("pop2"))
}

func TestCommand_MatchesPop_TargetAll(t *testing.T) {
	cmd := Command{TargetPop: TargetAll}
	assert.True(t, cmd.MatchesPop("pop1"))
	assert.True(t, cmd.MatchesPop("pop2"))
}

func TestParseMonitoringMessage_Telemetry(t *testing.T) {
	raw := []byte(`{"type":"telemetry","agent_id":"a1","pop_id":"pop1","router_id":"router1",
		"data":{"connection_id":"conn-1","interface":"Ethernet56","timestamp":1,
		"fields":{"rx_power":-10,"tx_power":-2,"osnr":20,"pre_fec_ber":1e-5}}}`)
	ack, tel, err := ParseMonitoringMessage(raw)
	require.NoError(t, err)
	assert.Nil(t, ack)
	require.NotNil(t, tel)
	assert.Equal(t, "conn-1", tel.Data.ConnectionID)
}

func TestParseMonitoringMessage_Ack(t *testing.T) {
	raw := []byte(`{"type":"ack","command_id":"cmd-1","agent_id":"a1","status":"ok"}`)
	ack, tel, err := ParseMonitoringMessage(raw)
	require.NoError(t, err)
	assert.Nil(t, tel)
	require.NotNil(t, ack)
	assert.Equal(t, AckOK, ack.Status)
}

func TestParseMonitoringMessage_UnknownType(t *testing.T) {
	_, _, err := ParseMonitoringMessage([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
}
