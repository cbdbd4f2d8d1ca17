package controller

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
)

type fakeReconfigurer struct {
	calls []reconfigCall
}

type reconfigCall struct {
	connID      string
	endpointIdx []int
	newTxDBm    []float64
	reason      messages.ReconfigReason
}

func (f *fakeReconfigurer) Reconfigure(_ context.Context, connID string, endpointIdx []int, newTxDBm []float64, reason messages.ReconfigReason) error {
	f.calls = append(f.calls, reconfigCall{connID, endpointIdx, newTxDBm, reason})
	return nil
}

func goodSample() messages.TelemetryFields {
	return messages.TelemetryFields{OSNR: 22.0, PreFECBER: 1e-6}
}

func degradedSample() messages.TelemetryFields {
	return messages.TelemetryFields{OSNR: 17.0, PreFECBER: 1e-6}
}

func TestQoTMonitor_TriggersAfterPersistencyWindow(t *testing.T) {
	table := NewTable()
	table.Create("conn-1", "pop1", "pop2")
	require.NoError(t, table.Transition("conn-1", StatePlanned, func(c *Connection) {
		c.Endpoints = []Endpoint{{PopID: "pop1", TxPowerDBm: -2.0}, {PopID: "pop2", TxPowerDBm: -2.0}}
	}))
	require.NoError(t, table.Transition("conn-1", StateSetupPending, nil))
	require.NoError(t, table.Transition("conn-1", StateActive, nil))

	fake := &fakeReconfigurer{}
	cfg := DefaultQoTConfig()
	mon := NewQoTMonitor(cfg, table, fake, log.NewNopLogger())

	base := time.Unix(1000, 0)
	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base))
	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(1*time.Second)))
	assert.Empty(t, fake.calls, "should not act before the persistency window is satisfied")

	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(2*time.Second)))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "conn-1", fake.calls[0].connID)
	assert.Equal(t, []int{0, 1}, fake.calls[0].endpointIdx)
	assert.Equal(t, 3, fake.calls[0].reason.BadCount)
	assert.Equal(t, []float64{-1.0, -1.0}, fake.calls[0].newTxDBm, "the bumped tx-power must be carried on the call, not just kept in the monitor's private state")

	tx := mon.LastTxPower("conn-1")
	assert.Equal(t, []float64{-1.0, -1.0}, tx)
}

func TestQoTMonitor_RespectsCooldown(t *testing.T) {
	table := NewTable()
	table.Create("conn-1", "pop1", "pop2")
	require.NoError(t, table.Transition("conn-1", StatePlanned, func(c *Connection) {
		c.Endpoints = []Endpoint{{PopID: "pop1", TxPowerDBm: -2.0}}
	}))
	require.NoError(t, table.Transition("conn-1", StateSetupPending, nil))
	require.NoError(t, table.Transition("conn-1", StateActive, nil))

	fake := &fakeReconfigurer{}
	mon := NewQoTMonitor(DefaultQoTConfig(), table, fake, log.NewNopLogger())

	base := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(time.Duration(i)*time.Second)))
	}
	require.Len(t, fake.calls, 1)

	// More bad samples within the cooldown window must not trigger again.
	for i := 0; i < 3; i++ {
		require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(time.Duration(5+i)*time.Second)))
	}
	assert.Len(t, fake.calls, 1, "no second reconfigure within COOLDOWN_SEC")

	// Once the cooldown elapses and degradation persists again, it fires.
	after := base.Add(25 * time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), after.Add(time.Duration(i)*time.Second)))
	}
	assert.Len(t, fake.calls, 2)
}

func TestQoTMonitor_TxPowerClampedToSafetyBounds(t *testing.T) {
	table := NewTable()
	table.Create("conn-1", "pop1", "pop2")
	require.NoError(t, table.Transition("conn-1", StatePlanned, func(c *Connection) {
		c.Endpoints = []Endpoint{{PopID: "pop1", TxPowerDBm: -0.5}}
	}))
	require.NoError(t, table.Transition("conn-1", StateSetupPending, nil))
	require.NoError(t, table.Transition("conn-1", StateActive, nil))

	fake := &fakeReconfigurer{}
	mon := NewQoTMonitor(DefaultQoTConfig(), table, fake, log.NewNopLogger())

	base := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(time.Duration(i)*time.Second)))
	}

	tx := mon.LastTxPower("conn-1")
	assert.Equal(t, 0.0, tx[0], "tx power must clamp to TX_MAX_DBM")
}

func TestQoTMonitor_GoodSampleResetsBadCount(t *testing.T) {
	table := NewTable()
	table.Create("conn-1", "pop1", "pop2")
	require.NoError(t, table.Transition("conn-1", StatePlanned, func(c *Connection) {
		c.Endpoints = []Endpoint{{PopID: "pop1", TxPowerDBm: -2.0}}
	}))
	require.NoError(t, table.Transition("conn-1", StateSetupPending, nil))
	require.NoError(t, table.Transition("conn-1", StateActive, nil))

	fake := &fakeReconfigurer{}
	mon := NewQoTMonitor(DefaultQoTConfig(), table, fake, log.NewNopLogger())

	base := time.Unix(1000, 0)
	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base))
	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(time.Second)))
	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", goodSample(), base.Add(2*time.Second)))
	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(3*time.Second)))
	require.NoError(t, mon.Observe(context.Background(), "conn-1", "if1", "agent-1", degradedSample(), base.Add(4*time.Second)))

	assert.Empty(t, fake.calls, "a good sample must reset bad_count, delaying the persistency window")
}
