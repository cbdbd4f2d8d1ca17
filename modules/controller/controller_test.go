package controller

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipowdm/sdn-control-plane/pkg/linkdbclient"
	"github.com/ipowdm/sdn-control-plane/pkg/messages"
	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

type fakeLinkDB struct {
	paths       []topology.Path
	allocateErr error
	releasedIDs []string
}

func (f *fakeLinkDB) GetTopology(_ context.Context) (topology.Topology, error) { return topology.Topology{}, nil }

func (f *fakeLinkDB) Path(_ context.Context, _, _ string, _ int) ([]topology.Path, error) {
	return f.paths, nil
}

func (f *fakeLinkDB) Allocate(_ context.Context, req linkdbclient.AllocateRequest) (linkdbclient.AllocateResponse, error) {
	if f.allocateErr != nil {
		return linkdbclient.AllocateResponse{}, f.allocateErr
	}
	return linkdbclient.AllocateResponse{StartIndex: 0, SlotCount: req.SlotsRequired}, nil
}

func (f *fakeLinkDB) Release(_ context.Context, connID string) error {
	f.releasedIDs = append(f.releasedIDs, connID)
	return nil
}

type capturedPublish struct {
	key   string
	value []byte
}

type fakePublisher struct {
	published []capturedPublish
}

func (f *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	f.published = append(f.published, capturedPublish{key, value})
	return nil
}

func newTestManager(t *testing.T) (*ConnectionManager, *fakeLinkDB, *fakePublisher) {
	t.Helper()
	linkDB := &fakeLinkDB{paths: []topology.Path{{
		Links:      []topology.Link{{ID: "link-pop1-pop2"}},
		DistanceKM: 10,
	}}}
	publisher := &fakePublisher{}
	table := NewTable()
	pc := NewPathComputer(linkDB)
	mgr := NewConnectionManager(table, pc, linkDB, publisher, 200*time.Millisecond, log.NewNopLogger())
	return mgr, linkDB, publisher
}

func TestSetup_PublishesSetupConnectionForEachEndpoint(t *testing.T) {
	mgr, _, publisher := newTestManager(t)

	req := SetupRequest{
		ConnectionID: "conn-1",
		SrcPop:       "pop1",
		DstPop:       "pop2",
		Endpoints: []Endpoint{
			{PopID: "pop1", RouterID: "router1", InterfaceID: "Ethernet56", FrequencyGHz: 193.1, TxPowerDBm: -2.0},
			{PopID: "pop2", RouterID: "router2", InterfaceID: "Ethernet48", FrequencyGHz: 193.1, TxPowerDBm: -2.0},
		},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))

	require.Len(t, publisher.published, 2)
	for _, p := range publisher.published {
		assert.Equal(t, "conn-1", p.key)
		cmd, err := messages.ParseCommand(p.value)
		require.NoError(t, err)
		assert.Equal(t, messages.ActionSetupConnection, cmd.Action)
	}

	conn, ok := mgr.table.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, StateSetupPending, conn.State)
	assert.Equal(t, 8, conn.SlotCount) // 400G/QPSK per the fixed capacity table
}

func TestSetup_AllEndpointAcksActivateConnection(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	req := SetupRequest{
		ConnectionID:  "conn-1",
		SrcPop:        "pop1",
		DstPop:        "pop2",
		Endpoints:     []Endpoint{{PopID: "pop1"}, {PopID: "pop2"}},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))

	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop1", Status: messages.AckOK}))
	conn, _ := mgr.table.Get("conn-1")
	assert.Equal(t, StateSetupPending, conn.State, "must wait for every endpoint's ack")

	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop2", Status: messages.AckOK}))
	conn, _ = mgr.table.Get("conn-1")
	assert.Equal(t, StateActive, conn.State)
}

func TestSetup_NackFailsConnectionAndReleasesAllocation(t *testing.T) {
	mgr, linkDB, _ := newTestManager(t)

	req := SetupRequest{
		ConnectionID:  "conn-1",
		SrcPop:        "pop1",
		DstPop:        "pop2",
		Endpoints:     []Endpoint{{PopID: "pop1"}},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))

	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop1", Status: messages.AckError}))

	conn, _ := mgr.table.Get("conn-1")
	assert.Equal(t, StateFailed, conn.State)
	assert.Contains(t, linkDB.releasedIDs, "conn-1")
}

func TestSetup_CommandTimeoutFailsConnection(t *testing.T) {
	mgr, linkDB, _ := newTestManager(t)

	req := SetupRequest{
		ConnectionID:  "conn-1",
		SrcPop:        "pop1",
		DstPop:        "pop2",
		Endpoints:     []Endpoint{{PopID: "pop1"}},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))

	require.Eventually(t, func() bool {
		conn, _ := mgr.table.Get("conn-1")
		return conn.State == StateFailed
	}, time.Second, 10*time.Millisecond)

	assert.Contains(t, linkDB.releasedIDs, "conn-1")
}

func TestTeardown_ReleasesAllocationAndDeletesConnection(t *testing.T) {
	mgr, linkDB, _ := newTestManager(t)

	req := SetupRequest{
		ConnectionID:  "conn-1",
		SrcPop:        "pop1",
		DstPop:        "pop2",
		Endpoints:     []Endpoint{{PopID: "pop1"}},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))
	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop1", Status: messages.AckOK}))

	require.NoError(t, mgr.Teardown(context.Background(), "conn-1"))

	conn, _ := mgr.table.Get("conn-1")
	assert.Equal(t, StateDeleted, conn.State)
	assert.Contains(t, linkDB.releasedIDs, "conn-1")
}

func TestReconfigure_WritesNewTxPowerIntoConnectionAndCommand(t *testing.T) {
	mgr, _, publisher := newTestManager(t)

	req := SetupRequest{
		ConnectionID:  "conn-1",
		SrcPop:        "pop1",
		DstPop:        "pop2",
		Endpoints:     []Endpoint{{PopID: "pop1", TxPowerDBm: -2.0}, {PopID: "pop2", TxPowerDBm: -2.0}},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))
	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop1", Status: messages.AckOK}))
	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop2", Status: messages.AckOK}))
	require.NoError(t, mgr.table.Transition("conn-1", StateDegraded, nil))

	publisher.published = nil
	require.NoError(t, mgr.Reconfigure(context.Background(), "conn-1", []int{0, 1}, []float64{-1.0, -1.0}, messages.ReconfigReason{BadCount: 3}))

	conn, ok := mgr.table.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, -1.0, conn.Endpoints[0].TxPowerDBm, "the table must hold the bumped tx-power, not just the monitor")
	assert.Equal(t, -1.0, conn.Endpoints[1].TxPowerDBm)

	require.Len(t, publisher.published, 2)
	for _, p := range publisher.published {
		cmd, err := messages.ParseCommand(p.value)
		require.NoError(t, err)
		assert.Equal(t, messages.ActionReconfigConnection, cmd.Action)
		require.Len(t, cmd.Parameters.EndpointConfig, 1)
		assert.Equal(t, -1.0, cmd.Parameters.EndpointConfig[0].TxPowerLevel, "the published command must carry the new tx-power")
	}
}

func TestReconfigure_NilTxLeavesEndpointsUnchanged(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	req := SetupRequest{
		ConnectionID:  "conn-1",
		SrcPop:        "pop1",
		DstPop:        "pop2",
		Endpoints:     []Endpoint{{PopID: "pop1", TxPowerDBm: -2.0}},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))
	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop1", Status: messages.AckOK}))
	require.NoError(t, mgr.table.Transition("conn-1", StateDegraded, nil))

	require.NoError(t, mgr.Reconfigure(context.Background(), "conn-1", []int{0}, nil, messages.ReconfigReason{}))

	conn, ok := mgr.table.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, -2.0, conn.Endpoints[0].TxPowerDBm, "a nil newTxDBm must resend the current tx-power unchanged")
}

func TestTeardown_FromDegraded(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	req := SetupRequest{
		ConnectionID:  "conn-1",
		SrcPop:        "pop1",
		DstPop:        "pop2",
		Endpoints:     []Endpoint{{PopID: "pop1"}},
		BandwidthGbps: 400,
		Modulation:    "QPSK",
	}
	require.NoError(t, mgr.Setup(context.Background(), req))
	require.NoError(t, mgr.HandleAck(context.Background(), messages.Ack{CommandID: "conn-1-setup", AgentID: "agent-pop1", Status: messages.AckOK}))
	require.NoError(t, mgr.table.Transition("conn-1", StateDegraded, nil))

	require.NoError(t, mgr.Teardown(context.Background(), "conn-1"))
	conn, _ := mgr.table.Get("conn-1")
	assert.Equal(t, StateDeleted, conn.State)
}
