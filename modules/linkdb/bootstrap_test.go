package linkdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopologyYAML = `
pops:
  - id: pop1
    name: ${POP1_NAME}
  - id: pop2
    name: pop-two
routers:
  - id: r1
    pop_id: pop1
  - id: r2
    pop_id: pop2
interfaces:
  - id: if1
    pop_id: pop1
    router_id: r1
    port: 1
  - id: if2
    pop_id: pop2
    router_id: r2
    port: 1
links:
  - id: link1
    pop_a: pop1
    pop_b: pop2
    distance_km: 120
    slots: 8
`

func TestLoadBootstrapTopology_ExpandsEnvAndParses(t *testing.T) {
	t.Setenv("POP1_NAME", "pop-one")

	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTopologyYAML), 0o644))

	bt, err := LoadBootstrapTopology(path)
	require.NoError(t, err)

	require.Len(t, bt.Pops, 2)
	assert.Equal(t, "pop-one", bt.Pops[0].Name)
	require.Len(t, bt.Links, 1)
	assert.Equal(t, 8, bt.Links[0].Slots)
}

func TestStore_Apply_SeedsFullGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTopologyYAML), 0o644))
	t.Setenv("POP1_NAME", "pop-one")

	bt, err := LoadBootstrapTopology(path)
	require.NoError(t, err)

	s := NewStore()
	require.NoError(t, s.Apply(bt))

	topo := s.GetTopology()
	assert.Len(t, topo.Pops, 2)
	assert.Len(t, topo.Routers, 2)
	assert.Len(t, topo.Interfaces, 2)
	require.Len(t, topo.Links, 1)
	assert.Len(t, topo.Links[0].Slots, 8)
}

func TestStore_Apply_FailsOnDanglingReference(t *testing.T) {
	s := NewStore()
	bt := BootstrapTopology{
		Routers: []BootstrapRouter{{ID: "r1", Pop: "no-such-pop"}},
	}
	assert.Error(t, s.Apply(bt))
}
