package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTopology() Topology {
	// pop1 --10km-- pop2 --10km-- pop3
	//   \______________30km_________/
	return Topology{
		Pops: []POP{{ID: "pop1"}, {ID: "pop2"}, {ID: "pop3"}},
		Links: []Link{
			{ID: "link-1-2", PopA: "pop1", PopB: "pop2", DistanceKM: 10},
			{ID: "link-2-3", PopA: "pop2", PopB: "pop3", DistanceKM: 10},
			{ID: "link-1-3", PopA: "pop1", PopB: "pop3", DistanceKM: 30},
		},
	}
}

func TestKShortestPaths_PrefersShortestFirst(t *testing.T) {
	g := NewGraph(sampleTopology())

	paths, err := g.KShortestPaths("pop1", "pop3", 2)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, 20.0, paths[0].DistanceKM)
	assert.Len(t, paths[0].Links, 2)

	assert.Equal(t, 30.0, paths[1].DistanceKM)
	assert.Len(t, paths[1].Links, 1)
}

func TestKShortestPaths_Infeasible(t *testing.T) {
	top := sampleTopology()
	top.Pops = append(top.Pops, POP{ID: "isolated"})
	g := NewGraph(top)

	_, err := g.KShortestPaths("pop1", "isolated", 1)
	assert.ErrorIs(t, err, ErrPathInfeasible)
}

func TestKShortestPaths_DirectLinkWhenSingleHop(t *testing.T) {
	g := NewGraph(sampleTopology())

	paths, err := g.KShortestPaths("pop1", "pop2", 1)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"link-1-2"}, linkIDs(paths[0]))
}

func linkIDs(p Path) []string {
	ids := make([]string, len(p.Links))
	for i, l := range p.Links {
		ids[i] = l.ID
	}
	return ids
}
