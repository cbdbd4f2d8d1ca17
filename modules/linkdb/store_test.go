package linkdb

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.CreatePOP(topology.POP{ID: "pop1"}))
	require.NoError(t, s.CreatePOP(topology.POP{ID: "pop2"}))
	require.NoError(t, s.CreatePOP(topology.POP{ID: "pop3"}))
	require.NoError(t, s.CreateRouter(topology.Router{ID: "r1", Pop: "pop1"}))
	require.NoError(t, s.CreateRouter(topology.Router{ID: "r2", Pop: "pop2"}))
	require.NoError(t, s.CreateRouter(topology.Router{ID: "r3", Pop: "pop3"}))
	require.NoError(t, s.CreateLink("link-1-2", "pop1", "pop2", 10, 16))
	require.NoError(t, s.CreateLink("link-2-3", "pop2", "pop3", 10, 16))
	return s
}

func TestAllocate_FirstFit(t *testing.T) {
	s := newTestStore(t)

	idx, err := s.Allocate("conn-a", []string{"link-1-2", "link-2-3"}, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx2, err := s.Allocate("conn-b", []string{"link-1-2", "link-2-3"}, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, idx2)

	top := s.GetTopology()
	for _, l := range top.Links {
		for i := 0; i < 8; i++ {
			assert.Equal(t, topology.SlotReserved, l.Slots[i])
			assert.Equal(t, "conn-a", l.SlotOwner[i])
		}
		for i := 8; i < 12; i++ {
			assert.Equal(t, "conn-b", l.SlotOwner[i])
		}
		for i := 12; i < 16; i++ {
			assert.Equal(t, topology.SlotFree, l.Slots[i])
		}
	}
}

func TestAllocate_SpectrumContinuity(t *testing.T) {
	s := newTestStore(t)

	idx, err := s.Allocate("conn-a", []string{"link-1-2", "link-2-3"}, 4)
	require.NoError(t, err)

	top := s.GetTopology()
	for _, l := range top.Links {
		for i := idx; i < idx+4; i++ {
			assert.Equal(t, topology.SlotReserved, l.Slots[i], "link %s slot %d must be reserved at the same index as every other link on the path", l.ID, i)
		}
	}
}

func TestAllocate_NoSpectrumWhenExhausted(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Allocate("conn-a", []string{"link-1-2"}, 16)
	require.NoError(t, err)

	_, err = s.Allocate("conn-b", []string{"link-1-2"}, 1)
	assert.ErrorIs(t, err, ErrNoSpectrum)
}

func TestAllocateRelease_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	before := s.GetTopology()

	_, err := s.Allocate("conn-a", []string{"link-1-2", "link-2-3"}, 8)
	require.NoError(t, err)
	require.NoError(t, s.Release("conn-a"))

	after := s.GetTopology()
	assert.Equal(t, before, after)
}

func TestAllocate_ConcurrentContentionProducesDisjointRanges(t *testing.T) {
	s := newTestStore(t) // 16 slots

	const n = 8
	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := s.Allocate(connID(i), []string{"link-1-2", "link-2-3"}, 2)
			results[i], errs[i] = idx, err
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i]], "slot index %d allocated twice", results[i])
		seen[results[i]] = true
	}

	top := s.GetTopology()
	for _, l := range top.Links {
		owners := map[string]int{}
		for _, o := range l.SlotOwner {
			if o != "" {
				owners[o]++
			}
		}
		assert.Len(t, owners, n)
		for _, count := range owners {
			assert.Equal(t, 2, count)
		}
	}
}

func connID(i int) string {
	return string(rune('a' + i))
}

func TestReserveInterfaces_ExclusiveOwnership(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreatePOP(topology.POP{ID: "pop1"}))
	require.NoError(t, s.CreateRouter(topology.Router{ID: "r1", Pop: "pop1"}))
	require.NoError(t, s.CreateInterface(topology.Interface{ID: "if1", RouterID: "r1", TransceiverPresent: true}))

	require.NoError(t, s.ReserveInterfaces("vop1", []string{"if1"}))

	err := s.ReserveInterfaces("vop2", []string{"if1"})
	assert.ErrorIs(t, err, ErrInterfaceUnavailable)

	require.NoError(t, s.ReleaseInterfaces("vop1", []string{"if1"}))
	assert.NoError(t, s.ReserveInterfaces("vop2", []string{"if1"}))
}

func TestPath_ReturnsShortestFirst(t *testing.T) {
	s := newTestStore(t)

	paths, err := s.Path("pop1", "pop3", 1)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, 20.0, paths[0].DistanceKM)
}

func TestPath_Infeasible(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreatePOP(topology.POP{ID: "isolated"}))

	_, err := s.Path("pop1", "isolated", 1)
	assert.ErrorIs(t, err, ErrPathInfeasible)
}
