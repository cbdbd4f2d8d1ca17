// Package linkdb implements the topology and spectrum-slot resource
// manager described in spec §4.1: POP/Router/Link/Interface CRUD,
// interface reservation for vOps, and first-fit contiguous spectrum
// allocation behind an optimistic multi-link transaction.
package linkdb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

// Sentinel errors matching the failure modes spec §4.1/§7 name explicitly.
var (
	ErrNotFound            = errors.New("not found")
	ErrNoSpectrum          = errors.New("no contiguous spectrum block available")
	ErrPathInfeasible      = topology.ErrPathInfeasible
	ErrConflict            = errors.New("allocation transaction conflict: retries exhausted")
	ErrInterfaceUnavailable = errors.New("interface unavailable")
)

// maxAllocAttempts bounds Allocate's optimistic-transaction retry loop.
// Interface reservation does not retry.
const maxAllocAttempts = 5

type linkRecord struct {
	link    topology.Link
	version uint64
}

// Store is LinkDB's in-process durable state: topology, interface
// reservations, and spectrum occupancy (spec §6 "LinkDB stores all durable
// state"). Every mutation runs under mu; ReserveInterfaces keeps an
// interface with at most one vOp, and Allocate/Release/Activate are the
// only writers of link slots.
type Store struct {
	mu sync.RWMutex

	pops       map[string]topology.POP
	routers    map[string]topology.Router
	interfaces map[string]topology.Interface
	links      map[string]*linkRecord

	// allocations maps connection id -> the link IDs and slot range it
	// holds, so Release can find what to free without a path argument.
	allocations map[string]allocation
}

type allocation struct {
	linkIDs  []string
	startIdx int
	count    int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		pops:        make(map[string]topology.POP),
		routers:     make(map[string]topology.Router),
		interfaces:  make(map[string]topology.Interface),
		links:       make(map[string]*linkRecord),
		allocations: make(map[string]allocation),
	}
}

// CreatePOP registers a POP.
func (s *Store) CreatePOP(p topology.POP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pops[p.ID]; ok {
		return fmt.Errorf("pop %s already exists", p.ID)
	}
	s.pops[p.ID] = p
	return nil
}

// CreateRouter registers a router under an existing POP.
func (s *Store) CreateRouter(r topology.Router) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pops[r.Pop]; !ok {
		return fmt.Errorf("%w: pop %s", ErrNotFound, r.Pop)
	}
	s.routers[r.ID] = r
	return nil
}

// CreateInterface registers an interface on an existing router.
func (s *Store) CreateInterface(i topology.Interface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routers[i.RouterID]; !ok {
		return fmt.Errorf("%w: router %s", ErrNotFound, i.RouterID)
	}
	if i.AdminState == "" {
		i.AdminState = topology.AdminDown
	}
	if i.OperState == "" {
		i.OperState = topology.OperDown
	}
	s.interfaces[i.ID] = i
	return nil
}

// CreateLink registers a link with slotCount FREE slots (slots are created
// with the link and torn down with it, per spec §3 lifecycle).
func (s *Store) CreateLink(id, popA, popB string, distanceKM float64, slotCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pops[popA]; !ok {
		return fmt.Errorf("%w: pop %s", ErrNotFound, popA)
	}
	if _, ok := s.pops[popB]; !ok {
		return fmt.Errorf("%w: pop %s", ErrNotFound, popB)
	}
	s.links[id] = &linkRecord{
		link: topology.Link{
			ID:         id,
			PopA:       popA,
			PopB:       popB,
			DistanceKM: distanceKM,
			Slots:      make([]topology.SlotState, slotCount),
			SlotOwner:  make([]string, slotCount),
		},
	}
	return nil
}

// DeleteLink tears down a link and its slots.
func (s *Store) DeleteLink(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[id]; !ok {
		return fmt.Errorf("%w: link %s", ErrNotFound, id)
	}
	delete(s.links, id)
	return nil
}

// GetTopology returns a consistent snapshot for path computation and the
// REST topology endpoint, each slice sorted by id.
func (s *Store) GetTopology() topology.Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := topology.Topology{}
	for _, p := range s.pops {
		t.Pops = append(t.Pops, p)
	}
	for _, r := range s.routers {
		t.Routers = append(t.Routers, r)
	}
	for _, i := range s.interfaces {
		t.Interfaces = append(t.Interfaces, i)
	}
	for _, lr := range s.links {
		t.Links = append(t.Links, cloneLink(lr.link))
	}
	sort.Slice(t.Pops, func(i, j int) bool { return t.Pops[i].ID < t.Pops[j].ID })
	sort.Slice(t.Routers, func(i, j int) bool { return t.Routers[i].ID < t.Routers[j].ID })
	sort.Slice(t.Interfaces, func(i, j int) bool { return t.Interfaces[i].ID < t.Interfaces[j].ID })
	sort.Slice(t.Links, func(i, j int) bool { return t.Links[i].ID < t.Links[j].ID })
	return t
}

func cloneLink(l topology.Link) topology.Link {
	out := l
	out.Slots = append([]topology.SlotState(nil), l.Slots...)
	out.SlotOwner = append([]string(nil), l.SlotOwner...)
	return out
}

// Path computes up to k shortest paths by distance between two POPs (spec
// §4.1 "path(src, dst) k-shortest by hop/distance").
func (s *Store) Path(src, dst string, k int) ([]topology.Path, error) {
	g := topology.NewGraph(s.GetTopology())
	paths, err := g.KShortestPaths(src, dst, k)
	if errors.Is(err, topology.ErrPathInfeasible) {
		return nil, ErrPathInfeasible
	}
	return paths, err
}

// Interface returns a single interface by id.
func (s *Store) Interface(id string) (topology.Interface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.interfaces[id]
	return i, ok
}
