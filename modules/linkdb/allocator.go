package linkdb

import (
	"fmt"

	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

// Allocate reserves n contiguous, identically-indexed spectrum slots across
// every link in linkIDs for connID, using first-fit: AND the free-masks of
// all links in the path and scan for the lowest-index window of n
// contiguous free slots common to all of them (spec §4.1, §8 "spectrum
// continuity"). The read-compute-CAS sequence is retried up to
// maxAllocAttempts times if a concurrent allocation changes any link's
// version between the read and the commit (spec §4.1 "optimistic
// transaction ... bounded retry").
func (s *Store) Allocate(connID string, linkIDs []string, n int) (startIdx int, err error) {
	if len(linkIDs) == 0 {
		return 0, fmt.Errorf("%w: empty path", ErrPathInfeasible)
	}
	if n <= 0 {
		return 0, fmt.Errorf("slot count must be positive")
	}
	if _, exists := s.allocationFor(connID); exists {
		return 0, fmt.Errorf("connection %s already holds an allocation", connID)
	}

	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		idx, versions, ok, err := s.planAllocation(linkIDs, n)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrNoSpectrum
		}

		committed, err := s.commitAllocation(connID, linkIDs, idx, n, versions)
		if err != nil {
			return 0, err
		}
		if committed {
			return idx, nil
		}
		// version mismatch: another allocation raced us, retry.
	}

	return 0, ErrConflict
}

// planAllocation reads a consistent snapshot of the given links' free masks
// and versions, then computes the first-fit window. It does not mutate
// state, so it is safe to call without holding a write lock across the
// subsequent commit.
func (s *Store) planAllocation(linkIDs []string, n int) (idx int, versions []uint64, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var combined []bool
	versions = make([]uint64, len(linkIDs))
	for i, id := range linkIDs {
		rec, exists := s.links[id]
		if !exists {
			return 0, nil, false, fmt.Errorf("%w: link %s", ErrNotFound, id)
		}
		versions[i] = rec.version
		mask := rec.link.FreeMask()
		if combined == nil {
			combined = mask
			continue
		}
		if len(mask) != len(combined) {
			return 0, nil, false, fmt.Errorf("links have mismatched slot grids")
		}
		for j := range combined {
			combined[j] = combined[j] && mask[j]
		}
	}

	idx, ok = firstFitContiguous(combined, n)
	return idx, versions, ok, nil
}

// commitAllocation verifies none of the snapshotted link versions changed,
// then atomically marks the slot range RESERVED and owned by connID across
// every link, bumping each link's version. Returns false (no error) on a
// version mismatch so the caller retries.
func (s *Store) commitAllocation(connID string, linkIDs []string, idx, n int, versions []uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range linkIDs {
		rec, exists := s.links[id]
		if !exists {
			return false, fmt.Errorf("%w: link %s", ErrNotFound, id)
		}
		if rec.version != versions[i] {
			return false, nil
		}
		// re-verify the window is still free; a racing writer could have
		// committed and been rolled back to a different version sequence
		// that happens to collide with our stale read otherwise.
		for j := idx; j < idx+n; j++ {
			if rec.link.Slots[j] != topology.SlotFree {
				return false, nil
			}
		}
	}

	for _, id := range linkIDs {
		rec := s.links[id]
		for j := idx; j < idx+n; j++ {
			rec.link.Slots[j] = topology.SlotReserved
			rec.link.SlotOwner[j] = connID
		}
		rec.version++
	}

	s.allocations[connID] = allocation{
		linkIDs:  append([]string(nil), linkIDs...),
		startIdx: idx,
		count:    n,
	}
	return true, nil
}

// Release frees the slot range held by connID across every link it spans,
// restoring the slot map bit-for-bit (spec §8 round-trip law).
func (s *Store) Release(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alloc, ok := s.allocations[connID]
	if !ok {
		return fmt.Errorf("%w: connection %s has no allocation", ErrNotFound, connID)
	}

	for _, id := range alloc.linkIDs {
		rec, exists := s.links[id]
		if !exists {
			continue
		}
		for j := alloc.startIdx; j < alloc.startIdx+alloc.count; j++ {
			rec.link.Slots[j] = topology.SlotFree
			rec.link.SlotOwner[j] = ""
		}
		rec.version++
	}
	delete(s.allocations, connID)
	return nil
}

// Activate transitions a connection's slots from RESERVED to ACTIVE once
// hardware setup has succeeded (spec §3 Slot lifecycle).
func (s *Store) Activate(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alloc, ok := s.allocations[connID]
	if !ok {
		return fmt.Errorf("%w: connection %s has no allocation", ErrNotFound, connID)
	}
	for _, id := range alloc.linkIDs {
		rec := s.links[id]
		for j := alloc.startIdx; j < alloc.startIdx+alloc.count; j++ {
			rec.link.Slots[j] = topology.SlotActive
		}
	}
	return nil
}

func (s *Store) allocationFor(connID string) (allocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[connID]
	return a, ok
}

// firstFitContiguous scans mask for the lowest-index window of n
// consecutive true values.
func firstFitContiguous(mask []bool, n int) (int, bool) {
	run := 0
	for i, free := range mask {
		if free {
			run++
			if run == n {
				return i - n + 1, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}
