package linkdb

import "fmt"

// ReserveInterfaces atomically assigns a set of interfaces to vop, after
// verifying every one of them is currently unowned and has a transceiver
// present. Either all interfaces are reserved or none are (spec §4.2 step 2:
// "verify and collect interface availability" must precede any mutation).
func (s *Store) ReserveInterfaces(vop string, ifaceIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ifaceIDs {
		iface, ok := s.interfaces[id]
		if !ok {
			return fmt.Errorf("%w: interface %s", ErrNotFound, id)
		}
		if iface.OwnerVop != "" && iface.OwnerVop != vop {
			return fmt.Errorf("%w: interface %s owned by %s", ErrInterfaceUnavailable, id, iface.OwnerVop)
		}
		if !iface.TransceiverPresent {
			return fmt.Errorf("%w: interface %s has no transceiver", ErrInterfaceUnavailable, id)
		}
	}

	for _, id := range ifaceIDs {
		iface := s.interfaces[id]
		iface.OwnerVop = vop
		s.interfaces[id] = iface
	}
	return nil
}

// ReleaseInterfaces unassigns a set of interfaces from vop. Releasing an
// interface already owned by a different vOp, or already free, is a no-op
// for that interface (idempotent, per spec §7 rollback semantics).
func (s *Store) ReleaseInterfaces(vop string, ifaceIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ifaceIDs {
		iface, ok := s.interfaces[id]
		if !ok {
			continue
		}
		if iface.OwnerVop != vop {
			continue
		}
		iface.OwnerVop = ""
		s.interfaces[id] = iface
	}
	return nil
}
