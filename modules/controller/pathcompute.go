package controller

import (
	"context"
	"fmt"

	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

// capacityKey indexes the fixed bandwidth/modulation -> slot-count table
// spec §4.3 calls for ("computes required slot count from {bandwidth,
// modulation} using a fixed capacity table"). Spec scenario 2 fixes the
// single point {400G} -> 8 slots (12.5GHz grid); the other entries are fixed
// values for the modulation formats SONiC transceivers commonly support and
// are not proportional to bandwidth.
type capacityKey struct {
	BandwidthGbps int
	Modulation    string
}

var capacityTable = map[capacityKey]int{
	{100, "QPSK"}:   4,
	{200, "QPSK"}:   6,
	{400, "QPSK"}:   8,
	{400, "16QAM"}:  6,
	{600, "16QAM"}:  8,
	{800, "16QAM"}:  10,
}

// ErrUnknownCapacity is returned when the (bandwidth, modulation) pair has
// no entry in the fixed capacity table.
var ErrUnknownCapacity = fmt.Errorf("no capacity table entry for requested bandwidth/modulation")

// SlotsRequired looks up the fixed capacity table for the number of
// contiguous spectrum slots a connection of the given bandwidth and
// modulation format needs.
func SlotsRequired(bandwidthGbps int, modulation string) (int, error) {
	n, ok := capacityTable[capacityKey{bandwidthGbps, modulation}]
	if !ok {
		return 0, ErrUnknownCapacity
	}
	return n, nil
}

// LinkDBReader is the subset of linkdbclient.Client PathComputer needs.
type LinkDBReader interface {
	GetTopology(ctx context.Context) (topology.Topology, error)
	Path(ctx context.Context, src, dst string, k int) ([]topology.Path, error)
}

// PathComputer turns an endpoint pair plus bandwidth/modulation into an
// ordered link list and required slot count (spec §4.3 "PathComputer").
type PathComputer struct {
	linkDB LinkDBReader
}

// NewPathComputer builds a PathComputer backed by a LinkDB client.
func NewPathComputer(linkDB LinkDBReader) *PathComputer {
	return &PathComputer{linkDB: linkDB}
}

// Plan is the result of path computation for one connection request.
type Plan struct {
	LinkIDs       []string
	DistanceKM    float64
	SlotsRequired int
}

// Compute finds the shortest feasible path from src to dst and the slot
// count the requested bandwidth/modulation needs.
func (p *PathComputer) Compute(ctx context.Context, src, dst string, bandwidthGbps int, modulation string) (Plan, error) {
	slots, err := SlotsRequired(bandwidthGbps, modulation)
	if err != nil {
		return Plan{}, err
	}

	paths, err := p.linkDB.Path(ctx, src, dst, 1)
	if err != nil {
		return Plan{}, fmt.Errorf("compute path: %w", err)
	}
	if len(paths) == 0 {
		return Plan{}, fmt.Errorf("no path found between %s and %s", src, dst)
	}

	best := paths[0]
	linkIDs := make([]string, len(best.Links))
	for i, l := range best.Links {
		linkIDs[i] = l.ID
	}

	return Plan{LinkIDs: linkIDs, DistanceKM: best.DistanceKM, SlotsRequired: slots}, nil
}
