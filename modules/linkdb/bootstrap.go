package linkdb

import (
	"fmt"

	"github.com/ipowdm/sdn-control-plane/pkg/configfile"
	"github.com/ipowdm/sdn-control-plane/pkg/topology"
)

// BootstrapTopology is the YAML shape a LinkDB deployment can seed its
// initial physical graph from (TOPOLOGY_FILE), since the REST surface only
// exposes POP/link creation and a real rollout otherwise has no way to
// declare routers and interfaces ahead of the first reservation request.
// Its fields mirror pkg/topology's types but carry their own yaml tags
// rather than reusing the json ones those types are defined with.
type BootstrapTopology struct {
	Pops       []BootstrapPOP       `yaml:"pops"`
	Routers    []BootstrapRouter    `yaml:"routers"`
	Interfaces []BootstrapInterface `yaml:"interfaces"`
	Links      []BootstrapLink      `yaml:"links"`
}

type BootstrapPOP struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

type BootstrapRouter struct {
	ID  string `yaml:"id"`
	Pop string `yaml:"pop_id"`
}

type BootstrapInterface struct {
	ID       string `yaml:"id"`
	PopID    string `yaml:"pop_id"`
	RouterID string `yaml:"router_id"`
	Port     int    `yaml:"port"`

	TransceiverPresent bool `yaml:"transceiver_present"`
}

// BootstrapLink mirrors the CreateLink signature; Slots is the per-link
// spectrum grid width, not the live occupancy (every slot starts FREE).
type BootstrapLink struct {
	ID         string  `yaml:"id"`
	PopA       string  `yaml:"pop_a"`
	PopB       string  `yaml:"pop_b"`
	DistanceKM float64 `yaml:"distance_km"`
	Slots      int     `yaml:"slots"`
}

// LoadBootstrapTopology reads and expands path per pkg/configfile.
func LoadBootstrapTopology(path string) (BootstrapTopology, error) {
	var bt BootstrapTopology
	err := configfile.LoadYAML(path, &bt)
	return bt, err
}

// Apply seeds s with bt's pops, routers, interfaces, and links, in
// dependency order. It stops at the first failure; a bootstrap file is
// expected to describe a single consistent graph, not a best-effort one.
func (s *Store) Apply(bt BootstrapTopology) error {
	for _, p := range bt.Pops {
		pop := topology.POP{ID: p.ID, Name: p.Name, Location: topology.LatLong{Lat: p.Lat, Lon: p.Lon}}
		if err := s.CreatePOP(pop); err != nil {
			return fmt.Errorf("bootstrap pop %s: %w", p.ID, err)
		}
	}
	for _, r := range bt.Routers {
		if err := s.CreateRouter(topology.Router{ID: r.ID, Pop: r.Pop}); err != nil {
			return fmt.Errorf("bootstrap router %s: %w", r.ID, err)
		}
	}
	for _, i := range bt.Interfaces {
		iface := topology.Interface{ID: i.ID, PopID: i.PopID, RouterID: i.RouterID, Port: i.Port, TransceiverPresent: i.TransceiverPresent}
		if err := s.CreateInterface(iface); err != nil {
			return fmt.Errorf("bootstrap interface %s: %w", i.ID, err)
		}
	}
	for _, l := range bt.Links {
		if err := s.CreateLink(l.ID, l.PopA, l.PopB, l.DistanceKM, l.Slots); err != nil {
			return fmt.Errorf("bootstrap link %s: %w", l.ID, err)
		}
	}
	return nil
}
