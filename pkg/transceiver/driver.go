// Package transceiver defines the CMIS transceiver capability the agent
// drives, and a mock implementation for development and tests (spec §9
// "Hardware abstraction ... explicit capability with a mock").
package transceiver

import "context"

// Sample is one coherent-optics measurement.
type Sample struct {
	RxPower   float64
	TxPower   float64
	OSNR      float64
	PreFECBER float64
}

// Driver is the hardware capability an agent exercises per interface. A
// concrete implementation talks CMIS to a real pluggable; Mock simulates one
// for development (spec §4.4).
type Driver interface {
	// GetPresence reports whether a transceiver is plugged into the
	// interface.
	GetPresence(ctx context.Context, iface string) (bool, error)
	// Configure sets frequency (THz) and tx power (dBm) and enables the
	// laser.
	Configure(ctx context.Context, iface string, frequencyGHz, txPowerDBm float64) error
	// ReadSample returns the current QoT measurement for the interface.
	ReadSample(ctx context.Context, iface string) (Sample, error)
	// Disable turns off the laser and leaves the interface in a safe
	// admin-down state.
	Disable(ctx context.Context, iface string) error
}
