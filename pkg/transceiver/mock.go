package transceiver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Mock simulates a population of coherent pluggables so the QoT loop and
// integration tests are exercisable without real CMIS hardware
// (MOCK_HARDWARE=true, the default per spec §6).
type Mock struct {
	mu    sync.Mutex
	state map[string]*mockState
	rng   *rand.Rand
}

type mockState struct {
	present      bool
	enabled      bool
	frequencyGHz float64
	txPowerDBm   float64
	degradeAfter time.Time // zero means never degrade
}

// NewMock returns a Mock with every interface reporting transceiver
// presence, matching the "transceiver presence" field SM checks before
// reserving an interface (spec §4.2 step 2).
func NewMock() *Mock {
	return &Mock{
		state: make(map[string]*mockState),
		rng:   rand.New(rand.NewSource(1)),
	}
}

// Degrade schedules interface iface to report degraded OSNR/BER from t
// onward, used by tests to exercise the QoT reconfiguration path
// deterministically.
func (m *Mock) Degrade(iface string, from time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(iface)
	s.degradeAfter = from
}

func (m *Mock) stateFor(iface string) *mockState {
	s, ok := m.state[iface]
	if !ok {
		s = &mockState{present: true}
		m.state[iface] = s
	}
	return s
}

func (m *Mock) GetPresence(_ context.Context, iface string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateFor(iface).present, nil
}

func (m *Mock) Configure(_ context.Context, iface string, frequencyGHz, txPowerDBm float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(iface)
	if !s.present {
		return fmt.Errorf("transceiver not present on %s", iface)
	}
	s.frequencyGHz = frequencyGHz
	s.txPowerDBm = txPowerDBm
	s.enabled = true
	return nil
}

func (m *Mock) ReadSample(_ context.Context, iface string) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(iface)
	if !s.enabled {
		return Sample{}, fmt.Errorf("laser disabled on %s", iface)
	}

	osnr := 22.0 + m.rng.Float64()*2 - 1
	ber := math.Pow(10, -6+m.rng.Float64()*0.5)

	if !s.degradeAfter.IsZero() && !time.Now().Before(s.degradeAfter) {
		osnr = 15.0 + m.rng.Float64()
		ber = math.Pow(10, -2+m.rng.Float64()*0.5)
	}

	return Sample{
		RxPower:   s.txPowerDBm - 3.0 + (m.rng.Float64()*0.4 - 0.2),
		TxPower:   s.txPowerDBm,
		OSNR:      osnr,
		PreFECBER: ber,
	}, nil
}

func (m *Mock) Disable(_ context.Context, iface string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(iface)
	s.enabled = false
	return nil
}
