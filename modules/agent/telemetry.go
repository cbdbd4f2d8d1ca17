package agent

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
)

// telemetrySession periodically samples every interface it owns for one
// connection and publishes a telemetrySample message per interface per
// tick (spec §4.4 "Telemetry session"). One session per connection_id;
// reconfigure does not restart it, teardown stops it. It is a
// dskit/services.Service so startup/shutdown follows the same
// StartAsync/AwaitRunning/StopAsync/AwaitTerminated lifecycle as the rest
// of the control plane's long-running loops.
type telemetrySession struct {
	services.Service

	connID   string
	agent    *Agent
	interval time.Duration

	mu     sync.Mutex
	ifaces map[string]string // interface -> router id, for the telemetry wire schema's router_id field
}

func (a *Agent) startTelemetry(connID, iface, routerID string) {
	a.sessionsMu.Lock()
	s, ok := a.sessions[connID]
	if !ok {
		s = &telemetrySession{
			connID:   connID,
			agent:    a,
			interval: secondsToDuration(a.cfg.TelemetryIntervalSec),
			ifaces:   make(map[string]string),
		}
		s.Service = services.NewBasicService(nil, s.running, nil)
		a.sessions[connID] = s
		if err := s.StartAsync(context.Background()); err != nil {
			level.Error(a.logger).Log("msg", "telemetry session failed to start", "connection_id", connID, "err", err)
		}
	}
	s.mu.Lock()
	s.ifaces[iface] = routerID
	s.mu.Unlock()
	a.sessionsMu.Unlock()
}

// stopTelemetry removes and stops connID's telemetry session, returning the
// interfaces it owned so the caller can still disable them in hardware once
// the session is gone.
func (a *Agent) stopTelemetry(connID string) []string {
	a.sessionsMu.Lock()
	s, ok := a.sessions[connID]
	delete(a.sessions, connID)
	a.sessionsMu.Unlock()
	if !ok {
		return nil
	}
	ifaces := s.ifaceList()
	s.StopAsync()
	if err := s.AwaitTerminated(context.Background()); err != nil {
		level.Error(a.logger).Log("msg", "telemetry session did not terminate cleanly", "connection_id", connID, "err", err)
	}
	return ifaces
}

func (s *telemetrySession) ifaceList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ifaces))
	for iface := range s.ifaces {
		out = append(out, iface)
	}
	return out
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		seconds = 3.0
	}
	return time.Duration(seconds * float64(time.Second))
}

// running implements the Service's RunningFn: it samples on a ticker until
// ctx is cancelled by StopAsync, completing within one tick as spec.md §5
// requires.
func (s *telemetrySession) running(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *telemetrySession) sampleOnce(ctx context.Context) {
	s.mu.Lock()
	ifaces := make(map[string]string, len(s.ifaces))
	for iface, routerID := range s.ifaces {
		ifaces[iface] = routerID
	}
	s.mu.Unlock()

	for iface, routerID := range ifaces {
		sample, err := s.agent.driver.ReadSample(ctx, iface)
		if err != nil {
			level.Error(s.agent.logger).Log("msg", "read telemetry sample failed", "interface", iface, "err", err)
			continue
		}

		telemetry := messages.NewTelemetry(s.agent.cfg.AgentID, s.agent.cfg.PopID, routerID, messages.TelemetryData{
			ConnectionID: s.connID,
			Interface:    iface,
			Timestamp:    time.Now().Unix(),
			Fields: messages.TelemetryFields{
				RxPower:   sample.RxPower,
				TxPower:   sample.TxPower,
				OSNR:      sample.OSNR,
				PreFECBER: sample.PreFECBER,
			},
		})
		data, err := telemetry.Marshal()
		if err != nil {
			level.Error(s.agent.logger).Log("msg", "marshal telemetry failed", "err", err)
			continue
		}
		if err := s.agent.publisher.Publish(ctx, s.connID, data); err != nil {
			level.Error(s.agent.logger).Log("msg", "publish telemetry failed", "connection_id", s.connID, "err", err)
			continue
		}
		telemetrySamplesTotal.Inc()
	}
}
