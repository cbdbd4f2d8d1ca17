package controller

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
)

// MonitoringDispatcher turns raw monitoring_<vop> records into HandleAck/
// QoTMonitor.Observe calls. It is the RecordHandler passed to
// pkg/kafkaio.Consumer.Run for CTRL's monitoring consumer.
type MonitoringDispatcher struct {
	connManager *ConnectionManager
	qot         *QoTMonitor
	logger      log.Logger
}

// NewMonitoringDispatcher builds a MonitoringDispatcher.
func NewMonitoringDispatcher(connManager *ConnectionManager, qot *QoTMonitor, logger log.Logger) *MonitoringDispatcher {
	return &MonitoringDispatcher{connManager: connManager, qot: qot, logger: logger}
}

// Handle implements pkg/kafkaio.RecordHandler.
func (d *MonitoringDispatcher) Handle(ctx context.Context, _, value []byte) {
	ack, telemetry, err := messages.ParseMonitoringMessage(value)
	if err != nil {
		level.Warn(d.logger).Log("msg", "dropping malformed monitoring message", "err", err)
		return
	}

	if ack != nil {
		if err := d.connManager.HandleAck(ctx, *ack); err != nil {
			level.Error(d.logger).Log("msg", "handle ack failed", "command_id", ack.CommandID, "err", err)
		}
		return
	}

	if telemetry != nil {
		d.handleTelemetry(ctx, *telemetry)
	}
}

func (d *MonitoringDispatcher) handleTelemetry(ctx context.Context, t messages.Telemetry) {
	conn, ok := d.connManager.table.Get(t.Data.ConnectionID)
	if !ok {
		// connection already torn down; ignore stale telemetry per spec §8
		// scenario 6 ("subsequent telemetry for that connection_id is
		// ignored by the controller").
		return
	}
	if conn.State == StateDeleted || conn.State == StateTeardown {
		return
	}
	if d.qot == nil {
		return
	}

	if err := d.qot.Observe(ctx, t.Data.ConnectionID, t.Data.Interface, t.AgentID, t.Data.Fields, time.Now()); err != nil {
		level.Error(d.logger).Log("msg", "qot observe failed", "connection_id", t.Data.ConnectionID, "err", err)
	}
}
