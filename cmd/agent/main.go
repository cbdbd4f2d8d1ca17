// Command agent runs the SONiC Agent (spec §4.4): consumes config_<vop>,
// drives the transceiver hardware abstraction, and publishes acks,
// telemetry, and heartbeats for one switch.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	agentmod "github.com/ipowdm/sdn-control-plane/modules/agent"
	"github.com/ipowdm/sdn-control-plane/pkg/backoffutil"
	"github.com/ipowdm/sdn-control-plane/pkg/buildinfo"
	"github.com/ipowdm/sdn-control-plane/pkg/kafkaio"
	"github.com/ipowdm/sdn-control-plane/pkg/messages"
	"github.com/ipowdm/sdn-control-plane/pkg/transceiver"
	loggerutil "github.com/ipowdm/sdn-control-plane/pkg/util/log"
)

const appName = "sdnctl-agent"

var (
	Version  string
	Branch   string
	Revision string
)

func init() {
	buildinfo.Register(appName, Version, Branch, Revision)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	logger := loggerutil.New(cfg.LogLevel)
	logger = log.With(logger, "agent_id", cfg.AgentID, "pop_id", cfg.PopID)
	level.Info(logger).Log("msg", "starting agent", "version", Version)

	if !cfg.MockHardware {
		level.Warn(logger).Log("msg", "MOCK_HARDWARE=false requested but no CMIS driver is wired in; using the mock transceiver anyway")
	}
	driver := transceiver.NewMock()

	monitoringProducer, err := kafkaio.NewProducer(kafkaio.DefaultConfig(cfg.KafkaBroker, cfg.MonitoringTopic), cfg.MonitoringTopic, prometheus.DefaultRegisterer)
	if err != nil {
		level.Error(logger).Log("msg", "failed creating monitoring producer", "err", err)
		os.Exit(2)
	}
	defer monitoringProducer.Close()

	healthProducer, err := kafkaio.NewProducer(kafkaio.DefaultConfig(cfg.KafkaBroker, cfg.HealthTopic), cfg.HealthTopic, prometheus.DefaultRegisterer)
	if err != nil {
		level.Error(logger).Log("msg", "failed creating health producer", "err", err)
		os.Exit(2)
	}
	defer healthProducer.Close()

	agentCfg := agentmod.Config{
		AgentID:              cfg.AgentID,
		PopID:                cfg.PopID,
		TelemetryIntervalSec: cfg.TelemetryIntervalSec,
		DedupeCacheSize:      4096,
	}
	a := agentmod.New(agentCfg, driver, monitoringProducer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configConsumer, err := dialConsumer(ctx, cfg.KafkaBroker, cfg.ConfigTopic, cfg.AgentID, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed creating config consumer", "err", err)
		os.Exit(2)
	}
	defer configConsumer.Close()

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		if err := configConsumer.Run(ctx, a.Handle); err != nil {
			level.Error(logger).Log("msg", "consumer loop stopped", "err", err)
		}
	}()

	go publishHeartbeats(ctx, healthProducer, cfg, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	level.Info(logger).Log("msg", "shutting down")
	cancel()
	a.Shutdown()
	<-consumeDone
	level.Info(logger).Log("msg", "agent stopped")
}

func dialConsumer(ctx context.Context, broker, topic, groupID string, logger log.Logger) (*kafkaio.Consumer, error) {
	var consumer *kafkaio.Consumer
	err := backoffutil.Do(ctx, func(ctx context.Context) error {
		c, err := kafkaio.NewConsumer(kafkaio.DefaultConfig(broker, topic), topic, kafkaio.ConsumerOptions{
			GroupID:       groupID,
			ResetToLatest: true,
		}, logger, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		consumer = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial consumer for %s: %w", topic, err)
	}
	return consumer, nil
}

// publishHeartbeats advertises this agent's presence on health_<vop> every
// ten seconds until ctx is cancelled, giving CTRL's AgentHealthTracker a
// live view for GET /api/v1/agents.
func publishHeartbeats(ctx context.Context, producer *kafkaio.Producer, cfg Config, logger log.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	send := func() {
		hb := messages.NewHeartbeat(cfg.AgentID, cfg.PopID, []string{"cmis"}, time.Now().Unix())
		data, err := hb.Marshal()
		if err != nil {
			level.Error(logger).Log("msg", "marshal heartbeat failed", "err", err)
			return
		}
		if err := producer.Publish(ctx, cfg.AgentID, data); err != nil {
			level.Error(logger).Log("msg", "publish heartbeat failed", "err", err)
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}
