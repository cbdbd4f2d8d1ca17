// Command controller runs the per-vOp Controller service (spec §4.3): path
// computation, connection lifecycle, command dispatch, and the QoT
// feedback loop, scoped to exactly one virtual operator's three Kafka
// topics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ipowdm/sdn-control-plane/modules/controller"
	"github.com/ipowdm/sdn-control-plane/pkg/backoffutil"
	"github.com/ipowdm/sdn-control-plane/pkg/buildinfo"
	"github.com/ipowdm/sdn-control-plane/pkg/kafkaio"
	"github.com/ipowdm/sdn-control-plane/pkg/linkdbclient"
	"github.com/ipowdm/sdn-control-plane/pkg/queue"
	"github.com/ipowdm/sdn-control-plane/pkg/statuspage"
	loggerutil "github.com/ipowdm/sdn-control-plane/pkg/util/log"
)

const appName = "sdnctl-controller"

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
	logger = log.With(logger, "vop", cfg.VirtualOperator)
	level.Info(logger).Log("msg", "starting controller", "version", Version)

	linkDB := linkdbclient.New(linkdbclient.Config{Endpoint: cfg.linkDBEndpoint()}, logger)
	pathComputer := controller.NewPathComputer(linkDB)
	table := controller.NewTable()

	producerCfg := kafkaio.DefaultConfig(cfg.KafkaBroker, cfg.ConfigTopic)
	producer, err := kafkaio.NewProducer(producerCfg, cfg.ConfigTopic, prometheus.DefaultRegisterer)
	if err != nil {
		level.Error(logger).Log("msg", "failed creating kafka producer", "err", err)
		os.Exit(2)
	}
	defer producer.Close()

	connManager := controller.NewConnectionManager(table, pathComputer, linkDB, producer, cfg.commandTimeout(), logger)

	agents := controller.NewAgentHealthTracker(1024, logger)

	var qotMonitor *controller.QoTMonitor
	if cfg.EnableQoTMonitoring {
		qotMonitor = controller.NewQoTMonitor(cfg.QoT, table, connManager, logger)
	}
	monitoringDispatcher := controller.NewMonitoringDispatcher(connManager, qotMonitor, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitoringConsumer, err := dialConsumer(ctx, cfg.KafkaBroker, cfg.MonitoringTopic, "ctrl-"+cfg.VirtualOperator, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed creating monitoring consumer", "err", err)
		os.Exit(2)
	}
	defer monitoringConsumer.Close()

	healthConsumer, err := dialConsumer(ctx, cfg.KafkaBroker, cfg.HealthTopic, "ctrl-"+cfg.VirtualOperator, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed creating health consumer", "err", err)
		os.Exit(2)
	}
	defer healthConsumer.Close()

	// The monitoring queue keeps ack/telemetry handling off the Kafka poll
	// goroutine while still processing one record at a time per the arrival
	// order guarantee spec §5 requires for a connection_id's records.
	monitoringQueue := queue.New(queue.Config{Name: "ctrl-monitoring", Size: 1024, WorkerCount: 1}, logger, func(ctx context.Context, rec kafkaRecord) {
		monitoringDispatcher.Handle(ctx, rec.key, rec.value)
	})
	monitoringQueue.StartWorkers(ctx)

	go runConsumer(ctx, monitoringConsumer, logger, "monitoring", func(ctx context.Context, key, value []byte) {
		monitoringQueue.Push(kafkaRecord{key, value})
	})
	go runConsumer(ctx, healthConsumer, logger, "health", agents.Handle)

	handler := controller.NewHandler(connManager, agents, cfg.VirtualOperator, logger)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	router.HandleFunc("/status/endpoints", statuspage.Handler(router)).Methods(http.MethodGet)
	server := &http.Server{Addr: cfg.HTTPListenAddress, Handler: router}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		level.Info(logger).Log("msg", "shutting down")
		cancel()
		if err := monitoringQueue.Shutdown(context.Background()); err != nil {
			level.Error(logger).Log("msg", "monitoring queue drain failed", "err", err)
		}
		if err := server.Close(); err != nil {
			level.Error(logger).Log("msg", "error during shutdown", "err", err)
		}
		close(done)
	}()

	level.Info(logger).Log("msg", "server listening", "addr", cfg.HTTPListenAddress)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		level.Error(logger).Log("msg", "server error", "err", err)
		os.Exit(2)
	}

	<-done
	level.Info(logger).Log("msg", "controller stopped")
}

type kafkaRecord struct {
	key, value []byte
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

func runConsumer(ctx context.Context, c *kafkaio.Consumer, logger log.Logger, name string, handle kafkaio.RecordHandler) {
	if err := c.Run(ctx, handle); err != nil {
		level.Error(logger).Log("msg", "consumer loop stopped", "topic", name, "err", err)
	}
}
