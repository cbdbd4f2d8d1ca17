// Command slicemanager runs the Slice Manager service (spec §4.2): tenant
// vOp activation, topic provisioning, and interface reservation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ipowdm/sdn-control-plane/modules/slicemanager"
	"github.com/ipowdm/sdn-control-plane/pkg/backoffutil"
	"github.com/ipowdm/sdn-control-plane/pkg/buildinfo"
	"github.com/ipowdm/sdn-control-plane/pkg/linkdbclient"
	"github.com/ipowdm/sdn-control-plane/pkg/statuspage"
	loggerutil "github.com/ipowdm/sdn-control-plane/pkg/util/log"
)

const appName = "sdnctl-slicemanager"

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
	level.Info(logger).Log("msg", "starting slicemanager", "version", Version, "addr", cfg.HTTPListenAddress)

	linkDB := linkdbclient.New(linkdbclient.Config{Endpoint: cfg.linkDBEndpoint()}, logger)

	kafkaClient, err := dialKafka(context.Background(), cfg.KafkaBroker, logger)
	if err != nil {
		level.Error(logger).Log("msg", "could not reach kafka", "err", err)
		os.Exit(2)
	}
	defer kafkaClient.Close()

	topics := slicemanager.NewKafkaTopicProvisioner(kafkaClient, cfg.TopicPartitions, logger)
	mgr := slicemanager.New(linkDB, topics, slicemanager.NoopControllerLauncher{}, logger)
	handler := slicemanager.NewHandler(mgr, logger)

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
	level.Info(logger).Log("msg", "slicemanager stopped")
}

// dialKafka retries the initial broker dial with spec §7's bounded backoff
// policy so a Kafka cluster that is merely slow to come up doesn't fail
// startup outright.
func dialKafka(ctx context.Context, broker string, logger log.Logger) (*kgo.Client, error) {
	var cl *kgo.Client
	err := backoffutil.Do(ctx, func(ctx context.Context) error {
		c, err := kgo.NewClient(kgo.SeedBrokers(broker))
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			c.Close()
			return err
		}
		cl = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial kafka broker %s: %w", broker, err)
	}
	level.Info(logger).Log("msg", "connected to kafka", "broker", broker)
	return cl, nil
}
