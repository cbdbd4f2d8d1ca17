// Command linkdb runs the Link Database service (spec §4.1): the
// topology and spectrum-slot resource manager every vOp's controller and
// the Slice Manager allocate against over REST.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/ipowdm/sdn-control-plane/modules/linkdb"
	"github.com/ipowdm/sdn-control-plane/pkg/buildinfo"
	"github.com/ipowdm/sdn-control-plane/pkg/statuspage"
	loggerutil "github.com/ipowdm/sdn-control-plane/pkg/util/log"
)

const appName = "sdnctl-linkdb"

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
	level.Info(logger).Log("msg", "starting linkdb", "version", Version, "addr", cfg.HTTPListenAddress)

	store := linkdb.NewStore()

	if cfg.TopologyFile != "" {
		bt, err := linkdb.LoadBootstrapTopology(cfg.TopologyFile)
		if err != nil {
			level.Error(logger).Log("msg", "failed loading topology file", "path", cfg.TopologyFile, "err", err)
			os.Exit(1)
		}
		if err := store.Apply(bt); err != nil {
			level.Error(logger).Log("msg", "failed applying bootstrap topology", "path", cfg.TopologyFile, "err", err)
			os.Exit(1)
		}
		level.Info(logger).Log("msg", "loaded bootstrap topology", "path", cfg.TopologyFile,
			"pops", len(bt.Pops), "routers", len(bt.Routers), "interfaces", len(bt.Interfaces), "links", len(bt.Links))
	}

	handler := linkdb.NewHandler(store, logger)

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
	level.Info(logger).Log("msg", "linkdb stopped")
}
