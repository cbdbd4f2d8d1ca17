package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is LinkDB's process configuration, loaded entirely from the
// environment (spec §6). TopologyFile is an addition: an optional YAML
// file seeding the initial POP/router/interface/link graph, since the REST
// surface alone has no way to declare routers or interfaces before the
// first request touching them.
type Config struct {
	HTTPListenAddress string
	TopologyFile      string
	LogLevel          string
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_listen_address", ":8080")
	v.SetDefault("topology_file", "")
	v.SetDefault("log_level", "info")

	cfg := Config{
		HTTPListenAddress: v.GetString("http_listen_address"),
		TopologyFile:      v.GetString("topology_file"),
		LogLevel:          v.GetString("log_level"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects an unusable configuration before any network resource is
// touched (spec §7 "Validation ... reject with actionable message; never
// mutate state").
func (c Config) Validate() error {
	if c.HTTPListenAddress == "" {
		return fmt.Errorf("HTTP_LISTEN_ADDRESS must not be empty")
	}
	return nil
}
