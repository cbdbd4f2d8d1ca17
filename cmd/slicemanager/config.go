package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the Slice Manager's process configuration (spec §6).
type Config struct {
	HTTPListenAddress string
	KafkaBroker       string
	LinkDBHost        string
	LinkDBPort        int
	TopicPartitions   int
	LogLevel          string
}

func (c Config) linkDBEndpoint() string {
	return fmt.Sprintf("http://%s:%d", c.LinkDBHost, c.LinkDBPort)
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_listen_address", ":8081")
	v.SetDefault("kafka_broker", "localhost:9092")
	v.SetDefault("linkdb_host", "localhost")
	v.SetDefault("linkdb_port", 8080)
	v.SetDefault("topic_partitions", 4)
	v.SetDefault("log_level", "info")

	cfg := Config{
		HTTPListenAddress: v.GetString("http_listen_address"),
		KafkaBroker:       v.GetString("kafka_broker"),
		LinkDBHost:        v.GetString("linkdb_host"),
		LinkDBPort:        v.GetInt("linkdb_port"),
		TopicPartitions:   v.GetInt("topic_partitions"),
		LogLevel:          v.GetString("log_level"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.KafkaBroker == "" {
		return fmt.Errorf("KAFKA_BROKER must not be empty")
	}
	if c.LinkDBHost == "" {
		return fmt.Errorf("LINKDB_HOST must not be empty")
	}
	return nil
}
