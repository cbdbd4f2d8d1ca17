package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ipowdm/sdn-control-plane/modules/agent"
)

// Config is AGT's process configuration (spec §6). AGENT_ID and POP_ID are
// this binary's own identity, not listed among spec.md's shared env vars
// but required for every other field to mean anything; every deployment
// sets them per-switch.
type Config struct {
	AgentID string
	PopID   string

	KafkaBroker     string
	VirtualOperator string
	ConfigTopic     string
	MonitoringTopic string
	HealthTopic     string

	TelemetryIntervalSec float64
	MockHardware         bool

	LogLevel string
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := agent.DefaultConfig("", "")

	v.SetDefault("agent_id", "")
	v.SetDefault("pop_id", "")
	v.SetDefault("kafka_broker", "localhost:9092")
	v.SetDefault("virtual_operator", "")
	v.SetDefault("config_topic", "")
	v.SetDefault("monitoring_topic", "")
	v.SetDefault("health_topic", "")
	v.SetDefault("telemetry_interval_sec", def.TelemetryIntervalSec)
	v.SetDefault("mock_hardware", true)
	v.SetDefault("log_level", "info")

	vop := v.GetString("virtual_operator")
	cfg := Config{
		AgentID:              v.GetString("agent_id"),
		PopID:                v.GetString("pop_id"),
		KafkaBroker:          v.GetString("kafka_broker"),
		VirtualOperator:      vop,
		ConfigTopic:          orDefault(v.GetString("config_topic"), "config_"+vop),
		MonitoringTopic:      orDefault(v.GetString("monitoring_topic"), "monitoring_"+vop),
		HealthTopic:          orDefault(v.GetString("health_topic"), "health_"+vop),
		TelemetryIntervalSec: v.GetFloat64("telemetry_interval_sec"),
		MockHardware:         v.GetBool("mock_hardware"),
		LogLevel:             v.GetString("log_level"),
	}
	return cfg, cfg.Validate()
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func (c Config) Validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("AGENT_ID must not be empty")
	}
	if c.PopID == "" {
		return fmt.Errorf("POP_ID must not be empty")
	}
	if c.VirtualOperator == "" {
		return fmt.Errorf("VIRTUAL_OPERATOR must not be empty")
	}
	if c.KafkaBroker == "" {
		return fmt.Errorf("KAFKA_BROKER must not be empty")
	}
	return nil
}
