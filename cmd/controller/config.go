package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ipowdm/sdn-control-plane/modules/controller"
)

// Config is CTRL's process configuration, loaded entirely from the
// environment (spec §6).
type Config struct {
	HTTPListenAddress string

	KafkaBroker     string
	VirtualOperator string
	ConfigTopic     string
	MonitoringTopic string
	HealthTopic     string

	LinkDBHost string
	LinkDBPort int

	CommandTimeoutSec float64

	EnableQoTMonitoring bool
	QoT                 controller.QoTConfig

	LogLevel string
}

func (c Config) linkDBEndpoint() string {
	return fmt.Sprintf("http://%s:%d", c.LinkDBHost, c.LinkDBPort)
}

func (c Config) commandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec * float64(time.Second))
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := controller.DefaultQoTConfig()

	v.SetDefault("http_listen_address", ":8082")
	v.SetDefault("kafka_broker", "localhost:9092")
	v.SetDefault("virtual_operator", "")
	v.SetDefault("config_topic", "")
	v.SetDefault("monitoring_topic", "")
	v.SetDefault("health_topic", "")
	v.SetDefault("linkdb_host", "localhost")
	v.SetDefault("linkdb_port", 8080)
	v.SetDefault("command_timeout_sec", 30.0)
	v.SetDefault("enable_qot_monitoring", true)
	v.SetDefault("qot_samples", def.PersistencySamples)
	v.SetDefault("qot_cooldown_sec", def.CooldownSec.Seconds())
	v.SetDefault("osnr_threshold_db", def.OSNRThresholdDB)
	v.SetDefault("ber_threshold", def.BERThreshold)
	v.SetDefault("tx_step_db", def.TxStepDB)
	v.SetDefault("tx_min_dbm", def.TxMinDBm)
	v.SetDefault("tx_max_dbm", def.TxMaxDBm)
	v.SetDefault("adjust_mode", def.AdjustMode)
	v.SetDefault("log_level", "info")

	vop := v.GetString("virtual_operator")
	cfg := Config{
		HTTPListenAddress:   v.GetString("http_listen_address"),
		KafkaBroker:         v.GetString("kafka_broker"),
		VirtualOperator:     vop,
		ConfigTopic:         orDefault(v.GetString("config_topic"), "config_"+vop),
		MonitoringTopic:     orDefault(v.GetString("monitoring_topic"), "monitoring_"+vop),
		HealthTopic:         orDefault(v.GetString("health_topic"), "health_"+vop),
		LinkDBHost:          v.GetString("linkdb_host"),
		LinkDBPort:          v.GetInt("linkdb_port"),
		CommandTimeoutSec:   v.GetFloat64("command_timeout_sec"),
		EnableQoTMonitoring: v.GetBool("enable_qot_monitoring"),
		QoT: controller.QoTConfig{
			OSNRThresholdDB:    v.GetFloat64("osnr_threshold_db"),
			BERThreshold:       v.GetFloat64("ber_threshold"),
			PersistencySamples: v.GetInt("qot_samples"),
			CooldownSec:        time.Duration(v.GetFloat64("qot_cooldown_sec") * float64(time.Second)),
			TxStepDB:           v.GetFloat64("tx_step_db"),
			TxMinDBm:           v.GetFloat64("tx_min_dbm"),
			TxMaxDBm:           v.GetFloat64("tx_max_dbm"),
			AdjustMode:         v.GetString("adjust_mode"),
		},
		LogLevel: v.GetString("log_level"),
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
	if c.VirtualOperator == "" {
		return fmt.Errorf("VIRTUAL_OPERATOR must not be empty")
	}
	if c.KafkaBroker == "" {
		return fmt.Errorf("KAFKA_BROKER must not be empty")
	}
	if c.QoT.AdjustMode != controller.AdjustModeBoth && c.QoT.AdjustMode != controller.AdjustModeOne {
		return fmt.Errorf("ADJUST_MODE must be %q or %q", controller.AdjustModeBoth, controller.AdjustModeOne)
	}
	return nil
}
