// Package kafkaio wraps github.com/twmb/franz-go for the producer/consumer
// duplex every service in this control plane uses (spec §4.3 KafkaIO, §4.4
// agent consumer, §4.2 topic provisioning), grounded on the teacher's own
// Kafka ingest client in pkg/ingest.
package kafkaio

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config addresses the Kafka broker and the topic a client is bound to.
type Config struct {
	Address                          string
	Topic                            string
	WriteTimeout                     time.Duration
	AutoCreateTopicDefaultPartitions int
	ReplicationFactor                int16
	// CleanupPolicy is "delete" or "compact" (spec §9 resolution:
	// health_<vop> compacted, config_<vop>/monitoring_<vop> time-based).
	CleanupPolicy string
	RetentionMS   int64
}

// DefaultConfig returns spec-conformant defaults for a vOp's three topics.
func DefaultConfig(address, topic string) Config {
	return Config{
		Address:                          address,
		Topic:                            topic,
		WriteTimeout:                     10 * time.Second,
		AutoCreateTopicDefaultPartitions: 4,
		ReplicationFactor:                1,
		CleanupPolicy:                    "delete",
		RetentionMS:                      24 * time.Hour.Milliseconds(),
	}
}

// EnsureTopicPartitions creates the configured topic if missing, or raises
// its partition count if it exists with fewer than the desired amount,
// exactly matching the teacher's pkg/ingest.KafkaConfig.EnsureTopicPartitions
// test matrix (create / left-alone / grow, never shrink).
func (c Config) EnsureTopicPartitions(ctx context.Context, cl *kgo.Client, logger log.Logger) error {
	adm := kadm.NewClient(cl)
	defer adm.Close()

	td, err := adm.ListTopics(ctx, c.Topic)
	if err != nil {
		return fmt.Errorf("listing topic %s: %w", c.Topic, err)
	}

	cfgs := make(map[string]*string)
	if c.CleanupPolicy != "" {
		policy := c.CleanupPolicy
		cfgs["cleanup.policy"] = &policy
	}
	if c.RetentionMS > 0 {
		retention := fmt.Sprintf("%d", c.RetentionMS)
		cfgs["retention.ms"] = &retention
	}

	details, exists := td[c.Topic]
	if !exists || details.Err != nil {
		_, err := adm.CreateTopic(ctx, int32(c.AutoCreateTopicDefaultPartitions), c.ReplicationFactor, cfgs, c.Topic)
		if err != nil {
			return fmt.Errorf("creating topic %s: %w", c.Topic, err)
		}
		level.Info(logger).Log("msg", "created topic", "topic", c.Topic, "partitions", c.AutoCreateTopicDefaultPartitions)
		return nil
	}

	existingPartitions := len(details.Partitions.Numbers())
	if existingPartitions >= c.AutoCreateTopicDefaultPartitions {
		return nil
	}

	_, err = adm.CreatePartitions(ctx, c.AutoCreateTopicDefaultPartitions, c.Topic)
	if err != nil {
		return fmt.Errorf("growing topic %s to %d partitions: %w", c.Topic, c.AutoCreateTopicDefaultPartitions, err)
	}
	level.Info(logger).Log("msg", "grew topic partitions", "topic", c.Topic, "from", existingPartitions, "to", c.AutoCreateTopicDefaultPartitions)
	return nil
}
