package slicemanager

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ipowdm/sdn-control-plane/pkg/kafkaio"
)

// KafkaTopicProvisioner implements TopicProvisioner against a real Kafka
// cluster via pkg/kafkaio.Config.EnsureTopicPartitions.
type KafkaTopicProvisioner struct {
	client     *kgo.Client
	partitions int
	logger     log.Logger
}

// NewKafkaTopicProvisioner wraps an existing kgo client. partitions is the
// desired partition count for newly-created or grown topics.
func NewKafkaTopicProvisioner(client *kgo.Client, partitions int, logger log.Logger) *KafkaTopicProvisioner {
	return &KafkaTopicProvisioner{client: client, partitions: partitions, logger: logger}
}

func (p *KafkaTopicProvisioner) EnsureTopic(ctx context.Context, topic string, cleanupPolicy string, retention time.Duration) error {
	cfg := kafkaio.Config{
		Topic:                            topic,
		AutoCreateTopicDefaultPartitions: p.partitions,
		ReplicationFactor:                1,
		CleanupPolicy:                    cleanupPolicy,
		RetentionMS:                      retention.Milliseconds(),
	}
	return cfg.EnsureTopicPartitions(ctx, p.client, p.logger)
}

// NoopControllerLauncher satisfies ControllerLauncher when SM runs without
// an out-of-process controller orchestrator wired in (e.g. in tests, or
// when controllers are deployed externally and merely watch LinkDB/Kafka
// for their vOp's activation). Launch/Stop are idempotent no-ops by
// contract (spec §4.2 step 6).
type NoopControllerLauncher struct{}

func (NoopControllerLauncher) Launch(_ context.Context, _ string) error { return nil }
func (NoopControllerLauncher) Stop(_ context.Context, _ string) error   { return nil }
