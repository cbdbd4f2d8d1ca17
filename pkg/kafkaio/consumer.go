package kafkaio

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
)

// RecordHandler processes one fetched record. Handlers must not block
// indefinitely: the consume loop is single-threaded per Consumer so a slow
// handler delays only this topic's subsequent records, matching spec §5's
// per-partition ordering requirement (agents/controllers must process
// records for one connection_id in arrival order).
type RecordHandler func(ctx context.Context, key, value []byte)

// Consumer wraps a franz-go consumer-group client bound to one topic.
type Consumer struct {
	cl     *kgo.Client
	logger log.Logger
}

// ConsumerOptions configures consumer-group membership and cold-start
// offset policy.
type ConsumerOptions struct {
	GroupID string
	// ResetToLatest implements the "auto.offset.reset = latest" cold-start
	// policy spec §4.3/§4.4 require for both CTRL and AGT consumer groups.
	ResetToLatest bool
	InstanceID    string // franz-go static group membership, optional
}

// NewConsumer dials brokers and joins the consumer group described by opts.
func NewConsumer(cfg Config, topic string, opts ConsumerOptions, logger log.Logger, registerer prometheus.Registerer) (*Consumer, error) {
	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Address),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(opts.GroupID),
		kgo.DisableAutoCommit(),
	}
	if opts.ResetToLatest {
		kgoOpts = append(kgoOpts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}
	if opts.InstanceID != "" {
		kgoOpts = append(kgoOpts, kgo.InstanceID(opts.InstanceID))
	}
	if registerer != nil {
		metrics := kprom.NewMetrics("sdnctl_kafka_consumer", kprom.Registerer(registerer))
		kgoOpts = append(kgoOpts, kgo.WithHooks(metrics))
	}

	cl, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka consumer for %s group %s: %w", topic, opts.GroupID, err)
	}
	return &Consumer{cl: cl, logger: logger}, nil
}

// Run polls until ctx is cancelled, invoking handle for every fetched
// record and committing offsets only after handle returns (spec §5: "acks
// for a command must follow the command's effects" — committing after
// processing avoids acking work the consumer never actually performed).
func (c *Consumer) Run(ctx context.Context, handle RecordHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fetches := c.cl.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			level.Error(c.logger).Log("msg", "fetch error", "topic", topic, "partition", partition, "err", err)
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			handle(ctx, rec.Key, rec.Value)
		})

		if err := c.cl.CommitUncommittedOffsets(ctx); err != nil {
			level.Error(c.logger).Log("msg", "commit offsets failed", "err", err)
		}
	}
}

// Close releases the underlying client.
func (c *Consumer) Close() {
	c.cl.Close()
}
