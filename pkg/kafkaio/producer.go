package kafkaio

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
)

// Producer publishes keyed records to a single topic. Franz-go's default
// sticky-key partitioner routes every record sharing a key to the same
// partition, which is how spec §5's "commands and telemetry for one
// connection_id land on one partition" ordering guarantee is realized.
type Producer struct {
	cl    *kgo.Client
	topic string
}

// NewProducer dials brokers and returns a Producer bound to topic.
// registerer may be nil to skip Kafka client metrics registration
// (tests typically pass a fresh prometheus.Registry).
func NewProducer(cfg Config, topic string, registerer prometheus.Registerer) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Address),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	if registerer != nil {
		metrics := kprom.NewMetrics("sdnctl_kafka_producer", kprom.Registerer(registerer))
		opts = append(opts, kgo.WithHooks(metrics))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer for %s: %w", topic, err)
	}
	return &Producer{cl: cl, topic: topic}, nil
}

// Publish sends value keyed by key, blocking until the broker acknowledges
// it or ctx is cancelled.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	rec := &kgo.Record{Topic: p.topic, Key: []byte(key), Value: value}
	res := p.cl.ProduceSync(ctx, rec)
	return res.FirstErr()
}

// Close releases the underlying client, draining in-flight records first
// (spec §5 "Graceful shutdown drains in-flight acks before closing Kafka
// producer").
func (p *Producer) Close() {
	_ = p.cl.Flush(context.Background())
	p.cl.Close()
}
