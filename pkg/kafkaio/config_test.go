package kafkaio

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestEnsureTopicPartitions(t *testing.T) {
	tests := []struct {
		name                    string
		topic                   string
		desiredPartitions       int
		existingPartitions      int
		topicExists             bool
		expectedFinalPartitions int
	}{
		{name: "create new topic", topic: "config_vop2", desiredPartitions: 4, expectedFinalPartitions: 4},
		{name: "left alone when sufficient", topic: "monitoring_vop2", desiredPartitions: 4, existingPartitions: 4, topicExists: true, expectedFinalPartitions: 4},
		{name: "grown when insufficient", topic: "health_vop2", desiredPartitions: 8, existingPartitions: 2, topicExists: true, expectedFinalPartitions: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster, err := kfake.NewCluster(kfake.NumBrokers(1))
			require.NoError(t, err)
			t.Cleanup(cluster.Close)

			addrs := cluster.ListenAddrs()
			require.Len(t, addrs, 1)

			cl, err := kgo.NewClient(kgo.SeedBrokers(addrs[0]))
			require.NoError(t, err)
			defer cl.Close()

			if tt.topicExists {
				adm := kadm.NewClient(cl)
				_, err = adm.CreateTopic(context.Background(), int32(tt.existingPartitions), 1, nil, tt.topic)
				require.NoError(t, err)
				adm.Close()
			}

			cfg := DefaultConfig(addrs[0], tt.topic)
			cfg.AutoCreateTopicDefaultPartitions = tt.desiredPartitions

			err = cfg.EnsureTopicPartitions(context.Background(), cl, log.NewNopLogger())
			require.NoError(t, err)

			adm := kadm.NewClient(cl)
			defer adm.Close()
			td, err := adm.ListTopics(context.Background(), tt.topic)
			require.NoError(t, err)
			require.NoError(t, td.Error())

			assert := require.New(t)
			assert.Equal(tt.expectedFinalPartitions, len(td[tt.topic].Partitions.Numbers()))
		})
	}
}
