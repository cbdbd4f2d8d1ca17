package controller

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
)

// AgentHealthTracker maintains the last-seen heartbeat per agent_id from
// health_<vop>, bounded by an LRU so a churn of short-lived agents can't
// grow this unboundedly (spec §6 "controllers ... stateless except
// idempotence caches (bounded LRU)").
type AgentHealthTracker struct {
	cache  *lru.Cache[string, AgentStatus]
	logger log.Logger
}

// NewAgentHealthTracker builds a tracker holding up to capacity agents.
func NewAgentHealthTracker(capacity int, logger log.Logger) *AgentHealthTracker {
	cache, err := lru.New[string, AgentStatus](capacity)
	if err != nil {
		// capacity <= 0; golang-lru requires a positive size.
		cache, _ = lru.New[string, AgentStatus](1)
	}
	return &AgentHealthTracker{cache: cache, logger: logger}
}

// Handle implements pkg/kafkaio.RecordHandler for the health_<vop>
// consumer.
func (t *AgentHealthTracker) Handle(_ context.Context, _, value []byte) {
	hb, err := messages.ParseHeartbeat(value)
	if err != nil {
		level.Warn(t.logger).Log("msg", "dropping malformed heartbeat", "err", err)
		return
	}
	t.cache.Add(hb.AgentID, AgentStatus{AgentID: hb.AgentID, PopID: hb.PopID, LastSeenUnix: hb.Timestamp})
}

// Agents implements the AgentRegistry interface for GET /api/v1/agents.
func (t *AgentHealthTracker) Agents() []AgentStatus {
	out := make([]AgentStatus, 0, t.cache.Len())
	for _, key := range t.cache.Keys() {
		if v, ok := t.cache.Peek(key); ok {
			out = append(out, v)
		}
	}
	return out
}
