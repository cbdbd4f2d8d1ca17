// Package slicemanager implements the Slice Manager service (spec §4.2):
// vOp activation/deactivation, interface reservation, and topic
// provisioning, with the strict rollback-on-failure ordering spec §4.2
// requires.
package slicemanager

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var vopIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Status is a vOp's lifecycle state (spec §3).
type Status string

const (
	StatusRequested   Status = "REQUESTED"
	StatusActive      Status = "ACTIVE"
	StatusDeactivating Status = "DEACTIVATING"
	StatusDeleted     Status = "DELETED"
)

// InterfaceAssignment names interfaces on one router to reserve for a vOp.
type InterfaceAssignment struct {
	Pop        string   `json:"pop"`
	Router     string   `json:"router"`
	Interfaces []string `json:"interfaces"`
}

// defaultTopicRetention is config_<vop>/monitoring_<vop>'s retention.ms
// when a vOp activation request doesn't override it.
const defaultTopicRetention = 24 * time.Hour

// ActivateRequest is SM's POST /api/v1/vops body.
type ActivateRequest struct {
	VopID                string                 `json:"vop_id"`
	TenantName           string                 `json:"tenant_name"`
	Description          string                 `json:"description"`
	InterfaceAssignments []InterfaceAssignment  `json:"interface_assignments"`
	RetentionHours       float64                `json:"retention_hours,omitempty"` // overrides defaultTopicRetention for this vOp's topics
}

// Vop is SM's durable-looking record of a tenant slice (actually held
// in-process here; backed by LinkDB for the interface reservations
// themselves, per spec §6 "LinkDB stores all durable state").
type Vop struct {
	ID          string
	TenantName  string
	Description string
	Status      Status
	Interfaces  []string
	ConfigTopic string
	MonitoringTopic string
	HealthTopic string
	CreatedAt   time.Time
}

// LinkDBClient is the subset of pkg/linkdbclient.Client the Slice Manager
// depends on.
type LinkDBClient interface {
	ReserveInterfaces(ctx context.Context, vop string, ifaceIDs []string) error
	ReleaseInterfaces(ctx context.Context, vop string, ifaceIDs []string) error
}

// TopicProvisioner creates/grows topics, keyed by name (implemented by
// pkg/kafkaio.Config.EnsureTopicPartitions).
type TopicProvisioner interface {
	EnsureTopic(ctx context.Context, topic string, cleanupPolicy string, retention time.Duration) error
}

// ControllerLauncher starts (or no-ops if already running) the per-vOp
// controller process/goroutine. Spec §4.2 step 6 requires this hook to be
// idempotent so a retried Activate never double-launches a controller.
type ControllerLauncher interface {
	Launch(ctx context.Context, vopID string) error
	Stop(ctx context.Context, vopID string) error
}

// Manager implements vOp lifecycle per spec §4.2.
type Manager struct {
	mu       sync.Mutex
	vops     map[string]*Vop
	linkDB   LinkDBClient
	topics   TopicProvisioner
	launcher ControllerLauncher
	logger   log.Logger
}

// New builds a Manager.
func New(linkDB LinkDBClient, topics TopicProvisioner, launcher ControllerLauncher, logger log.Logger) *Manager {
	return &Manager{
		vops:     make(map[string]*Vop),
		linkDB:   linkDB,
		topics:   topics,
		launcher: launcher,
		logger:   logger,
	}
}

var (
	ErrInvalidVopID   = errors.New("vop id must match ^[A-Za-z0-9_-]+$")
	ErrAlreadyActive  = errors.New("vop is already ACTIVE")
	ErrVopNotFound    = errors.New("vop not found")
)

func topicName(prefix, vop string) string { return fmt.Sprintf("%s_%s", prefix, vop) }

// Activate runs spec §4.2's strict-ordered algorithm:
//  1. validate the vOp id is not already ACTIVE
//  2. verify interface availability (delegated to LinkDB's atomic reserve)
//  3. reserve interfaces atomically
//  4. ensure config/monitoring/health topics exist
//  5. store ACTIVE metadata
//  6. trigger the controller launch hook (idempotent no-op if already running)
//
// Any failure after step 3 rolls back the interface reservation.
func (m *Manager) Activate(ctx context.Context, req ActivateRequest) (*Vop, error) {
	if !vopIDPattern.MatchString(req.VopID) {
		return nil, ErrInvalidVopID
	}

	m.mu.Lock()
	existing, ok := m.vops[req.VopID]
	if ok && existing.Status == StatusActive {
		m.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	m.mu.Unlock()

	var ifaceIDs []string
	for _, a := range req.InterfaceAssignments {
		ifaceIDs = append(ifaceIDs, a.Interfaces...)
	}

	if err := m.linkDB.ReserveInterfaces(ctx, req.VopID, ifaceIDs); err != nil {
		return nil, fmt.Errorf("reserve interfaces: %w", err)
	}

	rollback := func(cause error) (*Vop, error) {
		if relErr := m.linkDB.ReleaseInterfaces(context.Background(), req.VopID, ifaceIDs); relErr != nil {
			level.Error(m.logger).Log("msg", "rollback release failed", "vop", req.VopID, "err", relErr)
		}
		return nil, cause
	}

	config := topicName("config", req.VopID)
	monitoring := topicName("monitoring", req.VopID)
	health := topicName("health", req.VopID)

	// config_<vop> and monitoring_<vop> are time-retained; health_<vop> is
	// compacted to keep only the latest heartbeat per agent (spec §9 open
	// question c).
	retention := defaultTopicRetention
	if req.RetentionHours > 0 {
		retention = time.Duration(req.RetentionHours * float64(time.Hour))
	}
	if err := m.topics.EnsureTopic(ctx, config, "delete", retention); err != nil {
		return rollback(fmt.Errorf("ensure topic %s: %w", config, err))
	}
	if err := m.topics.EnsureTopic(ctx, monitoring, "delete", retention); err != nil {
		return rollback(fmt.Errorf("ensure topic %s: %w", monitoring, err))
	}
	if err := m.topics.EnsureTopic(ctx, health, "compact", 0); err != nil {
		return rollback(fmt.Errorf("ensure topic %s: %w", health, err))
	}

	vop := &Vop{
		ID:              req.VopID,
		TenantName:      req.TenantName,
		Description:     req.Description,
		Status:          StatusActive,
		Interfaces:      ifaceIDs,
		ConfigTopic:     config,
		MonitoringTopic: monitoring,
		HealthTopic:     health,
		CreatedAt:       time.Now(),
	}

	m.mu.Lock()
	m.vops[req.VopID] = vop
	m.mu.Unlock()

	if err := m.launcher.Launch(ctx, req.VopID); err != nil {
		return rollback(fmt.Errorf("launch controller: %w", err))
	}

	level.Info(m.logger).Log("msg", "vop activated", "vop", req.VopID, "interfaces", len(ifaceIDs))
	return vop, nil
}

// Deactivate marks the vOp DEACTIVATING, stops its controller, and releases
// its interfaces. Topics are retained by default (spec §4.2).
func (m *Manager) Deactivate(ctx context.Context, vopID string) error {
	m.mu.Lock()
	vop, ok := m.vops[vopID]
	if !ok {
		m.mu.Unlock()
		return ErrVopNotFound
	}
	vop.Status = StatusDeactivating
	ifaceIDs := append([]string(nil), vop.Interfaces...)
	m.mu.Unlock()

	if err := m.launcher.Stop(ctx, vopID); err != nil {
		return fmt.Errorf("stop controller: %w", err)
	}
	if err := m.linkDB.ReleaseInterfaces(ctx, vopID, ifaceIDs); err != nil {
		return fmt.Errorf("release interfaces: %w", err)
	}

	m.mu.Lock()
	vop.Status = StatusDeleted
	m.mu.Unlock()

	level.Info(m.logger).Log("msg", "vop deactivated", "vop", vopID)
	return nil
}

// Get returns a vOp by id.
func (m *Manager) Get(vopID string) (*Vop, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vops[vopID]
	return v, ok
}

// List returns all known vOps.
func (m *Manager) List() []*Vop {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Vop, 0, len(m.vops))
	for _, v := range m.vops {
		out = append(out, v)
	}
	return out
}
