// Package orchestrator coordinates the lifecycle of flight declarations: it
// validates operator submissions, runs self-deconfliction, drives the state
// machine, schedules the async DSS submission and conformance monitoring, and
// reacts to conformance signals and peer USS notifications.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/openutm/flightdeck/pkg/conformance"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/deconfliction"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/kv"
	"github.com/openutm/flightdeck/pkg/metrics"
	"github.com/openutm/flightdeck/pkg/notification"
	"github.com/openutm/flightdeck/pkg/scheduler"
)

// Telemetry stream and conformance lock layout.
const (
	telemetryStream = "all_observations"

	// conformanceLockPrefix guards one in-flight check per declaration. The
	// TTL is the watchdog: a crashed worker cannot block checks forever.
	conformanceLockPrefix = "lock.conformance."
	conformanceLockTTL    = 30 * time.Second
)

// DSSClient is the subset of the DSS client the orchestrator drives.
type DSSClient interface {
	CreateOperationalIntentReference(ctx context.Context, id string, params *dss.PutOperationalIntentReferenceParameters) (*dss.ChangeOperationalIntentReferenceResponse, error)
	UpdateOperationalIntentReference(ctx context.Context, id, ovn string, params *dss.PutOperationalIntentReferenceParameters) (*dss.ChangeOperationalIntentReferenceResponse, error)
	DeleteOperationalIntentReference(ctx context.Context, id, ovn string) (*dss.ChangeOperationalIntentReferenceResponse, error)
}

// PeerNotifier fans a change out to the subscribers the DSS listed.
type PeerNotifier interface {
	NotifySubscribers(ctx context.Context, subscribers []dss.SubscriberToNotify, notification *dss.PutOperationalIntentDetailsParameters) int
}

// JobScheduler is the subset of the scheduler the orchestrator uses.
type JobScheduler interface {
	Enqueue(job scheduler.Job)
	StartMonitor(declarationID string)
	StopMonitor(declarationID string)
}

// Config holds the coordination settings.
type Config struct {
	// SelfBaseURL is this USS's externally reachable base URL, submitted as
	// uss_base_url and filtered from subscriber lists.
	SelfBaseURL string

	// EnableConformanceMonitoring starts the periodic check when an
	// operation is activated.
	EnableConformanceMonitoring bool

	// USSPNetworkEnabled enables DSS submission and peer notifications.
	USSPNetworkEnabled bool

	// MaxDeclarationWindow is how far in the future an operation may start
	// or end.
	MaxDeclarationWindow time.Duration

	// StreamMaxLen bounds the telemetry stream (approximate trim).
	StreamMaxLen int64
}

// Orchestrator is the coordination engine. All state transitions for a
// declaration are serialized through a per-declaration mutex.
type Orchestrator struct {
	config    Config
	store     store.Store
	kv        kv.Store
	snapshots *dss.SnapshotStore
	dss       DSSClient
	notifier  PeerNotifier
	planner   *deconfliction.Planner
	engine    *conformance.Engine
	publisher *notification.Publisher
	metrics   metrics.CoordinationMetrics

	mu   sync.Mutex
	jobs JobScheduler

	locks keyedMutex

	now func() time.Time
}

// New wires the orchestrator. The job scheduler is attached separately with
// SetScheduler because the scheduler needs the orchestrator as its handler.
func New(config Config, st store.Store, kvStore kv.Store, snapshots *dss.SnapshotStore,
	dssClient DSSClient, notifier PeerNotifier, planner *deconfliction.Planner,
	engine *conformance.Engine, publisher *notification.Publisher,
	coordMetrics metrics.CoordinationMetrics) *Orchestrator {
	if config.MaxDeclarationWindow <= 0 {
		config.MaxDeclarationWindow = 48 * time.Hour
	}
	return &Orchestrator{
		config:    config,
		store:     st,
		kv:        kvStore,
		snapshots: snapshots,
		dss:       dssClient,
		notifier:  notifier,
		planner:   planner,
		engine:    engine,
		publisher: publisher,
		metrics:   coordMetrics,
		now:       time.Now,
	}
}

// SetScheduler attaches the job scheduler. Must be called before the first
// operator request is served.
func (o *Orchestrator) SetScheduler(jobs JobScheduler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = jobs
}

func (o *Orchestrator) scheduler() JobScheduler {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobs
}

// SendOperationalUpdate publishes a best-effort update message. Implements
// the scheduler handler.
func (o *Orchestrator) SendOperationalUpdate(ctx context.Context, declarationID, body string, level notification.Level) {
	if o.publisher != nil {
		o.publisher.SendOperationalUpdate(ctx, declarationID, body, level)
	}
}

// keyedMutex serializes work per declaration id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for the key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
