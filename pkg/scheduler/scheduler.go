// Package scheduler runs the background jobs of the coordination engine: the
// async DSS submission, the periodic per-declaration conformance check and
// best-effort operational update messages. Jobs are executed by a fixed pool
// of workers; periodic checks are driven by one ticker per monitored
// declaration.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/notification"
)

// ErrStopMonitoring tells the scheduler a periodic conformance monitor has
// served its purpose. Handlers return it when the declaration has ended or
// expired.
var ErrStopMonitoring = errors.New("stop monitoring declaration")

// JobKind identifies the work a job carries.
type JobKind string

const (
	JobSubmitDeclaration JobKind = "submit_declaration_to_dss"
	JobConformanceCheck  JobKind = "check_flight_conformance"
	JobOperationalUpdate JobKind = "send_operational_update_message"
)

// Job is one unit of background work.
type Job struct {
	Kind          JobKind
	DeclarationID string

	// Operational update payload (JobOperationalUpdate only).
	Body  string
	Level notification.Level
}

// Handler executes jobs. Implemented by the coordination orchestrator.
type Handler interface {
	// SubmitDeclaration runs the async DSS submission for a declaration.
	// Must be idempotent on the declaration id.
	SubmitDeclaration(ctx context.Context, declarationID string) error

	// CheckConformance runs one periodic conformance check. Returning
	// ErrStopMonitoring stops the declaration's monitor.
	CheckConformance(ctx context.Context, declarationID string) error

	// SendOperationalUpdate publishes a best-effort update message.
	SendOperationalUpdate(ctx context.Context, declarationID, body string, level notification.Level)
}

// Config sizes the pool and the periodic checks.
type Config struct {
	// Workers is the number of pool workers.
	Workers int

	// HeartbeatRate is the period of each conformance monitor.
	HeartbeatRate time.Duration

	// QueueDepth bounds the job queue. Defaults to 64.
	QueueDepth int
}

// Scheduler owns the worker pool and the per-declaration monitors.
type Scheduler struct {
	config  Config
	handler Handler

	queue chan Job

	mu       sync.Mutex
	monitors map[string]chan struct{}
	started  bool
	closed   bool

	wg        sync.WaitGroup
	monitorWG sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a scheduler. Start must be called before jobs are accepted.
func New(config Config, handler Handler) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.HeartbeatRate <= 0 {
		config.HeartbeatRate = 5 * time.Second
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:     config,
		handler:    handler,
		queue:      make(chan Job, config.QueueDepth),
		monitors:   make(map[string]chan struct{}),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	logger.Info("Scheduler started", "workers", s.config.Workers)
}

// Stop drains the pool and stops every monitor. Safe to call once.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, stop := range s.monitors {
		close(stop)
		delete(s.monitors, id)
	}
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.monitorWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancelBase()
		return nil
	case <-ctx.Done():
		// Give up on in-flight jobs.
		s.cancelBase()
		return ctx.Err()
	}
}

// Enqueue submits a job to the pool. Jobs submitted after Stop are dropped.
func (s *Scheduler) Enqueue(job Job) {
	// The send must happen under the mutex: Stop closes the queue under the
	// same lock, so an unlocked send could hit a closed channel.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Warn("Dropping job after scheduler stop",
			logger.KeyJob, string(job.Kind), logger.FlightID(job.DeclarationID))
		return
	}
	select {
	case s.queue <- job:
		s.mu.Unlock()
		return
	default:
	}
	s.mu.Unlock()

	// Queue full; run inline rather than dropping coordination work.
	logger.Warn("Job queue full, running inline",
		logger.KeyJob, string(job.Kind), logger.FlightID(job.DeclarationID))
	s.run(job)
}

// StartMonitor begins periodic conformance checks for the declaration.
// Starting an already monitored declaration is a no-op.
func (s *Scheduler) StartMonitor(declarationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.monitors[declarationID]; ok {
		return
	}
	stop := make(chan struct{})
	s.monitors[declarationID] = stop
	s.monitorWG.Add(1)
	go s.monitor(declarationID, stop)
	logger.Info("Conformance monitoring started",
		logger.FlightID(declarationID), "period", s.config.HeartbeatRate.String())
}

// StopMonitor stops periodic checks for the declaration. Unknown ids are
// ignored.
func (s *Scheduler) StopMonitor(declarationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.monitors[declarationID]; ok {
		close(stop)
		delete(s.monitors, declarationID)
		logger.Info("Conformance monitoring stopped", logger.FlightID(declarationID))
	}
}

// IsMonitoring reports whether the declaration has an active monitor.
func (s *Scheduler) IsMonitoring(declarationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[declarationID]
	return ok
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.queue {
		s.run(job)
	}
}

func (s *Scheduler) run(job Job) {
	ctx := s.baseCtx
	switch job.Kind {
	case JobSubmitDeclaration:
		if err := s.handler.SubmitDeclaration(ctx, job.DeclarationID); err != nil {
			logger.Error("DSS submission job failed",
				logger.FlightID(job.DeclarationID), logger.Err(err))
		}
	case JobConformanceCheck:
		err := s.handler.CheckConformance(ctx, job.DeclarationID)
		if errors.Is(err, ErrStopMonitoring) {
			s.StopMonitor(job.DeclarationID)
			return
		}
		if err != nil {
			// Logged and retried on the next tick.
			logger.Warn("Conformance check failed, will retry",
				logger.FlightID(job.DeclarationID), logger.Err(err))
		}
	case JobOperationalUpdate:
		s.handler.SendOperationalUpdate(ctx, job.DeclarationID, job.Body, job.Level)
	default:
		logger.Warn("Unknown job kind", logger.KeyJob, string(job.Kind))
	}
}

func (s *Scheduler) monitor(declarationID string, stop chan struct{}) {
	defer s.monitorWG.Done()
	ticker := time.NewTicker(s.config.HeartbeatRate)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Enqueue(Job{Kind: JobConformanceCheck, DeclarationID: declarationID})
		}
	}
}
