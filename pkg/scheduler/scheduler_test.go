package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openutm/flightdeck/pkg/notification"
)

type recordingHandler struct {
	mu          sync.Mutex
	submits     []string
	checks      []string
	updates     []string
	checkResult error
}

func (h *recordingHandler) SubmitDeclaration(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.submits = append(h.submits, id)
	return nil
}

func (h *recordingHandler) CheckConformance(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, id)
	return h.checkResult
}

func (h *recordingHandler) SendOperationalUpdate(_ context.Context, id, body string, _ notification.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, id+":"+body)
}

func (h *recordingHandler) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.submits), len(h.checks), len(h.updates)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEnqueueRunsJobs(t *testing.T) {
	handler := &recordingHandler{}
	s := New(Config{Workers: 2, HeartbeatRate: time.Hour}, handler)
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	s.Enqueue(Job{Kind: JobSubmitDeclaration, DeclarationID: "d1"})
	s.Enqueue(Job{Kind: JobOperationalUpdate, DeclarationID: "d1", Body: "hello", Level: notification.LevelInfo})

	waitFor(t, 2*time.Second, func() bool {
		submits, _, updates := handler.counts()
		return submits == 1 && updates == 1
	})
}

func TestMonitorTicksAndStops(t *testing.T) {
	handler := &recordingHandler{}
	s := New(Config{Workers: 1, HeartbeatRate: 10 * time.Millisecond}, handler)
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	s.StartMonitor("d1")
	if !s.IsMonitoring("d1") {
		t.Fatal("expected monitor to be active")
	}

	waitFor(t, 2*time.Second, func() bool {
		_, checks, _ := handler.counts()
		return checks >= 3
	})

	s.StopMonitor("d1")
	if s.IsMonitoring("d1") {
		t.Fatal("expected monitor to be stopped")
	}
}

func TestMonitorSelfDeactivates(t *testing.T) {
	handler := &recordingHandler{checkResult: ErrStopMonitoring}
	s := New(Config{Workers: 1, HeartbeatRate: 10 * time.Millisecond}, handler)
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	s.StartMonitor("d1")
	waitFor(t, 2*time.Second, func() bool {
		_, checks, _ := handler.counts()
		return checks >= 1 && !s.IsMonitoring("d1")
	})
}

func TestStartMonitorIsIdempotent(t *testing.T) {
	handler := &recordingHandler{}
	s := New(Config{Workers: 1, HeartbeatRate: time.Hour}, handler)
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	s.StartMonitor("d1")
	s.StartMonitor("d1")
	s.StopMonitor("d1")
	if s.IsMonitoring("d1") {
		t.Fatal("expected single monitor to be stopped")
	}
}

func TestEnqueueRacingStopDoesNotPanic(t *testing.T) {
	// Stop closes the queue while other goroutines are mid-Enqueue; a send
	// outside the mutex would panic on the closed channel.
	for i := 0; i < 200; i++ {
		handler := &recordingHandler{}
		s := New(Config{Workers: 2, HeartbeatRate: time.Hour, QueueDepth: 1}, handler)
		s.Start()

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 50; j++ {
					s.Enqueue(Job{Kind: JobSubmitDeclaration, DeclarationID: "d1"})
				}
			}()
		}
		close(start)
		if err := s.Stop(context.Background()); err != nil {
			t.Fatalf("stop failed: %v", err)
		}
		wg.Wait()
	}
}

func TestStopDrainsQueue(t *testing.T) {
	handler := &recordingHandler{}
	s := New(Config{Workers: 2, HeartbeatRate: time.Hour}, handler)
	s.Start()

	for i := 0; i < 10; i++ {
		s.Enqueue(Job{Kind: JobSubmitDeclaration, DeclarationID: "d1"})
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	submits, _, _ := handler.counts()
	if submits != 10 {
		t.Errorf("expected 10 submits after drain, got %d", submits)
	}

	// Enqueue after stop is dropped without panicking.
	s.Enqueue(Job{Kind: JobSubmitDeclaration, DeclarationID: "d2"})
}
