package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

// TestRequest is the payload-free signal emitted when a stress test is due.
// It is the only coupling between the scheduler and the capture UI.
type TestRequest struct{}

// Store is the narrow persistence surface the scheduler depends on. The
// store owns MonitoringConfig, the last test timestamp and the bounded
// history; the scheduler holds no state beyond its one timer.
type Store interface {
	GetConfig() (models.MonitoringConfig, error)
	// GetLastTestTimestamp returns the epoch-ms timestamp of the last
	// recorded test, or 0 when no test has ever run.
	GetLastTestTimestamp() (int64, error)
	// RecordResult atomically persists the result, advances the last test
	// timestamp and prunes history to the configured cap.
	RecordResult(result models.StressResult) error
	OnConfigChange(fn func(models.MonitoringConfig))
}

// Service times, triggers and reschedules stress tests. One instance lives
// for the whole process; tests construct their own. Invariant: at most one
// armed timer exists at any time.
type Service struct {
	store Store
	now   func() time.Time

	requests chan TestRequest

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
}

func New(store Store) *Service {
	return &Service{
		store:    store,
		now:      time.Now,
		requests: make(chan TestRequest, 1),
	}
}

// Initialize performs the initial schedule and subscribes to config changes
// so toggling autoTestEnabled off cancels the pending timer and toggling it
// back on re-arms one. Call once at application start.
func (s *Service) Initialize() error {
	s.store.OnConfigChange(func(cfg models.MonitoringConfig) {
		if err := s.ScheduleNextTest(); err != nil {
			log.Printf("Failed to reschedule after config change: %v", err)
		}
	})
	return s.ScheduleNextTest()
}

// Requests exposes the test-requested signal. Exactly one consumer (the
// capture UI bridge) should drain it.
func (s *Service) Requests() <-chan TestRequest {
	return s.requests
}

// Armed reports whether a timer is currently pending.
func (s *Service) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// ScheduleNextTest clears any pending timer and arms a new one for
// max(now, lastTest+interval), or immediately when no test has ever run.
// With autoTestEnabled off it leaves the service idle.
func (s *Service) ScheduleNextTest() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.clearTimerLocked()

	cfg, err := s.store.GetConfig()
	if err != nil {
		return fmt.Errorf("reading monitoring config: %w", err)
	}
	if !cfg.AutoTestEnabled {
		return nil
	}

	last, err := s.store.GetLastTestTimestamp()
	if err != nil {
		return fmt.Errorf("reading last test timestamp: %w", err)
	}

	s.armLocked(nextDelay(last, cfg.TestInterval(), s.now()))
	return nil
}

// armLocked replaces the pending timer. Each armed timer carries a
// generation so a callback that fired just before its timer was replaced
// cannot clear the successor's handle. Caller holds s.mu.
func (s *Service) armLocked(delay time.Duration) {
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() { s.triggerStressTest(gen) })
}

// triggerStressTest fires when the armed timer elapses: it clears the timer
// and emits the test-requested signal. It never opens any UI itself; from
// here the service is awaiting the capture flow, which either hands a result
// back through RecordTestResult or skips via SkipTest. A fire from a
// replaced generation is a no-op.
func (s *Service) triggerStressTest(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	select {
	case s.requests <- TestRequest{}:
	default:
		// A previous request is still unconsumed; the capture flow is modal,
		// so one pending signal is enough.
	}
}

// RecordTestResult persists a completed test and immediately reschedules.
// The result timestamp is normalized to epoch milliseconds; a zero timestamp
// is stamped with the current time.
func (s *Service) RecordTestResult(result models.StressResult) error {
	if result.Timestamp == 0 {
		result.Timestamp = models.EpochMillis(s.now())
	}

	storeErr := s.store.RecordResult(result)

	// A record is always followed by a reschedule, even when persistence
	// failed, so the monitoring loop never stalls.
	if err := s.ScheduleNextTest(); err != nil {
		if storeErr != nil {
			return fmt.Errorf("recording result: %v; rescheduling: %w", storeErr, err)
		}
		return err
	}
	if storeErr != nil {
		return fmt.Errorf("recording result: %w", storeErr)
	}
	return nil
}

// SkipTest handles a dismissed capture flow: nothing is recorded and the
// last test timestamp is untouched, but the timer is re-armed for one full
// interval from now rather than immediately re-prompting the user.
func (s *Service) SkipTest() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.clearTimerLocked()

	cfg, err := s.store.GetConfig()
	if err != nil {
		return fmt.Errorf("reading monitoring config: %w", err)
	}
	if !cfg.AutoTestEnabled {
		return nil
	}

	s.armLocked(cfg.TestInterval())
	return nil
}

// Close clears any pending timer so no callback fires against torn-down
// state. The service cannot be reused afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.clearTimerLocked()
}

func (s *Service) clearTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// nextDelay computes how long to wait before the next test: zero when no
// test has ever run, otherwise the time remaining until lastTest+interval,
// floored at zero.
func nextDelay(lastMs int64, interval time.Duration, now time.Time) time.Duration {
	if lastMs == 0 {
		return 0
	}
	next := time.UnixMilli(lastMs).Add(interval)
	if !next.After(now) {
		return 0
	}
	return next.Sub(now)
}
