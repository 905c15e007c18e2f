package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

// memoryStore is an in-memory Store with the same semantics as the sqlite
// repository: newest-first history pruned to the configured cap.
type memoryStore struct {
	mu          sync.Mutex
	config      models.MonitoringConfig
	lastTest    int64
	history     []models.StressHistoryEntry
	subscribers []func(models.MonitoringConfig)
	recordCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{config: models.DefaultMonitoringConfig()}
}

func (m *memoryStore) GetConfig() (models.MonitoringConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, nil
}

func (m *memoryStore) GetLastTestTimestamp() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTest, nil
}

func (m *memoryStore) RecordResult(result models.StressResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCalls++
	m.lastTest = result.Timestamp
	m.history = append([]models.StressHistoryEntry{models.NewStressHistoryEntry(result)}, m.history...)
	if len(m.history) > m.config.MaxHistoryItems {
		m.history = m.history[:m.config.MaxHistoryItems]
	}
	return nil
}

func (m *memoryStore) OnConfigChange(fn func(models.MonitoringConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

func (m *memoryStore) updateConfig(cfg models.MonitoringConfig) {
	m.mu.Lock()
	m.config = cfg
	subs := append([]func(models.MonitoringConfig){}, m.subscribers...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(cfg)
	}
}

func (m *memoryStore) setLastTest(ts int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTest = ts
}

func TestScheduleImmediatelyWhenNeverTested(t *testing.T) {
	store := newMemoryStore()
	service := New(store)
	defer service.Close()

	if err := service.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	select {
	case <-service.Requests():
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate test request when no test has ever run")
	}

	if service.Armed() {
		t.Error("timer must be cleared once the test request fires")
	}
}

func TestNextDelay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := 30 * time.Minute

	tests := []struct {
		name     string
		lastMs   int64
		expected time.Duration
	}{
		{
			name:     "never tested fires immediately",
			lastMs:   0,
			expected: 0,
		},
		{
			name:     "overdue fires immediately",
			lastMs:   models.EpochMillis(now.Add(-45 * time.Minute)),
			expected: 0,
		},
		{
			name:     "exactly due fires immediately",
			lastMs:   models.EpochMillis(now.Add(-30 * time.Minute)),
			expected: 0,
		},
		{
			name:     "mid-interval waits the remainder",
			lastMs:   models.EpochMillis(now.Add(-10 * time.Minute)),
			expected: 20 * time.Minute,
		},
		{
			name:     "just tested waits the full interval",
			lastMs:   models.EpochMillis(now),
			expected: 30 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextDelay(tt.lastMs, interval, now); got != tt.expected {
				t.Errorf("expected delay %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAtMostOnePendingTimer(t *testing.T) {
	store := newMemoryStore()
	// A recent test keeps the timer far in the future so it never fires
	// during the test.
	store.setLastTest(models.EpochMillis(time.Now()))

	service := New(store)
	defer service.Close()

	for i := 0; i < 5; i++ {
		if err := service.ScheduleNextTest(); err != nil {
			t.Fatalf("ScheduleNextTest %d failed: %v", i, err)
		}
	}

	if !service.Armed() {
		t.Fatal("expected an armed timer")
	}

	select {
	case <-service.Requests():
		t.Fatal("no request should fire: repeated scheduling must replace, not stack, timers")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStaleTimerFireLeavesNewTimerArmed(t *testing.T) {
	store := newMemoryStore()
	store.setLastTest(models.EpochMillis(time.Now()))

	service := New(store)
	defer service.Close()

	if err := service.ScheduleNextTest(); err != nil {
		t.Fatalf("ScheduleNextTest failed: %v", err)
	}

	service.mu.Lock()
	current := service.gen
	service.mu.Unlock()

	// A callback from a timer that was replaced mid-flight must neither
	// clear the current timer nor emit a request.
	service.triggerStressTest(current - 1)

	if !service.Armed() {
		t.Error("a stale timer fire must not clear the current timer")
	}
	select {
	case <-service.Requests():
		t.Fatal("a stale timer fire must not emit a test request")
	case <-time.After(50 * time.Millisecond):
	}

	// The live generation still fires normally.
	service.triggerStressTest(current)
	if service.Armed() {
		t.Error("the current generation's fire must clear the timer")
	}
	select {
	case <-service.Requests():
	default:
		t.Error("the current generation's fire must emit a test request")
	}
}

func TestRecordTestResultReschedules(t *testing.T) {
	store := newMemoryStore()
	store.setLastTest(models.EpochMillis(time.Now()))

	service := New(store)
	defer service.Close()

	result := models.StressResult{
		StressLevel:        100,
		DominantExpression: models.ExpressionAngry,
		IsStressed:         true,
	}
	if err := service.RecordTestResult(result); err != nil {
		t.Fatalf("RecordTestResult failed: %v", err)
	}

	if store.recordCalls != 1 {
		t.Errorf("expected 1 record call, got %d", store.recordCalls)
	}
	if !service.Armed() {
		t.Error("a record must be immediately followed by a reschedule")
	}

	last, _ := store.GetLastTestTimestamp()
	if last == 0 {
		t.Error("expected zero result timestamp to be normalized to now")
	}
}

func TestRecordTestResultKeepsExplicitTimestamp(t *testing.T) {
	store := newMemoryStore()
	service := New(store)
	defer service.Close()

	ts := models.EpochMillis(time.Now().Add(-time.Minute))
	result := models.StressResult{
		DominantExpression: models.ExpressionNeutral,
		Timestamp:          ts,
	}
	if err := service.RecordTestResult(result); err != nil {
		t.Fatalf("RecordTestResult failed: %v", err)
	}

	last, _ := store.GetLastTestTimestamp()
	if last != ts {
		t.Errorf("expected stored timestamp %d, got %d", ts, last)
	}
}

func TestAutoTestToggle(t *testing.T) {
	store := newMemoryStore()
	store.setLastTest(models.EpochMillis(time.Now()))

	service := New(store)
	defer service.Close()

	if err := service.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !service.Armed() {
		t.Fatal("expected an armed timer after Initialize")
	}

	cfg := models.DefaultMonitoringConfig()
	cfg.AutoTestEnabled = false
	store.updateConfig(cfg)

	if service.Armed() {
		t.Error("disabling autoTest must clear the pending timer")
	}

	cfg.AutoTestEnabled = true
	store.updateConfig(cfg)

	if !service.Armed() {
		t.Error("re-enabling autoTest must re-arm the timer")
	}
}

func TestSkipTestReArmsFullInterval(t *testing.T) {
	store := newMemoryStore()
	service := New(store)
	defer service.Close()

	before, _ := store.GetLastTestTimestamp()
	if err := service.SkipTest(); err != nil {
		t.Fatalf("SkipTest failed: %v", err)
	}

	if !service.Armed() {
		t.Error("expected skip to re-arm the timer")
	}
	after, _ := store.GetLastTestTimestamp()
	if after != before {
		t.Error("skip must not advance the last test timestamp")
	}
	if store.recordCalls != 0 {
		t.Error("skip must not record a result")
	}

	// lastTest is still zero, so a plain reschedule would fire immediately;
	// the skip backoff must not.
	select {
	case <-service.Requests():
		t.Fatal("skip must wait a full interval, not re-prompt immediately")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSkipTestIdleWhenAutoTestDisabled(t *testing.T) {
	store := newMemoryStore()
	cfg := models.DefaultMonitoringConfig()
	cfg.AutoTestEnabled = false
	store.updateConfig(cfg)

	service := New(store)
	defer service.Close()

	if err := service.SkipTest(); err != nil {
		t.Fatalf("SkipTest failed: %v", err)
	}
	if service.Armed() {
		t.Error("skip must not arm a timer while autoTest is disabled")
	}
}

func TestCloseClearsPendingTimer(t *testing.T) {
	store := newMemoryStore()
	service := New(store)

	if err := service.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	service.Close()

	if service.Armed() {
		t.Error("Close must clear the pending timer")
	}
	if err := service.ScheduleNextTest(); err != nil {
		t.Fatalf("ScheduleNextTest after Close returned error: %v", err)
	}
	if service.Armed() {
		t.Error("a closed service must not arm new timers")
	}
}

func TestHistoryCap(t *testing.T) {
	store := newMemoryStore()
	cfg := models.DefaultMonitoringConfig()
	cfg.MaxHistoryItems = 3
	store.updateConfig(cfg)

	service := New(store)
	defer service.Close()

	base := models.EpochMillis(time.Now())
	for i := 0; i < 5; i++ {
		result := models.StressResult{
			StressLevel:        0,
			DominantExpression: models.ExpressionNeutral,
			Timestamp:          base + int64(i),
		}
		if err := service.RecordTestResult(result); err != nil {
			t.Fatalf("RecordTestResult %d failed: %v", i, err)
		}
	}

	if len(store.history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(store.history))
	}
	if store.history[0].Timestamp != base+4 {
		t.Errorf("expected newest entry first, got timestamp %d", store.history[0].Timestamp)
	}
	if store.history[2].Timestamp != base+2 {
		t.Errorf("expected oldest surviving entry to be base+2, got %d", store.history[2].Timestamp)
	}
}
