package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

// StressRepository owns the four persisted monitoring fields: the config,
// the last result, the last test timestamp and the bounded stress history.
// Everything else in the application is ephemeral. Writes are applied as
// whole transactions so readers never observe a partially updated state.
type StressRepository struct {
	db *DB

	mu          sync.Mutex
	subscribers []func(models.MonitoringConfig)
}

func NewStressRepository(db *DB) *StressRepository {
	return &StressRepository{db: db}
}

// GetConfig returns the persisted monitoring config, creating it with
// defaults on first access.
func (r *StressRepository) GetConfig() (models.MonitoringConfig, error) {
	var cfg models.MonitoringConfig
	err := r.db.conn.QueryRow(`
		SELECT test_interval_minutes, max_history_items, auto_test_enabled, manual_stress_mode_enabled
		FROM monitoring_config WHERE id = 1`).
		Scan(&cfg.TestIntervalMinutes, &cfg.MaxHistoryItems, &cfg.AutoTestEnabled, &cfg.ManualStressModeEnabled)

	if err == sql.ErrNoRows {
		cfg = models.DefaultMonitoringConfig()
		_, err = r.db.conn.Exec(`
			INSERT INTO monitoring_config
				(id, test_interval_minutes, max_history_items, auto_test_enabled, manual_stress_mode_enabled)
			VALUES (1, $1, $2, $3, $4)`,
			cfg.TestIntervalMinutes, cfg.MaxHistoryItems, cfg.AutoTestEnabled, cfg.ManualStressModeEnabled)
		if err != nil {
			return cfg, fmt.Errorf("failed to seed default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	return cfg, nil
}

// UpdateConfig replaces the persisted config and notifies subscribers.
func (r *StressRepository) UpdateConfig(cfg models.MonitoringConfig) error {
	if cfg.TestIntervalMinutes <= 0 {
		return fmt.Errorf("test interval must be positive, got %d", cfg.TestIntervalMinutes)
	}
	if cfg.MaxHistoryItems <= 0 {
		return fmt.Errorf("max history items must be positive, got %d", cfg.MaxHistoryItems)
	}

	// Seed the row if this is the first write.
	if _, err := r.GetConfig(); err != nil {
		return err
	}

	_, err := r.db.conn.Exec(`
		UPDATE monitoring_config SET
			test_interval_minutes = $1,
			max_history_items = $2,
			auto_test_enabled = $3,
			manual_stress_mode_enabled = $4
		WHERE id = 1`,
		cfg.TestIntervalMinutes, cfg.MaxHistoryItems, cfg.AutoTestEnabled, cfg.ManualStressModeEnabled)
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}

	r.notify(cfg)
	return nil
}

func (r *StressRepository) SetAutoTestEnabled(enabled bool) error {
	cfg, err := r.GetConfig()
	if err != nil {
		return err
	}
	cfg.AutoTestEnabled = enabled
	return r.UpdateConfig(cfg)
}

func (r *StressRepository) SetTestIntervalMinutes(minutes int) error {
	cfg, err := r.GetConfig()
	if err != nil {
		return err
	}
	cfg.TestIntervalMinutes = minutes
	return r.UpdateConfig(cfg)
}

func (r *StressRepository) SetMaxHistoryItems(max int) error {
	cfg, err := r.GetConfig()
	if err != nil {
		return err
	}
	cfg.MaxHistoryItems = max
	return r.UpdateConfig(cfg)
}

func (r *StressRepository) SetManualStressModeEnabled(enabled bool) error {
	cfg, err := r.GetConfig()
	if err != nil {
		return err
	}
	cfg.ManualStressModeEnabled = enabled
	return r.UpdateConfig(cfg)
}

// OnConfigChange registers a callback invoked after every successful config
// write.
func (r *StressRepository) OnConfigChange(fn func(models.MonitoringConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *StressRepository) notify(cfg models.MonitoringConfig) {
	r.mu.Lock()
	subs := append([]func(models.MonitoringConfig){}, r.subscribers...)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
}

// GetLastTestTimestamp returns the epoch-ms timestamp of the last recorded
// test, or 0 when none has ever run.
func (r *StressRepository) GetLastTestTimestamp() (int64, error) {
	var ts int64
	err := r.db.conn.QueryRow(`SELECT last_test_timestamp FROM monitoring_state WHERE id = 1`).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last test timestamp: %w", err)
	}
	return ts, nil
}

// GetLastResult returns the most recent full StressResult, or nil when no
// test has ever recorded one.
func (r *StressRepository) GetLastResult() (*models.StressResult, error) {
	var raw sql.NullString
	err := r.db.conn.QueryRow(`SELECT last_result FROM monitoring_state WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last result: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var result models.StressResult
	if err := json.Unmarshal([]byte(raw.String), &result); err != nil {
		return nil, fmt.Errorf("failed to decode last result: %w", err)
	}
	return &result, nil
}

// RecordResult persists a completed stress test as one transaction: it
// stores the full result, advances the last test timestamp, prepends a
// history entry and prunes history past the configured cap (oldest first).
func (r *StressRepository) RecordResult(result models.StressResult) error {
	cfg, err := r.GetConfig()
	if err != nil {
		return err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tx, err := r.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO monitoring_state (id, last_test_timestamp, last_result)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			last_test_timestamp = EXCLUDED.last_test_timestamp,
			last_result = EXCLUDED.last_result`,
		result.Timestamp, string(resultJSON))
	if err != nil {
		return fmt.Errorf("failed to update monitoring state: %w", err)
	}

	// seq orders entries recorded within the same millisecond; the
	// timestamp alone cannot.
	var seq int64
	err = tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM stress_history`).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to allocate history sequence: %w", err)
	}

	entry := models.NewStressHistoryEntry(result)
	_, err = tx.Exec(`
		INSERT INTO stress_history (id, stress_level, dominant_expression, timestamp, seq)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.StressLevel, string(entry.DominantExpression), entry.Timestamp, seq)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	_, err = tx.Exec(`
		DELETE FROM stress_history WHERE id NOT IN (
			SELECT id FROM stress_history ORDER BY timestamp DESC, seq DESC LIMIT $1
		)`, cfg.MaxHistoryItems)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

// GetHistory returns the stress history, newest first. The configured cap
// bounds its length.
func (r *StressRepository) GetHistory() ([]models.StressHistoryEntry, error) {
	rows, err := r.db.conn.Query(`
		SELECT id, stress_level, dominant_expression, timestamp
		FROM stress_history ORDER BY timestamp DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []models.StressHistoryEntry
	for rows.Next() {
		var entry models.StressHistoryEntry
		var expression string
		if err := rows.Scan(&entry.ID, &entry.StressLevel, &expression, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.DominantExpression = models.Expression(expression)
		history = append(history, entry)
	}
	return history, rows.Err()
}

// ResetHistory wipes the history sequence; config and last result survive.
func (r *StressRepository) ResetHistory() error {
	_, err := r.db.conn.Exec(`DELETE FROM stress_history`)
	if err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}
	return nil
}
