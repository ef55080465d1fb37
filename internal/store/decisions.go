package store

import (
	"context"
	"encoding/json"
	"fmt"

	"dupegraph/internal/models"
)

const defaultDecisionLimit = 50

// AppendDecision writes one audit entry inside the current transaction.
func (t *Tx) AppendDecision(entry models.DecisionLogEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("decision id is required")
	}
	hashes, err := json.Marshal(entry.Hashes)
	if err != nil {
		return err
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = t.now
	}
	_, err = t.exec(`
		INSERT INTO decision_log (id, action, hashes, changes, needs_search, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, string(entry.Action), string(hashes), entry.Changes, entry.NeedsSearch, formatTime(createdAt))
	return err
}

// ListDecisions returns the most recent decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, limit int) ([]models.DecisionLogEntry, error) {
	if limit <= 0 {
		limit = defaultDecisionLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, hashes, changes, needs_search, created_at
		FROM decision_log
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.DecisionLogEntry{}
	for rows.Next() {
		var entry models.DecisionLogEntry
		var action, hashes, createdAt string
		if err := rows.Scan(&entry.ID, &action, &hashes, &entry.Changes, &entry.NeedsSearch, &createdAt); err != nil {
			return nil, err
		}
		entry.Action = models.Action(action)
		if err := json.Unmarshal([]byte(hashes), &entry.Hashes); err != nil {
			return nil, fmt.Errorf("decode decision %s hashes: %w", entry.ID, err)
		}
		entry.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
