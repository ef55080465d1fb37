package store

import (
	"context"
	"fmt"
)

// StoreInfo describes the schema version and record counts.
type StoreInfo struct {
	SchemaVersion      int `json:"schema_version"`
	Files              int `json:"files"`
	NeedsSearch        int `json:"needs_search"`
	DuplicateGroups    int `json:"duplicate_groups"`
	AlternateGroups    int `json:"alternate_groups"`
	FalsePositiveLinks int `json:"false_positive_links"`
	PotentialPairs     int `json:"potential_pairs"`
	RejectedPairs      int `json:"rejected_pairs"`
	Decisions          int `json:"decisions"`
}

// MaintenanceResult reports what a maintenance pass cleaned up.
type MaintenanceResult struct {
	PurgedPairs       int64 `json:"purged_pairs"`
	PrunedCarriers    int64 `json:"pruned_carriers"`
	DroppedAlternates int64 `json:"dropped_alternates"`
}

// StoreInfo returns the schema version and record counts.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	info := &StoreInfo{}
	err := s.View(ctx, func(tx *Tx) error {
		counters := []struct {
			dest  *int
			query string
		}{
			{&info.SchemaVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"},
			{&info.Files, "SELECT COUNT(*) FROM files"},
			{&info.NeedsSearch, "SELECT COUNT(*) FROM files WHERE needs_search = 1"},
			{&info.DuplicateGroups, "SELECT COUNT(*) FROM (SELECT group_id FROM duplicate_group_members GROUP BY group_id HAVING COUNT(*) >= 2)"},
			{&info.AlternateGroups, "SELECT COUNT(*) FROM alternate_groups"},
			{&info.FalsePositiveLinks, "SELECT COUNT(*) FROM false_positive_links"},
			{&info.PotentialPairs, "SELECT COUNT(*) FROM potential_pairs"},
			{&info.RejectedPairs, "SELECT COUNT(*) FROM rejected_pairs"},
			{&info.Decisions, "SELECT COUNT(*) FROM decision_log"},
		}
		for _, c := range counters {
			n, err := tx.count(c.query)
			if err != nil {
				return fmt.Errorf("store info: %w", err)
			}
			*c.dest = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Maintain purges queued pairs that became decided, drops memberless
// alternate groups and stray carriers, and checkpoints the WAL.
func (s *Store) Maintain(ctx context.Context) (*MaintenanceResult, error) {
	result := &MaintenanceResult{}
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		result.PurgedPairs, err = tx.purgeDecidedPairs(nil)
		if err != nil {
			return fmt.Errorf("purge decided pairs: %w", err)
		}
		empty, err := tx.queryIDs(`
			SELECT a.alternate_group_id
			FROM alternate_groups a
			WHERE NOT EXISTS (SELECT 1 FROM duplicate_groups g WHERE g.alternate_group_id = a.alternate_group_id)
			ORDER BY a.alternate_group_id
		`)
		if err != nil {
			return fmt.Errorf("find empty alternate groups: %w", err)
		}
		for _, alternateID := range empty {
			// An earlier drop may already have pruned this one as a partner.
			exists, err := tx.count("SELECT COUNT(*) FROM alternate_groups WHERE alternate_group_id = ?", alternateID)
			if err != nil {
				return err
			}
			if exists == 0 {
				continue
			}
			if err := tx.dropEmptyAlternate(alternateID); err != nil {
				return fmt.Errorf("drop alternate group %d: %w", alternateID, err)
			}
			result.DroppedAlternates++
		}
		res, err := tx.exec(`
			DELETE FROM duplicate_groups
			WHERE alternate_group_id IS NULL
			  AND (SELECT COUNT(*) FROM duplicate_group_members m WHERE m.group_id = duplicate_groups.group_id) < 2
		`)
		if err != nil {
			return fmt.Errorf("prune carriers: %w", err)
		}
		result.PrunedCarriers, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return nil, fmt.Errorf("wal checkpoint: %w", err)
	}
	return result, nil
}
