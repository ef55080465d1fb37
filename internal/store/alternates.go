package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dupegraph/internal/models"
)

func (t *Tx) createAlternate() (int64, error) {
	res, err := t.exec("INSERT INTO alternate_groups (version, created_at) VALUES (1, ?)", formatTime(t.now))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *Tx) setAlternate(groupID, alternateID int64) error {
	var value any
	if alternateID != 0 {
		value = alternateID
	}
	_, err := t.exec("UPDATE duplicate_groups SET alternate_group_id = ?, version = version + 1 WHERE group_id = ?", value, groupID)
	return err
}

func (t *Tx) bumpAlternate(alternateID int64) error {
	_, err := t.exec("UPDATE alternate_groups SET version = version + 1 WHERE alternate_group_id = ?", alternateID)
	return err
}

func (t *Tx) alternateVersion(alternateID int64) (int64, error) {
	var version int64
	err := t.queryRow("SELECT version FROM alternate_groups WHERE alternate_group_id = ?", alternateID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: duplicate group points at missing alternate group %d", ErrCorrupt, alternateID)
	}
	return version, err
}

// ensureAlternate gives g an alternate group of its own when it has none.
func (t *Tx) ensureAlternate(g *groupRecord) (int64, error) {
	if g.alternate != 0 {
		return g.alternate, nil
	}
	id, err := t.createAlternate()
	if err != nil {
		return 0, err
	}
	if err := t.setAlternate(g.id, id); err != nil {
		return 0, err
	}
	g.alternate = id
	return id, nil
}

func (t *Tx) alternateGroups(alternateID int64) ([]int64, error) {
	return t.queryIDs("SELECT group_id FROM duplicate_groups WHERE alternate_group_id = ? ORDER BY group_id", alternateID)
}

func (t *Tx) alternateFiles(alternateID int64) ([]int64, error) {
	return t.queryIDs(`
		SELECT m.hash_id
		FROM duplicate_group_members m
		JOIN duplicate_groups g ON g.group_id = m.group_id
		WHERE g.alternate_group_id = ?
		ORDER BY m.hash_id
	`, alternateID)
}

func (t *Tx) falsePositivePartners(alternateID int64) ([]int64, error) {
	return t.queryIDs(`
		SELECT larger_alternate_group_id FROM false_positive_links WHERE smaller_alternate_group_id = ?
		UNION
		SELECT smaller_alternate_group_id FROM false_positive_links WHERE larger_alternate_group_id = ?
		ORDER BY 1
	`, alternateID, alternateID)
}

func (t *Tx) falsePositiveLinked(a, b int64) (bool, error) {
	lo, hi := orderPair(a, b)
	n, err := t.count("SELECT COUNT(*) FROM false_positive_links WHERE smaller_alternate_group_id = ? AND larger_alternate_group_id = ?", lo, hi)
	return n > 0, err
}

func (t *Tx) insertFalsePositive(a, b int64) (bool, error) {
	lo, hi := orderPair(a, b)
	res, err := t.exec("INSERT OR IGNORE INTO false_positive_links (smaller_alternate_group_id, larger_alternate_group_id, created_at) VALUES (?, ?, ?)", lo, hi, formatTime(t.now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// mergeAlternates moves every member and false-positive link of drop into
// keep and deletes drop.
func (t *Tx) mergeAlternates(keep, drop int64) error {
	if keep == drop {
		return nil
	}
	partners, err := t.falsePositivePartners(drop)
	if err != nil {
		return err
	}
	for _, partner := range partners {
		if partner == keep {
			return fmt.Errorf("%w: alternate groups %d and %d are marked false positive", ErrInvalidRelationship, keep, drop)
		}
		if _, err := t.insertFalsePositive(keep, partner); err != nil {
			return err
		}
	}
	if _, err := t.exec("UPDATE duplicate_groups SET alternate_group_id = ?, version = version + 1 WHERE alternate_group_id = ?", keep, drop); err != nil {
		return err
	}
	if _, err := t.exec("DELETE FROM false_positive_links WHERE smaller_alternate_group_id = ? OR larger_alternate_group_id = ?", drop, drop); err != nil {
		return err
	}
	if _, err := t.exec("DELETE FROM alternate_groups WHERE alternate_group_id = ?", drop); err != nil {
		return err
	}
	return t.bumpAlternate(keep)
}

// pruneAlternate dissolves an alternate group that has fewer than two
// members and no false-positive link. Carriers left without a purpose are
// dropped with it. An alternate group with no members is always dropped,
// together with its links.
func (t *Tx) pruneAlternate(alternateID int64) (bool, error) {
	groups, err := t.alternateGroups(alternateID)
	if err != nil {
		return false, err
	}
	if len(groups) >= 2 {
		return false, nil
	}
	if len(groups) == 0 {
		return true, t.dropEmptyAlternate(alternateID)
	}
	links, err := t.count("SELECT COUNT(*) FROM false_positive_links WHERE smaller_alternate_group_id = ? OR larger_alternate_group_id = ?", alternateID, alternateID)
	if err != nil {
		return false, err
	}
	if links > 0 {
		return false, nil
	}

	if _, err := t.exec("UPDATE duplicate_groups SET alternate_group_id = NULL WHERE alternate_group_id = ?", alternateID); err != nil {
		return false, err
	}
	if _, err := t.exec("DELETE FROM alternate_groups WHERE alternate_group_id = ?", alternateID); err != nil {
		return false, err
	}
	for _, groupID := range groups {
		if err := t.pruneCarrier(groupID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// dropEmptyAlternate deletes a memberless alternate group. Files of every
// formerly linked group are flagged needs-search and the partners are pruned.
func (t *Tx) dropEmptyAlternate(alternateID int64) error {
	partners, err := t.falsePositivePartners(alternateID)
	if err != nil {
		return err
	}
	if _, err := t.exec("DELETE FROM false_positive_links WHERE smaller_alternate_group_id = ? OR larger_alternate_group_id = ?", alternateID, alternateID); err != nil {
		return err
	}
	if _, err := t.exec("DELETE FROM alternate_groups WHERE alternate_group_id = ?", alternateID); err != nil {
		return err
	}
	for _, partner := range partners {
		files, err := t.alternateFiles(partner)
		if err != nil {
			return err
		}
		if err := t.flag(files...); err != nil {
			return err
		}
		if err := t.bumpAlternate(partner); err != nil {
			return err
		}
		if _, err := t.pruneAlternate(partner); err != nil {
			return err
		}
	}
	return nil
}

// alternateOf resolves hash to its alternate group id, zero when it has none.
func (t *Tx) alternateOf(hash string) (int64, *groupRecord, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return 0, nil, err
	}
	g, err := t.groupOf(id)
	if err != nil || g == nil {
		return 0, nil, err
	}
	return g.alternate, g, nil
}

// GetAlternateGroup returns the alternate group of hash, or nil.
func (t *Tx) GetAlternateGroup(hash string) (*models.AlternateGroup, error) {
	alternateID, _, err := t.alternateOf(hash)
	if err != nil || alternateID == 0 {
		return nil, err
	}
	return t.exportAlternate(alternateID)
}

// MergeIntoAlternateGroup records the duplicate groups of a and b as
// alternates. It reports whether anything changed.
func (t *Tx) MergeIntoAlternateGroup(a, b string) (bool, error) {
	aID, bID, err := t.distinctPair(a, b)
	if err != nil {
		return false, err
	}
	ga, err := t.ensureCarrier(aID)
	if err != nil {
		return false, err
	}
	gb, err := t.ensureCarrier(bID)
	if err != nil {
		return false, err
	}
	if ga.id == gb.id {
		return false, fmt.Errorf("%w: %s and %s are duplicates", ErrInvalidRelationship, a, b)
	}

	switch {
	case ga.alternate != 0 && ga.alternate == gb.alternate:
		return false, nil
	case ga.alternate != 0 && gb.alternate != 0:
		linked, err := t.falsePositiveLinked(ga.alternate, gb.alternate)
		if err != nil {
			return false, err
		}
		if linked {
			return false, fmt.Errorf("%w: %s and %s are marked false positive", ErrInvalidRelationship, a, b)
		}
		if err := t.mergeAlternates(ga.alternate, gb.alternate); err != nil {
			return false, err
		}
	case ga.alternate != 0:
		if err := t.setAlternate(gb.id, ga.alternate); err != nil {
			return false, err
		}
		if err := t.bumpAlternate(ga.alternate); err != nil {
			return false, err
		}
	case gb.alternate != 0:
		if err := t.setAlternate(ga.id, gb.alternate); err != nil {
			return false, err
		}
		if err := t.bumpAlternate(gb.alternate); err != nil {
			return false, err
		}
	default:
		alternateID, err := t.createAlternate()
		if err != nil {
			return false, err
		}
		if err := t.setAlternate(ga.id, alternateID); err != nil {
			return false, err
		}
		if err := t.setAlternate(gb.id, alternateID); err != nil {
			return false, err
		}
	}

	scope, err := t.closure(aID)
	if err != nil {
		return false, err
	}
	if _, err := t.purgeDecidedPairs(scope); err != nil {
		return false, err
	}
	return true, nil
}

// AddFalsePositive marks the alternate groups of a and b as unrelated,
// creating carriers as needed. It reports whether a new link was recorded.
func (t *Tx) AddFalsePositive(a, b string) (bool, error) {
	aID, bID, err := t.distinctPair(a, b)
	if err != nil {
		return false, err
	}
	ga, err := t.ensureCarrier(aID)
	if err != nil {
		return false, err
	}
	gb, err := t.ensureCarrier(bID)
	if err != nil {
		return false, err
	}
	if ga.id == gb.id {
		return false, fmt.Errorf("%w: %s and %s are duplicates", ErrInvalidRelationship, a, b)
	}
	if ga.alternate != 0 && ga.alternate == gb.alternate {
		return false, fmt.Errorf("%w: %s and %s are alternates", ErrInvalidRelationship, a, b)
	}

	altA, err := t.ensureAlternate(ga)
	if err != nil {
		return false, err
	}
	altB, err := t.ensureAlternate(gb)
	if err != nil {
		return false, err
	}
	inserted, err := t.insertFalsePositive(altA, altB)
	if err != nil {
		return false, err
	}
	if inserted {
		if err := t.bumpAlternate(altA); err != nil {
			return false, err
		}
		if err := t.bumpAlternate(altB); err != nil {
			return false, err
		}
	}

	scope, err := t.closure(aID)
	if err != nil {
		return false, err
	}
	if _, err := t.purgeDecidedPairs(scope); err != nil {
		return false, err
	}
	return inserted, nil
}

// RemoveFromAlternateGroup takes the duplicate group of hash out of its
// alternate group. It returns the alternate group id, zero when there was none.
func (t *Tx) RemoveFromAlternateGroup(hash string) (int64, error) {
	alternateID, g, err := t.alternateOf(hash)
	if err != nil || alternateID == 0 {
		return 0, err
	}

	if err := t.setAlternate(g.id, 0); err != nil {
		return 0, err
	}
	if err := t.flag(g.members...); err != nil {
		return 0, err
	}
	if err := t.pruneCarrier(g.id); err != nil {
		return 0, err
	}
	if err := t.bumpAlternate(alternateID); err != nil {
		return 0, err
	}
	if _, err := t.pruneAlternate(alternateID); err != nil {
		return 0, err
	}
	return alternateID, nil
}

// DissolveAlternateGroup breaks up the alternate group of hash. Its duplicate
// groups stay intact and its false-positive links are removed. It returns the
// dissolved id, zero when there was none.
func (t *Tx) DissolveAlternateGroup(hash string) (int64, error) {
	alternateID, _, err := t.alternateOf(hash)
	if err != nil || alternateID == 0 {
		return 0, err
	}

	files, err := t.alternateFiles(alternateID)
	if err != nil {
		return 0, err
	}
	groups, err := t.alternateGroups(alternateID)
	if err != nil {
		return 0, err
	}
	partners, err := t.falsePositivePartners(alternateID)
	if err != nil {
		return 0, err
	}

	if _, err := t.exec("UPDATE duplicate_groups SET alternate_group_id = NULL, version = version + 1 WHERE alternate_group_id = ?", alternateID); err != nil {
		return 0, err
	}
	if _, err := t.exec("DELETE FROM false_positive_links WHERE smaller_alternate_group_id = ? OR larger_alternate_group_id = ?", alternateID, alternateID); err != nil {
		return 0, err
	}
	if _, err := t.exec("DELETE FROM alternate_groups WHERE alternate_group_id = ?", alternateID); err != nil {
		return 0, err
	}
	for _, groupID := range groups {
		if err := t.pruneCarrier(groupID); err != nil {
			return 0, err
		}
	}
	for _, partner := range partners {
		if err := t.bumpAlternate(partner); err != nil {
			return 0, err
		}
		if _, err := t.pruneAlternate(partner); err != nil {
			return 0, err
		}
	}
	if err := t.flag(files...); err != nil {
		return 0, err
	}
	return alternateID, nil
}

// ClearFalsePositives removes every false-positive link of the alternate
// group of hash. Files on both sides of each link are flagged needs-search.
// It returns the number of links removed.
func (t *Tx) ClearFalsePositives(hash string) (int, error) {
	alternateID, _, err := t.alternateOf(hash)
	if err != nil || alternateID == 0 {
		return 0, err
	}
	partners, err := t.falsePositivePartners(alternateID)
	if err != nil || len(partners) == 0 {
		return 0, err
	}

	affected := append([]int64{alternateID}, partners...)
	var files []int64
	for _, id := range affected {
		ids, err := t.alternateFiles(id)
		if err != nil {
			return 0, err
		}
		files = append(files, ids...)
	}

	if _, err := t.exec("DELETE FROM false_positive_links WHERE smaller_alternate_group_id = ? OR larger_alternate_group_id = ?", alternateID, alternateID); err != nil {
		return 0, err
	}
	if err := t.flag(files...); err != nil {
		return 0, err
	}
	for _, id := range affected {
		if err := t.bumpAlternate(id); err != nil {
			return 0, err
		}
		if _, err := t.pruneAlternate(id); err != nil {
			return 0, err
		}
	}
	return len(partners), nil
}

// GetAlternateGroup returns the alternate group of hash, or nil.
func (s *Store) GetAlternateGroup(ctx context.Context, hash string) (*models.AlternateGroup, error) {
	var group *models.AlternateGroup
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		group, err = tx.GetAlternateGroup(hash)
		return err
	})
	return group, err
}

// MergeIntoAlternateGroup records the duplicate groups of a and b as alternates.
func (s *Store) MergeIntoAlternateGroup(ctx context.Context, a, b string) error {
	return s.Update(ctx, func(tx *Tx) error {
		_, err := tx.MergeIntoAlternateGroup(a, b)
		return err
	})
}

// AddFalsePositive marks the alternate groups of a and b as unrelated.
func (s *Store) AddFalsePositive(ctx context.Context, a, b string) error {
	return s.Update(ctx, func(tx *Tx) error {
		_, err := tx.AddFalsePositive(a, b)
		return err
	})
}

// RemoveFromAlternateGroup takes the duplicate group of hash out of its
// alternate group and returns the files flagged needs-search.
func (s *Store) RemoveFromAlternateGroup(ctx context.Context, hash string) ([]string, error) {
	return s.updateFlagged(ctx, func(tx *Tx) error {
		_, err := tx.RemoveFromAlternateGroup(hash)
		return err
	})
}

// DissolveAlternateGroup breaks up the alternate group of hash and returns the
// files flagged needs-search.
func (s *Store) DissolveAlternateGroup(ctx context.Context, hash string) ([]string, error) {
	return s.updateFlagged(ctx, func(tx *Tx) error {
		_, err := tx.DissolveAlternateGroup(hash)
		return err
	})
}

// ClearFalsePositives removes every false-positive link of the alternate group
// of hash and returns the files flagged needs-search.
func (s *Store) ClearFalsePositives(ctx context.Context, hash string) ([]string, error) {
	return s.updateFlagged(ctx, func(tx *Tx) error {
		_, err := tx.ClearFalsePositives(hash)
		return err
	})
}

func (s *Store) updateFlagged(ctx context.Context, fn func(*Tx) error) ([]string, error) {
	var flagged []string
	err := s.Update(ctx, func(tx *Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		var err error
		flagged, err = tx.NeedsSearch()
		return err
	})
	return flagged, err
}
