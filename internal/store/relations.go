package store

import (
	"context"

	"dupegraph/internal/models"
)

// RelationCounts summarizes the relationships of hash.
func (t *Tx) RelationCounts(hash string) (models.RelationCounts, error) {
	var counts models.RelationCounts
	id, err := t.fileID(hash)
	if err != nil {
		return counts, err
	}
	g, err := t.groupOf(id)
	if err != nil {
		return counts, err
	}

	if g.size() >= 2 {
		counts.Duplicate = g.size() - 1
	}

	if g == nil {
		counts.Potential, err = t.count("SELECT COUNT(*) FROM potential_pairs WHERE smaller_hash_id = ? OR larger_hash_id = ?", id, id)
	} else {
		counts.Potential, err = t.count(`
			SELECT COUNT(*)
			FROM potential_pairs p
			WHERE p.smaller_hash_id IN (SELECT hash_id FROM duplicate_group_members WHERE group_id = ?)
			   OR p.larger_hash_id IN (SELECT hash_id FROM duplicate_group_members WHERE group_id = ?)
		`, g.id, g.id)
	}
	if err != nil {
		return counts, err
	}

	if g == nil || g.alternate == 0 {
		return counts, nil
	}
	counts.Alternate, err = t.count(`
		SELECT COUNT(*)
		FROM duplicate_group_members m
		JOIN duplicate_groups d ON d.group_id = m.group_id
		WHERE d.alternate_group_id = ? AND d.group_id != ?
	`, g.alternate, g.id)
	if err != nil {
		return counts, err
	}

	partners, err := t.falsePositivePartners(g.alternate)
	if err != nil {
		return counts, err
	}
	for _, partner := range partners {
		files, err := t.alternateFiles(partner)
		if err != nil {
			return counts, err
		}
		counts.FalsePositive += len(files)
	}
	return counts, nil
}

// RelationCounts summarizes the relationships of hash.
func (s *Store) RelationCounts(ctx context.Context, hash string) (models.RelationCounts, error) {
	var counts models.RelationCounts
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		counts, err = tx.RelationCounts(hash)
		return err
	})
	return counts, err
}
