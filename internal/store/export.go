package store

import (
	"context"
	"sort"

	"dupegraph/internal/models"
)

// Export streams the relationship graph to fn: duplicate groups of two or
// more files, alternate groups, false-positive links, then queued pairs.
// The snapshot is taken inside one read transaction.
func (s *Store) Export(ctx context.Context, fn func(models.ExportRecord) error) error {
	return s.View(ctx, func(tx *Tx) error {
		groupIDs, err := tx.queryIDs("SELECT group_id FROM duplicate_group_members GROUP BY group_id HAVING COUNT(*) >= 2 ORDER BY group_id")
		if err != nil {
			return err
		}
		for _, id := range groupIDs {
			g, err := tx.loadGroup(id)
			if err != nil {
				return err
			}
			members, err := tx.hashesOf(g.members)
			if err != nil {
				return err
			}
			king, err := tx.hashesOf([]int64{g.king})
			if err != nil {
				return err
			}
			record := models.ExportRecord{
				Type: models.ExportDuplicateGroup,
				DuplicateGroup: &models.DuplicateGroup{
					ID:               g.id,
					King:             king[0],
					Members:          members,
					AlternateGroupID: g.alternate,
					Version:          g.version,
				},
			}
			if err := fn(record); err != nil {
				return err
			}
		}

		alternateIDs, err := tx.queryIDs("SELECT alternate_group_id FROM alternate_groups ORDER BY alternate_group_id")
		if err != nil {
			return err
		}
		for _, id := range alternateIDs {
			group, err := tx.exportAlternate(id)
			if err != nil {
				return err
			}
			if err := fn(models.ExportRecord{Type: models.ExportAlternateGroup, AlternateGroup: group}); err != nil {
				return err
			}
		}

		rows, err := tx.tx.QueryContext(tx.ctx, "SELECT smaller_alternate_group_id, larger_alternate_group_id FROM false_positive_links ORDER BY 1, 2")
		if err != nil {
			return err
		}
		var links []models.FalsePositiveLink
		for rows.Next() {
			var link models.FalsePositiveLink
			if err := rows.Scan(&link.A, &link.B); err != nil {
				rows.Close()
				return err
			}
			links = append(links, link)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for i := range links {
			if err := fn(models.ExportRecord{Type: models.ExportFalsePositive, FalsePositive: &links[i]}); err != nil {
				return err
			}
		}

		total, err := tx.count("SELECT COUNT(*) FROM potential_pairs")
		if err != nil {
			return err
		}
		pairs, err := tx.NextBatch(total)
		if err != nil {
			return err
		}
		for i := range pairs {
			if err := fn(models.ExportRecord{Type: models.ExportPotential, Potential: &pairs[i]}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Tx) exportAlternate(alternateID int64) (*models.AlternateGroup, error) {
	version, err := t.alternateVersion(alternateID)
	if err != nil {
		return nil, err
	}
	groups, err := t.alternateGroups(alternateID)
	if err != nil {
		return nil, err
	}
	fileIDs, err := t.alternateFiles(alternateID)
	if err != nil {
		return nil, err
	}
	files, err := t.hashesOf(fileIDs)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	partners, err := t.falsePositivePartners(alternateID)
	if err != nil {
		return nil, err
	}
	if partners == nil {
		partners = []int64{}
	}
	return &models.AlternateGroup{
		ID:                alternateID,
		DuplicateGroupIDs: groups,
		Files:             files,
		FalsePositiveIDs:  partners,
		Version:           version,
	}, nil
}
