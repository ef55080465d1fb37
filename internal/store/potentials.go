package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dupegraph/internal/models"
)

// closure is the set of files that share relationship state with hashID: its
// alternate group when it has one, else its duplicate group, else itself.
func (t *Tx) closure(hashID int64) ([]int64, error) {
	g, err := t.groupOf(hashID)
	if err != nil {
		return nil, err
	}
	switch {
	case g == nil:
		return []int64{hashID}, nil
	case g.alternate != 0:
		return t.alternateFiles(g.alternate)
	default:
		return g.members, nil
	}
}

// pairDecided reports whether a relationship between x and y is already
// recorded: same duplicate group, same alternate group, or false positive.
func (t *Tx) pairDecided(x, y int64) (bool, error) {
	gx, err := t.groupOf(x)
	if err != nil || gx == nil {
		return false, err
	}
	gy, err := t.groupOf(y)
	if err != nil || gy == nil {
		return false, err
	}
	if gx.id == gy.id {
		return true, nil
	}
	if gx.alternate == 0 || gy.alternate == 0 {
		return false, nil
	}
	if gx.alternate == gy.alternate {
		return true, nil
	}
	return t.falsePositiveLinked(gx.alternate, gy.alternate)
}

func (t *Tx) pairRejected(lo, hi int64) (bool, error) {
	n, err := t.count("SELECT COUNT(*) FROM rejected_pairs WHERE smaller_hash_id = ? AND larger_hash_id = ?", lo, hi)
	return n > 0, err
}

const decidedPairsQuery = `
DELETE FROM potential_pairs WHERE rowid IN (
  SELECT p.rowid
  FROM potential_pairs p
  JOIN duplicate_group_members ma ON ma.hash_id = p.smaller_hash_id
  JOIN duplicate_group_members mb ON mb.hash_id = p.larger_hash_id
  JOIN duplicate_groups ga ON ga.group_id = ma.group_id
  JOIN duplicate_groups gb ON gb.group_id = mb.group_id
  WHERE (
    ga.group_id = gb.group_id
    OR ga.alternate_group_id = gb.alternate_group_id
    OR EXISTS (
      SELECT 1 FROM false_positive_links l
      WHERE l.smaller_alternate_group_id = MIN(ga.alternate_group_id, gb.alternate_group_id)
        AND l.larger_alternate_group_id = MAX(ga.alternate_group_id, gb.alternate_group_id)
    )
  )%s
)`

// purgeDecidedPairs drops queued pairs whose relationship is now recorded.
// With an empty scope the whole queue is checked; otherwise only pairs
// touching a scoped file.
func (t *Tx) purgeDecidedPairs(scope []int64) (int64, error) {
	if len(scope) == 0 {
		res, err := t.exec(fmt.Sprintf(decidedPairsQuery, ""))
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	query := fmt.Sprintf(decidedPairsQuery, " AND (p.smaller_hash_id IN (%s) OR p.larger_hash_id IN (%s))")
	return t.execInChunks(query, 2, scope)
}

// Enqueue adds candidate pairs to the queue and returns how many were new.
// Self pairs, decided pairs and rejected pairs are skipped; a pair already
// queued keeps the smaller distance.
func (t *Tx) Enqueue(pairs []models.PotentialPair) (int, error) {
	added := 0
	for _, pair := range pairs {
		if pair.Distance < 0 {
			return 0, fmt.Errorf("distance must be non-negative")
		}
		x, err := t.fileID(pair.A)
		if err != nil {
			return 0, err
		}
		y, err := t.fileID(pair.B)
		if err != nil {
			return 0, err
		}
		if x == y {
			continue
		}
		lo, hi := orderPair(x, y)

		decided, err := t.pairDecided(lo, hi)
		if err != nil {
			return 0, err
		}
		if decided {
			continue
		}
		rejected, err := t.pairRejected(lo, hi)
		if err != nil {
			return 0, err
		}
		if rejected {
			continue
		}

		var existing int
		err = t.queryRow("SELECT distance FROM potential_pairs WHERE smaller_hash_id = ? AND larger_hash_id = ?", lo, hi).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := t.exec("INSERT INTO potential_pairs (smaller_hash_id, larger_hash_id, distance, queued_at) VALUES (?, ?, ?, ?)", lo, hi, pair.Distance, formatTime(t.now)); err != nil {
				return 0, err
			}
			added++
		case err != nil:
			return 0, err
		case pair.Distance < existing:
			if _, err := t.exec("UPDATE potential_pairs SET distance = ? WHERE smaller_hash_id = ? AND larger_hash_id = ?", pair.Distance, lo, hi); err != nil {
				return 0, err
			}
		}
	}
	return added, nil
}

// NextBatch returns up to limit queued pairs, most similar first, then oldest.
func (t *Tx) NextBatch(limit int) ([]models.PotentialPair, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT fa.hash, fb.hash, p.distance, p.queued_at
		FROM potential_pairs p
		JOIN files fa ON fa.hash_id = p.smaller_hash_id
		JOIN files fb ON fb.hash_id = p.larger_hash_id
		ORDER BY p.distance ASC, p.queued_at ASC, p.smaller_hash_id ASC, p.larger_hash_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := []models.PotentialPair{}
	for rows.Next() {
		var pair models.PotentialPair
		var queuedAt string
		if err := rows.Scan(&pair.A, &pair.B, &pair.Distance, &queuedAt); err != nil {
			return nil, err
		}
		pair.QueuedAt, err = parseTime(queuedAt)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

// PairQueued reports whether a and b are waiting in the queue.
func (t *Tx) PairQueued(a, b string) (bool, error) {
	x, y, err := t.distinctPair(a, b)
	if err != nil {
		return false, err
	}
	lo, hi := orderPair(x, y)
	n, err := t.count("SELECT COUNT(*) FROM potential_pairs WHERE smaller_hash_id = ? AND larger_hash_id = ?", lo, hi)
	return n > 0, err
}

// DequeuePair drops one queued pair. It reports whether the pair was queued.
func (t *Tx) DequeuePair(a, b string) (bool, error) {
	x, y, err := t.distinctPair(a, b)
	if err != nil {
		return false, err
	}
	lo, hi := orderPair(x, y)
	res, err := t.exec("DELETE FROM potential_pairs WHERE smaller_hash_id = ? AND larger_hash_id = ?", lo, hi)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Reject records that a and b are unrelated without linking their groups.
// The pair leaves the queue and is not offered again until a search reset
// touches either file. A pair that is already decided is left alone.
func (t *Tx) Reject(a, b string) (bool, error) {
	x, y, err := t.distinctPair(a, b)
	if err != nil {
		return false, err
	}
	lo, hi := orderPair(x, y)
	decided, err := t.pairDecided(lo, hi)
	if err != nil || decided {
		return false, err
	}
	if _, err := t.exec("DELETE FROM potential_pairs WHERE smaller_hash_id = ? AND larger_hash_id = ?", lo, hi); err != nil {
		return false, err
	}
	res, err := t.exec("INSERT OR IGNORE INTO rejected_pairs (smaller_hash_id, larger_hash_id, rejected_at) VALUES (?, ?, ?)", lo, hi, formatTime(t.now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemovePotentials drops every queued pair touching the closure of hash and
// returns how many were removed.
func (t *Tx) RemovePotentials(hash string) (int, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return 0, err
	}
	ids, err := t.closure(id)
	if err != nil {
		return 0, err
	}
	n, err := t.execInChunks("DELETE FROM potential_pairs WHERE smaller_hash_id IN (%s) OR larger_hash_id IN (%s)", 2, ids)
	return int(n), err
}

// ResetSearch flags the closure of hash needs-search and forgets rejected
// pairs touching it. Confirmed relationships are untouched. It returns the
// number of files flagged.
func (t *Tx) ResetSearch(hash string) (int, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return 0, err
	}
	ids, err := t.closure(id)
	if err != nil {
		return 0, err
	}
	if err := t.flag(ids...); err != nil {
		return 0, err
	}
	if _, err := t.execInChunks("DELETE FROM rejected_pairs WHERE smaller_hash_id IN (%s) OR larger_hash_id IN (%s)", 2, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Enqueue adds candidate pairs to the queue in its own transaction.
func (s *Store) Enqueue(ctx context.Context, pairs []models.PotentialPair) (int, error) {
	var added int
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		added, err = tx.Enqueue(pairs)
		return err
	})
	return added, err
}

// NextBatch returns up to limit queued pairs without removing them.
func (s *Store) NextBatch(ctx context.Context, limit int) ([]models.PotentialPair, error) {
	var pairs []models.PotentialPair
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		pairs, err = tx.NextBatch(limit)
		return err
	})
	return pairs, err
}

// PairQueued reports whether a and b are waiting in the queue.
func (s *Store) PairQueued(ctx context.Context, a, b string) (bool, error) {
	var queued bool
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		queued, err = tx.PairQueued(a, b)
		return err
	})
	return queued, err
}
