package store

import (
	"context"
	"errors"
	"testing"

	"dupegraph/internal/models"
)

func TestEnqueueDedupesAndKeepsSmallerDistance(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	added, err := st.Enqueue(ctx, []models.PotentialPair{
		{A: h[1], B: h[2], Distance: 8},
		{A: h[2], B: h[1], Distance: 4},
		{A: h[3], B: h[3], Distance: 0},
		{A: h[1], B: h[3], Distance: 2},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 new pairs, got %d", added)
	}

	batch, err := st.NextBatch(ctx, 10)
	if err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(batch))
	}
	if batch[0].Distance != 2 || batch[1].Distance != 4 {
		t.Fatalf("expected distances [2 4], got [%d %d]", batch[0].Distance, batch[1].Distance)
	}

	// NextBatch does not consume.
	again, err := st.NextBatch(ctx, 1)
	if err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if len(again) != 1 || again[0] != batch[0] {
		t.Fatalf("expected same head pair, got %+v", again)
	}
}

func TestEnqueueUnknownFile(t *testing.T) {
	st := testStore(t)
	h := seedFiles(t, st, 1)

	_, err := st.Enqueue(context.Background(), []models.PotentialPair{{A: h[1], B: testHash(50)}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnqueueSkipsDecidedPairs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 6)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[3], h[4]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	if err := st.AddFalsePositive(ctx, h[5], h[6]); err != nil {
		t.Fatalf("false positive: %v", err)
	}

	added, err := st.Enqueue(ctx, []models.PotentialPair{
		{A: h[1], B: h[2]},
		{A: h[3], B: h[4]},
		{A: h[6], B: h[5]},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected decided pairs to be skipped, got %d", added)
	}
}

func TestDecisionPurgesRedundantPairs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 4)

	_, err := st.Enqueue(ctx, []models.PotentialPair{
		{A: h[1], B: h[2], Distance: 1},
		{A: h[2], B: h[3], Distance: 1},
		{A: h[1], B: h[3], Distance: 1},
		{A: h[3], B: h[4], Distance: 1},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("merge: %v", err)
	}

	batch, err := st.NextBatch(ctx, 10)
	if err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if len(batch) != 1 || batch[0].A != h[3] || batch[0].B != h[4] {
		t.Fatalf("expected only the 3-4 pair to remain, got %+v", batch)
	}
}

func TestRejectBlocksUntilReset(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 2)

	pair := []models.PotentialPair{{A: h[1], B: h[2], Distance: 3}}
	if _, err := st.Enqueue(ctx, pair); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	mustUpdate(t, st, func(tx *Tx) error {
		rejected, err := tx.Reject(h[2], h[1])
		if err != nil {
			return err
		}
		if !rejected {
			t.Fatal("expected pair to be rejected")
		}
		return nil
	})

	queued, err := st.PairQueued(ctx, h[1], h[2])
	if err != nil {
		t.Fatalf("queued: %v", err)
	}
	if queued {
		t.Fatal("expected rejected pair to leave the queue")
	}

	added, err := st.Enqueue(ctx, pair)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected rejected pair not to be re-offered, got %d", added)
	}

	mustUpdate(t, st, func(tx *Tx) error {
		_, err := tx.ResetSearch(h[1])
		return err
	})
	added, err = st.Enqueue(ctx, pair)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected pair back after reset, got %d", added)
	}
}

func TestRemovePotentialsCoversClosure(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 5)

	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	if _, err := st.Enqueue(ctx, []models.PotentialPair{
		{A: h[1], B: h[3]},
		{A: h[2], B: h[4]},
		{A: h[4], B: h[5]},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	counts, err := st.RelationCounts(ctx, h[1])
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Potential != 1 {
		t.Fatalf("expected 1 potential for h1, got %+v", counts)
	}

	var removed int
	mustUpdate(t, st, func(tx *Tx) error {
		var err error
		removed, err = tx.RemovePotentials(h[1])
		return err
	})
	if removed != 2 {
		t.Fatalf("expected 2 pairs removed, got %d", removed)
	}

	batch, err := st.NextBatch(ctx, 10)
	if err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if len(batch) != 1 || batch[0].A != h[4] {
		t.Fatalf("expected only the 4-5 pair, got %+v", batch)
	}
}

func TestResetSearchFlagsClosure(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	var flagged []string
	mustUpdate(t, st, func(tx *Tx) error {
		if _, err := tx.ResetSearch(h[2]); err != nil {
			return err
		}
		var err error
		flagged, err = tx.NeedsSearch()
		return err
	})
	if len(flagged) != 2 {
		t.Fatalf("expected 2 flagged files, got %v", flagged)
	}

	group, err := st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.Singleton {
		t.Fatal("expected reset to keep the duplicate group")
	}
}

func TestRelationCountsLargeGroupCountsPairsOnce(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	const size = 510
	h := seedFiles(t, st, size+2)
	outsideA, outsideB := h[size+1], h[size+2]

	mustUpdate(t, st, func(tx *Tx) error {
		for i := 2; i <= size; i++ {
			if _, err := tx.MergeIntoDuplicateGroup(h[1], h[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if _, err := st.Enqueue(ctx, []models.PotentialPair{
		{A: h[1], B: outsideA, Distance: 1},
		{A: h[size], B: outsideB, Distance: 1},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// A stale pair inside the group, with its ends far apart in membership order.
	if _, err := st.DB().ExecContext(ctx, `
		INSERT INTO potential_pairs (smaller_hash_id, larger_hash_id, distance, queued_at)
		SELECT a.hash_id, b.hash_id, 0, '2026-01-01T00:00:00Z'
		FROM files a, files b
		WHERE a.hash = ? AND b.hash = ?
	`, h[1], h[size]); err != nil {
		t.Fatalf("insert stale pair: %v", err)
	}

	counts, err := st.RelationCounts(ctx, h[1])
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Duplicate != size-1 {
		t.Fatalf("expected %d duplicates, got %d", size-1, counts.Duplicate)
	}
	if counts.Potential != 3 {
		t.Fatalf("expected 3 potential pairs, got %d", counts.Potential)
	}
}
