package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"dupegraph/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testHash(n int) string {
	return fmt.Sprintf("%064x", n)
}

// seedFiles registers n files and returns their hashes, 1-based.
func seedFiles(t *testing.T, st *Store, n int) []string {
	t.Helper()
	hashes := make([]string, n+1)
	for i := 1; i <= n; i++ {
		hashes[i] = testHash(i)
	}
	if _, err := st.RegisterFiles(context.Background(), hashes[1:]); err != nil {
		t.Fatalf("register files: %v", err)
	}
	return hashes
}

func mustUpdate(t *testing.T, st *Store, fn func(*Tx) error) {
	t.Helper()
	if err := st.Update(context.Background(), fn); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func sorted(values ...string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func TestRegisterFiles(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	added, err := st.RegisterFiles(ctx, []string{testHash(1), testHash(2)})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 new files, got %d", added)
	}

	added, err = st.RegisterFiles(ctx, []string{testHash(2), testHash(3)})
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 new file, got %d", added)
	}

	file, err := st.GetFile(ctx, testHash(3))
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if !file.NeedsSearch {
		t.Fatal("expected new file to need a search")
	}
	if file.AddedAt.IsZero() {
		t.Fatal("expected added_at to be set")
	}

	if _, err := st.GetFile(ctx, testHash(9)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkSearched(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	pending, err := st.FilesNeedingSearch(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}

	n, err := st.MarkSearched(ctx, []string{h[1], h[2]})
	if err != nil {
		t.Fatalf("mark searched: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 marked, got %d", n)
	}

	pending, err = st.FilesNeedingSearch(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !reflect.DeepEqual(pending, []string{h[3]}) {
		t.Fatalf("unexpected pending files %v", pending)
	}

	if _, err := st.MarkSearched(ctx, []string{testHash(99)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMergeCreatesGroupWithFirstAsKing(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 2)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}

	group, err := st.GetDuplicateGroup(ctx, h[2])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.King != h[1] {
		t.Fatalf("expected king %s, got %s", h[1], group.King)
	}
	if group.Singleton {
		t.Fatal("expected a real group")
	}
	if !reflect.DeepEqual(group.Members, []string{h[1], h[2]}) {
		t.Fatalf("unexpected members %v", group.Members)
	}

	king, err := st.IsKing(ctx, h[1])
	if err != nil {
		t.Fatalf("is king: %v", err)
	}
	if !king {
		t.Fatal("expected first file to be king")
	}
}

func TestMergeJoinsExistingGroupKeepingKing(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	// The grouped side wins even when it is passed second.
	if err := st.MergeIntoDuplicateGroup(ctx, h[3], h[2]); err != nil {
		t.Fatalf("merge third: %v", err)
	}

	group, err := st.GetDuplicateGroup(ctx, h[3])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.King != h[1] {
		t.Fatalf("expected king %s, got %s", h[1], group.King)
	}
	if len(group.Members) != 3 {
		t.Fatalf("expected 3 members, got %v", group.Members)
	}
}

func TestMergeTwoGroupsKeepsFirstKing(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 4)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge a: %v", err)
	}
	if err := st.MergeIntoDuplicateGroup(ctx, h[3], h[4]); err != nil {
		t.Fatalf("merge b: %v", err)
	}
	if err := st.MergeIntoDuplicateGroup(ctx, h[4], h[2]); err != nil {
		t.Fatalf("merge groups: %v", err)
	}

	group, err := st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.King != h[3] {
		t.Fatalf("expected king %s, got %s", h[3], group.King)
	}
	if len(group.Members) != 4 {
		t.Fatalf("expected 4 members, got %v", group.Members)
	}

	// Same group again is a no-op.
	before := group.Version
	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("merge same group: %v", err)
	}
	group, err = st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.Version != before {
		t.Fatalf("expected version %d unchanged, got %d", before, group.Version)
	}
}

func TestSetKing(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.SetKing(ctx, h[1]); !errors.Is(err, ErrInvalidRelationship) {
		t.Fatalf("expected ErrInvalidRelationship for ungrouped file, got %v", err)
	}

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.SetKing(ctx, h[2]); err != nil {
		t.Fatalf("set king: %v", err)
	}
	group, err := st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.King != h[2] {
		t.Fatalf("expected king %s, got %s", h[2], group.King)
	}

	if err := st.SetKing(ctx, testHash(42)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveKingPromotesEarliestMember(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 4)

	for _, pair := range [][2]string{{h[1], h[2]}, {h[1], h[3]}, {h[1], h[4]}} {
		if err := st.MergeIntoDuplicateGroup(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	flagged, err := st.RemoveFromDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(flagged, sorted(h[1], h[2], h[3], h[4])) {
		t.Fatalf("unexpected flagged files %v", flagged)
	}

	group, err := st.GetDuplicateGroup(ctx, h[3])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.King != h[2] {
		t.Fatalf("expected earliest member %s as king, got %s", h[2], group.King)
	}
	if len(group.Members) != 3 {
		t.Fatalf("expected 3 members, got %v", group.Members)
	}

	removed, err := st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get removed: %v", err)
	}
	if !removed.Singleton {
		t.Fatal("expected removed file to be a singleton")
	}
}

func TestRemoveLeavesSingleton(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 2)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	flagged, err := st.RemoveFromDuplicateGroup(ctx, h[2])
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(flagged, sorted(h[1], h[2])) {
		t.Fatalf("unexpected flagged files %v", flagged)
	}

	for _, hash := range h[1:] {
		group, err := st.GetDuplicateGroup(ctx, hash)
		if err != nil {
			t.Fatalf("get group: %v", err)
		}
		if !group.Singleton || group.ID != 0 {
			t.Fatalf("expected plain singleton for %s, got %+v", hash, group)
		}
	}

	// Ungrouped file is a no-op.
	flagged, err = st.RemoveFromDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("remove ungrouped: %v", err)
	}
	if len(flagged) != 0 {
		t.Fatalf("expected nothing flagged, got %v", flagged)
	}
}

func TestDissolveDuplicateGroup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	flagged, err := st.DissolveDuplicateGroup(ctx, h[2])
	if err != nil {
		t.Fatalf("dissolve: %v", err)
	}
	if !reflect.DeepEqual(flagged, sorted(h[1], h[2], h[3])) {
		t.Fatalf("unexpected flagged files %v", flagged)
	}
	for _, hash := range h[1:] {
		king, err := st.IsKing(ctx, hash)
		if err != nil {
			t.Fatalf("is king: %v", err)
		}
		if king {
			t.Fatalf("expected %s not to be king after dissolve", hash)
		}
	}
}

func TestCheckExpect(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	state, err := st.FileState(ctx, h[1])
	if err != nil {
		t.Fatalf("file state: %v", err)
	}
	if state.DuplicateGroupID == 0 {
		t.Fatal("expected a duplicate group id")
	}

	mustUpdate(t, st, func(tx *Tx) error {
		return tx.CheckExpect(nil)
	})

	err = st.View(ctx, func(tx *Tx) error { return tx.CheckExpect([]models.FileState{state}) })
	if err != nil {
		t.Fatalf("expected current state to pass, got %v", err)
	}

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	err = st.View(ctx, func(tx *Tx) error { return tx.CheckExpect([]models.FileState{state}) })
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}

	missing := state
	missing.Hash = testHash(77)
	err = st.View(ctx, func(tx *Tx) error { return tx.CheckExpect([]models.FileState{missing}) })
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for vanished file, got %v", err)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	boom := errors.New("boom")
	err := st.Update(ctx, func(tx *Tx) error {
		if _, err := tx.MergeIntoDuplicateGroup(h[1], h[2]); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	group, err := st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if !group.Singleton {
		t.Fatal("expected rollback to leave the file ungrouped")
	}
}
