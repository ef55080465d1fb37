package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestMergeIntoAlternateGroup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[2], h[3]); err != nil {
		t.Fatalf("alternate: %v", err)
	}

	group, err := st.GetAlternateGroup(ctx, h[3])
	if err != nil {
		t.Fatalf("get alternate: %v", err)
	}
	if group == nil {
		t.Fatal("expected alternate group")
	}
	if !reflect.DeepEqual(group.Files, sorted(h[1], h[2], h[3])) {
		t.Fatalf("unexpected files %v", group.Files)
	}
	if len(group.DuplicateGroupIDs) != 3 {
		t.Fatalf("expected 3 duplicate groups, got %v", group.DuplicateGroupIDs)
	}

	// Carriers stay singletons for duplicate purposes.
	dup, err := st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if !dup.Singleton || dup.AlternateGroupID != group.ID {
		t.Fatalf("expected carrier singleton in alternate %d, got %+v", group.ID, dup)
	}

	counts, err := st.RelationCounts(ctx, h[1])
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Duplicate != 0 || counts.Alternate != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestMergeIntoAlternateGroupRejectsDuplicates(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 2)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	err := st.MergeIntoAlternateGroup(ctx, h[1], h[2])
	if !errors.Is(err, ErrInvalidRelationship) {
		t.Fatalf("expected ErrInvalidRelationship, got %v", err)
	}
}

func TestAlternateMembershipFollowsDuplicateMerge(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 4)

	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("alternate a: %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[3], h[4]); err != nil {
		t.Fatalf("alternate b: %v", err)
	}
	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("merge: %v", err)
	}

	group, err := st.GetAlternateGroup(ctx, h[4])
	if err != nil {
		t.Fatalf("get alternate: %v", err)
	}
	if group == nil {
		t.Fatal("expected merged alternate group")
	}
	if !reflect.DeepEqual(group.Files, sorted(h[1], h[2], h[3], h[4])) {
		t.Fatalf("unexpected files %v", group.Files)
	}
	if len(group.DuplicateGroupIDs) != 3 {
		t.Fatalf("expected 3 duplicate groups, got %v", group.DuplicateGroupIDs)
	}
}

func TestFalsePositive(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.AddFalsePositive(ctx, h[1], h[2]); err != nil {
		t.Fatalf("false positive: %v", err)
	}
	// Idempotent.
	if err := st.AddFalsePositive(ctx, h[2], h[1]); err != nil {
		t.Fatalf("false positive again: %v", err)
	}

	a, err := st.GetAlternateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get alternate: %v", err)
	}
	b, err := st.GetAlternateGroup(ctx, h[2])
	if err != nil {
		t.Fatalf("get alternate: %v", err)
	}
	if a == nil || b == nil {
		t.Fatal("expected single-member alternate groups anchoring the link")
	}
	if !reflect.DeepEqual(a.FalsePositiveIDs, []int64{b.ID}) {
		t.Fatalf("expected link to %d, got %v", b.ID, a.FalsePositiveIDs)
	}

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); !errors.Is(err, ErrInvalidRelationship) {
		t.Fatalf("expected merge of false positives to fail, got %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[2]); !errors.Is(err, ErrInvalidRelationship) {
		t.Fatalf("expected alternate of false positives to fail, got %v", err)
	}

	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	if err := st.AddFalsePositive(ctx, h[1], h[3]); !errors.Is(err, ErrInvalidRelationship) {
		t.Fatalf("expected false positive inside alternate group to fail, got %v", err)
	}

	counts, err := st.RelationCounts(ctx, h[2])
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.FalsePositive != 2 {
		t.Fatalf("expected 2 false-positive files, got %+v", counts)
	}
}

func TestFalsePositiveLinkTransfersOnAlternateMerge(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 4)

	if err := st.AddFalsePositive(ctx, h[2], h[4]); err != nil {
		t.Fatalf("false positive: %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	// Both sides already have alternate groups, so h[2]'s group is absorbed.
	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("alternate: %v", err)
	}

	err := st.MergeIntoAlternateGroup(ctx, h[3], h[4])
	if !errors.Is(err, ErrInvalidRelationship) {
		t.Fatalf("expected transferred link to block alternate, got %v", err)
	}
}

func TestRemoveFromAlternateGroup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 4)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[4]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	flagged, err := st.RemoveFromAlternateGroup(ctx, h[2])
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(flagged, sorted(h[1], h[2])) {
		t.Fatalf("unexpected flagged files %v", flagged)
	}

	dup, err := st.GetDuplicateGroup(ctx, h[1])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if dup.Singleton || dup.AlternateGroupID != 0 {
		t.Fatalf("expected intact duplicate group outside alternates, got %+v", dup)
	}

	rest, err := st.GetAlternateGroup(ctx, h[3])
	if err != nil {
		t.Fatalf("get alternate: %v", err)
	}
	if rest == nil || !reflect.DeepEqual(rest.Files, sorted(h[3], h[4])) {
		t.Fatalf("expected remaining alternate group of two, got %+v", rest)
	}

	// Dropping below two members prunes the group.
	if _, err := st.RemoveFromAlternateGroup(ctx, h[3]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rest, err = st.GetAlternateGroup(ctx, h[4])
	if err != nil {
		t.Fatalf("get alternate: %v", err)
	}
	if rest != nil {
		t.Fatalf("expected pruned alternate group, got %+v", rest)
	}
	state, err := st.FileState(ctx, h[4])
	if err != nil {
		t.Fatalf("file state: %v", err)
	}
	if state.DuplicateGroupID != 0 {
		t.Fatalf("expected carrier to be pruned, got %+v", state)
	}
}

func TestDissolveAlternateGroup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 5)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.MergeIntoAlternateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("alternate: %v", err)
	}
	if err := st.AddFalsePositive(ctx, h[3], h[5]); err != nil {
		t.Fatalf("false positive: %v", err)
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	flagged, err := st.DissolveAlternateGroup(ctx, h[2])
	if err != nil {
		t.Fatalf("dissolve: %v", err)
	}
	if !reflect.DeepEqual(flagged, sorted(h[1], h[2], h[3])) {
		t.Fatalf("unexpected flagged files %v", flagged)
	}

	dup, err := st.GetDuplicateGroup(ctx, h[2])
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if dup.Singleton {
		t.Fatal("expected duplicate group to stay intact")
	}
	for _, hash := range []string{h[1], h[3], h[5]} {
		group, err := st.GetAlternateGroup(ctx, hash)
		if err != nil {
			t.Fatalf("get alternate: %v", err)
		}
		if group != nil {
			t.Fatalf("expected no alternate group for %s, got %+v", hash, group)
		}
	}
}

func TestClearFalsePositives(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.AddFalsePositive(ctx, h[1], h[2]); err != nil {
		t.Fatalf("false positive: %v", err)
	}
	if err := st.AddFalsePositive(ctx, h[1], h[3]); err != nil {
		t.Fatalf("false positive: %v", err)
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	flagged, err := st.ClearFalsePositives(ctx, h[1])
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !reflect.DeepEqual(flagged, sorted(h[1], h[2], h[3])) {
		t.Fatalf("unexpected flagged files %v", flagged)
	}
	for _, hash := range h[1:] {
		group, err := st.GetAlternateGroup(ctx, hash)
		if err != nil {
			t.Fatalf("get alternate: %v", err)
		}
		if group != nil {
			t.Fatalf("expected anchoring alternate group pruned for %s", hash)
		}
	}

	// Now allowed to merge.
	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge after clear: %v", err)
	}
}

func TestDissolveLastLinkedGroupDropsAlternate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 3)

	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[2]); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.AddFalsePositive(ctx, h[1], h[3]); err != nil {
		t.Fatalf("false positive: %v", err)
	}
	if _, err := st.MarkSearched(ctx, h[1:]); err != nil {
		t.Fatalf("mark searched: %v", err)
	}

	if _, err := st.DissolveDuplicateGroup(ctx, h[1]); err != nil {
		t.Fatalf("dissolve: %v", err)
	}

	info, err := st.StoreInfo(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.AlternateGroups != 0 || info.FalsePositiveLinks != 0 {
		t.Fatalf("expected no alternate groups or links, got %d groups %d links", info.AlternateGroups, info.FalsePositiveLinks)
	}
	group, err := st.GetAlternateGroup(ctx, h[3])
	if err != nil {
		t.Fatalf("get alternate: %v", err)
	}
	if group != nil {
		t.Fatalf("expected %s to lose its alternate group, got %+v", h[3], group)
	}
	counts, err := st.RelationCounts(ctx, h[3])
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.FalsePositive != 0 {
		t.Fatalf("expected no false positives for %s, got %d", h[3], counts.FalsePositive)
	}

	pending, err := st.FilesNeedingSearch(ctx, 10)
	if err != nil {
		t.Fatalf("needing search: %v", err)
	}
	found := false
	for _, hash := range pending {
		if hash == h[3] {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s flagged needs-search, got %v", h[3], pending)
	}

	// With the link gone the two sides may merge again.
	if err := st.MergeIntoDuplicateGroup(ctx, h[1], h[3]); err != nil {
		t.Fatalf("merge after dissolve: %v", err)
	}
}

func TestRemoveLastLinkedGroupDropsAlternate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	h := seedFiles(t, st, 5)

	if err := st.AddFalsePositive(ctx, h[4], h[5]); err != nil {
		t.Fatalf("false positive: %v", err)
	}
	if _, err := st.RemoveFromAlternateGroup(ctx, h[4]); err != nil {
		t.Fatalf("remove: %v", err)
	}

	for _, hash := range []string{h[4], h[5]} {
		group, err := st.GetAlternateGroup(ctx, hash)
		if err != nil {
			t.Fatalf("get alternate: %v", err)
		}
		if group != nil {
			t.Fatalf("expected no alternate group for %s, got %+v", hash, group)
		}
	}
	info, err := st.StoreInfo(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.AlternateGroups != 0 || info.FalsePositiveLinks != 0 {
		t.Fatalf("expected no alternate groups or links, got %d groups %d links", info.AlternateGroups, info.FalsePositiveLinks)
	}
}
