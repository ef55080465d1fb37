package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dupegraph/internal/models"
)

// groupRecord is the stored form of a duplicate group. A record with a single
// member is a carrier: it exists only to hold that file's alternate group.
type groupRecord struct {
	id        int64
	king      int64
	alternate int64
	version   int64
	members   []int64 // joined order
}

func (g *groupRecord) size() int {
	if g == nil {
		return 0
	}
	return len(g.members)
}

func (g *groupRecord) without(id int64) []int64 {
	out := make([]int64, 0, len(g.members))
	for _, member := range g.members {
		if member != id {
			out = append(out, member)
		}
	}
	return out
}

// groupOf returns the record holding hashID, or nil when the file has none.
func (t *Tx) groupOf(hashID int64) (*groupRecord, error) {
	var groupID int64
	err := t.queryRow("SELECT group_id FROM duplicate_group_members WHERE hash_id = ?", hashID).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.loadGroup(groupID)
}

func (t *Tx) loadGroup(groupID int64) (*groupRecord, error) {
	g := &groupRecord{id: groupID}
	var alternate sql.NullInt64
	err := t.queryRow("SELECT king_hash_id, alternate_group_id, version FROM duplicate_groups WHERE group_id = ?", groupID).
		Scan(&g.king, &alternate, &g.version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: member row points at missing duplicate group %d", ErrCorrupt, groupID)
	}
	if err != nil {
		return nil, err
	}
	g.alternate = alternate.Int64

	g.members, err = t.queryIDs("SELECT hash_id FROM duplicate_group_members WHERE group_id = ? ORDER BY joined_seq", groupID)
	if err != nil {
		return nil, err
	}
	if len(g.members) == 0 {
		return nil, fmt.Errorf("%w: duplicate group %d has no members", ErrCorrupt, groupID)
	}
	kingFound := false
	for _, member := range g.members {
		if member == g.king {
			kingFound = true
			break
		}
	}
	if !kingFound {
		return nil, fmt.Errorf("%w: king of duplicate group %d is not a member", ErrCorrupt, groupID)
	}
	return g, nil
}

// ensureCarrier returns the record holding hashID, creating a one-member
// carrier when the file has none.
func (t *Tx) ensureCarrier(hashID int64) (*groupRecord, error) {
	g, err := t.groupOf(hashID)
	if err != nil || g != nil {
		return g, err
	}
	id, err := t.createGroup(hashID)
	if err != nil {
		return nil, err
	}
	return &groupRecord{id: id, king: hashID, version: 1, members: []int64{hashID}}, nil
}

func (t *Tx) createGroup(king int64) (int64, error) {
	res, err := t.exec("INSERT INTO duplicate_groups (king_hash_id, version, created_at) VALUES (?, 1, ?)", king, formatTime(t.now))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := t.addMember(id, king); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *Tx) nextJoinSeq() (int64, error) {
	var seq int64
	err := t.queryRow("SELECT COALESCE(MAX(joined_seq), 0) + 1 FROM duplicate_group_members").Scan(&seq)
	return seq, err
}

func (t *Tx) addMember(groupID, hashID int64) error {
	seq, err := t.nextJoinSeq()
	if err != nil {
		return err
	}
	_, err = t.exec("INSERT INTO duplicate_group_members (hash_id, group_id, joined_seq) VALUES (?, ?, ?)", hashID, groupID, seq)
	return err
}

func (t *Tx) moveMember(groupID, hashID int64) error {
	seq, err := t.nextJoinSeq()
	if err != nil {
		return err
	}
	_, err = t.exec("UPDATE duplicate_group_members SET group_id = ?, joined_seq = ? WHERE hash_id = ?", groupID, seq, hashID)
	return err
}

func (t *Tx) bumpGroup(groupID int64) error {
	_, err := t.exec("UPDATE duplicate_groups SET version = version + 1 WHERE group_id = ?", groupID)
	return err
}

func (t *Tx) deleteGroup(groupID int64) error {
	_, err := t.exec("DELETE FROM duplicate_groups WHERE group_id = ?", groupID)
	return err
}

// pruneCarrier drops a record that no longer carries anything: an empty
// record, or a single member outside any alternate group.
func (t *Tx) pruneCarrier(groupID int64) error {
	var members int
	var alternate sql.NullInt64
	err := t.queryRow(`
		SELECT COUNT(m.hash_id), g.alternate_group_id
		FROM duplicate_groups g
		LEFT JOIN duplicate_group_members m ON m.group_id = g.group_id
		WHERE g.group_id = ?
		GROUP BY g.group_id
	`, groupID).Scan(&members, &alternate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if members == 0 || (members == 1 && !alternate.Valid) {
		return t.deleteGroup(groupID)
	}
	return nil
}

// GetDuplicateGroup returns the duplicate group of hash. Ungrouped files and
// carriers are reported as singletons.
func (t *Tx) GetDuplicateGroup(hash string) (models.DuplicateGroup, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return models.DuplicateGroup{}, err
	}
	g, err := t.groupOf(id)
	if err != nil {
		return models.DuplicateGroup{}, err
	}
	if g == nil {
		return models.DuplicateGroup{King: hash, Members: []string{hash}, Singleton: true}, nil
	}

	members, err := t.hashesOf(g.members)
	if err != nil {
		return models.DuplicateGroup{}, err
	}
	king, err := t.hashesOf([]int64{g.king})
	if err != nil {
		return models.DuplicateGroup{}, err
	}
	return models.DuplicateGroup{
		ID:               g.id,
		King:             king[0],
		Members:          members,
		AlternateGroupID: g.alternate,
		Version:          g.version,
		Singleton:        g.size() < 2,
	}, nil
}

// IsKing reports whether hash is the King of a group of two or more files.
func (t *Tx) IsKing(hash string) (bool, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return false, err
	}
	g, err := t.groupOf(id)
	if err != nil {
		return false, err
	}
	return g.size() >= 2 && g.king == id, nil
}

// SetKing makes hash the King of its duplicate group. It reports whether the
// King changed.
func (t *Tx) SetKing(hash string) (bool, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return false, err
	}
	g, err := t.groupOf(id)
	if err != nil {
		return false, err
	}
	if g.size() < 2 {
		return false, fmt.Errorf("%w: file %s is not in a duplicate group", ErrInvalidRelationship, hash)
	}
	if g.king == id {
		return false, nil
	}
	if _, err := t.exec("UPDATE duplicate_groups SET king_hash_id = ?, version = version + 1 WHERE group_id = ?", id, g.id); err != nil {
		return false, err
	}
	return true, nil
}

// MergeIntoDuplicateGroup records a and b as duplicates. It reports whether
// anything changed.
//
// When neither file is grouped a new group is created with a as King. When
// one is grouped the other joins that group under its King. When both are
// grouped b's group is absorbed into a's and a's King is kept.
func (t *Tx) MergeIntoDuplicateGroup(a, b string) (bool, error) {
	aID, bID, err := t.distinctPair(a, b)
	if err != nil {
		return false, err
	}
	ga, err := t.groupOf(aID)
	if err != nil {
		return false, err
	}
	gb, err := t.groupOf(bID)
	if err != nil {
		return false, err
	}
	if ga != nil && gb != nil && ga.id == gb.id {
		return false, nil
	}
	if ga != nil && gb != nil && ga.alternate != 0 && gb.alternate != 0 && ga.alternate != gb.alternate {
		linked, err := t.falsePositiveLinked(ga.alternate, gb.alternate)
		if err != nil {
			return false, err
		}
		if linked {
			return false, fmt.Errorf("%w: %s and %s are marked false positive", ErrInvalidRelationship, a, b)
		}
	}

	var target, source *groupRecord
	var loose int64
	switch {
	case ga.size() >= 2:
		target, source, loose = ga, gb, bID
	case gb.size() >= 2:
		target, source, loose = gb, ga, aID
	default:
		target, source, loose = ga, gb, bID
		if target == nil {
			id, err := t.createGroup(aID)
			if err != nil {
				return false, err
			}
			target = &groupRecord{id: id, king: aID, version: 1, members: []int64{aID}}
		}
	}

	if err := t.absorb(target, source, loose); err != nil {
		return false, err
	}
	return true, nil
}

// absorb moves loose, or every member of source when it is set, into target.
// Alternate memberships follow the moved files.
func (t *Tx) absorb(target, source *groupRecord, loose int64) error {
	if source == nil {
		if err := t.addMember(target.id, loose); err != nil {
			return err
		}
	} else {
		for _, member := range source.members {
			if err := t.moveMember(target.id, member); err != nil {
				return err
			}
		}
		if source.alternate != 0 {
			switch {
			case target.alternate == 0:
				if err := t.setAlternate(target.id, source.alternate); err != nil {
					return err
				}
				target.alternate = source.alternate
			case target.alternate != source.alternate:
				if err := t.mergeAlternates(target.alternate, source.alternate); err != nil {
					return err
				}
			}
		}
		if err := t.deleteGroup(source.id); err != nil {
			return err
		}
		if target.alternate != 0 {
			if err := t.bumpAlternate(target.alternate); err != nil {
				return err
			}
			if _, err := t.pruneAlternate(target.alternate); err != nil {
				return err
			}
		}
	}
	if err := t.bumpGroup(target.id); err != nil {
		return err
	}

	scope, err := t.closure(target.king)
	if err != nil {
		return err
	}
	_, err = t.purgeDecidedPairs(scope)
	return err
}

// RemoveFromDuplicateGroup takes hash out of its duplicate group. The file
// becomes a plain singleton outside any alternate group. It reports whether
// the file was grouped.
func (t *Tx) RemoveFromDuplicateGroup(hash string) (bool, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return false, err
	}
	g, err := t.groupOf(id)
	if err != nil {
		return false, err
	}
	if g.size() < 2 {
		return false, nil
	}

	if _, err := t.exec("DELETE FROM duplicate_group_members WHERE hash_id = ?", id); err != nil {
		return false, err
	}
	if err := t.flag(id); err != nil {
		return false, err
	}

	remaining := g.without(id)
	if g.king == id {
		// Earliest-joined remaining member takes over.
		if _, err := t.exec("UPDATE duplicate_groups SET king_hash_id = ? WHERE group_id = ?", remaining[0], g.id); err != nil {
			return false, err
		}
		if err := t.flag(remaining...); err != nil {
			return false, err
		}
	}
	if len(remaining) == 1 {
		if err := t.flag(remaining[0]); err != nil {
			return false, err
		}
	}
	if err := t.bumpGroup(g.id); err != nil {
		return false, err
	}
	if g.alternate != 0 {
		if err := t.bumpAlternate(g.alternate); err != nil {
			return false, err
		}
	}
	if err := t.pruneCarrier(g.id); err != nil {
		return false, err
	}
	return true, nil
}

// DissolveDuplicateGroup splits the group of hash into singletons. It returns
// the dissolved group id, or zero when the file was not grouped.
func (t *Tx) DissolveDuplicateGroup(hash string) (int64, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return 0, err
	}
	g, err := t.groupOf(id)
	if err != nil {
		return 0, err
	}
	if g.size() < 2 {
		return 0, nil
	}

	if err := t.flag(g.members...); err != nil {
		return 0, err
	}
	if err := t.deleteGroup(g.id); err != nil {
		return 0, err
	}
	if g.alternate != 0 {
		if err := t.bumpAlternate(g.alternate); err != nil {
			return 0, err
		}
		if _, err := t.pruneAlternate(g.alternate); err != nil {
			return 0, err
		}
	}
	return g.id, nil
}

// FileState returns the current group ids and versions of hash.
func (t *Tx) FileState(hash string) (models.FileState, error) {
	id, err := t.fileID(hash)
	if err != nil {
		return models.FileState{}, err
	}
	state := models.FileState{Hash: hash}
	g, err := t.groupOf(id)
	if err != nil || g == nil {
		return state, err
	}
	state.DuplicateGroupID = g.id
	state.DuplicateGroupVersion = g.version
	if g.alternate != 0 {
		version, err := t.alternateVersion(g.alternate)
		if err != nil {
			return models.FileState{}, err
		}
		state.AlternateGroupID = g.alternate
		state.AlternateGroupVersion = version
	}
	return state, nil
}

// CheckExpect verifies that every expected state still holds. A vanished file
// or any mismatch is a conflict.
func (t *Tx) CheckExpect(expect []models.FileState) error {
	for _, want := range expect {
		got, err := t.FileState(want.Hash)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: file %s no longer exists", ErrConflict, want.Hash)
		}
		if err != nil {
			return err
		}
		if got.DuplicateGroupID != want.DuplicateGroupID || got.AlternateGroupID != want.AlternateGroupID {
			return fmt.Errorf("%w: relationships of %s changed", ErrConflict, want.Hash)
		}
		if want.DuplicateGroupVersion != 0 && got.DuplicateGroupVersion != want.DuplicateGroupVersion {
			return fmt.Errorf("%w: duplicate group %d of %s is stale", ErrConflict, got.DuplicateGroupID, want.Hash)
		}
		if want.AlternateGroupVersion != 0 && got.AlternateGroupVersion != want.AlternateGroupVersion {
			return fmt.Errorf("%w: alternate group %d of %s is stale", ErrConflict, got.AlternateGroupID, want.Hash)
		}
	}
	return nil
}

func (t *Tx) distinctPair(a, b string) (int64, int64, error) {
	aID, err := t.fileID(a)
	if err != nil {
		return 0, 0, err
	}
	bID, err := t.fileID(b)
	if err != nil {
		return 0, 0, err
	}
	if aID == bID {
		return 0, 0, fmt.Errorf("%w: cannot relate %s to itself", ErrInvalidRelationship, a)
	}
	return aID, bID, nil
}

// GetDuplicateGroup returns the duplicate group of hash.
func (s *Store) GetDuplicateGroup(ctx context.Context, hash string) (models.DuplicateGroup, error) {
	var group models.DuplicateGroup
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		group, err = tx.GetDuplicateGroup(hash)
		return err
	})
	return group, err
}

// IsKing reports whether hash is the King of a group of two or more files.
func (s *Store) IsKing(ctx context.Context, hash string) (bool, error) {
	var king bool
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		king, err = tx.IsKing(hash)
		return err
	})
	return king, err
}

// FileState returns the current group ids and versions of hash.
func (s *Store) FileState(ctx context.Context, hash string) (models.FileState, error) {
	var state models.FileState
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		state, err = tx.FileState(hash)
		return err
	})
	return state, err
}

// SetKing makes hash the King of its duplicate group.
func (s *Store) SetKing(ctx context.Context, hash string) error {
	return s.Update(ctx, func(tx *Tx) error {
		_, err := tx.SetKing(hash)
		return err
	})
}

// MergeIntoDuplicateGroup records a and b as duplicates.
func (s *Store) MergeIntoDuplicateGroup(ctx context.Context, a, b string) error {
	return s.Update(ctx, func(tx *Tx) error {
		_, err := tx.MergeIntoDuplicateGroup(a, b)
		return err
	})
}

// RemoveFromDuplicateGroup takes hash out of its duplicate group and returns
// the files flagged needs-search.
func (s *Store) RemoveFromDuplicateGroup(ctx context.Context, hash string) ([]string, error) {
	return s.updateFlagged(ctx, func(tx *Tx) error {
		_, err := tx.RemoveFromDuplicateGroup(hash)
		return err
	})
}

// DissolveDuplicateGroup splits the group of hash into singletons and returns
// the files flagged needs-search.
func (s *Store) DissolveDuplicateGroup(ctx context.Context, hash string) ([]string, error) {
	return s.updateFlagged(ctx, func(tx *Tx) error {
		_, err := tx.DissolveDuplicateGroup(hash)
		return err
	})
}
