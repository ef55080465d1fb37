package dupes

import (
	"fmt"

	"dupegraph/internal/models"
	"dupegraph/internal/store"
)

// applyBetter merges every other file into the group of the better file and
// crowns it.
func applyBetter(tx *store.Tx, d models.Decision, result *models.Result) error {
	for _, hash := range d.Hashes {
		if hash == d.Better {
			continue
		}
		changed, err := tx.MergeIntoDuplicateGroup(d.Better, hash)
		if err != nil {
			return err
		}
		result.Pairs++
		if changed {
			result.Changes = append(result.Changes, models.Change{Kind: models.ChangeDuplicate, A: d.Better, B: hash})
		}
	}
	return setKing(tx, d.Better, result)
}

// applySameQuality unions all files into one group without touching the King.
func applySameQuality(tx *store.Tx, d models.Decision, result *models.Result) error {
	first := d.Hashes[0]
	for _, hash := range d.Hashes[1:] {
		changed, err := tx.MergeIntoDuplicateGroup(first, hash)
		if err != nil {
			return err
		}
		result.Pairs++
		if changed {
			result.Changes = append(result.Changes, models.Change{Kind: models.ChangeDuplicate, A: first, B: hash})
		}
	}
	return nil
}

func applyAlternate(tx *store.Tx, d models.Decision, result *models.Result) error {
	groups, err := distinctGroups(tx, d.Hashes)
	if err != nil {
		return err
	}
	return eachPair(groups, func(a, b string) error {
		changed, err := tx.MergeIntoAlternateGroup(a, b)
		if err != nil {
			return err
		}
		result.Pairs++
		if changed {
			result.Changes = append(result.Changes, models.Change{Kind: models.ChangeAlternate, A: a, B: b})
		}
		return nil
	})
}

func applyFalsePositive(tx *store.Tx, d models.Decision, result *models.Result) error {
	groups, err := distinctGroups(tx, d.Hashes)
	if err != nil {
		return err
	}
	return eachPair(groups, func(a, b string) error {
		linked, err := tx.AddFalsePositive(a, b)
		if err != nil {
			return err
		}
		result.Pairs++
		if linked {
			result.Changes = append(result.Changes, models.Change{Kind: models.ChangeFalsePositive, A: a, B: b})
		}
		return nil
	})
}

func applyReject(tx *store.Tx, d models.Decision, result *models.Result) error {
	return eachPair(d.Hashes, func(a, b string) error {
		rejected, err := tx.Reject(a, b)
		if err != nil {
			return err
		}
		result.Pairs++
		if rejected {
			result.Changes = append(result.Changes, models.Change{Kind: models.ChangeReject, A: a, B: b})
		}
		return nil
	})
}

func applyPotential(tx *store.Tx, d models.Decision, result *models.Result) error {
	var pairs []models.PotentialPair
	_ = eachPair(d.Hashes, func(a, b string) error {
		pairs = append(pairs, models.PotentialPair{A: a, B: b, Distance: d.Distance})
		return nil
	})
	added, err := tx.Enqueue(pairs)
	if err != nil {
		return err
	}
	result.Pairs = len(pairs)
	if added > 0 {
		result.Changes = append(result.Changes, models.Change{Kind: models.ChangePotentialQueued, A: d.Hashes[0], Count: added})
	}
	return nil
}

// applySetKing crowns the first named file of every distinct group.
func applySetKing(tx *store.Tx, d models.Decision, result *models.Result) error {
	seen := map[int64]struct{}{}
	for _, hash := range d.Hashes {
		state, err := tx.FileState(hash)
		if err != nil {
			return err
		}
		if _, ok := seen[state.DuplicateGroupID]; ok && state.DuplicateGroupID != 0 {
			continue
		}
		seen[state.DuplicateGroupID] = struct{}{}
		if err := setKing(tx, hash, result); err != nil {
			return err
		}
	}
	return nil
}

func setKing(tx *store.Tx, hash string, result *models.Result) error {
	changed, err := tx.SetKing(hash)
	if err != nil || !changed {
		return err
	}
	state, err := tx.FileState(hash)
	if err != nil {
		return err
	}
	result.Changes = append(result.Changes, models.Change{Kind: models.ChangeKing, A: hash, GroupID: state.DuplicateGroupID})
	return nil
}

// applyPerEntity resolves every file to the entity the action works on and
// applies the primitive once per distinct entity.
func applyPerEntity(tx *store.Tx, d models.Decision, result *models.Result) error {
	targets, err := distinctEntities(tx, d.Action, d.Hashes)
	if err != nil {
		return err
	}

	for _, hash := range targets {
		var change models.Change
		switch d.Action {
		case models.ActionClearFalsePositives:
			n, err := tx.ClearFalsePositives(hash)
			if err != nil {
				return err
			}
			change = models.Change{Kind: models.ChangeFalsePositivesCleared, A: hash, Count: n}
		case models.ActionDissolveAlternateGroup:
			id, err := tx.DissolveAlternateGroup(hash)
			if err != nil {
				return err
			}
			change = models.Change{Kind: models.ChangeAlternateGroupDissolved, A: hash, GroupID: id}
		case models.ActionDissolveDuplicateGroup:
			id, err := tx.DissolveDuplicateGroup(hash)
			if err != nil {
				return err
			}
			change = models.Change{Kind: models.ChangeDuplicateGroupDissolved, A: hash, GroupID: id}
		case models.ActionRemoveFromAlternateGroup:
			id, err := tx.RemoveFromAlternateGroup(hash)
			if err != nil {
				return err
			}
			change = models.Change{Kind: models.ChangeLeftAlternateGroup, A: hash, GroupID: id}
		case models.ActionRemoveFromDuplicateGroup:
			removed, err := tx.RemoveFromDuplicateGroup(hash)
			if err != nil {
				return err
			}
			if removed {
				change = models.Change{Kind: models.ChangeLeftDuplicateGroup, A: hash, Count: 1}
			}
		case models.ActionRemovePotentials:
			n, err := tx.RemovePotentials(hash)
			if err != nil {
				return err
			}
			change = models.Change{Kind: models.ChangePotentialsRemoved, A: hash, Count: n}
		case models.ActionResetPotentialSearch:
			n, err := tx.ResetSearch(hash)
			if err != nil {
				return err
			}
			change = models.Change{Kind: models.ChangeSearchReset, A: hash, Count: n}
		default:
			return fmt.Errorf("%w: %s is not a per-entity action", ErrInvalidDecision, d.Action)
		}
		if change.GroupID != 0 || change.Count != 0 {
			result.Changes = append(result.Changes, change)
		}
	}
	return nil
}

// distinctEntities keeps the first file of every entity the action resolves
// to. Files that resolve to nothing are dropped.
func distinctEntities(tx *store.Tx, action models.Action, hashes []string) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		state, err := tx.FileState(hash)
		if err != nil {
			return nil, err
		}
		key := entityKey(action, state)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, hash)
	}
	return out, nil
}

func entityKey(action models.Action, state models.FileState) string {
	switch action {
	case models.ActionDissolveDuplicateGroup:
		if state.DuplicateGroupID == 0 {
			return ""
		}
		return fmt.Sprintf("d:%d", state.DuplicateGroupID)
	case models.ActionRemoveFromAlternateGroup:
		if state.AlternateGroupID == 0 {
			return ""
		}
		return fmt.Sprintf("d:%d", state.DuplicateGroupID)
	case models.ActionDissolveAlternateGroup, models.ActionClearFalsePositives:
		if state.AlternateGroupID == 0 {
			return ""
		}
		return fmt.Sprintf("a:%d", state.AlternateGroupID)
	case models.ActionRemovePotentials, models.ActionResetPotentialSearch:
		// Both work on the duplicate plus alternate closure.
		switch {
		case state.AlternateGroupID != 0:
			return fmt.Sprintf("a:%d", state.AlternateGroupID)
		case state.DuplicateGroupID != 0:
			return fmt.Sprintf("d:%d", state.DuplicateGroupID)
		}
	}
	return "f:" + state.Hash
}

// distinctGroups keeps the first file of every distinct duplicate group.
func distinctGroups(tx *store.Tx, hashes []string) ([]string, error) {
	seen := map[int64]struct{}{}
	out := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		state, err := tx.FileState(hash)
		if err != nil {
			return nil, err
		}
		if id := state.DuplicateGroupID; id != 0 {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, hash)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%w: files resolve to a single duplicate group", store.ErrInvalidRelationship)
	}
	return out, nil
}

// eachPair calls fn for every unordered pair, n*(n-1)/2 calls in total.
func eachPair(hashes []string, fn func(a, b string) error) error {
	for i := 0; i < len(hashes); i++ {
		for j := i + 1; j < len(hashes); j++ {
			if err := fn(hashes[i], hashes[j]); err != nil {
				return err
			}
		}
	}
	return nil
}
