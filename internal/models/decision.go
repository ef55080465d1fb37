package models

import (
	"fmt"
	"strings"
	"time"
)

// Action is the closed set of decisions the processor understands.
type Action string

const (
	ActionBetter                   Action = "better"
	ActionSameQuality              Action = "same_quality"
	ActionAlternate                Action = "alternate"
	ActionFalsePositive            Action = "false_positive"
	ActionReject                   Action = "reject"
	ActionPotential                Action = "potential"
	ActionSetKing                  Action = "set_king"
	ActionClearFalsePositives      Action = "clear_false_positives"
	ActionDissolveAlternateGroup   Action = "dissolve_alternate_group"
	ActionDissolveDuplicateGroup   Action = "dissolve_duplicate_group"
	ActionRemoveFromAlternateGroup Action = "remove_from_alternate_group"
	ActionRemoveFromDuplicateGroup Action = "remove_from_duplicate_group"
	ActionRemovePotentials         Action = "remove_potentials"
	ActionResetPotentialSearch     Action = "reset_potential_search"
)

var actionAliases = map[string]Action{
	"duplicate":  ActionBetter,
	"same":       ActionSameQuality,
	"alternates": ActionAlternate,
	"king":       ActionSetKing,
}

var validActions = map[Action]struct{}{
	ActionBetter:                   {},
	ActionSameQuality:              {},
	ActionAlternate:                {},
	ActionFalsePositive:            {},
	ActionReject:                   {},
	ActionPotential:                {},
	ActionSetKing:                  {},
	ActionClearFalsePositives:      {},
	ActionDissolveAlternateGroup:   {},
	ActionDissolveDuplicateGroup:   {},
	ActionRemoveFromAlternateGroup: {},
	ActionRemoveFromDuplicateGroup: {},
	ActionRemovePotentials:         {},
	ActionResetPotentialSearch:     {},
}

// Actions the GUI must confirm before calling; they cannot be undone from the
// store's point of view.
var destructiveActions = map[Action]struct{}{
	ActionClearFalsePositives:      {},
	ActionDissolveAlternateGroup:   {},
	ActionDissolveDuplicateGroup:   {},
	ActionRemoveFromAlternateGroup: {},
	ActionRemoveFromDuplicateGroup: {},
	ActionRemovePotentials:         {},
}

// Actions a reviewer may record against a queued potential pair.
var pairDecisions = map[Action]struct{}{
	ActionBetter:        {},
	ActionSameQuality:   {},
	ActionAlternate:     {},
	ActionFalsePositive: {},
	ActionReject:        {},
}

// ParseAction normalizes an action name, accepting a few CLI aliases.
func ParseAction(raw string) (Action, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "-", "_")
	if value == "" {
		return "", fmt.Errorf("action is required")
	}
	if alias, ok := actionAliases[value]; ok {
		return alias, nil
	}
	action := Action(value)
	if _, ok := validActions[action]; !ok {
		return "", fmt.Errorf("invalid action: %s", raw)
	}
	return action, nil
}

// IsDestructive reports whether the action dissolves or removes relationships.
func (a Action) IsDestructive() bool {
	_, ok := destructiveActions[a]
	return ok
}

// IsPairDecision reports whether the action may resolve a potential pair.
func (a Action) IsPairDecision() bool {
	_, ok := pairDecisions[a]
	return ok
}

// MinFiles is the smallest number of input files the action accepts.
func (a Action) MinFiles() int {
	switch a {
	case ActionBetter, ActionSameQuality, ActionAlternate, ActionFalsePositive, ActionReject, ActionPotential:
		return 2
	default:
		return 1
	}
}

// Decision is one request to the duplicate action processor.
type Decision struct {
	Action Action   `json:"action" yaml:"action"`
	Hashes []string `json:"hashes" yaml:"hashes"`
	// Better names the winning file for ActionBetter; defaults to Hashes[0].
	Better string `json:"better,omitempty" yaml:"better,omitempty"`
	// Distance is recorded on pairs queued by ActionPotential.
	Distance int `json:"distance,omitempty" yaml:"distance,omitempty"`
	// Expect, when set, must match the current store state or the whole
	// decision is rejected as a conflict.
	Expect []FileState `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// ChangeKind names one relationship mutation.
type ChangeKind string

const (
	ChangeDuplicate               ChangeKind = "duplicate"
	ChangeKing                    ChangeKind = "king"
	ChangeAlternate               ChangeKind = "alternate"
	ChangeFalsePositive           ChangeKind = "false_positive"
	ChangeReject                  ChangeKind = "reject"
	ChangePotentialQueued         ChangeKind = "potential_queued"
	ChangePotentialsRemoved       ChangeKind = "potentials_removed"
	ChangeSearchReset             ChangeKind = "search_reset"
	ChangeFalsePositivesCleared   ChangeKind = "false_positives_cleared"
	ChangeAlternateGroupDissolved ChangeKind = "alternate_group_dissolved"
	ChangeDuplicateGroupDissolved ChangeKind = "duplicate_group_dissolved"
	ChangeLeftAlternateGroup      ChangeKind = "left_alternate_group"
	ChangeLeftDuplicateGroup      ChangeKind = "left_duplicate_group"
)

// Change is one applied relationship mutation. A and B are file hashes; for
// group-level changes A is the file the group was resolved from.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	A       string     `json:"a"`
	B       string     `json:"b,omitempty"`
	GroupID int64      `json:"group_id,omitempty"`
	Count   int        `json:"count,omitempty"`
}

// Result is the observable outcome of one committed decision.
type Result struct {
	DecisionID  string   `json:"decision_id"`
	Action      Action   `json:"action"`
	Pairs       int      `json:"pairs"`
	Changes     []Change `json:"changes"`
	NeedsSearch []string `json:"needs_search"`
}

// DecisionLogEntry is the audit record of a committed decision.
type DecisionLogEntry struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Hashes      []string  `json:"hashes"`
	Changes     int       `json:"changes"`
	NeedsSearch int       `json:"needs_search"`
	CreatedAt   time.Time `json:"created_at"`
}
