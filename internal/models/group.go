package models

import "time"

// DuplicateGroup is a set of files holding the same content with one King.
//
// A file that belongs to no group is reported as a synthetic singleton: ID is
// zero unless a one-member record anchors an alternate group membership, and
// Singleton is true either way.
type DuplicateGroup struct {
	ID               int64    `json:"id"`
	King             string   `json:"king"`
	Members          []string `json:"members"`
	AlternateGroupID int64    `json:"alternate_group_id,omitempty"`
	Version          int64    `json:"version"`
	Singleton        bool     `json:"singleton"`
}

// AlternateGroup is a set of related-but-distinct duplicate groups.
type AlternateGroup struct {
	ID                int64    `json:"id"`
	DuplicateGroupIDs []int64  `json:"duplicate_group_ids"`
	Files             []string `json:"files"`
	FalsePositiveIDs  []int64  `json:"false_positive_ids"`
	Version           int64    `json:"version"`
}

// FileState is the relationship state of one file as a caller last observed
// it. Zero ids mean "not in a group". Versions are only compared when set, so
// a state doubles as a versioned handle to the file's groups.
type FileState struct {
	Hash                  string `json:"hash" yaml:"hash"`
	DuplicateGroupID      int64  `json:"duplicate_group_id" yaml:"duplicate_group_id"`
	DuplicateGroupVersion int64  `json:"duplicate_group_version,omitempty" yaml:"duplicate_group_version,omitempty"`
	AlternateGroupID      int64  `json:"alternate_group_id" yaml:"alternate_group_id"`
	AlternateGroupVersion int64  `json:"alternate_group_version,omitempty" yaml:"alternate_group_version,omitempty"`
}

// RelationCounts summarizes a file's relationships for presentation.
type RelationCounts struct {
	Duplicate     int `json:"duplicate"`
	Alternate     int `json:"alternate"`
	FalsePositive int `json:"false_positive"`
	Potential     int `json:"potential"`
}

// PotentialPair is a candidate pair awaiting a decision.
type PotentialPair struct {
	A        string    `json:"a"`
	B        string    `json:"b"`
	Distance int       `json:"distance"`
	QueuedAt time.Time `json:"queued_at,omitempty"`
}

// FalsePositiveLink marks two alternate groups as unrelated.
type FalsePositiveLink struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// ExportRecord is one line of the relationship graph export. Exactly one of
// the payload fields is set, matching Type.
type ExportRecord struct {
	Type           string             `json:"type"`
	DuplicateGroup *DuplicateGroup    `json:"duplicate_group,omitempty"`
	AlternateGroup *AlternateGroup    `json:"alternate_group,omitempty"`
	FalsePositive  *FalsePositiveLink `json:"false_positive,omitempty"`
	Potential      *PotentialPair     `json:"potential,omitempty"`
}

// Export record types.
const (
	ExportDuplicateGroup = "duplicate_group"
	ExportAlternateGroup = "alternate_group"
	ExportFalsePositive  = "false_positive"
	ExportPotential      = "potential"
)
