package api

import "dupegraph/internal/models"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse reports the store schema version and record counts.
type InfoResponse struct {
	SchemaVersion      int `json:"schema_version"`
	Files              int `json:"files"`
	NeedsSearch        int `json:"needs_search"`
	DuplicateGroups    int `json:"duplicate_groups"`
	AlternateGroups    int `json:"alternate_groups"`
	FalsePositiveLinks int `json:"false_positive_links"`
	PotentialPairs     int `json:"potential_pairs"`
	RejectedPairs      int `json:"rejected_pairs"`
	Decisions          int `json:"decisions"`
}

// RegisterFilesRequest adds hashes to the file index.
type RegisterFilesRequest struct {
	Hashes []string `json:"hashes"`
}

// RegisterFilesResponse reports how many hashes were new.
type RegisterFilesResponse struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

// FileResponse is one file with its relationship state.
type FileResponse struct {
	models.File
	State          models.FileState       `json:"state"`
	DuplicateGroup models.DuplicateGroup  `json:"duplicate_group"`
	AlternateGroup *models.AlternateGroup `json:"alternate_group,omitempty"`
	Counts         models.RelationCounts  `json:"counts"`
	IsKing         bool                   `json:"is_king"`
}

// PendingSearchResponse lists files the similarity search still has to visit.
type PendingSearchResponse struct {
	Hashes []string `json:"hashes"`
}

// SearchCompleteRequest marks files as searched.
type SearchCompleteRequest struct {
	Hashes []string `json:"hashes"`
}

// SearchCompleteResponse reports how many flags were cleared.
type SearchCompleteResponse struct {
	Updated int `json:"updated"`
}

// DecisionRequest is one decision as sent by the GUI.
type DecisionRequest = models.Decision

// DecisionResponse is the outcome of a committed decision.
type DecisionResponse = models.Result

// EnqueueRequest carries pairs found by the similarity search.
type EnqueueRequest struct {
	Pairs []models.PotentialPair `json:"pairs"`
}

// EnqueueResponse reports how many pairs were new.
type EnqueueResponse struct {
	Added int `json:"added"`
}

// PairDecisionRequest resolves one queued pair.
type PairDecisionRequest struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Action string `json:"action"`
	Better string `json:"better,omitempty"`
}

// DecisionLogEntry is one audit record of a committed decision.
type DecisionLogEntry = models.DecisionLogEntry

// PotentialPair is a queued candidate pair.
type PotentialPair = models.PotentialPair
