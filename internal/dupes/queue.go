package dupes

import (
	"context"
	"fmt"

	"dupegraph/internal/models"
)

const defaultQueueBatch = 20

// PairStore is the part of the relationship store the queue reads and feeds.
type PairStore interface {
	Enqueue(ctx context.Context, pairs []models.PotentialPair) (int, error)
	NextBatch(ctx context.Context, limit int) ([]models.PotentialPair, error)
}

// Queue holds candidate pairs from the similarity search until a reviewer
// decides them. Decisions are routed through the Processor.
type Queue struct {
	store        PairStore
	processor    *Processor
	metrics      *Metrics
	defaultBatch int
}

// NewQueue constructs a Queue. batch is the NextBatch size used when callers
// pass zero.
func NewQueue(st PairStore, processor *Processor, metrics *Metrics, batch int) *Queue {
	if batch <= 0 {
		batch = defaultQueueBatch
	}
	return &Queue{store: st, processor: processor, metrics: metrics, defaultBatch: batch}
}

// Enqueue adds pairs and returns how many were new. Pairs that are already
// decided are skipped silently.
func (q *Queue) Enqueue(ctx context.Context, pairs []models.PotentialPair) (int, error) {
	normalized := make([]models.PotentialPair, 0, len(pairs))
	for _, pair := range pairs {
		a, err := models.NormalizeHash(pair.A)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
		}
		b, err := models.NormalizeHash(pair.B)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
		}
		if pair.Distance < 0 {
			return 0, fmt.Errorf("%w: distance must be non-negative", ErrInvalidDecision)
		}
		normalized = append(normalized, models.PotentialPair{A: a, B: b, Distance: pair.Distance})
	}
	if len(normalized) == 0 {
		return 0, nil
	}

	added, err := q.store.Enqueue(ctx, normalized)
	if err != nil {
		return 0, err
	}
	q.metrics.observeEnqueue(added)
	return added, nil
}

// NextBatch returns up to n pairs for review without removing them.
func (q *Queue) NextBatch(ctx context.Context, n int) ([]models.PotentialPair, error) {
	if n <= 0 {
		n = q.defaultBatch
	}
	return q.store.NextBatch(ctx, n)
}

// RecordDecision resolves the pair a, b with a pair decision. better names
// the winner for ActionBetter and defaults to a.
func (q *Queue) RecordDecision(ctx context.Context, a, b string, action models.Action, better string) (models.Result, error) {
	parsed, err := models.ParseAction(string(action))
	if err != nil {
		return models.Result{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if !parsed.IsPairDecision() {
		return models.Result{}, fmt.Errorf("%w: %s cannot resolve a potential pair", ErrInvalidDecision, parsed)
	}
	decision := models.Decision{Action: parsed, Hashes: []string{a, b}}
	if parsed == models.ActionBetter {
		decision.Better = better
	}
	return q.processor.Apply(ctx, decision)
}

// RemoveAllPotentials drops every queued pair touching the closure of hash.
func (q *Queue) RemoveAllPotentials(ctx context.Context, hash string) (models.Result, error) {
	return q.processor.Apply(ctx, models.Decision{Action: models.ActionRemovePotentials, Hashes: []string{hash}})
}

// ResetSearchStatus flags the closure of hash needs-search again.
func (q *Queue) ResetSearchStatus(ctx context.Context, hash string) (models.Result, error) {
	return q.processor.Apply(ctx, models.Decision{Action: models.ActionResetPotentialSearch, Hashes: []string{hash}})
}
