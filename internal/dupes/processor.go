package dupes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"dupegraph/internal/models"
	"dupegraph/internal/store"
)

const (
	defaultMaxBatchFiles     = 1000
	defaultLargeBatchWarning = 100
)

// Updater runs a callback inside one write transaction.
type Updater interface {
	Update(ctx context.Context, fn func(*store.Tx) error) error
}

// Options tunes a Processor. Zero values select defaults.
type Options struct {
	MaxBatchFiles     int
	LargeBatchWarning int
	Logger            *slog.Logger
	Metrics           *Metrics
	Now               func() time.Time
	NewID             func() string
}

// Processor turns decisions into relationship store mutations. Each call to
// Apply runs in exactly one store transaction.
type Processor struct {
	store Updater
	opts  Options

	mu          sync.Mutex
	nextSub     int
	subscribers map[int]func(models.Result)
}

// NewProcessor constructs a Processor over st.
func NewProcessor(st Updater, opts Options) *Processor {
	if opts.MaxBatchFiles <= 0 {
		opts.MaxBatchFiles = defaultMaxBatchFiles
	}
	if opts.LargeBatchWarning <= 0 {
		opts.LargeBatchWarning = defaultLargeBatchWarning
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Processor{store: st, opts: opts, subscribers: map[int]func(models.Result){}}
}

// Subscribe registers fn to be called synchronously after every committed
// decision. The returned func removes the subscription.
func (p *Processor) Subscribe(fn func(models.Result)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// Apply validates d, applies it atomically and returns what changed.
func (p *Processor) Apply(ctx context.Context, d models.Decision) (models.Result, error) {
	decision, err := p.normalize(d)
	if err != nil {
		p.opts.Metrics.observeDecision(decision.Action, len(d.Hashes), models.Result{}, err)
		return models.Result{}, err
	}
	if len(decision.Hashes) > p.opts.LargeBatchWarning {
		p.log().Warn("large duplicate batch", "action", decision.Action, "files", len(decision.Hashes))
	}

	var result models.Result
	err = p.store.Update(ctx, func(tx *store.Tx) error {
		result = models.Result{
			DecisionID: p.opts.NewID(),
			Action:     decision.Action,
			Changes:    []models.Change{},
		}
		if err := tx.CheckExpect(decision.Expect); err != nil {
			return err
		}
		if err := dispatch(tx, decision, &result); err != nil {
			return err
		}
		needsSearch, err := tx.NeedsSearch()
		if err != nil {
			return err
		}
		result.NeedsSearch = needsSearch
		return tx.AppendDecision(models.DecisionLogEntry{
			ID:          result.DecisionID,
			Action:      decision.Action,
			Hashes:      decision.Hashes,
			Changes:     len(result.Changes),
			NeedsSearch: len(needsSearch),
			CreatedAt:   p.opts.Now(),
		})
	})
	p.opts.Metrics.observeDecision(decision.Action, len(decision.Hashes), result, err)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			p.log().Error("relationship store corrupt", "action", decision.Action, "error", err)
		}
		return models.Result{}, err
	}

	p.log().Debug("decision applied",
		"id", result.DecisionID,
		"action", result.Action,
		"pairs", result.Pairs,
		"changes", len(result.Changes),
		"needs_search", len(result.NeedsSearch),
	)
	p.notify(result)
	return result, nil
}

func (p *Processor) normalize(d models.Decision) (models.Decision, error) {
	action, err := models.ParseAction(string(d.Action))
	if err != nil {
		return models.Decision{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	d.Action = action

	hashes, err := models.NormalizeHashes(d.Hashes)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if len(hashes) < action.MinFiles() {
		return d, fmt.Errorf("%w: %s needs at least %d distinct files", ErrInvalidDecision, action, action.MinFiles())
	}
	if len(hashes) > p.opts.MaxBatchFiles {
		return d, fmt.Errorf("%w: %d files exceeds the batch limit of %d", ErrInvalidDecision, len(hashes), p.opts.MaxBatchFiles)
	}
	d.Hashes = hashes

	if action == models.ActionBetter {
		if d.Better == "" {
			d.Better = hashes[0]
		}
		better, err := models.NormalizeHash(d.Better)
		if err != nil {
			return d, fmt.Errorf("%w: better: %v", ErrInvalidDecision, err)
		}
		if !slices.Contains(hashes, better) {
			return d, fmt.Errorf("%w: better file %s is not part of the decision", ErrInvalidDecision, better)
		}
		d.Better = better
	}
	if d.Distance < 0 {
		return d, fmt.Errorf("%w: distance must be non-negative", ErrInvalidDecision)
	}

	expect := make([]models.FileState, len(d.Expect))
	for i, state := range d.Expect {
		hash, err := models.NormalizeHash(state.Hash)
		if err != nil {
			return d, fmt.Errorf("%w: expect: %v", ErrInvalidDecision, err)
		}
		state.Hash = hash
		expect[i] = state
	}
	d.Expect = expect
	return d, nil
}

func dispatch(tx *store.Tx, d models.Decision, result *models.Result) error {
	var err error
	switch d.Action {
	case models.ActionBetter:
		err = applyBetter(tx, d, result)
	case models.ActionSameQuality:
		err = applySameQuality(tx, d, result)
	case models.ActionAlternate:
		err = applyAlternate(tx, d, result)
	case models.ActionFalsePositive:
		err = applyFalsePositive(tx, d, result)
	case models.ActionReject:
		err = applyReject(tx, d, result)
	case models.ActionPotential:
		err = applyPotential(tx, d, result)
	case models.ActionSetKing:
		err = applySetKing(tx, d, result)
	case models.ActionClearFalsePositives,
		models.ActionDissolveAlternateGroup,
		models.ActionDissolveDuplicateGroup,
		models.ActionRemoveFromAlternateGroup,
		models.ActionRemoveFromDuplicateGroup,
		models.ActionRemovePotentials,
		models.ActionResetPotentialSearch:
		err = applyPerEntity(tx, d, result)
	default:
		err = fmt.Errorf("%w: unsupported action %s", ErrInvalidDecision, d.Action)
	}
	if err != nil {
		return err
	}

	// A single reviewed pair always leaves the queue, even when the
	// relationship already held.
	if d.Action.IsPairDecision() && len(d.Hashes) == 2 {
		if _, err := tx.DequeuePair(d.Hashes[0], d.Hashes[1]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) notify(result models.Result) {
	p.mu.Lock()
	subscribers := make([]func(models.Result), 0, len(p.subscribers))
	for id := 0; id < p.nextSub; id++ {
		if fn, ok := p.subscribers[id]; ok {
			subscribers = append(subscribers, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range subscribers {
		fn(result)
	}
}

func (p *Processor) log() *slog.Logger {
	if p.opts.Logger != nil {
		return p.opts.Logger
	}
	return slog.Default()
}
