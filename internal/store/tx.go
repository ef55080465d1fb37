package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// sqlChunkSize bounds the number of bound variables per IN list.
const sqlChunkSize = 500

// Tx is one relationship transaction. Every primitive that changes a file's
// relationships flags it needs-search; the flagged set is reported by
// NeedsSearch once the caller is done.
type Tx struct {
	ctx     context.Context
	tx      *sql.Tx
	now     time.Time
	flagged map[int64]struct{}
}

func newTx(ctx context.Context, tx *sql.Tx) *Tx {
	return &Tx{
		ctx:     ctx,
		tx:      tx,
		now:     time.Now().UTC(),
		flagged: map[int64]struct{}{},
	}
}

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *Tx) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

func (t *Tx) queryIDs(query string, args ...any) ([]int64, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *Tx) count(query string, args ...any) (int, error) {
	var n int
	if err := t.queryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// execInChunks runs query once per chunk of ids. The query must contain one
// %s verb per IN list; each list receives the same chunk.
func (t *Tx) execInChunks(query string, lists int, ids []int64) (int64, error) {
	var total int64
	err := inChunks(ids, func(chunk []int64) error {
		marks := make([]any, lists)
		args := make([]any, 0, len(chunk)*lists)
		for i := range marks {
			marks[i] = placeholders(len(chunk))
			args = append(args, idArgs(chunk)...)
		}
		res, err := t.exec(fmt.Sprintf(query, marks...), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}

func inChunks(ids []int64, fn func([]int64) error) error {
	for start := 0; start < len(ids); start += sqlChunkSize {
		end := start + sqlChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", count), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func orderPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
