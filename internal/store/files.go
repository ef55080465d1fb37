package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"dupegraph/internal/models"
)

// RegisterFiles adds hashes to the file index. New files start needs-search;
// known files are left untouched. It returns the number of new files.
func (t *Tx) RegisterFiles(hashes []string) (int, error) {
	added := 0
	for _, hash := range hashes {
		res, err := t.exec("INSERT OR IGNORE INTO files (hash, needs_search, added_at) VALUES (?, 1, ?)", hash, formatTime(t.now))
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}
	return added, nil
}

// GetFile returns one file record.
func (t *Tx) GetFile(hash string) (models.File, error) {
	var file models.File
	var needsSearch int
	var addedAt string
	err := t.queryRow("SELECT hash, needs_search, added_at FROM files WHERE hash = ?", hash).Scan(&file.Hash, &needsSearch, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.File{}, fmt.Errorf("%w: file %s", ErrNotFound, hash)
	}
	if err != nil {
		return models.File{}, err
	}
	file.NeedsSearch = needsSearch != 0
	file.AddedAt, err = parseTime(addedAt)
	if err != nil {
		return models.File{}, err
	}
	return file, nil
}

// FilesNeedingSearch lists up to limit files flagged for a similarity search,
// oldest first.
func (t *Tx) FilesNeedingSearch(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.QueryContext(t.ctx, "SELECT hash FROM files WHERE needs_search = 1 ORDER BY hash_id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := []string{}
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// MarkSearched clears the needs-search flag of the given files.
func (t *Tx) MarkSearched(hashes []string) (int, error) {
	ids, err := t.fileIDs(hashes)
	if err != nil {
		return 0, err
	}
	n, err := t.execInChunks("UPDATE files SET needs_search = 0 WHERE needs_search = 1 AND hash_id IN (%s)", 1, ids)
	return int(n), err
}

// NeedsSearch returns the sorted hashes flagged by this transaction.
func (t *Tx) NeedsSearch() ([]string, error) {
	ids := make([]int64, 0, len(t.flagged))
	for id := range t.flagged {
		ids = append(ids, id)
	}
	hashes, err := t.hashesOf(ids)
	if err != nil {
		return nil, err
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (t *Tx) flag(ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.execInChunks("UPDATE files SET needs_search = 1 WHERE hash_id IN (%s)", 1, ids); err != nil {
		return err
	}
	for _, id := range ids {
		t.flagged[id] = struct{}{}
	}
	return nil
}

func (t *Tx) fileID(hash string) (int64, error) {
	var id int64
	err := t.queryRow("SELECT hash_id FROM files WHERE hash = ?", hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: file %s", ErrNotFound, hash)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (t *Tx) fileIDs(hashes []string) ([]int64, error) {
	ids := make([]int64, 0, len(hashes))
	for _, hash := range hashes {
		id, err := t.fileID(hash)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// hashesOf maps ids to hashes, keeping the order of ids.
func (t *Tx) hashesOf(ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	byID := make(map[int64]string, len(ids))
	err := inChunks(uniqueIDs(ids), func(chunk []int64) error {
		rows, err := t.tx.QueryContext(t.ctx, "SELECT hash_id, hash FROM files WHERE hash_id IN ("+placeholders(len(chunk))+")", idArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var hash string
			if err := rows.Scan(&id, &hash); err != nil {
				return err
			}
			byID[id] = hash
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		hash, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: dangling file id %d", ErrCorrupt, id)
		}
		out[i] = hash
	}
	return out, nil
}

// RegisterFiles adds hashes to the file index in its own transaction.
func (s *Store) RegisterFiles(ctx context.Context, hashes []string) (int, error) {
	var added int
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		added, err = tx.RegisterFiles(hashes)
		return err
	})
	return added, err
}

// GetFile returns one file record.
func (s *Store) GetFile(ctx context.Context, hash string) (models.File, error) {
	var file models.File
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		file, err = tx.GetFile(hash)
		return err
	})
	return file, err
}

// FilesNeedingSearch lists files flagged for a similarity search.
func (s *Store) FilesNeedingSearch(ctx context.Context, limit int) ([]string, error) {
	var hashes []string
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		hashes, err = tx.FilesNeedingSearch(limit)
		return err
	})
	return hashes, err
}

// MarkSearched clears the needs-search flag of the given files.
func (s *Store) MarkSearched(ctx context.Context, hashes []string) (int, error) {
	var n int
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.MarkSearched(hashes)
		return err
	})
	return n, err
}
