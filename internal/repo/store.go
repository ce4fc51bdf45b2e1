// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the generic Entity Store primitives:
// point lookup, key probes, and the two batch calls the reconciler is built
// on (insert-ignore with per-row outcomes, field-level content update).
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction or against the pool.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a unique key (username, email) is already taken.
var ErrDuplicate = errors.New("duplicate")

// insertChunk bounds how many rows go into one INSERT statement.
const insertChunk = 200

// Outcome is the per-row result of InsertIgnore.
type Outcome int

const (
	// Inserted means the row did not exist and was written.
	Inserted Outcome = iota + 1
	// Skipped means a row with the same key already existed (or appeared
	// earlier in the same batch); nothing was written.
	Skipped
	// Conflicted means the key was free but another unique column
	// (username, email) clashed with an existing row; nothing was written.
	Conflicted
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Skipped:
		return "skipped"
	case Conflicted:
		return "conflicted"
	default:
		return "unknown"
	}
}

// Get loads the row of T whose primary key is id, or ErrNotFound.
func Get[T any](ctx context.Context, db *gorm.DB, id string) (*T, error) {
	var v T
	err := db.WithContext(ctx).Where("id = ?", id).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ExistingIDs returns the subset of ids that have a row in T's table.
func ExistingIDs[T any](ctx context.Context, db *gorm.DB, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for start := 0; start < len(ids); start += insertChunk {
		end := min(start+insertChunk, len(ids))
		var found []string
		if err := db.WithContext(ctx).Model(new(T)).Where("id IN ?", ids[start:end]).Pluck("id", &found).Error; err != nil {
			return nil, err
		}
		for _, id := range found {
			out[id] = true
		}
	}
	return out, nil
}

// InsertIgnore inserts every row whose key is not already present and
// reports, index for index, whether each row was Inserted, Skipped or
// Conflicted. Existing rows are never modified. Each chunk costs a key probe,
// one batch INSERT ... ON CONFLICT DO NOTHING and a second probe that finds
// the fresh rows a clash on another unique column kept out.
func InsertIgnore[T any](ctx context.Context, db *gorm.DB, rows []T, key func(*T) string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(rows))
	seen := make(map[string]bool, len(rows))
	q := db.WithContext(ctx)

	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))

		keys := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			keys = append(keys, key(&rows[i]))
		}
		existing, err := ExistingIDs[T](ctx, q, keys)
		if err != nil {
			return nil, err
		}

		fresh := make([]T, 0, end-start)
		freshIdx := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			k := key(&rows[i])
			if existing[k] || seen[k] {
				outcomes[i] = Skipped
				continue
			}
			seen[k] = true
			fresh = append(fresh, rows[i])
			freshIdx = append(freshIdx, i)
		}
		if len(fresh) == 0 {
			continue
		}
		if err := q.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return nil, err
		}

		freshKeys := make([]string, len(freshIdx))
		for j, i := range freshIdx {
			freshKeys[j] = key(&rows[i])
		}
		written, err := ExistingIDs[T](ctx, q, freshKeys)
		if err != nil {
			return nil, err
		}
		for j, i := range freshIdx {
			if written[freshKeys[j]] {
				outcomes[i] = Inserted
			} else {
				outcomes[i] = Conflicted
			}
		}
	}
	return outcomes, nil
}

// UpdateContent overwrites, row by row, exactly the columns returned by
// columns. It never inserts and never touches relation tables. Rows that no
// longer exist are ignored. Timestamps are only written when selected, so
// applying the same rows twice is a no-op.
//
// A row whose new values clash with a unique column of another row is
// retried after the rest of the batch, so renames that free a value for a
// later row go through. Rows that still clash are left unchanged and their
// indexes returned in conflicts. matched counts the rows updated.
func UpdateContent[T any](ctx context.Context, db *gorm.DB, rows []T, columns func(*T) []string) (matched int64, conflicts []int, err error) {
	q := db.WithContext(ctx)
	pending := make([]int, 0, len(rows))
	for i := range rows {
		if len(columns(&rows[i])) > 0 {
			pending = append(pending, i)
		}
	}
	for len(pending) > 0 {
		var retry []int
		for _, i := range pending {
			res := q.Model(&rows[i]).Omit(clause.Associations).Select(columns(&rows[i])).UpdateColumns(&rows[i])
			if isUniqueViolation(res.Error) {
				retry = append(retry, i)
				continue
			}
			if res.Error != nil {
				return matched, nil, res.Error
			}
			matched += res.RowsAffected
		}
		if len(retry) == len(pending) {
			return matched, retry, nil
		}
		pending = retry
	}
	return matched, nil, nil
}

// Delete removes the row of T with the given id. It reports whether a row
// was removed. Dependent rows go with it through the FK cascades.
func Delete[T any](ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	return res.RowsAffected > 0, res.Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
