// Package reconcile merges batches of remote content into the local store.
//
// A merge runs in two explicit phases. The insert phase writes every row
// whose key is absent and leaves existing rows alone. The update phase then
// overwrites the content columns of exactly the rows the insert phase
// skipped. Relation tables are never written, so local interaction state
// (likes, saves, follows, views) survives any number of re-syncs. Each phase
// commits on its own; a failure or cancellation after the first phase keeps
// what it wrote.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/observability"
	"github.com/tbourn/feedcache/internal/repo"
)

// Outcome is what happened to one remote row.
type Outcome string

const (
	Inserted Outcome = "inserted"
	Updated  Outcome = "updated"
	// Orphaned rows reference a parent (author, post) missing locally.
	Orphaned Outcome = "orphaned"
	// Expired rows were already past their lifetime when fetched.
	Expired Outcome = "expired"
	// Conflicted rows clash with a different local row on a unique column
	// such as username or email. They are left as the store has them.
	Conflicted Outcome = "conflicted"
)

// Plan describes how rows of one entity kind are merged.
type Plan[T any] struct {
	// Kind names the entity in logs and metrics, e.g. "posts".
	Kind string
	// Key returns the primary key of a row.
	Key func(*T) string
	// Columns lists the content columns the update phase overwrites.
	Columns func(*T) []string
	// Admit, when set, inspects the batch before the insert phase and
	// returns the keys to drop with their reason. Dropped rows are not written.
	Admit func(ctx context.Context, db *gorm.DB, rows []T) (map[string]Outcome, error)
}

// Report summarizes a merge.
type Report struct {
	Kind     string
	Inserted []string
	Updated  []string
	Dropped  map[string]Outcome
}

// Touched returns the keys that were inserted or updated.
func (r Report) Touched() []string {
	out := make([]string, 0, len(r.Inserted)+len(r.Updated))
	out = append(out, r.Inserted...)
	return append(out, r.Updated...)
}

// Reconciler carries the store handle merges write to.
type Reconciler struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Log    zerolog.Logger
}

// New returns a Reconciler. broker may be nil.
func New(db *gorm.DB, broker *livequery.Broker, log zerolog.Logger) *Reconciler {
	return &Reconciler{DB: db, Broker: broker, Log: log}
}

// Merge applies rows to the store following plan. Rows sharing a key are
// collapsed to the last one.
func Merge[T any](ctx context.Context, r *Reconciler, plan Plan[T], rows []T) (rep Report, err error) {
	ctx, span := observability.Tracer("reconcile").Start(ctx, "reconcile.Merge")
	span.SetAttributes(attribute.String("reconcile.kind", plan.Kind), attribute.Int("reconcile.rows", len(rows)))
	defer func() { observability.EndSpan(span, err) }()

	rep = Report{Kind: plan.Kind, Dropped: map[string]Outcome{}}
	rows = collapse(rows, plan.Key)

	if plan.Admit != nil && len(rows) > 0 {
		dropped, aerr := plan.Admit(ctx, r.DB, rows)
		if aerr != nil {
			return rep, fmt.Errorf("reconcile %s: admit: %w", plan.Kind, aerr)
		}
		kept := rows[:0:0]
		for i := range rows {
			k := plan.Key(&rows[i])
			if why, ok := dropped[k]; ok {
				rep.Dropped[k] = why
				continue
			}
			kept = append(kept, rows[i])
		}
		rows = kept
	}

	var outcomes []repo.Outcome
	err = r.Broker.Transaction(ctx, r.DB, func(ctx context.Context, tx *gorm.DB) error {
		var ierr error
		outcomes, ierr = repo.InsertIgnore(ctx, tx, rows, plan.Key)
		return ierr
	})
	if err != nil {
		return rep, fmt.Errorf("reconcile %s: insert phase: %w", plan.Kind, err)
	}

	var existing []T
	for i, o := range outcomes {
		k := plan.Key(&rows[i])
		switch o {
		case repo.Inserted:
			rep.Inserted = append(rep.Inserted, k)
		case repo.Conflicted:
			rep.Dropped[k] = Conflicted
		default:
			existing = append(existing, rows[i])
		}
	}
	r.Log.Debug().Str("kind", plan.Kind).Int("inserted", len(rep.Inserted)).Int("existing", len(existing)).Msg("insert phase done")

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("reconcile %s: %w", plan.Kind, err)
	}

	if len(existing) > 0 {
		var conflicts []int
		err = r.Broker.Transaction(ctx, r.DB, func(ctx context.Context, tx *gorm.DB) error {
			var uerr error
			_, conflicts, uerr = repo.UpdateContent(ctx, tx, existing, plan.Columns)
			return uerr
		})
		if err != nil {
			return rep, fmt.Errorf("reconcile %s: update phase: %w", plan.Kind, err)
		}
		clashed := make(map[int]bool, len(conflicts))
		for _, i := range conflicts {
			clashed[i] = true
			rep.Dropped[plan.Key(&existing[i])] = Conflicted
		}
		for i := range existing {
			if !clashed[i] {
				rep.Updated = append(rep.Updated, plan.Key(&existing[i]))
			}
		}
	}

	observability.ReconcileRows.WithLabelValues(plan.Kind, string(Inserted)).Add(float64(len(rep.Inserted)))
	observability.ReconcileRows.WithLabelValues(plan.Kind, string(Updated)).Add(float64(len(rep.Updated)))
	for _, why := range rep.Dropped {
		observability.ReconcileRows.WithLabelValues(plan.Kind, string(why)).Inc()
	}
	for k, why := range rep.Dropped {
		r.Log.Warn().Str("kind", plan.Kind).Str("id", k).Str("reason", string(why)).Msg("remote row skipped")
	}
	return rep, nil
}

// collapse keeps one row per key, the last one seen, in order of first
// appearance.
func collapse[T any](rows []T, key func(*T) string) []T {
	idx := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for i := range rows {
		k := key(&rows[i])
		if j, ok := idx[k]; ok {
			out[j] = rows[i]
			continue
		}
		idx[k] = len(out)
		out = append(out, rows[i])
	}
	return out
}
