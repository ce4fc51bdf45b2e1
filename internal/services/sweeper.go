package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/observability"
	"github.com/tbourn/feedcache/internal/repo"
)

// Sweeper deletes expired stories. It runs lazily before a story refresh,
// never on a timer.
type Sweeper struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Log    zerolog.Logger
}

// SweepResult counts the rows a sweep removed.
type SweepResult struct {
	Views   int64
	Stories int64
}

// Sweep removes the view records of stories expiring at or before now, then
// the stories themselves, in one transaction.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	tr := otel.Tracer("services/Sweeper")
	ctx, span := tr.Start(ctx, "Sweep", trace.WithAttributes(attribute.String("now", now.UTC().Format(time.RFC3339Nano))))
	defer span.End()

	var res SweepResult
	err := s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		if res.Views, err = repo.DeleteExpiredStoryViews(ctx, tx, now); err != nil {
			return err
		}
		res.Stories, err = repo.DeleteExpiredStories(ctx, tx, now)
		return err
	})
	if err != nil {
		s.Log.Error().Err(err).Msg("story sweep failed")
		return SweepResult{}, classify(err, "sweep")
	}

	observability.SweepDeleted.WithLabelValues(repo.TableStoryViews).Add(float64(res.Views))
	observability.SweepDeleted.WithLabelValues(repo.TableStories).Add(float64(res.Stories))
	if res.Stories > 0 || res.Views > 0 {
		s.Log.Debug().Int64("stories", res.Stories).Int64("views", res.Views).Msg("expired stories swept")
	}
	return res, nil
}
