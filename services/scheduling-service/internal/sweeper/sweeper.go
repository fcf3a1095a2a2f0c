// Package sweeper advances bookings whose time has passed: pending bookings that
// were never confirmed expire, confirmed bookings that have ended complete.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 1m"

type Source interface {
	DueForSweep(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
}

type Transitioner interface {
	Expire(ctx context.Context, tenantID, id string) (model.Booking, error)
	AutoComplete(ctx context.Context, tenantID, id string) (model.Booking, error)
}

type Sweeper struct {
	source    Source
	bookings  Transitioner
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

type Config struct {
	BatchSize int
}

func New(source Source, bookings Transitioner, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{source: source, bookings: bookings, logger: logger, batchSize: cfg.BatchSize, now: time.Now}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

type Result struct {
	Expired   int
	Completed int
	Failed    int
}

// Sweep processes every due booking. A booking that fails to transition is logged
// and left for the next run.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()
	for {
		due, err := s.source.DueForSweep(ctx, now, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("load due bookings: %w", err)
		}
		progressed := 0
		for _, b := range due {
			var (
				out model.Booking
				err error
			)
			switch b.Status {
			case model.StatusPending:
				out, err = s.bookings.Expire(ctx, b.TenantID, b.ID)
			case model.StatusConfirmed:
				out, err = s.bookings.AutoComplete(ctx, b.TenantID, b.ID)
			default:
				continue
			}
			if err != nil {
				res.Failed++
				s.logger.Error("sweep transition failed", "err", err, "tenant_id", b.TenantID, "booking_id", b.ID)
				continue
			}
			switch out.Status {
			case model.StatusCancelled:
				res.Expired++
				progressed++
			case model.StatusCompleted:
				res.Completed++
				progressed++
			}
		}
		if len(due) < s.batchSize || progressed == 0 {
			return res, nil
		}
	}
}

// Start runs Sweep on schedule until ctx is cancelled. Runs never overlap.
func (s *Sweeper) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		res, err := s.Sweep(ctx)
		if err != nil {
			s.logger.Error("sweep failed", "err", err)
			return
		}
		if res.Expired+res.Completed+res.Failed > 0 {
			s.logger.Info("sweep finished", "expired", res.Expired, "completed", res.Completed, "failed", res.Failed)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule sweeper %q: %w", schedule, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
