// Package repair runs scheduled full recomputations of source aggregates.
// The incremental engine keeps totals exact on its own paths; the sweep
// covers drift from out-of-band data edits and the accepted bulk-status
// read/commit race.
package repair

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"khata/internal/ledger"
	"khata/internal/logger"
)

// sweepTimeout bounds one full sweep across all sources.
const sweepTimeout = 5 * time.Minute

// Sweeper periodically recomputes every source's totals from scratch.
type Sweeper struct {
	svc  ledger.Servicer
	cron *cron.Cron
}

// NewSweeper creates a sweeper over the given ledger service.
func NewSweeper(svc ledger.Servicer) *Sweeper {
	return &Sweeper{svc: svc, cron: cron.New()}
}

// Start schedules the sweep with a cron spec (e.g. "0 3 * * *") and starts
// the scheduler.
func (s *Sweeper) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	logger.Get().Infow("repair sweeper started", "schedule", spec)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep recomputes totals for every known source, logging any drift it
// repairs. Failures on one source do not stop the sweep.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	log := logger.Get()
	sources, err := s.svc.ListSources(ctx)
	if err != nil {
		log.Errorw("repair sweep: listing sources failed", "error", err)
		return
	}

	repaired := 0
	for _, before := range sources {
		after, err := s.svc.RecomputeSourceTotals(ctx, before.ID)
		if err != nil {
			log.Errorw("repair sweep: recompute failed", "source", before.ID, "error", err)
			continue
		}
		if after.Outstanding != before.Outstanding || after.TotalOutstanding != before.TotalOutstanding {
			repaired++
			log.Warnw("repair sweep: fixed drifted aggregates",
				"source", before.ID,
				"outstanding_before", before.Outstanding,
				"outstanding_after", after.Outstanding,
				"total_before", before.TotalOutstanding,
				"total_after", after.TotalOutstanding,
			)
		}
	}

	log.Infow("repair sweep finished", "sources", len(sources), "repaired", repaired)
}
