package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	"github.com/everbloom-ai/everbloom/internal/services"
)

// Scheduler runs the periodic maintenance jobs that the per-message triggers
// do not cover: the nightly super-summary sweep picks up users whose chunk
// backlog crossed the threshold while the stream path was down, and the
// hourly profile sweep re-synthesizes profiles for users whose supers are
// newer than their last analysis.
type Scheduler struct {
	cron      *cron.Cron
	supers    services.SuperSummarizer
	profiles  services.ProfileSynthesizer
	summaries postgres.SummaryRepository
	log       *logrus.Logger
}

func New(
	supers services.SuperSummarizer,
	profiles services.ProfileSynthesizer,
	summaries postgres.SummaryRepository,
	log *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		supers:    supers,
		profiles:  profiles,
		summaries: summaries,
		log:       log,
	}
}

// Start registers the jobs and starts the cron loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("30 3 * * *", func() { s.runSuperSweep(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 * * * *", func() { s.runProfileSweep(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) runSuperSweep(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	start := time.Now()
	if err := s.supers.RunBatch(jobCtx); err != nil {
		s.log.WithError(err).Error("nightly super-summary sweep failed")
		return
	}
	s.log.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("nightly super-summary sweep done")
}

// runProfileSweep keeps long-idle profiles current. A failing user is logged
// and skipped so one bad profile cannot stall the rest of the sweep.
func (s *Scheduler) runProfileSweep(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	users, err := s.summaries.UsersWithFreshSupers(jobCtx)
	if err != nil {
		s.log.WithError(err).Error("hourly profile sweep: eligibility query failed")
		return
	}

	start := time.Now()
	failed := 0
	for _, userID := range users {
		if err := s.profiles.Run(jobCtx, userID); err != nil {
			failed++
			s.log.WithError(err).WithField("user_id", userID).Error("hourly profile sweep: user failed")
		}
	}
	s.log.WithFields(logrus.Fields{
		"users":       len(users),
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("hourly profile sweep done")
}

// Stop stops scheduling new runs and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
