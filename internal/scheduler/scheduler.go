package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/baseline"
	"fraudwallet-api/internal/engine"
)

// Scheduler runs the background jobs: the pending-transaction sweeper that
// blocks unconfirmed holds past their deadline, and the nightly full
// baseline recompute.
type Scheduler struct {
	cron      *cron.Cron
	engine    *engine.WalletEngine
	baselines *baseline.Tracker
	logger    *logrus.Entry

	sweepSpec     string
	recomputeSpec string
}

func New(eng *engine.WalletEngine, baselines *baseline.Tracker, sweepSpec, recomputeSpec string) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		engine:        eng,
		baselines:     baselines,
		logger:        logrus.WithField("component", "scheduler"),
		sweepSpec:     sweepSpec,
		recomputeSpec: recomputeSpec,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.sweepSpec, s.sweepPendingTimeouts); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.recomputeSpec, s.recomputeBaselines); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"sweep":     s.sweepSpec,
		"recompute": s.recomputeSpec,
	}).Info("Scheduler started")
	return nil
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) sweepPendingTimeouts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	blocked, err := s.engine.SweepPendingTimeouts(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Pending-timeout sweep failed")
		return
	}
	if blocked > 0 {
		s.logger.WithField("blocked", blocked).Info("Blocked expired pending transactions")
	}
}

func (s *Scheduler) recomputeBaselines() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	updated, err := s.baselines.RecomputeAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Baseline recompute failed")
		return
	}
	s.logger.WithField("accounts", updated).Info("Recomputed behavioral baselines")
}
