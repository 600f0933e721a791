package scheduler

import (
	"context"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/config"
	"github.com/mirrorhq/opportunity-engine/internal/detector"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Engine is the part of the detection service the scheduler drives
type Engine interface {
	RunWatchlist(ctx context.Context) error
	Sweep(ctx context.Context, now time.Time) (*detector.SweepResult, error)
}

// Purger drops expired cache entries
type Purger interface {
	PurgeExpired() int
}

// Service handles scheduling of detection tasks
type Service struct {
	config  *config.Config
	engine  Engine
	purgers []Purger
	locker  Locker
	cron    *cron.Cron
	now     func() time.Time
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, engine Engine, purgers ...Purger) *Service {
	return &Service{
		config:  cfg,
		engine:  engine,
		purgers: purgers,
		cron:    cron.New(cron.WithSeconds()),
		now:     time.Now,
	}
}

// WithLocker guards every job with a lock shared between replicas
func (s *Service) WithLocker(locker Locker) *Service {
	s.locker = locker
	return s
}

// Start registers the detection, sweep and cache purge jobs and starts the cron
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.DetectionSchedule, s.runDetection)
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(s.config.SweepSchedule, func() {
		s.runSweep()
		s.purgeCaches()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with detection '%s' and sweep '%s'", s.config.DetectionSchedule, s.config.SweepSchedule)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

func (s *Service) runDetection() {
	timeout := s.watchlistTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	release, ok := s.lock(ctx, "detection", timeout)
	if !ok {
		return
	}
	defer release()

	logrus.Info("Starting scheduled watchlist detection")
	if err := s.engine.RunWatchlist(ctx); err != nil {
		logrus.Errorf("Scheduled detection run failed: %v", err)
	}
}

// watchlistTimeout allows every brand its full detection window
func (s *Service) watchlistTimeout() time.Duration {
	brands := len(s.config.Watchlist)
	if brands == 0 {
		brands = 1
	}
	return s.config.DetectionTimeout * time.Duration(brands+1)
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	release, ok := s.lock(ctx, "sweep", time.Minute)
	if !ok {
		return
	}
	defer release()

	if _, err := s.engine.Sweep(ctx, s.now().UTC()); err != nil {
		logrus.Errorf("Scheduled sweep failed: %v", err)
	}
}

// lock reports whether this replica should run job. Without a locker every
// replica runs it.
func (s *Service) lock(ctx context.Context, job string, ttl time.Duration) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}

	release, ok, err := s.locker.Acquire(ctx, job, ttl)
	if err != nil {
		logrus.Errorf("Skipping %s run: %v", job, err)
		return nil, false
	}
	if !ok {
		logrus.Debugf("Skipping %s run, another replica holds the lock", job)
		return nil, false
	}
	return release, true
}

func (s *Service) purgeCaches() {
	purged := 0
	for _, p := range s.purgers {
		purged += p.PurgeExpired()
	}
	if purged > 0 {
		logrus.Debugf("Purged %d expired cache entries", purged)
	}
}
