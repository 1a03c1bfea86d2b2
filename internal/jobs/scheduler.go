package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nighthub/internal/config"
)

// Scheduler runs the background jobs. It implements cartridge.BackgroundWorker.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	interval  time.Duration

	// Only one job touches the database at a time.
	processingMutex sync.Mutex
	isProcessing    bool

	retention *RetentionJob
	geolite   *GeoLiteUpdaterJob

	wg sync.WaitGroup
}

func NewScheduler(db Connector, logger *slog.Logger, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		interval:  time.Duration(cfg.JobIntervalSeconds) * time.Second,
		retention: NewRetentionJob(db, logger, cfg.TrackingRetentionDays),
		geolite:   NewGeoLiteUpdaterJob(db, logger, cfg.GeoLiteLicenseKey, cfg.GeoDBPath),
	}
}

// executeJobSafely runs a job only if no other job is currently executing.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func(context.Context) error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
func (s *Scheduler) Start() error {
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}
	s.isRunning = true

	s.every("retention", s.interval, func(ctx context.Context) error {
		_, err := s.retention.Run(ctx)
		return err
	})
	s.every("geolite_updater", 24*time.Hour, s.geolite.Run)

	s.logger.Info("Background jobs started", slog.Duration("retention_interval", s.interval))
	return nil
}

// every runs job now and then on each tick until Stop.
func (s *Scheduler) every(name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.executeJobSafely(name, job)
		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(name, job)
			case <-s.ctx.Done():
				s.logger.Info("Background job stopped", slog.String("job", name))
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for a running one to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running.
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
