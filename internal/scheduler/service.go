package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/mentionmap/slack-mention-map/internal/analysis"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner performs one analysis synchronously
type Runner interface {
	Run(ctx context.Context, req analysis.Request) error
}

// Service handles periodic re-analysis of one configured channel
type Service struct {
	config *config.Config
	runner Runner
	cron   *cron.Cron
	ctx    context.Context
}

// NewService creates a new scheduler service. Scheduled runs inherit ctx.
func NewService(ctx context.Context, cfg *config.Config, runner Runner) *Service {
	return &Service{
		config: cfg,
		runner: runner,
		cron:   cron.New(cron.WithSeconds()),
		ctx:    ctx,
	}
}

// Start registers the schedule. Without SCHEDULE_CRON it does nothing.
func (s *Service) Start() error {
	if s.config.ScheduleCron == "" {
		logrus.Info("No schedule configured, periodic analysis disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.ScheduleCron, s.runScheduled); err != nil {
		return fmt.Errorf("invalid SCHEDULE_CRON %q: %w", s.config.ScheduleCron, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: analysing %s on %q", s.config.ScheduleChannelID, s.config.ScheduleCron)
	return nil
}

func (s *Service) runScheduled() {
	req := analysis.Request{
		ChannelID: s.config.ScheduleChannelID,
		UserID:    s.config.ScheduleUserID,
		Days:      s.config.ScheduleDays,
	}

	logrus.Infof("Starting scheduled analysis of %s", req.ChannelID)
	err := s.runner.Run(s.ctx, req)
	switch {
	case errors.Is(err, analysis.ErrBusy):
		logrus.Warn("Skipping scheduled analysis: another run is in progress")
	case err != nil:
		logrus.Errorf("Scheduled analysis failed: %v", err)
	}
}

// Stop stops the scheduler and waits for a running job to return
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
