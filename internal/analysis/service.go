package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/mentionmap/slack-mention-map/internal/metrics"
	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/mentionmap/slack-mention-map/internal/notifications"
	"github.com/mentionmap/slack-mention-map/internal/slack"
	"github.com/mentionmap/slack-mention-map/internal/snapshot"
	"github.com/mentionmap/slack-mention-map/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when a run is requested while another is in flight
var ErrBusy = errors.New("an analysis is already running")

// errNoHistory means the very first history page failed
var errNoHistory = errors.New("could not retrieve any messages from the channel")

// finishTimeout bounds how long a run waits for its status thread to drain
const finishTimeout = 30 * time.Second

// HistoryFetcher retrieves the message window for a channel
type HistoryFetcher interface {
	Fetch(ctx context.Context, channelID string, since time.Time, onProgress models.ProgressFunc) ([]models.Message, error)
}

// Request describes one analysis run
type Request struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Days      int    `json:"days"`
}

// Dependencies are the collaborators of a Service
type Dependencies struct {
	History  HistoryFetcher
	Names    NameResolver
	Channels slack.ChannelAPI
	Store    *snapshot.Store
	Notifier notifications.Notifier
	Reports  notifications.ReportSender
	Archive  storage.StorageInterface
	Metrics  metrics.Recorder
}

// Service runs fetch -> aggregate -> publish, one run at a time
type Service struct {
	config     *config.Config
	history    HistoryFetcher
	aggregator *Aggregator
	channels   slack.ChannelAPI
	store      *snapshot.Store
	notifier   notifications.Notifier
	reports    notifications.ReportSender
	archive    storage.StorageInterface
	metrics    metrics.Recorder
	now        func() time.Time

	// running is only changed while holding mu
	running atomic.Bool

	mu         sync.RWMutex
	cancel     context.CancelFunc
	browserURL string
	stats      *Stats
}

// Stats describes the most recent run
type Stats struct {
	Running         bool      `json:"running"`
	TotalRuns       int       `json:"total_runs"`
	ErrorCount      int       `json:"error_count"`
	LastRunID       string    `json:"last_run_id,omitempty"`
	LastRun         time.Time `json:"last_run"`
	LastRunDuration string    `json:"last_run_duration"`
	LastResult      string    `json:"last_result,omitempty"`
	LastChannel     string    `json:"last_channel,omitempty"`
	MessagesFetched int       `json:"messages_fetched"`
}

// NewService creates a new analysis service
func NewService(cfg *config.Config, deps Dependencies) *Service {
	loc, err := cfg.Location()
	if err != nil {
		logrus.Warnf("Falling back to local time zone: %v", err)
		loc = time.Local
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.Archive == nil {
		deps.Archive = storage.Noop{}
	}

	return &Service{
		config:     cfg,
		history:    deps.History,
		aggregator: NewAggregator(deps.Names, loc),
		channels:   deps.Channels,
		store:      deps.Store,
		notifier:   deps.Notifier,
		reports:    deps.Reports,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		now:        time.Now,
		browserURL: cfg.BrowserURL(cfg.Port),
		stats:      &Stats{},
	}
}

// SetBrowserURL records where the visualization page is reachable.
// Called once the server has bound its port.
func (s *Service) SetBrowserURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.browserURL = url
}

func (s *Service) url() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browserURL
}

// Busy reports whether a run is in flight
func (s *Service) Busy() bool {
	return s.running.Load()
}

// Run performs one analysis synchronously. It returns ErrBusy without doing
// anything when another run holds the service.
func (s *Service) Run(ctx context.Context, req Request) error {
	runCtx, ok := s.acquire(ctx)
	if !ok {
		return ErrBusy
	}
	defer s.release()
	return s.run(runCtx, req)
}

// Start claims the service and performs the run in the background. The
// busy check happens before Start returns so callers can answer at once.
func (s *Service) Start(ctx context.Context, req Request) error {
	runCtx, ok := s.acquire(ctx)
	if !ok {
		return ErrBusy
	}
	go func() {
		defer s.release()
		if err := s.run(runCtx, req); err != nil {
			logrus.Errorf("Analysis of %s failed: %v", req.ChannelID, err)
		}
	}()
	return nil
}

// Cancel aborts the run in flight. It returns false when nothing is running.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// acquire claims the service and creates the run context in one step, so
// Cancel works as soon as Busy reports true.
func (s *Service) acquire(parent context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.metrics.IncRuns("rejected")
		return nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.running.Store(true)
	return ctx, true
}

func (s *Service) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running.Store(false)
}

func (s *Service) run(ctx context.Context, req Request) error {
	runID := uuid.NewString()
	days := ClampDays(req.Days)
	log := logrus.WithFields(logrus.Fields{"run_id": runID, "channel": req.ChannelID, "days": days})
	start := s.now()
	log.Info("Starting analysis run")

	thread := s.notifier.StartThread(ctx, req.UserID, fmt.Sprintf("Started analysing mentions over the last %d days.", days))

	snap, err := s.execute(ctx, runID, req.ChannelID, days, thread)
	duration := s.now().Sub(start)

	// The run context may be dead; terminal messages must still go out.
	final, cancelFinal := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancelFinal()

	result := "success"
	switch {
	case err != nil && ctx.Err() != nil:
		result = "cancelled"
		log.Infof("Analysis cancelled after %v", duration)
		thread.Finish(final, "Analysis cancelled.")
	case err != nil:
		result = "failed"
		log.Errorf("Analysis failed after %v: %v", duration, err)
		thread.Finish(final, fmt.Sprintf("An error occurred: %v", err))
	default:
		log.Infof("Analysis completed in %v", duration)
		s.metrics.ObserveRunDuration(duration)
		url := s.url()
		thread.Finish(final, completionMessage(url))
		s.export(context.WithoutCancel(ctx), runID, snap, url)
	}
	s.metrics.IncRuns(result)

	fetched := 0
	if snap != nil {
		fetched = snap.MessageCount
	}
	s.updateStats(runID, req.ChannelID, result, start, duration, fetched)

	return err
}

func (s *Service) execute(ctx context.Context, runID, channelID string, days int, thread notifications.Thread) (*models.Snapshot, error) {
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	thread.Post(ctx, "Fetching message history...")

	fetchFailed := false
	messages, err := s.history.Fetch(ctx, channelID, since, forward(ctx, thread, func(p models.Progress) {
		if p.Stage == models.StageFetchFailed {
			fetchFailed = true
		}
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	if len(messages) == 0 {
		if fetchFailed {
			return nil, errNoHistory
		}
		thread.Post(ctx, fmt.Sprintf("No messages found in the last %d days.", days))
	} else {
		thread.Post(ctx, fmt.Sprintf("Fetched %d messages in total. Analysing mentions...", len(messages)))
	}

	mentions, heatmap, err := s.aggregator.Aggregate(ctx, messages, forward(ctx, thread, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to analyse messages: %w", err)
	}

	thread.Post(ctx, "Analysis complete! Preparing the diagram...")

	snap := &models.Snapshot{
		ID:           runID,
		ChannelID:    channelID,
		ChannelName:  s.channelName(ctx, channelID),
		WindowDays:   days,
		GeneratedAt:  s.now(),
		MessageCount: len(messages),
		Mentions:     mentions,
		Heatmap:      heatmap,
	}
	s.store.Publish(snap)
	return snap, nil
}

// export archives snap and e-mails its report. Both are optional and their
// failures are only logged.
func (s *Service) export(ctx context.Context, runID string, snap *models.Snapshot, url string) {
	if err := storage.ArchiveSnapshot(ctx, s.archive, snap); err != nil {
		logrus.Errorf("Failed to archive snapshot %s: %v", runID, err)
	}

	if s.reports != nil {
		if err := s.reports.SendReport(BuildReport(snap, url)); err != nil {
			logrus.Errorf("Failed to send report for %s: %v", runID, err)
		}
	}
}

func (s *Service) channelName(ctx context.Context, channelID string) string {
	name, err := s.channels.ChannelName(ctx, channelID)
	if err != nil || name == "" {
		logrus.Warnf("Failed to look up channel %s, using its id: %v", channelID, err)
		return channelID
	}
	return name
}

func completionMessage(url string) string {
	return fmt.Sprintf(`The analysis is done! Open the link below to see the mention diagram:

<%s|Open the mention map in your browser>

In the browser you can:
• drag nodes around and hover for details
• download a high-resolution image with the "Download image" button
• upload the saved image to Slack to share it

The page is served from %s and is only available while the bot is running.`, url, url)
}

func (s *Service) updateStats(runID, channelID, result string, start time.Time, duration time.Duration, fetched int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalRuns++
	if result == "failed" {
		s.stats.ErrorCount++
	}
	s.stats.LastRunID = runID
	s.stats.LastRun = start
	s.stats.LastRunDuration = duration.String()
	s.stats.LastResult = result
	s.stats.LastChannel = channelID
	s.stats.MessagesFetched = fetched
}

// GetStatus returns the run statistics as JSON
func (s *Service) GetStatus() string {
	s.mu.RLock()
	stats := *s.stats
	s.mu.RUnlock()
	stats.Running = s.Busy()

	data, _ := json.MarshalIndent(stats, "", "  ")
	return string(data)
}
