// Package history retrieves a bounded channel history page by page.
//
// The whole window is materialized in memory. That is fine for the
// interactive windows the bot accepts (at most a year of one channel); a
// larger deployment would stream pages into the aggregator instead.
package history

import (
	"context"
	"time"

	"github.com/mentionmap/slack-mention-map/internal/metrics"
	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/mentionmap/slack-mention-map/internal/slack"
	"github.com/sirupsen/logrus"
)

const (
	// PageSize is the number of messages requested per page
	PageSize = 100
	// ReportEvery is the minimum growth between two progress events
	ReportEvery = 100
)

// Fetcher walks conversations.history from a cutoff to now
type Fetcher struct {
	api     slack.HistoryAPI
	metrics metrics.Recorder
}

// NewFetcher creates a new history fetcher
func NewFetcher(api slack.HistoryAPI, recorder metrics.Recorder) *Fetcher {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Fetcher{api: api, metrics: recorder}
}

// Fetch returns every message in channelID at or after since.
//
// A failing page ends the walk early: the failure is reported through
// onProgress as StageFetchFailed and the messages gathered so far are
// returned with a nil error. The only error returned is the context's.
func (f *Fetcher) Fetch(ctx context.Context, channelID string, since time.Time, onProgress models.ProgressFunc) ([]models.Message, error) {
	if onProgress == nil {
		onProgress = func(models.Progress) {}
	}

	messages := make([]models.Message, 0, PageSize)
	cursor := ""
	lastReport := 0
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			logrus.Infof("History fetch for %s cancelled after %d messages", channelID, len(messages))
			return messages, err
		}

		page, err := f.api.History(ctx, slack.HistoryRequest{
			ChannelID: channelID,
			Limit:     PageSize,
			Oldest:    since,
			Cursor:    cursor,
		})
		if err != nil {
			if ctx.Err() != nil {
				return messages, ctx.Err()
			}
			logrus.Errorf("History fetch for %s failed on page %d: %v", channelID, pages+1, err)
			onProgress(models.Progress{Stage: models.StageFetchFailed, Done: len(messages), Err: err})
			break
		}
		pages++

		messages = append(messages, page.Messages...)
		f.metrics.AddMessagesFetched(len(page.Messages))

		if len(messages)-lastReport >= ReportEvery {
			onProgress(models.Progress{Stage: models.StageFetch, Done: len(messages)})
			lastReport = len(messages)
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	logrus.Infof("Fetched %d messages from %s in %d pages", len(messages), channelID, pages)
	return messages, nil
}
