package notifications

import (
	"context"

	"github.com/mentionmap/slack-mention-map/internal/models"
)

// Notifier opens a per-run status thread for the requesting user
type Notifier interface {
	StartThread(ctx context.Context, userID, text string) Thread
}

// Thread receives human-readable status lines. Post never fails and never
// waits on delivery: problems are logged and lines may be dropped.
//
// Finish queues the final line, closes the thread and waits until
// everything queued has been delivered or ctx is done. Post after Finish
// is ignored.
type Thread interface {
	Post(ctx context.Context, text string)
	Finish(ctx context.Context, text string)
}

// ReportSender delivers a finished analysis summary out of band
type ReportSender interface {
	SendReport(report *models.Report) error
}
