package analysis

import (
	"context"
	"fmt"

	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/mentionmap/slack-mention-map/internal/notifications"
)

// describe turns a progress event into the status line shown to the user
func describe(p models.Progress) string {
	switch p.Stage {
	case models.StageFetch:
		return fmt.Sprintf("Fetched %d messages so far...", p.Done)
	case models.StageFetchFailed:
		return fmt.Sprintf("Error while fetching history: %v (continuing with %d messages)", p.Err, p.Done)
	case models.StageAggregate:
		pct := 0.0
		if p.Total > 0 {
			pct = float64(p.Done) / float64(p.Total) * 100
		}
		return fmt.Sprintf("Analysis progress: %d/%d messages processed (%.1f%%)", p.Done, p.Total, pct)
	case models.StageAggregateDone:
		return fmt.Sprintf("Analysis finished: all %d messages processed!", p.Total)
	default:
		return fmt.Sprintf("%s: %d", p.Stage, p.Done)
	}
}

// forward relays progress events into thread
func forward(ctx context.Context, thread notifications.Thread, observe func(models.Progress)) models.ProgressFunc {
	return func(p models.Progress) {
		if observe != nil {
			observe(p)
		}
		thread.Post(ctx, describe(p))
	}
}
