package analysis

import (
	"context"
	"math"
	"regexp"
	"time"

	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/sirupsen/logrus"
)

// mentionPattern matches <@U123ABC> user references
var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)>`)

const dateLayout = "2006-01-02"

// NameResolver turns a user id into a display name and never fails
type NameResolver interface {
	Resolve(ctx context.Context, userID string) string
}

// Aggregator builds the mention and heatmap matrices from a message list
type Aggregator struct {
	names    NameResolver
	location *time.Location
}

// NewAggregator creates an aggregator. Dates are bucketed in loc.
func NewAggregator(names NameResolver, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{names: names, location: loc}
}

// Aggregate makes one pass over messages. Message order does not matter.
//
// System messages and messages without an author are skipped, as are
// messages whose timestamp is unusable; one bad message never aborts the
// pass. The only error returned is the context's, checked between messages.
func (a *Aggregator) Aggregate(ctx context.Context, messages []models.Message, onProgress models.ProgressFunc) (models.MentionMatrix, models.HeatmapMatrix, error) {
	if onProgress == nil {
		onProgress = func(models.Progress) {}
	}

	mentions := models.MentionMatrix{}
	heatmap := models.HeatmapMatrix{}

	total := len(messages)
	interval := max(1, total/10)
	skipped := 0

	onProgress(models.Progress{Stage: models.StageAggregate, Done: 0, Total: total})

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return mentions, heatmap, err
		}

		if i > 0 && i%interval == 0 {
			onProgress(models.Progress{Stage: models.StageAggregate, Done: i, Total: total})
		}

		if msg.IsSystem || msg.UserID == "" {
			continue
		}

		if !validTimestamp(msg.Timestamp) {
			logrus.Warnf("Skipping message from %s with unusable timestamp %v", msg.UserID, msg.Timestamp)
			skipped++
			continue
		}

		a.add(ctx, mentions, heatmap, msg)
	}

	if skipped > 0 {
		logrus.Warnf("Skipped %d of %d messages with unusable timestamps", skipped, total)
	}

	onProgress(models.Progress{Stage: models.StageAggregateDone, Done: total, Total: total})
	return mentions, heatmap, nil
}

func (a *Aggregator) add(ctx context.Context, mentions models.MentionMatrix, heatmap models.HeatmapMatrix, msg models.Message) {
	sender := a.names.Resolve(ctx, msg.UserID)

	heatmap.Increment(sender, a.date(msg.Timestamp))

	ids := MentionedIDs(msg.Text)
	if len(ids) == 0 {
		mentions.Increment(sender, models.NoMention)
		return
	}
	for _, id := range ids {
		mentions.Increment(sender, a.names.Resolve(ctx, id))
	}
}

func (a *Aggregator) date(ts float64) string {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).In(a.location).Format(dateLayout)
}

// MentionedIDs returns the user ids referenced in text, in order, repeats included
func MentionedIDs(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

func validTimestamp(ts float64) bool {
	return ts > 0 && !math.IsInf(ts, 0) && !math.IsNaN(ts)
}
