package analysis

import (
	"sort"

	"github.com/mentionmap/slack-mention-map/internal/models"
)

const reportTopN = 10

// BuildReport summarizes snap for e-mail delivery
func BuildReport(snap *models.Snapshot, url string) *models.Report {
	report := &models.Report{
		GeneratedAt:   snap.GeneratedAt,
		ChannelName:   snap.ChannelName,
		Days:          snap.WindowDays,
		TotalMessages: snap.MessageCount,
		TotalSenders:  len(snap.Heatmap),
		URL:           url,
	}

	for sender, row := range snap.Mentions {
		for receiver, count := range row {
			if receiver == models.NoMention {
				continue
			}
			report.TopPairs = append(report.TopPairs, models.PairCount{Sender: sender, Receiver: receiver, Count: count})
		}
	}
	sort.Slice(report.TopPairs, func(i, j int) bool {
		a, b := report.TopPairs[i], report.TopPairs[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Sender != b.Sender {
			return a.Sender < b.Sender
		}
		return a.Receiver < b.Receiver
	})
	if len(report.TopPairs) > reportTopN {
		report.TopPairs = report.TopPairs[:reportTopN]
	}

	for sender, days := range snap.Heatmap {
		total := 0
		for _, c := range days {
			total += c
		}
		report.TopSenders = append(report.TopSenders, models.SenderCount{Sender: sender, Count: total})
	}
	sort.Slice(report.TopSenders, func(i, j int) bool {
		a, b := report.TopSenders[i], report.TopSenders[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Sender < b.Sender
	})
	if len(report.TopSenders) > reportTopN {
		report.TopSenders = report.TopSenders[:reportTopN]
	}

	return report
}
