package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mentionmap/slack-mention-map/internal/analysis"
	"github.com/mentionmap/slack-mention-map/internal/models"
)

// sampleNames resolves the ids used by the sample conversation
type sampleNames map[string]string

func (n sampleNames) Resolve(_ context.Context, userID string) string {
	if name, ok := n[userID]; ok {
		return name
	}
	return "User " + userID
}

// TestNotificationService outputs reports to terminal and files
type TestNotificationService struct{}

func (t *TestNotificationService) SendReport(report *models.Report) error {
	// Print to terminal
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 SLACK MENTION MAP REPORT")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📺 Channel: #%s\n", report.ChannelName)
	fmt.Printf("📅 Period: last %d days\n", report.Days)
	fmt.Printf("🕒 Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("📈 Messages: %d from %d senders\n", report.TotalMessages, report.TotalSenders)

	fmt.Println("\n📍 Top mentions:")
	for i, p := range report.TopPairs {
		fmt.Printf("   %2d. %-12s -> %-12s %d\n", i+1, p.Sender, p.Receiver, p.Count)
	}

	fmt.Println("\n💬 Most active:")
	for i, s := range report.TopSenders {
		fmt.Printf("   %2d. %-12s %d messages\n", i+1, s.Sender, s.Count)
	}

	// Save to JSON file
	if err := t.saveReportToFile(report); err != nil {
		fmt.Printf("\n⚠️  Warning: Could not save to file: %v\n", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	return nil
}

func (t *TestNotificationService) saveReportToFile(report *models.Report) error {
	dir := "test_output"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	timestamp := report.GeneratedAt.Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("mention_map_report_%s.json", timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}

	fmt.Printf("\n💾 Report saved to: %s\n", filename)
	return nil
}

// sampleMessages builds a small two-week conversation
func sampleMessages(now time.Time) []models.Message {
	lines := []struct {
		user string
		text string
		ago  time.Duration
	}{
		{"U01ALICE", "<@U02BOB> can you review the release notes?", 2 * time.Hour},
		{"U02BOB", "On it <@U01ALICE>", 90 * time.Minute},
		{"U02BOB", "<@U03CAROL> <@U04DAVE> standup moved to 10:30", 26 * time.Hour},
		{"U03CAROL", "thanks!", 25 * time.Hour},
		{"U04DAVE", "<@U01ALICE> deploy is green", 3 * 24 * time.Hour},
		{"U01ALICE", "nice work <@U04DAVE>", 3*24*time.Hour - time.Hour},
		{"U01ALICE", "lunch anyone?", 5 * 24 * time.Hour},
		{"U03CAROL", "<@U01ALICE> <@U02BOB> retro doc is up", 9 * 24 * time.Hour},
		{"U02BOB", "<@U03CAROL> added my notes", 9*24*time.Hour - 2*time.Hour},
		{"U04DAVE", "<@U02BOB> pairing later?", 12 * 24 * time.Hour},
	}

	messages := make([]models.Message, 0, len(lines)+1)
	for _, l := range lines {
		messages = append(messages, models.Message{
			UserID:    l.user,
			Timestamp: float64(now.Add(-l.ago).Unix()),
			Text:      l.text,
		})
	}
	// bots never count
	messages = append(messages, models.Message{Text: "build #42 passed", Timestamp: float64(now.Unix()), Subtype: "bot_message", IsSystem: true})
	return messages
}

func main() {
	fmt.Println("🤖 Slack Mention Map - Test Report Generator")
	fmt.Println("============================================")

	now := time.Now()
	names := sampleNames{"U01ALICE": "Alice", "U02BOB": "Bob", "U03CAROL": "Carol", "U04DAVE": "Dave"}
	messages := sampleMessages(now)

	fmt.Printf("\n📊 Aggregating %d sample messages...\n", len(messages))

	aggregator := analysis.NewAggregator(names, time.Local)
	mentions, heatmap, err := aggregator.Aggregate(context.Background(), messages, nil)
	if err != nil {
		fmt.Printf("❌ Error aggregating messages: %v\n", err)
		os.Exit(1)
	}

	snap := &models.Snapshot{
		ID:           uuid.NewString(),
		ChannelID:    "C0SAMPLE",
		ChannelName:  "sample",
		WindowDays:   14,
		GeneratedAt:  now,
		MessageCount: len(messages),
		Mentions:     mentions,
		Heatmap:      heatmap,
	}

	notifications := &TestNotificationService{}
	if err := notifications.SendReport(analysis.BuildReport(snap, "http://localhost:8000")); err != nil {
		fmt.Printf("❌ Error sending report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Test report generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Check the 'test_output' directory for the saved JSON report")
	fmt.Println("   • Run 'go test ./internal/analysis -v' for more detailed tests")
	fmt.Println("   • Run the full bot with 'go run ./cmd/bot'")
}
