package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mentionmap/slack-mention-map/internal/analysis"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/mentionmap/slack-mention-map/internal/identity"
	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/mentionmap/slack-mention-map/internal/notifications"
	"github.com/mentionmap/slack-mention-map/internal/server"
	"github.com/mentionmap/slack-mention-map/internal/slack"
	"github.com/mentionmap/slack-mention-map/internal/snapshot"
	"github.com/mentionmap/slack-mention-map/internal/storage"
)

// exportHistory serves messages loaded from an export file. The export is
// already bounded, so the window start is ignored.
type exportHistory struct {
	messages []models.Message
}

func (h *exportHistory) Fetch(_ context.Context, _ string, _ time.Time, onProgress models.ProgressFunc) ([]models.Message, error) {
	if onProgress != nil {
		onProgress(models.Progress{Stage: models.StageFetch, Done: len(h.messages)})
	}
	return h.messages, nil
}

// exportUsers resolves names from users.json
type exportUsers struct {
	names map[string]string
}

func (u *exportUsers) UserName(_ context.Context, userID string) (string, error) {
	if name, ok := u.names[userID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("user %s not in export", userID)
}

type fixedChannel string

func (c fixedChannel) ChannelName(_ context.Context, _ string) (string, error) {
	return string(c), nil
}

// terminalNotifier prints progress instead of sending DMs
type terminalNotifier struct{}

func (terminalNotifier) StartThread(_ context.Context, _ string, text string) notifications.Thread {
	fmt.Printf("💬 %s\n", text)
	return terminalNotifier{}
}

func (terminalNotifier) Post(_ context.Context, text string) {
	fmt.Printf("   ↳ %s\n", strings.ReplaceAll(text, "\n", "\n     "))
}

func (n terminalNotifier) Finish(ctx context.Context, text string) {
	n.Post(ctx, text)
}

// SimpleTestStorage writes archived snapshots under test_output
type SimpleTestStorage struct{}

func (s *SimpleTestStorage) Store(_ context.Context, obj storage.Object) error {
	path := filepath.Join("test_output", obj.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, obj.Data, 0644); err != nil {
		return err
	}
	fmt.Printf("📁 Stored %d bytes (%s) to %s\n", len(obj.Data), obj.ContentType, path)
	return nil
}

// SimpleTestNotification prints the report to the terminal
type SimpleTestNotification struct{}

func (s *SimpleTestNotification) SendReport(report *models.Report) error {
	fmt.Println("\n🎉 REPORT GENERATED!")
	fmt.Printf("📊 #%s, last %d days: %d messages from %d senders\n", report.ChannelName, report.Days, report.TotalMessages, report.TotalSenders)

	if len(report.TopPairs) > 0 {
		fmt.Println("📍 Top mentions:")
		for i, p := range report.TopPairs {
			fmt.Printf("   %d. %s -> %s (%d)\n", i+1, p.Sender, p.Receiver, p.Count)
		}
	}
	if len(report.TopSenders) > 0 {
		fmt.Println("📝 Most active:")
		for i, sc := range report.TopSenders {
			fmt.Printf("   %d. %s (%d)\n", i+1, sc.Sender, sc.Count)
		}
	}
	return nil
}

func main() {
	messagesPath := flag.String("messages", "", "channel export file (JSON array of messages)")
	usersPath := flag.String("users", "", "users.json from the same export (optional)")
	channelName := flag.String("channel", "export", "channel name shown on the page")
	days := flag.Int("days", analysis.DefaultDays, "window length recorded on the snapshot")
	serve := flag.Bool("serve", false, "serve the result until interrupted")
	flag.Parse()

	fmt.Println("🧪 Slack Mention Map - Offline Integration Test")
	fmt.Println("===============================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if *messagesPath == "" {
		log.Fatal("-messages is required")
	}

	data, err := os.ReadFile(*messagesPath)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *messagesPath, err)
	}
	messages, err := slack.ParseExport(data)
	if err != nil {
		log.Fatal(err)
	}

	users := map[string]string{}
	if *usersPath != "" {
		data, err := os.ReadFile(*usersPath)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *usersPath, err)
		}
		if users, err = slack.ParseExportUsers(data); err != nil {
			log.Fatal(err)
		}
	}

	// Create basic config for testing
	cfg := &config.Config{
		Port:         8000,
		PortAttempts: 10,
		TimeZone:     "Local",
	}

	store := snapshot.NewStore()
	service := analysis.NewService(cfg, analysis.Dependencies{
		History:  &exportHistory{messages: messages},
		Names:    identity.NewCache(&exportUsers{names: users}, nil),
		Channels: fixedChannel(*channelName),
		Store:    store,
		Notifier: terminalNotifier{},
		Reports:  &SimpleTestNotification{},
		Archive:  &SimpleTestStorage{},
	})

	var srv *server.Server
	if *serve {
		listener, port, err := server.Listen(cfg.Port, cfg.PortAttempts)
		if err != nil {
			log.Fatalf("Failed to bind HTTP port: %v", err)
		}
		service.SetBrowserURL(cfg.BrowserURL(port))
		srv = server.NewServer(context.Background(), cfg, store, service, nil, server.NewResponseCache(8))
		go func() {
			if err := srv.Serve(listener); err != nil {
				log.Printf("HTTP server stopped: %v", err)
			}
		}()
	}

	fmt.Printf("🔍 Analysing %d exported messages...\n\n", len(messages))
	if err := service.Run(context.Background(), analysis.Request{ChannelID: "export", Days: *days}); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	fmt.Println("\n✅ Offline integration test completed!")

	if srv == nil {
		fmt.Println("\n💡 Re-run with -serve to open the diagram in a browser")
		return
	}

	fmt.Println("\n🌐 Serving the diagram, press Ctrl+C to stop")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
