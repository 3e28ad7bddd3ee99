package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/mentionmap/slack-mention-map/internal/history"
	"github.com/mentionmap/slack-mention-map/internal/slack"
)

func main() {
	channelID := flag.String("channel", "", "channel id to read one page of history from (optional)")
	flag.Parse()

	fmt.Println("🔍 Slack Mention Map - API Connectivity Test")
	fmt.Println("============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := slack.NewClient(cfg.SlackBotToken, cfg.SlackAPIURL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("\n📡 Testing Slack Web API...")
	fmt.Println(strings.Repeat("-", 40))

	fmt.Print("🔸 auth.test... ")
	auth, err := client.AuthTest(ctx)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Printf("✅ SUCCESS (%s in %s)\n", auth.User, auth.Team)

	if *channelID == "" {
		fmt.Println("\n💡 Pass -channel <id> to also test history, users and channel lookups")
		return
	}

	fmt.Print("🔸 conversations.info... ")
	name, err := client.ChannelName(ctx, *channelID)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
	} else {
		fmt.Printf("✅ SUCCESS (#%s)\n", name)
	}

	fmt.Print("🔸 conversations.history... ")
	page, err := client.History(ctx, slack.HistoryRequest{
		ChannelID: *channelID,
		Limit:     history.PageSize,
		Oldest:    time.Now().AddDate(0, 0, -7),
	})
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Printf("✅ SUCCESS (%d messages in the last 7 days, more pages: %t)\n", len(page.Messages), page.HasMore)

	for _, m := range page.Messages {
		if m.UserID == "" || m.IsSystem {
			continue
		}
		fmt.Print("🔸 users.info... ")
		user, err := client.UserName(ctx, m.UserID)
		if err != nil {
			fmt.Printf("❌ ERROR: %v\n", err)
		} else {
			fmt.Printf("✅ SUCCESS (%s is %q)\n", m.UserID, user)
		}
		break
	}

	fmt.Println("\n✅ API connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Run the bot with: go run ./cmd/bot")
	fmt.Println("   • Try /mention-map in the channel")
}
