package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/mentionmap/slack-mention-map/internal/models"
)

// HistoryRequest asks for one page of channel history
type HistoryRequest struct {
	ChannelID string
	Limit     int
	Oldest    time.Time
	Cursor    string // empty for the first page
}

// HistoryPage is one page of channel history
type HistoryPage struct {
	Messages   []models.Message
	HasMore    bool
	NextCursor string
}

// HistoryAPI is the paginated conversations.history surface
type HistoryAPI interface {
	History(ctx context.Context, req HistoryRequest) (*HistoryPage, error)
}

// IdentityAPI resolves a user id to a display name
type IdentityAPI interface {
	UserName(ctx context.Context, userID string) (string, error)
}

// ChannelAPI resolves a channel id to its name
type ChannelAPI interface {
	ChannelName(ctx context.Context, channelID string) (string, error)
}

// Messenger posts messages, optionally into a thread
type Messenger interface {
	OpenDM(ctx context.Context, userID string) (string, error)
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
}

// APIError is returned when Slack answers with ok=false
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
}
