package slack

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout  = 30 * time.Second
	maxRetries      = 3
	botMessageType  = "bot_message"
	userAgentHeader = "Slack-Mention-Map/1.0"
)

// Client talks to the Slack Web API
type Client struct {
	client *resty.Client
}

// Ensure Client implements the consumed interfaces
var (
	_ HistoryAPI  = (*Client)(nil)
	_ IdentityAPI = (*Client)(nil)
	_ ChannelAPI  = (*Client)(nil)
	_ Messenger   = (*Client)(nil)
)

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type rawMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	User    string `json:"user"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

type historyResponse struct {
	apiResponse
	Messages         []rawMessage `json:"messages"`
	HasMore          bool         `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type userInfoResponse struct {
	apiResponse
	User struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			DisplayName string `json:"display_name"`
			RealName    string `json:"real_name"`
		} `json:"profile"`
	} `json:"user"`
}

type channelInfoResponse struct {
	apiResponse
	Channel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

type postMessageResponse struct {
	apiResponse
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// AuthInfo is the subset of auth.test used for connectivity checks
type AuthInfo struct {
	apiResponse
	Team   string `json:"team"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
}

// NewClient creates a Slack Web API client. baseURL normally is https://slack.com/api/.
func NewClient(token, baseURL string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(token).
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", userAgentHeader).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(time.Minute).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == http.StatusTooManyRequests
		}).
		SetRetryAfter(retryAfter)

	return &Client{client: c}
}

// retryAfter honors the Retry-After header Slack sends with 429 responses.
// Returning zero falls back to resty's exponential backoff.
func retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
		return 0, nil
	}
	secs, err := strconv.Atoi(resp.Header().Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0, nil
	}
	logrus.Warnf("Slack rate limit hit, retrying in %ds", secs)
	return time.Duration(secs) * time.Second, nil
}

// History fetches one page of conversations.history
func (c *Client) History(ctx context.Context, req HistoryRequest) (*HistoryPage, error) {
	params := map[string]string{
		"channel": req.ChannelID,
		"limit":   strconv.Itoa(req.Limit),
	}
	if !req.Oldest.IsZero() {
		params["oldest"] = formatTS(req.Oldest)
	}
	if req.Cursor != "" {
		params["cursor"] = req.Cursor
	}

	var out historyResponse
	if err := c.get(ctx, "conversations.history", params, &out); err != nil {
		return nil, err
	}

	page := &HistoryPage{
		Messages:   make([]models.Message, 0, len(out.Messages)),
		HasMore:    out.HasMore,
		NextCursor: out.ResponseMetadata.NextCursor,
	}
	for _, m := range out.Messages {
		page.Messages = append(page.Messages, toMessage(m))
	}

	return page, nil
}

// UserName returns the best available display name for userID
func (c *Client) UserName(ctx context.Context, userID string) (string, error) {
	var out userInfoResponse
	if err := c.get(ctx, "users.info", map[string]string{"user": userID}, &out); err != nil {
		return "", err
	}

	for _, name := range []string{out.User.RealName, out.User.Profile.RealName, out.User.Profile.DisplayName, out.User.Name} {
		if name != "" {
			return name, nil
		}
	}

	return "", fmt.Errorf("user %s has no name", userID)
}

// ChannelName returns the channel's name without the leading '#'
func (c *Client) ChannelName(ctx context.Context, channelID string) (string, error) {
	var out channelInfoResponse
	if err := c.get(ctx, "conversations.info", map[string]string{"channel": channelID}, &out); err != nil {
		return "", err
	}
	return out.Channel.Name, nil
}

// OpenDM opens (or reuses) the direct message channel with userID
func (c *Client) OpenDM(ctx context.Context, userID string) (string, error) {
	var out channelInfoResponse
	if err := c.post(ctx, "conversations.open", map[string]string{"users": userID}, &out); err != nil {
		return "", err
	}
	return out.Channel.ID, nil
}

// PostMessage posts text into channelID, threaded under threadTS when set.
// It returns the new message's ts.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	body := map[string]string{
		"channel": channelID,
		"text":    text,
	}
	if threadTS != "" {
		body["thread_ts"] = threadTS
	}

	var out postMessageResponse
	if err := c.post(ctx, "chat.postMessage", body, &out); err != nil {
		return "", err
	}
	return out.TS, nil
}

// AuthTest verifies the token
func (c *Client) AuthTest(ctx context.Context) (*AuthInfo, error) {
	var out AuthInfo
	if err := c.post(ctx, "auth.test", map[string]string{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type okChecker interface {
	ok() (bool, string)
}

func (r apiResponse) ok() (bool, string) { return r.OK, r.Error }

func (c *Client) get(ctx context.Context, method string, params map[string]string, out okChecker) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/" + method)
	return decode(method, resp, err, out)
}

func (c *Client) post(ctx context.Context, method string, body any, out okChecker) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(body).
		Post("/" + method)
	return decode(method, resp, err, out)
}

func decode(method string, resp *resty.Response, err error, out okChecker) error {
	if err != nil {
		return fmt.Errorf("slack %s request failed: %w", method, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("slack %s returned status %d", method, resp.StatusCode())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode slack %s response: %w", method, err)
	}

	if ok, code := out.ok(); !ok {
		return &APIError{Method: method, Code: code}
	}

	return nil
}

func toMessage(m rawMessage) models.Message {
	ts, err := strconv.ParseFloat(m.TS, 64)
	if err != nil {
		logrus.Debugf("Malformed message ts %q: %v", m.TS, err)
		ts = 0
	}

	return models.Message{
		UserID:    m.User,
		Timestamp: ts,
		Text:      m.Text,
		Subtype:   m.Subtype,
		IsSystem:  m.Subtype == botMessageType,
	}
}

func formatTS(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}
