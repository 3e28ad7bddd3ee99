package notifications

import (
	"context"
	"sync"

	"github.com/mentionmap/slack-mention-map/internal/slack"
	"github.com/sirupsen/logrus"
)

// ThreadQueueSize bounds the status lines waiting for delivery per thread
const ThreadQueueSize = 64

// SlackNotifier posts progress into a DM thread with the requesting user
type SlackNotifier struct {
	messenger slack.Messenger
}

// Ensure SlackNotifier implements Notifier
var _ Notifier = (*SlackNotifier)(nil)

// NewSlackNotifier creates a notifier on top of a Slack messenger
func NewSlackNotifier(messenger slack.Messenger) *SlackNotifier {
	return &SlackNotifier{messenger: messenger}
}

// StartThread returns at once. A sender goroutine opens the DM with userID,
// posts text as the thread parent and then delivers queued lines in order.
// Without a user the returned thread only logs.
func (n *SlackNotifier) StartThread(ctx context.Context, userID, text string) Thread {
	if userID == "" {
		logrus.Info(text)
		return LogThread{}
	}

	t := &slackThread{
		messenger: n.messenger,
		lines:     make(chan statusLine, ThreadQueueSize),
		done:      make(chan struct{}),
	}
	go t.deliver(ctx, userID, text)
	return t
}

type statusLine struct {
	ctx  context.Context
	text string
}

type slackThread struct {
	messenger slack.Messenger
	lines     chan statusLine
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

func (t *slackThread) deliver(ctx context.Context, userID, parent string) {
	defer close(t.done)

	channelID, err := t.messenger.OpenDM(ctx, userID)
	if err != nil {
		logrus.Errorf("Failed to open DM with %s: %v", userID, err)
		logrus.Info(parent)
		for line := range t.lines {
			logrus.Info(line.text)
		}
		return
	}

	threadTS, err := t.messenger.PostMessage(ctx, channelID, "", parent)
	if err != nil {
		// Keep going unthreaded; the DM channel itself still works.
		logrus.Errorf("Failed to post thread parent to %s: %v", channelID, err)
	}

	for line := range t.lines {
		if _, err := t.messenger.PostMessage(line.ctx, channelID, threadTS, line.text); err != nil {
			logrus.Warnf("Dropped status message to %s: %v", channelID, err)
		}
	}
}

func (t *slackThread) Post(ctx context.Context, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		logrus.Warnf("Status thread already finished, dropping: %s", text)
		return
	}

	select {
	case t.lines <- statusLine{ctx: ctx, text: text}:
	default:
		logrus.Warnf("Status queue full, dropping: %s", text)
	}
}

func (t *slackThread) Finish(ctx context.Context, text string) {
	t.mu.Lock()
	if !t.closed {
		select {
		case t.lines <- statusLine{ctx: ctx, text: text}:
		case <-ctx.Done():
			logrus.Warnf("Timed out queueing final status, dropping: %s", text)
		}
		t.closed = true
		close(t.lines)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
	case <-ctx.Done():
		logrus.Warn("Timed out delivering queued status messages")
	}
}

// LogThread writes status lines to the log only
type LogThread struct{}

func (LogThread) Post(_ context.Context, text string) {
	logrus.Info(text)
}

func (LogThread) Finish(_ context.Context, text string) {
	logrus.Info(text)
}
