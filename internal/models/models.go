package models

import "time"

// NoMention is the receiver key counted for messages that mention nobody
const NoMention = "N/A"

// Message represents one channel message as returned by the history API
type Message struct {
	UserID    string  `json:"user"`
	Timestamp float64 `json:"ts"` // seconds since epoch; 0 when the remote value was malformed
	Text      string  `json:"text"`
	Subtype   string  `json:"subtype,omitempty"`
	IsSystem  bool    `json:"is_system"` // bot_message and similar
}

// MentionMatrix maps sender name -> receiver name (or NoMention) -> count
type MentionMatrix map[string]map[string]int

// HeatmapMatrix maps sender name -> YYYY-MM-DD -> messages posted that day
type HeatmapMatrix map[string]map[string]int

// Increment adds one to m[row][col], creating the row on first use.
func (m MentionMatrix) Increment(row, col string) {
	increment(m, row, col)
}

// Increment adds one to m[row][col], creating the row on first use.
func (m HeatmapMatrix) Increment(row, col string) {
	increment(m, row, col)
}

func increment(m map[string]map[string]int, row, col string) {
	inner, ok := m[row]
	if !ok {
		inner = make(map[string]int)
		m[row] = inner
	}
	inner[col]++
}

// Snapshot is the immutable result of one analysis run
type Snapshot struct {
	ID           string        `json:"id"`
	ChannelID    string        `json:"channel_id"`
	ChannelName  string        `json:"channel_name"`
	WindowDays   int           `json:"days"`
	GeneratedAt  time.Time     `json:"generated_at"`
	MessageCount int           `json:"message_count"`
	Mentions     MentionMatrix `json:"mention_data"`
	Heatmap      HeatmapMatrix `json:"heatmap_data"`
}

// Stage identifies which part of a run a Progress event belongs to
type Stage string

const (
	StageFetch         Stage = "fetch"
	StageFetchFailed   Stage = "fetch_failed"
	StageAggregate     Stage = "aggregate"
	StageAggregateDone Stage = "aggregate_done"
)

// Progress is emitted by the fetcher and the aggregator while a run is in flight
type Progress struct {
	Stage Stage
	Done  int
	Total int // zero when unknown (fetching)
	Err   error
}

// ProgressFunc receives progress events. Implementations must not block for long.
type ProgressFunc func(Progress)

// PairCount is one sender -> receiver edge of the mention matrix
type PairCount struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Count    int    `json:"count"`
}

// SenderCount is the number of messages one sender posted in the window
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// Report summarizes a snapshot for out-of-band delivery (e-mail)
type Report struct {
	GeneratedAt   time.Time     `json:"generated_at"`
	ChannelName   string        `json:"channel_name"`
	Days          int           `json:"days"`
	TotalMessages int           `json:"total_messages"`
	TotalSenders  int           `json:"total_senders"`
	TopPairs      []PairCount   `json:"top_pairs"`
	TopSenders    []SenderCount `json:"top_senders"`
	URL           string        `json:"url"`
}
