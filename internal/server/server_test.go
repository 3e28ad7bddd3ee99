package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mentionmap/slack-mention-map/internal/analysis"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/mentionmap/slack-mention-map/internal/metrics"
	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/mentionmap/slack-mention-map/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Start(ctx context.Context, req analysis.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockRunner) Cancel() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockRunner) GetStatus() string {
	args := m.Called()
	return args.String(0)
}

type requestCount struct {
	endpoint string
	status   int
}

// recordingMetrics captures request counters and ignores the rest
type recordingMetrics struct {
	metrics.Noop
	mu       sync.Mutex
	requests []requestCount
}

func (r *recordingMetrics) IncRequestsTotal(endpoint string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, requestCount{endpoint, status})
}

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg *config.Config, runner Runner) (*Server, *snapshot.Store) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	store := snapshot.NewStore()
	s := NewServer(context.Background(), cfg, store, runner, metrics.Noop{}, NewResponseCache(1))
	s.now = func() time.Time { return fixedNow }
	return s, store
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func sampleSnapshot() *models.Snapshot {
	return &models.Snapshot{
		ID:           "run-1",
		ChannelID:    "C1",
		ChannelName:  "general",
		WindowDays:   30,
		GeneratedAt:  time.Unix(1714564800, 500000000),
		MessageCount: 3,
		Mentions:     models.MentionMatrix{"Alice": {"Bob": 2, models.NoMention: 1}},
		Heatmap:      models.HeatmapMatrix{"Alice": {"2024-05-01": 3}},
	}
}

func TestHandleData(t *testing.T) {
	tests := []struct {
		name    string
		publish *models.Snapshot
		want    string
	}{
		{
			name: "Nothing published yet",
			want: `{"mention_data":null,"heatmap_data":null,"channel_name":null,"days":null,"timestamp":null}`,
		},
		{
			name: "Empty but present snapshot",
			publish: &models.Snapshot{
				ID:          "empty",
				ChannelName: "quiet",
				WindowDays:  7,
				GeneratedAt: time.Unix(1714564800, 0),
				Mentions:    models.MentionMatrix{},
				Heatmap:     models.HeatmapMatrix{},
			},
			want: `{"mention_data":{},"heatmap_data":{},"channel_name":"quiet","days":7,"timestamp":1714564800}`,
		},
		{
			name:    "Populated snapshot",
			publish: sampleSnapshot(),
			want:    `{"mention_data":{"Alice":{"Bob":2,"N/A":1}},"heatmap_data":{"Alice":{"2024-05-01":3}},"channel_name":"general","days":30,"timestamp":1714564800.5}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestServer(t, nil, &MockRunner{})
			if tt.publish != nil {
				store.Publish(tt.publish)
			}

			rr := do(t, s, httptest.NewRequest(http.MethodGet, "/data", nil))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.want, rr.Body.String())
		})
	}
}

func TestHandleData_EncodeFailure(t *testing.T) {
	s, store := newTestServer(t, nil, &MockRunner{})
	store.Publish(sampleSnapshot())
	s.encode = func(any) ([]byte, error) { return nil, errors.New("boom") }

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/data", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"boom"}`, rr.Body.String())
}

func TestHandleData_CachedPerSnapshot(t *testing.T) {
	s, store := newTestServer(t, nil, &MockRunner{})
	calls := 0
	s.encode = func(v any) ([]byte, error) {
		calls++
		return json.Marshal(v)
	}

	store.Publish(sampleSnapshot())
	first := do(t, s, httptest.NewRequest(http.MethodGet, "/data", nil))
	second := do(t, s, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	next := sampleSnapshot()
	next.ID = "run-2"
	next.ChannelName = "random"
	store.Publish(next)
	third := do(t, s, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Contains(t, third.Body.String(), `"channel_name":"random"`)
	assert.Equal(t, 2, calls)
}

func TestHandlePage(t *testing.T) {
	s, _ := newTestServer(t, nil, &MockRunner{})

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "fetch('/data')")
}

func TestHandlePage_Gzip(t *testing.T) {
	s, _ := newTestServer(t, nil, &MockRunner{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	rr := do(t, s, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
}

func TestHandleHealthAndStatus(t *testing.T) {
	runner := &MockRunner{}
	runner.On("GetStatus").Return(`{"running":false,"total_runs":3}`)
	s, _ := newTestServer(t, nil, runner)

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2024-05-01T12:00:00Z"}`, rr.Body.String())

	rr = do(t, s, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"running":false,"total_runs":3}`, rr.Body.String())
}

func TestHandleMetrics(t *testing.T) {
	t.Run("Enabled", func(t *testing.T) {
		cfg := &config.Config{MetricsEnabled: true}
		s := NewServer(context.Background(), cfg, snapshot.NewStore(), &MockRunner{}, metrics.New(true), nil)

		rr := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})

	t.Run("Disabled", func(t *testing.T) {
		s, _ := newTestServer(t, &config.Config{MetricsEnabled: false}, &MockRunner{})

		rr := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &recordingMetrics{}
	s := NewServer(context.Background(), &config.Config{}, snapshot.NewStore(), &MockRunner{}, rec, nil)

	do(t, s, httptest.NewRequest(http.MethodGet, "/data", nil))
	do(t, s, httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader("{")))

	assert.Equal(t, []requestCount{
		{"/data", http.StatusOK},
		{"/trigger", http.StatusBadRequest},
	}, rec.requests)
}

func TestHandleTrigger(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		expectRun  *analysis.Request
		wantStatus int
	}{
		{
			name:       "Started",
			body:       `{"channel_id":"C1","user_id":"U1","days":7}`,
			expectRun:  &analysis.Request{ChannelID: "C1", UserID: "U1", Days: 7},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "Days defaulted",
			body:       `{"channel_id":"C1"}`,
			expectRun:  &analysis.Request{ChannelID: "C1", Days: analysis.DefaultDays},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "Days as string",
			body:       `{"channel_id":"C1","days":"14"}`,
			expectRun:  &analysis.Request{ChannelID: "C1", Days: 14},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "Non-numeric days defaulted",
			body:       `{"channel_id":"C1","days":"abc"}`,
			expectRun:  &analysis.Request{ChannelID: "C1", Days: analysis.DefaultDays},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "Fractional days defaulted",
			body:       `{"channel_id":"C1","days":2.5}`,
			expectRun:  &analysis.Request{ChannelID: "C1", Days: analysis.DefaultDays},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "Oversized days capped",
			body:       `{"channel_id":"C1","days":9999}`,
			expectRun:  &analysis.Request{ChannelID: "C1", Days: analysis.MaxDays},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "Busy",
			body:       `{"channel_id":"C1","days":7}`,
			startErr:   analysis.ErrBusy,
			expectRun:  &analysis.Request{ChannelID: "C1", Days: 7},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Missing channel",
			body:       `{"days":7}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Malformed body",
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{}
			if tt.expectRun != nil {
				runner.On("Start", mock.Anything, *tt.expectRun).Return(tt.startErr).Once()
			}
			s, _ := newTestServer(t, nil, runner)

			rr := do(t, s, httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rr.Code)
			runner.AssertExpectations(t)
			if tt.expectRun == nil {
				runner.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
			}
		})
	}
}

func slashRequest(t *testing.T, form url.Values, sign bool, ts time.Time) *http.Request {
	t.Helper()
	body := form.Encode()
	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sign {
		stamp := strconv.FormatInt(ts.Unix(), 10)
		req.Header.Set("X-Slack-Request-Timestamp", stamp)
		req.Header.Set("X-Slack-Signature", signSlackRequest(testSecret, stamp, []byte(body)))
	}
	return req
}

func ephemeralText(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ephemeral", resp["response_type"])
	return resp["text"]
}

func TestHandleSlashCommand_Signature(t *testing.T) {
	cfg := &config.Config{SlackSigningSecret: testSecret}
	form := url.Values{"channel_id": {"C1"}, "user_id": {"U1"}, "text": {"7"}}

	t.Run("Unsigned rejected", func(t *testing.T) {
		runner := &MockRunner{}
		s, _ := newTestServer(t, cfg, runner)

		rr := do(t, s, slashRequest(t, form, false, fixedNow))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		runner.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	})

	t.Run("Stale rejected", func(t *testing.T) {
		runner := &MockRunner{}
		s, _ := newTestServer(t, cfg, runner)

		rr := do(t, s, slashRequest(t, form, true, fixedNow.Add(-10*time.Minute)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Signed accepted", func(t *testing.T) {
		runner := &MockRunner{}
		runner.On("Start", mock.Anything, analysis.Request{ChannelID: "C1", UserID: "U1", Days: 7}).Return(nil).Once()
		s, _ := newTestServer(t, cfg, runner)

		rr := do(t, s, slashRequest(t, form, true, fixedNow))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, ephemeralText(t, rr), "last 7 days")
		runner.AssertExpectations(t)
	})
}

func TestHandleSlashCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		setup    func(r *MockRunner)
		wantText string
	}{
		{
			name: "Default window",
			text: "",
			setup: func(r *MockRunner) {
				r.On("Start", mock.Anything, analysis.Request{ChannelID: "C1", UserID: "U1", Days: 30}).Return(nil)
			},
			wantText: "last 30 days",
		},
		{
			name: "Clamped window",
			text: "1000",
			setup: func(r *MockRunner) {
				r.On("Start", mock.Anything, analysis.Request{ChannelID: "C1", UserID: "U1", Days: 365}).Return(nil)
			},
			wantText: "last 365 days",
		},
		{
			name: "Busy",
			text: "14",
			setup: func(r *MockRunner) {
				r.On("Start", mock.Anything, mock.Anything).Return(analysis.ErrBusy)
			},
			wantText: "already running",
		},
		{
			name: "Cancel running",
			text: "cancel",
			setup: func(r *MockRunner) {
				r.On("Cancel").Return(true)
			},
			wantText: "Cancelling",
		},
		{
			name: "Cancel idle",
			text: " Cancel ",
			setup: func(r *MockRunner) {
				r.On("Cancel").Return(false)
			},
			wantText: "No analysis is running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{}
			tt.setup(runner)
			s, _ := newTestServer(t, nil, runner)
			form := url.Values{"channel_id": {"C1"}, "user_id": {"U1"}, "text": {tt.text}}

			rr := do(t, s, slashRequest(t, form, false, fixedNow))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, ephemeralText(t, rr), tt.wantText)
			runner.AssertExpectations(t)
		})
	}
}

func TestListen(t *testing.T) {
	held, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer held.Close()
	heldPort := held.Addr().(*net.TCPAddr).Port

	t.Run("Skips a busy port", func(t *testing.T) {
		ln, port, err := Listen(heldPort, 5)
		require.NoError(t, err)
		defer ln.Close()

		assert.Greater(t, port, heldPort)
		assert.Equal(t, port, ln.Addr().(*net.TCPAddr).Port)
	})

	t.Run("No free port", func(t *testing.T) {
		_, _, err := Listen(heldPort, 1)
		assert.ErrorContains(t, err, "no free port")
	})
}
