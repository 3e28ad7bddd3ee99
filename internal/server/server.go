package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/mentionmap/slack-mention-map/internal/analysis"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/mentionmap/slack-mention-map/internal/metrics"
	"github.com/mentionmap/slack-mention-map/internal/snapshot"
	"github.com/sirupsen/logrus"
)

//go:embed page.html
var page []byte

const maxCommandBody = 1 << 20

// Runner is the part of the analysis service the HTTP layer drives
type Runner interface {
	Start(ctx context.Context, req analysis.Request) error
	Cancel() bool
	GetStatus() string
}

// Server serves the visualization page, the latest snapshot and the
// operational endpoints
type Server struct {
	config  *config.Config
	store   *snapshot.Store
	runner  Runner
	metrics metrics.Recorder
	cache   ResponseCache

	// runs outlive the request that started them
	baseCtx context.Context

	encode func(v any) ([]byte, error)
	now    func() time.Time

	httpServer *http.Server
}

// NewServer wires the router. baseCtx is the parent of every run started over HTTP.
func NewServer(baseCtx context.Context, cfg *config.Config, store *snapshot.Store, runner Runner, recorder metrics.Recorder, cache ResponseCache) *Server {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	if cache == nil {
		cache = noopCache{}
	}

	s := &Server{
		config:  cfg,
		store:   store,
		runner:  runner,
		metrics: recorder,
		cache:   cache,
		baseCtx: baseCtx,
		encode:  json.Marshal,
		now:     time.Now,
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the full handler chain: router, metrics, gzip
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.metricsMiddleware)

	router.HandleFunc("/", s.handlePage).Methods("GET")
	router.HandleFunc("/data", s.handleData).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/status", s.handleStatus).Methods("GET")
	if s.config.MetricsEnabled {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	router.HandleFunc("/trigger", s.handleTrigger).Methods("POST")
	router.HandleFunc("/slack/commands", s.handleSlashCommand).Methods("POST")

	return gzhttp.GzipHandler(router)
}

// Serve blocks serving on ln until Shutdown is called
func (s *Server) Serve(ln net.Listener) error {
	logrus.Infof("HTTP server listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Listen binds the first free TCP port in [start, start+attempts).
func Listen(start, attempts int) (net.Listener, int, error) {
	for port := start; port < start+attempts; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			logrus.Debugf("Port %d unavailable: %v", port, err)
			continue
		}
		return ln, port, nil
	}
	return nil, 0, fmt.Errorf("no free port in range %d-%d", start, start+attempts-1)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.runner.GetStatus()))
}

// triggerRequest is the /trigger body. days may be a number or a string.
type triggerRequest struct {
	ChannelID string          `json:"channel_id"`
	UserID    string          `json:"user_id"`
	Days      json.RawMessage `json:"days"`
}

// triggerDays reads the window like the slash command does: anything
// unusable falls back to the default.
func triggerDays(raw json.RawMessage) int {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return analysis.ParseDays(text)
	}
	return analysis.ParseDays(string(raw))
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if body.ChannelID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel_id is required"})
		return
	}
	req := analysis.Request{ChannelID: body.ChannelID, UserID: body.UserID, Days: triggerDays(body.Days)}

	if err := s.runner.Start(s.baseCtx, req); err != nil {
		if errors.Is(err, analysis.ErrBusy) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		logrus.Errorf("Manual trigger failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":    "Analysis triggered successfully",
		"channel_id": req.ChannelID,
		"days":       req.Days,
	})
}

// handleSlashCommand answers "/mention-map [days|cancel]". Slack expects a
// reply within three seconds, so the run itself continues in the background.
func (s *Server) handleSlashCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if s.config.SlackSigningSecret != "" {
		if err := verifySlackSignature(s.config.SlackSigningSecret, r.Header, body, s.now()); err != nil {
			logrus.Warnf("Rejected slash command: %v", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(form.Get("text"))
	if strings.EqualFold(text, "cancel") {
		if s.runner.Cancel() {
			writeEphemeral(w, "Cancelling the running analysis...")
		} else {
			writeEphemeral(w, "No analysis is running.")
		}
		return
	}

	channelID := form.Get("channel_id")
	if channelID == "" {
		writeEphemeral(w, "This command must be run from a channel.")
		return
	}

	days := analysis.ParseDays(text)
	req := analysis.Request{ChannelID: channelID, UserID: form.Get("user_id"), Days: days}
	if err := s.runner.Start(s.baseCtx, req); err != nil {
		if errors.Is(err, analysis.ErrBusy) {
			writeEphemeral(w, "Another analysis is already running. Please try again when it finishes.")
			return
		}
		logrus.Errorf("Slash command failed to start analysis: %v", err)
		writeEphemeral(w, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	writeEphemeral(w, fmt.Sprintf("Analysing mentions over the last %d days. Progress updates will arrive by DM.", days))
}

func writeEphemeral(w http.ResponseWriter, text string) {
	writeJSON(w, http.StatusOK, map[string]string{
		"response_type": "ephemeral",
		"text":          text,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
