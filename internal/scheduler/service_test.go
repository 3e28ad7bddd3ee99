package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/mentionmap/slack-mention-map/internal/analysis"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, req analysis.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func scheduledConfig() *config.Config {
	return &config.Config{
		ScheduleCron:      "0 0 9 * * MON",
		ScheduleChannelID: "C1",
		ScheduleUserID:    "U1",
		ScheduleDays:      14,
	}
}

func TestService_Start(t *testing.T) {
	tests := []struct {
		name    string
		cron    string
		wantErr bool
		entries int
	}{
		{name: "Disabled", cron: "", entries: 0},
		{name: "Weekly", cron: "0 0 9 * * MON", entries: 1},
		{name: "Invalid expression", cron: "every monday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := scheduledConfig()
			cfg.ScheduleCron = tt.cron
			s := NewService(context.Background(), cfg, &MockRunner{})
			defer s.Stop()

			err := s.Start()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, s.cron.Entries(), tt.entries)
		})
	}
}

func TestService_RunScheduled(t *testing.T) {
	want := analysis.Request{ChannelID: "C1", UserID: "U1", Days: 14}

	tests := []struct {
		name string
		err  error
	}{
		{name: "Success"},
		{name: "Busy is skipped", err: analysis.ErrBusy},
		{name: "Failure is logged", err: errors.New("channel_not_found")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			runner := &MockRunner{}
			runner.On("Run", ctx, want).Return(tt.err).Once()
			s := NewService(ctx, scheduledConfig(), runner)

			assert.NotPanics(t, s.runScheduled)
			runner.AssertExpectations(t)
		})
	}
}
