package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klarolink/notifications/internal/domain"
	"github.com/klarolink/notifications/internal/notifyclient"
)

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig([]string{"--user-id", "admin-1", "--categories", "Billing,Reviews", "--poll-interval", "5s"})
	require.NoError(t, err)

	assert.Equal(t, "admin-1", cfg.UserID)
	assert.Equal(t, []string{"Billing", "Reviews"}, cfg.Categories)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "http://localhost:3000", cfg.APIURL)
	assert.True(t, cfg.Toasts)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user-id: from-file\napi-url: http://api.internal\n"), 0o600))
	t.Setenv("NOTIFY_WATCH_API_URL", "http://from-env")

	cfg, err := loadConfig([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.UserID)
	assert.Equal(t, "http://from-env", cfg.APIURL)
}

func TestLoadConfigRequiresUser(t *testing.T) {
	_, err := loadConfig(nil)
	assert.ErrorContains(t, err, "user-id")
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)
	st := notifyclient.State{
		Notifications: []*domain.Notification{
			{ID: 1, Priority: domain.PriorityCritical, Status: domain.StatusInProgress, EstimatedCompletion: &due},
			{ID: 2, Priority: domain.PriorityLow, Status: domain.StatusCompleted, EstimatedCompletion: &due, IsRead: true},
		},
		Status: notifyclient.ConnectionStatus{ReconnectAttempts: 2},
	}

	assert.Equal(t, "[reconnecting (attempt 2)] 2 notifications, 1 unread, 1 critical, 1 overdue", summarize(st, now))

	st.Status.Connected = true
	st.Err = "boom"
	assert.Equal(t, "[live] 2 notifications, 1 unread, 1 critical, 1 overdue | error: boom", summarize(st, now))
}
