package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOverdueIgnoresTerminalStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	n := &Notification{Status: StatusCompleted, EstimatedCompletion: &past}
	assert.False(t, n.IsOverdue(now))

	n.Status = StatusPending
	assert.True(t, n.IsOverdue(now))

	for _, s := range []NotificationStatus{StatusFailed, StatusCancelled} {
		n.Status = s
		assert.False(t, n.IsOverdue(now), s)
	}
}

func TestIsOverdueNeedsEstimate(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)

	assert.False(t, (&Notification{Status: StatusInProgress}).IsOverdue(now))
	assert.False(t, (&Notification{Status: StatusInProgress, EstimatedCompletion: &future}).IsOverdue(now))
}

func TestNotificationType(t *testing.T) {
	cases := []struct {
		status   NotificationStatus
		priority Priority
		want     NotificationType
	}{
		{StatusFailed, PriorityLow, TypeError},
		{StatusCompleted, PriorityCritical, TypeSuccess},
		{StatusCancelled, PriorityHigh, TypeInfo},
		{StatusPending, PriorityCritical, TypeWarning},
		{StatusInProgress, PriorityHigh, TypeWarning},
		{StatusPending, PriorityMedium, TypeInfo},
	}
	for _, tc := range cases {
		n := &Notification{Status: tc.status, Priority: tc.priority}
		assert.Equal(t, tc.want, n.Type(), "%s/%s", tc.status, tc.priority)
	}
}

func TestDecorateSerialisesViewFlags(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	n := (&Notification{ID: 7, Status: StatusPending, Priority: PriorityHigh, EstimatedCompletion: &past}).Decorate(now)

	raw, err := json.Marshal(n)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, true, body["is_overdue"])
	assert.Equal(t, "warning", body["notification_type"])
}

func TestPriorityOrder(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityCritical.Rank())
	assert.False(t, Priority("urgent").Valid())
}

func TestComputeStats(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	ns := []*Notification{
		{Status: StatusPending, Priority: PriorityCritical, EstimatedCompletion: &past},
		{Status: StatusCompleted, Priority: PriorityLow, EstimatedCompletion: &past, IsRead: true},
		{Status: StatusInProgress, Priority: PriorityHigh},
		{Status: StatusFailed, Priority: PriorityCritical, IsRead: true},
	}

	st := ComputeStats(ns, now)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.InProgress)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 2, st.Critical)
	assert.Equal(t, 2, st.Unread)
	assert.Equal(t, 1, st.Overdue)
}

func TestEnvelopeRequestAccessors(t *testing.T) {
	var top Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"mark_read","notification_id":42,"timestamp":"x"}`), &top))
	id, ok := top.RequestedNotificationID()
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)

	var nested Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"subscribe_categories","data":{"categories":["a","b"]}}`), &nested))
	assert.Equal(t, []string{"a", "b"}, nested.RequestedCategories())

	_, ok = nested.RequestedNotificationID()
	assert.False(t, ok)
}
