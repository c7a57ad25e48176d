package domain

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationFilter(t *testing.T) {
	q := url.Values{
		"category": {"Billing,Reviews", "Analytics"},
		"status":   {"pending,in_progress"},
		"priority": {"critical"},
		"is_read":  {"false"},
		"limit":    {"500"},
	}

	f, err := ParseNotificationFilter(q)
	require.NoError(t, err)

	assert.Equal(t, []string{"Billing", "Reviews", "Analytics"}, f.Categories)
	assert.Equal(t, []NotificationStatus{StatusPending, StatusInProgress}, f.Statuses)
	assert.Equal(t, []Priority{PriorityCritical}, f.Priorities)
	require.NotNil(t, f.IsRead)
	assert.False(t, *f.IsRead)
	assert.Nil(t, f.IsArchived)
	assert.Equal(t, MaxListLimit, f.Limit)
}

func TestParseNotificationFilterRejectsUnknownEnums(t *testing.T) {
	_, err := ParseNotificationFilter(url.Values{"status": {"done"}})
	assert.True(t, errors.Is(err, ErrInvalidFilter))

	_, err = ParseNotificationFilter(url.Values{"is_read": {"maybe"}})
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestFilterValuesParseBack(t *testing.T) {
	read := true
	in := NotificationFilter{
		Categories: []string{"Billing"},
		Statuses:   []NotificationStatus{StatusFailed},
		IsRead:     &read,
		Limit:      10,
		Offset:     20,
	}

	out, err := ParseNotificationFilter(in.Values())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFilterMerge(t *testing.T) {
	archived := false
	base := NotificationFilter{Categories: []string{"Billing"}, IsArchived: &archived, Limit: 25}

	merged := base.Merge(NotificationFilter{Priorities: []Priority{PriorityHigh}, Limit: 5})

	assert.Equal(t, []string{"Billing"}, merged.Categories)
	assert.Equal(t, []Priority{PriorityHigh}, merged.Priorities)
	assert.Equal(t, 5, merged.Limit)
	assert.Same(t, &archived, merged.IsArchived)
	assert.Equal(t, 25, base.Limit)
}
