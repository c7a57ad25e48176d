package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klarolink/notifications/internal/domain"
)

func TestWhereClauseDefaultsToUnarchived(t *testing.T) {
	where, args := whereClause(domain.NotificationFilter{})
	assert.Equal(t, "WHERE is_archived = $1", where)
	assert.Equal(t, []interface{}{false}, args)
}

func TestWhereClauseNumbersPlaceholders(t *testing.T) {
	unread := false
	where, args := whereClause(domain.NotificationFilter{
		Categories:  []string{"Billing"},
		Priorities:  []domain.Priority{domain.PriorityCritical, domain.PriorityHigh},
		IsRead:      &unread,
		OverdueOnly: true,
	})

	assert.Equal(t,
		"WHERE category = ANY($1) AND priority = ANY($2) AND is_read = $3 AND is_archived = $4 AND "+overdueCondition,
		where)
	assert.Equal(t, []interface{}{[]string{"Billing"}, []string{"critical", "high"}, false, false}, args)
}

func TestUpdateSetStartsAfterID(t *testing.T) {
	read := true
	status := domain.StatusFailed
	set, args := updateSet(domain.UpdateNotificationParams{Status: &status, IsRead: &read})

	assert.Equal(t, "updated_at = NOW(), status = $2, is_read = $3", set)
	assert.Equal(t, []interface{}{"failed", true}, args)
}
