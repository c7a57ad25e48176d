package repository

import (
	"fmt"
	"strings"

	"github.com/klarolink/notifications/internal/domain"
)

// whereClause builds a WHERE fragment for filter. Placeholders start at $1;
// the returned args line up with them.
func whereClause(filter domain.NotificationFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(format string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if len(filter.Categories) > 0 {
		add("category = ANY($%d)", filter.Categories)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", enumStrings(filter.Statuses))
	}
	if len(filter.Priorities) > 0 {
		add("priority = ANY($%d)", enumStrings(filter.Priorities))
	}
	if filter.IsRead != nil {
		add("is_read = $%d", *filter.IsRead)
	}
	archived := false
	if filter.IsArchived != nil {
		archived = *filter.IsArchived
	}
	add("is_archived = $%d", archived)
	if filter.OverdueOnly {
		conds = append(conds, overdueCondition)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

const overdueCondition = `estimated_completion < NOW() AND status NOT IN ('completed', 'failed', 'cancelled')`

func enumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// updateSet builds the SET list of a partial update. Placeholders start at $2;
// $1 is reserved for the row id.
func updateSet(p domain.UpdateNotificationParams) (string, []interface{}) {
	sets := []string{"updated_at = NOW()"}
	var args []interface{}
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}

	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.Priority != nil {
		add("priority", string(*p.Priority))
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Metadata != nil {
		add("metadata", map[string]interface{}(p.Metadata))
	}
	if p.ProgressPercentage != nil {
		add("progress_percentage", *p.ProgressPercentage)
	}
	if p.EstimatedCompletion != nil {
		add("estimated_completion", *p.EstimatedCompletion)
	}
	if p.ActualCompletion != nil {
		add("actual_completion", *p.ActualCompletion)
	}
	if p.IsRead != nil {
		add("is_read", *p.IsRead)
	}
	if p.IsArchived != nil {
		add("is_archived", *p.IsArchived)
	}
	return strings.Join(sets, ", "), args
}
