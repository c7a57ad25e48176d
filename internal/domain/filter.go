package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// NotificationFilter selects notifications for listing and bulk actions.
// Zero values mean "no constraint", except IsArchived which the store
// treats as false when unset.
type NotificationFilter struct {
	Categories  []string             `json:"categories,omitempty"`
	Statuses    []NotificationStatus `json:"statuses,omitempty"`
	Priorities  []Priority           `json:"priorities,omitempty"`
	IsRead      *bool                `json:"is_read,omitempty"`
	IsArchived  *bool                `json:"is_archived,omitempty"`
	OverdueOnly bool                 `json:"overdue_only,omitempty"`
	Limit       int                  `json:"limit,omitempty"`
	Offset      int                  `json:"offset,omitempty"`
}

// Merge returns f with every field set in o laid over it.
func (f NotificationFilter) Merge(o NotificationFilter) NotificationFilter {
	if len(o.Categories) > 0 {
		f.Categories = o.Categories
	}
	if len(o.Statuses) > 0 {
		f.Statuses = o.Statuses
	}
	if len(o.Priorities) > 0 {
		f.Priorities = o.Priorities
	}
	if o.IsRead != nil {
		f.IsRead = o.IsRead
	}
	if o.IsArchived != nil {
		f.IsArchived = o.IsArchived
	}
	if o.OverdueOnly {
		f.OverdueOnly = true
	}
	if o.Limit > 0 {
		f.Limit = o.Limit
	}
	if o.Offset > 0 {
		f.Offset = o.Offset
	}
	return f
}

// Validate checks enum members and clamps paging.
func (f *NotificationFilter) Validate() error {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, s)
		}
	}
	for _, p := range f.Priorities {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown priority %q", ErrInvalidFilter, p)
		}
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: negative offset", ErrInvalidFilter)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return nil
}

// Values encodes f as query parameters.
func (f NotificationFilter) Values() url.Values {
	v := url.Values{}
	if len(f.Categories) > 0 {
		v.Set("category", strings.Join(f.Categories, ","))
	}
	if len(f.Statuses) > 0 {
		parts := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			parts[i] = string(s)
		}
		v.Set("status", strings.Join(parts, ","))
	}
	if len(f.Priorities) > 0 {
		parts := make([]string, len(f.Priorities))
		for i, p := range f.Priorities {
			parts[i] = string(p)
		}
		v.Set("priority", strings.Join(parts, ","))
	}
	if f.IsRead != nil {
		v.Set("is_read", strconv.FormatBool(*f.IsRead))
	}
	if f.IsArchived != nil {
		v.Set("is_archived", strconv.FormatBool(*f.IsArchived))
	}
	if f.OverdueOnly {
		v.Set("overdue_only", "true")
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	return v
}

// ParseNotificationFilter decodes query parameters produced by Values.
// Repeated category parameters are accepted alongside comma lists.
func ParseNotificationFilter(q url.Values) (NotificationFilter, error) {
	var f NotificationFilter
	f.Categories = splitList(q["category"])
	for _, s := range splitList(q["status"]) {
		f.Statuses = append(f.Statuses, NotificationStatus(s))
	}
	for _, p := range splitList(q["priority"]) {
		f.Priorities = append(f.Priorities, Priority(p))
	}

	var err error
	if f.IsRead, err = parseOptionalBool(q.Get("is_read")); err != nil {
		return f, fmt.Errorf("%w: is_read: %v", ErrInvalidFilter, err)
	}
	if f.IsArchived, err = parseOptionalBool(q.Get("is_archived")); err != nil {
		return f, fmt.Errorf("%w: is_archived: %v", ErrInvalidFilter, err)
	}
	if raw := q.Get("overdue_only"); raw != "" {
		if f.OverdueOnly, err = strconv.ParseBool(raw); err != nil {
			return f, fmt.Errorf("%w: overdue_only: %v", ErrInvalidFilter, err)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			return f, fmt.Errorf("%w: limit: %v", ErrInvalidFilter, err)
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil {
			return f, fmt.Errorf("%w: offset: %v", ErrInvalidFilter, err)
		}
	}
	return f, f.Validate()
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
