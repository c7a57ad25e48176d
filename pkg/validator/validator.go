package validator

import (
	"strings"

	"github.com/klarolink/notifications/internal/domain"
)

const (
	MaxTitleLength       = 255
	MaxCategoryLength    = 100
	MaxDescriptionLength = 4000
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// ValidateCreate checks a create request. Empty priority and status are
// allowed; the service fills in defaults.
func ValidateCreate(p *domain.CreateNotificationParams) ValidationErrors {
	var errs ValidationErrors

	p.Title = strings.TrimSpace(p.Title)
	p.Category = strings.TrimSpace(p.Category)
	if p.Description != nil {
		desc := SanitizeString(*p.Description, MaxDescriptionLength)
		p.Description = &desc
	}

	switch {
	case p.Title == "":
		errs.Add("title", "is required")
	case len(p.Title) > MaxTitleLength:
		errs.Add("title", "is too long")
	}
	switch {
	case p.Category == "":
		errs.Add("category", "is required")
	case len(p.Category) > MaxCategoryLength:
		errs.Add("category", "is too long")
	}
	if p.Priority != "" && !p.Priority.Valid() {
		errs.Add("priority", "must be one of low, medium, high, critical")
	}
	if p.Status != "" && !p.Status.Valid() {
		errs.Add("status", "must be one of pending, in_progress, completed, failed, cancelled")
	}
	validateProgress(&errs, p.ProgressPercentage)

	return errs
}

// ValidateUpdate checks a partial update
func ValidateUpdate(p *domain.UpdateNotificationParams) ValidationErrors {
	var errs ValidationErrors

	if p.Empty() {
		errs.Add("body", "no fields to update")
		return errs
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
		if title == "" || len(title) > MaxTitleLength {
			errs.Add("title", "must be between 1 and 255 characters")
		}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		errs.Add("priority", "must be one of low, medium, high, critical")
	}
	if p.Status != nil && !p.Status.Valid() {
		errs.Add("status", "must be one of pending, in_progress, completed, failed, cancelled")
	}
	validateProgress(&errs, p.ProgressPercentage)

	return errs
}

func validateProgress(errs *ValidationErrors, progress *int) {
	if progress != nil && (*progress < 0 || *progress > 100) {
		errs.Add("progress_percentage", "must be between 0 and 100")
	}
}

// SanitizeString trims whitespace and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
