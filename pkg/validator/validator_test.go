package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klarolink/notifications/internal/domain"
)

func fields(errs ValidationErrors) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateCreate(t *testing.T) {
	progress := 140
	p := &domain.CreateNotificationParams{
		Title:              "  ",
		Category:           strings.Repeat("x", MaxCategoryLength+1),
		Priority:           "urgent",
		ProgressPercentage: &progress,
	}

	errs := ValidateCreate(p)

	assert.ElementsMatch(t, []string{"title", "category", "priority", "progress_percentage"}, fields(errs))
	assert.Contains(t, errs.Error(), "title: is required")
}

func TestValidateCreateTrims(t *testing.T) {
	desc := "  nightly run  "
	p := &domain.CreateNotificationParams{Title: " Export ", Category: " Billing ", Description: &desc}

	assert.False(t, ValidateCreate(p).HasErrors())
	assert.Equal(t, "Export", p.Title)
	assert.Equal(t, "Billing", p.Category)
	assert.Equal(t, "nightly run", *p.Description)
}

func TestValidateUpdate(t *testing.T) {
	assert.Equal(t, []string{"body"}, fields(ValidateUpdate(&domain.UpdateNotificationParams{})))

	status := domain.NotificationStatus("done")
	assert.Equal(t, []string{"status"}, fields(ValidateUpdate(&domain.UpdateNotificationParams{Status: &status})))

	read := true
	assert.Empty(t, ValidateUpdate(&domain.UpdateNotificationParams{IsRead: &read}))
}
