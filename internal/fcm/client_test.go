package fcm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klarolink/notifications/internal/domain"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "klarolink-business-intelligence-and-analytics", Topic("klarolink-", "Business Intelligence and Analytics"))
	assert.Equal(t, "klarolink-r-d", Topic("klarolink-", "R & D"))
	assert.Equal(t, "billing", Topic("", "  Billing!! "))
}

func TestBuildMessage(t *testing.T) {
	desc := "Nightly export failed twice"
	msg := buildMessage("klarolink-", &domain.Notification{
		ID:          12,
		Category:    "Billing",
		Priority:    domain.PriorityCritical,
		Status:      domain.StatusFailed,
		Title:       "Export failed",
		Description: &desc,
	})

	assert.Equal(t, "klarolink-billing", msg.Topic)
	assert.Equal(t, "Export failed", msg.Notification.Title)
	assert.Equal(t, desc, msg.Notification.Body)
	assert.Equal(t, "12", msg.Data["notification_id"])
	assert.Equal(t, "critical", msg.Data["priority"])
}

func TestNilClientPushIsNoop(t *testing.T) {
	var c *Client
	assert.NoError(t, c.PushNotification(&domain.Notification{ID: 1}))
}
