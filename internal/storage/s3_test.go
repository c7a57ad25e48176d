package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	internalConfig "github.com/klarolink/notifications/internal/config"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "notification-archive/a.ndjson", objectKey("a.ndjson"))
	assert.Equal(t, "notification-archive/b.ndjson", objectKey("../../b.ndjson"))
	assert.Equal(t, "notification-archive/c.ndjson", objectKey(`dir\c.ndjson`))
}

func TestS3Location(t *testing.T) {
	s := &S3Storage{bucket: "exports"}
	assert.Equal(t, "s3://exports/notification-archive/a.ndjson", s.location("notification-archive/a.ndjson"))

	s.publicURL = "https://cdn.klarolink.com"
	assert.Equal(t, "https://cdn.klarolink.com/notification-archive/a.ndjson", s.location("notification-archive/a.ndjson"))
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), internalConfig.StorageConfig{Region: "auto"})
	assert.Error(t, err)
}
