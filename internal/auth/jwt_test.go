package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateToken("ops@klarolink.com", RoleAdmin)
	require.NoError(t, err)

	claims, err := m.ValidateAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@klarolink.com", claims.Subject)
}

func TestValidateAdminTokenRejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	viewer, err := m.GenerateToken("viewer", "viewer")
	require.NoError(t, err)
	_, err = m.ValidateAdminToken(viewer)
	assert.ErrorIs(t, err, ErrNotAdmin)

	expired, err := NewJWTManager("test-secret", -time.Minute).GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = m.ValidateAdminToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	foreign, err := NewJWTManager("other-secret", time.Hour).GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = m.ValidateAdminToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
