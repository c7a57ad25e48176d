package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klarolink/notifications/internal/auth"
)

func TestIssueAdminToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, issueAdminToken(&out, "s3cret", "ops@klarolink"))

	token := strings.TrimSpace(out.String())
	claims, err := auth.NewJWTManager("s3cret", adminTokenExpiry).ValidateAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@klarolink", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestIssueAdminTokenRequiresSecret(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorContains(t, issueAdminToken(&out, "", "ops@klarolink"), "ADMIN_JWT_SECRET")
	assert.Empty(t, out.String())
}
