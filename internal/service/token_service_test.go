package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "s3cret", Issuer: "loadsim", Expiration: time.Hour})

	token, expiresAt, err := svc.Issue("ops@example.com", models.RoleOperator)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, claims.Role)
	assert.Equal(t, "ops@example.com", claims.Subject)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "s3cret", Issuer: "loadsim", Expiration: time.Minute})
	token, _, err := svc.Issue("ops", models.RoleViewer)
	require.NoError(t, err)

	other := NewTokenService(config.JWTConfig{Secret: "different", Issuer: "loadsim"})
	_, err = other.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, _, err = svc.Issue("ops", "admin")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
