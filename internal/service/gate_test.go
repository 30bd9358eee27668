package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/pkg/auth"
)

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.createUser(t, "Miyah Myles", "miyah@example.com", "pass1234", domain.RoleLeadGuide)

	token, err := h.tokens.Issue(u.ID)
	require.NoError(t, err)

	t.Run("valid token resolves the user", func(t *testing.T) {
		got, err := h.gate.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, domain.RoleLeadGuide, got.Role)
	})

	tests := []struct {
		name    string
		token   string
		message string
		reason  string
	}{
		{"missing", "", "You are not logged in! Please log in to get access.", "missing_token"},
		{"garbage", "not.a.jwt", "Invalid token. Please log in again!", "invalid_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.gate.Authenticate(ctx, tt.token)
			require.ErrorIs(t, err, domain.ErrUnauthenticated)
			msg, ok := domain.SafeMessage(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, msg)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthFailures.WithLabelValues(tt.reason)))
		})
	}

	t.Run("signed with another secret", func(t *testing.T) {
		forged, err := auth.NewTokenService("other-secret", time.Hour).WithClock(h.clock.Now).Issue(u.ID)
		require.NoError(t, err)
		_, err = h.gate.Authenticate(ctx, forged)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("deactivated user", func(t *testing.T) {
		other := h.createUser(t, "Sophie Louise", "sophie@example.com", "pass1234", domain.RoleUser)
		tok, err := h.tokens.Issue(other.ID)
		require.NoError(t, err)
		require.NoError(t, h.stores.Users.Deactivate(ctx, other.ID))

		_, err = h.gate.Authenticate(ctx, tok)
		require.ErrorIs(t, err, domain.ErrUnauthenticated)
		msg, _ := domain.SafeMessage(err)
		assert.Equal(t, "The user belonging to this token does no longer exist.", msg)
	})

	t.Run("expired", func(t *testing.T) {
		h.clock.Advance(time.Hour + time.Second)
		_, err := h.gate.Authenticate(ctx, token)
		require.ErrorIs(t, err, domain.ErrUnauthenticated)
		msg, _ := domain.SafeMessage(err)
		assert.Equal(t, "Your token has expired! Please log in again.", msg)
	})
}

func TestAuthenticateStaleAfterPasswordChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.createUser(t, "Max Smith", "max@example.com", "pass1234", domain.RoleUser)

	token, err := h.tokens.Issue(u.ID)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.stores.Users.UpdatePassword(ctx, u.ID, u.PasswordHash, h.clock.Now()))

	_, err = h.gate.Authenticate(ctx, token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthFailures.WithLabelValues("stale_token")))
}

func TestTryAuthenticateNeverFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.createUser(t, "Ayla Cornell", "ayla@example.com", "pass1234", domain.RoleUser)
	token, err := h.tokens.Issue(u.ID)
	require.NoError(t, err)

	assert.Nil(t, h.gate.TryAuthenticate(ctx, ""))
	assert.Nil(t, h.gate.TryAuthenticate(ctx, "loggedout"))
	got := h.gate.TryAuthenticate(ctx, token)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t)

	err := h.gate.Authorize(domain.Identity{ID: "u1", Role: domain.RoleUser}, domain.RoleAdmin)
	require.ErrorIs(t, err, domain.ErrForbidden)
	msg, _ := domain.SafeMessage(err)
	assert.Equal(t, "You do not have permission to perform this action", msg)

	assert.NoError(t, h.gate.Authorize(domain.Identity{ID: "a1", Role: domain.RoleAdmin}, domain.RoleAdmin))
	assert.NoError(t, h.gate.Authorize(domain.Identity{ID: "g1", Role: domain.RoleGuide}, domain.RoleAdmin, domain.RoleLeadGuide, domain.RoleGuide))
	assert.ErrorIs(t, h.gate.Authorize(domain.Identity{ID: "a1", Role: domain.RoleAdmin}), domain.ErrForbidden)
}
