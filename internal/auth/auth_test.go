package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-storefront/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	i, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	return i
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	i := newTestIssuer(t)

	token, expires, err := i.IssueAccessToken("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	sub, err := i.Parse(token, PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestActivationTokenIsNotAnAccessToken(t *testing.T) {
	i := newTestIssuer(t)
	token, err := i.IssueActivationToken("user-1")
	require.NoError(t, err)

	_, err = i.Parse(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrWrongPurpose)

	sub, err := i.Parse(token, PurposeActivation)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestExpiredAndForeignTokens(t *testing.T) {
	i := newTestIssuer(t)
	i.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := i.IssueAccessToken("user-1")
	require.NoError(t, err)
	i.now = time.Now

	_, err = i.Parse(stale, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewIssuer("another-secret", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.IssueAccessToken("user-1")
	require.NoError(t, err)
	_, err = i.Parse(foreign, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	i := newTestIssuer(t)
	var seen string
	h := Middleware(LocalVerifier{Issuer: i}, logger.NewWithWriter(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = UserID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	// no header
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// garbage token
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := i.IssueAccessToken("user-9")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-9", seen)
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	_, err := ExtractTokenFromRequest(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "bearer abc")
	tok, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestPasswordResetToken(t *testing.T) {
	i := newTestIssuer(t)
	token, err := i.IssuePasswordResetToken("user-3")
	require.NoError(t, err)

	_, err = i.Parse(token, PurposeActivation)
	assert.ErrorIs(t, err, ErrWrongPurpose)

	claims, err := i.ParseClaims(token, PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "user-3", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestDenylist(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	d := NewDenylist(client)
	require.NoError(t, d.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	require.NoError(t, d.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute)))

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = d.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, revoked, "expired tokens are not stored")

	mr.FastForward(2 * time.Minute)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMiddlewareRejectsRevokedToken(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	i := newTestIssuer(t)
	d := NewDenylist(client)
	h := Middleware(LocalVerifier{Issuer: i, Revoked: d}, logger.NewWithWriter(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	token, _, err := i.IssueAccessToken("user-9")
	require.NoError(t, err)
	serve := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, serve())

	claims, err := i.ParseClaims(token, PurposeAccess)
	require.NoError(t, err)
	require.NoError(t, d.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time))
	assert.Equal(t, http.StatusUnauthorized, serve())
}
