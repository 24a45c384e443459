package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billsync/pkg/auth"
	"github.com/dmitrymomot/billsync/pkg/billing"
)

var cfg = auth.Config{Secret: "test-secret", Issuer: "app", Audience: "billsync", Leeway: time.Second}

func newVerifier(t *testing.T) *auth.JWTVerifier {
	t.Helper()
	v, err := auth.NewJWTVerifier(cfg)
	require.NoError(t, err)
	return v
}

func TestJWTVerifier(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)
	user := billing.User{ID: uuid.New(), Email: "a@example.com"}

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		token, err := v.Sign(user, time.Minute)
		require.NoError(t, err)

		got, err := v.Verify(t.Context(), token)
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		token, err := v.Sign(user, -time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		t.Parallel()
		other, err := auth.NewJWTVerifier(auth.Config{Secret: cfg.Secret, Audience: "elsewhere"})
		require.NoError(t, err)
		token, err := other.Sign(user, time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		t.Parallel()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("subject is not a uuid", func(t *testing.T) {
		t.Parallel()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), token)
		assert.ErrorIs(t, err, auth.ErrInvalidClaims)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Parallel()
		_, err := auth.NewJWTVerifier(auth.Config{})
		assert.ErrorIs(t, err, auth.ErrMissingSecret)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)
	user := billing.User{ID: uuid.New(), Email: "a@example.com"}
	token, err := v.Sign(user, time.Minute)
	require.NoError(t, err)

	h := auth.Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := auth.MustIdentity(r.Context())
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + token, want: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer " + token, want: http.StatusNoContent},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "basic", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	_, err := auth.MustIdentity(t.Context())
	assert.ErrorIs(t, err, auth.ErrNoIdentity)

	u := billing.User{ID: uuid.New()}
	got, ok := auth.GetIdentity(auth.SetIdentity(t.Context(), u))
	assert.True(t, ok)
	assert.Equal(t, u, got)
}
