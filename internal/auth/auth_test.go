package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pms/internal/apperr"
	"pms/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var actor = models.Actor{ID: "0d1f8a5e-5b7c-4a47-9c0c-3ad2f0e1b7aa", Name: "Ram Thapa", Role: models.RoleAdmin}

func protected(a *Authenticator) http.Handler {
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
	}
	return a.Middleware(onError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := ActorFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(got.ID + "|" + got.Name + "|" + got.Role))
	}))
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	a := NewAuthenticator("secret", "pms")
	token, err := a.Issue(actor, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, actor.ID+"|Ram Thapa|admin", rr.Body.String())
}

func TestMiddlewareRejects(t *testing.T) {
	a := NewAuthenticator("secret", "pms")
	expired, err := a.Issue(actor, -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthenticator("other", "pms").Issue(actor, time.Hour)
	require.NoError(t, err)
	badSubject, err := a.Issue(models.Actor{ID: "not-a-uuid"}, time.Hour)
	require.NoError(t, err)
	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: actor.ID}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not.a.token"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
		{"subject not uuid", "Bearer " + badSubject},
		{"alg none", "Bearer " + unsigned},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			protected(a).ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestParseChecksIssuer(t *testing.T) {
	token, err := NewAuthenticator("secret", "elsewhere").Issue(actor, time.Hour)
	require.NoError(t, err)
	_, err = NewAuthenticator("secret", "pms").Parse(token)
	assert.Error(t, err)
}
