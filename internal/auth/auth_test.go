package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions() *Sessions {
	return NewSessions(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
}

// login issues a session cookie for u and returns it.
func login(t *testing.T, s *Sessions, u User) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, s.SetSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), u))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "battery staple"))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("staff")
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, r)
	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestSessions_RoundTrip(t *testing.T) {
	s := newTestSessions()
	cookie := login(t, s, User{ID: 42, Role: RoleStaff})
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	sess, ok := s.GetSession(req)
	require.True(t, ok)
	assert.Equal(t, int64(42), sess.UserID)
	assert.True(t, sess.Requester().Staff)
}

func TestSessions_RejectsForeignCookie(t *testing.T) {
	cookie := login(t, newTestSessions(), User{ID: 42, Role: RoleStaff})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, ok := newTestSessions().GetSession(req)
	assert.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	s := newTestSessions()
	var seen context.Context
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusNoContent)
	})
	customer := login(t, s, User{ID: 7, Role: RoleCustomer})
	staff := login(t, s, User{ID: 8, Role: RoleStaff})

	tests := []struct {
		name   string
		mw     func(http.Handler) http.Handler
		cookie *http.Cookie
		want   int
	}{
		{"optional anonymous", s.OptionalAuth, nil, http.StatusNoContent},
		{"require anonymous", s.RequireAuth, nil, http.StatusUnauthorized},
		{"require customer", s.RequireAuth, customer, http.StatusNoContent},
		{"staff as customer", s.RequireStaff, customer, http.StatusForbidden},
		{"staff as staff", s.RequireStaff, staff, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(customer)
	s.OptionalAuth(ok).ServeHTTP(httptest.NewRecorder(), req)
	q := RequesterFromContext(seen)
	assert.Equal(t, int64(7), q.UserID)
	assert.False(t, q.Staff)
}

func TestClearSession(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestSessions().ClearSession(rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
