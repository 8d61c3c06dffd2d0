package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/tablesched/internal/db"
	"github.com/example/tablesched/internal/reservation"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleStaff:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q (want customer or staff)", s)
}

var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID       int64
	Username string
	Role     Role
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	return err == nil
}

// Users is the local identity store.
type Users struct {
	db *db.DB
}

func NewUsers(d *db.DB) *Users { return &Users{db: d} }

func (u *Users) CreateUser(ctx context.Context, username, password string, role Role) (int64, error) {
	if username == "" || len(password) < 8 {
		return 0, errors.New("username required and password must be at least 8 characters")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	var id int64
	err = u.db.QueryRow(ctx, `INSERT INTO users(username, password_bcrypt, role) VALUES ($1,$2,$3) RETURNING id`,
		username, hash, string(role)).Scan(&id)
	if db.Code(err) == db.CodeUniqueViolation {
		return 0, fmt.Errorf("user %q already exists", username)
	}
	return id, err
}

func (u *Users) Authenticate(ctx context.Context, username, password string) (User, error) {
	var usr User
	var hash, role string
	err := u.db.QueryRow(ctx, `SELECT id, username, password_bcrypt, role FROM users WHERE username=$1`, username).
		Scan(&usr.ID, &usr.Username, &hash, &role)
	if db.IsNotFound(err) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !CheckPassword(hash, password) {
		return User{}, ErrInvalidCredentials
	}
	usr.Role = Role(role)
	return usr, nil
}

type Session struct {
	UserID int64
	Role   Role
}

func (s Session) Requester() reservation.Requester {
	return reservation.Requester{UserID: s.UserID, Staff: s.Role == RoleStaff}
}

const (
	cookieName = "tablesched_session"
	sessionTTL = 14 * 24 * time.Hour
)

// Sessions issues and reads signed, encrypted session cookies.
type Sessions struct {
	sc *securecookie.SecureCookie
}

func NewSessions(hashKey, blockKey []byte) *Sessions {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Sessions{sc: sc}
}

func (s *Sessions) SetSession(w http.ResponseWriter, r *http.Request, u User) error {
	encoded, err := s.sc.Encode(cookieName, Session{UserID: u.ID, Role: u.Role})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Sessions) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Sessions) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := s.sc.Decode(cookieName, c.Value, &sess); err != nil {
		return Session{}, false
	}
	if sess.UserID <= 0 {
		return Session{}, false
	}
	return sess, true
}

type ctxKey struct{}

// OptionalAuth attaches the session, if any, to the request context.
func (s *Sessions) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := s.GetSession(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a valid session.
func (s *Sessions) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.GetSession(r)
		if !ok {
			deny(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

// RequireStaff is RequireAuth plus a staff role check.
func (s *Sessions) RequireStaff(next http.Handler) http.Handler {
	return s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, _ := SessionFromContext(r.Context()); sess.Role != RoleStaff {
			deny(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func deny(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", code)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(Session)
	return sess, ok
}

// RequesterFromContext returns the anonymous requester when there is no session.
func RequesterFromContext(ctx context.Context) reservation.Requester {
	sess, _ := SessionFromContext(ctx)
	return sess.Requester()
}
