package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

// Sessions guards the dashboard with one configured operator credential and
// an encrypted session cookie. There is no user table; the portal account
// this service books for is the only tenant.
type Sessions struct {
	sc       *securecookie.SecureCookie
	user     string
	passHash string
}

const (
	cookieName = "seatsched_session"
	cookieAge  = 14 * 24 * time.Hour
)

// NewSessions builds the session layer. blockKey may be nil, which signs
// cookies without encrypting them.
func NewSessions(hashKey, blockKey []byte, user, passHash string) *Sessions {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(cookieAge.Seconds()))
	return &Sessions{sc: sc, user: user, passHash: passHash}
}

// HashPassword bcrypt-hashes a dashboard password for storage in config.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Authenticate checks the configured credential pair.
func (s *Sessions) Authenticate(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.user)) != 1 {
		return false
	}
	return CheckPassword(s.passHash, password)
}

func (s *Sessions) SetSession(w http.ResponseWriter, r *http.Request, username string) error {
	encoded, err := s.sc.Encode(cookieName, map[string]any{"u": username})
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
		MaxAge:   int(cookieAge.Seconds()),
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

func (s *Sessions) GetSession(r *http.Request) (string, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	val := map[string]any{}
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil {
		return "", false
	}
	user, ok := val["u"].(string)
	if !ok || user == "" {
		return "", false
	}
	return user, true
}

type ctxKey string

const userKey ctxKey = "user"

// RequireAuth redirects anonymous requests to the login form. It satisfies
// chi's middleware shape.
func (s *Sessions) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.GetSession(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey).(string)
	return user, ok
}
