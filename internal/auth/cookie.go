package auth

import (
	"net/http"
	"time"
)

// SessionCookieName holds the JWT issued at login.
const SessionCookieName = "pm_session"

// newCookie returns a Lax, root-path cookie, Secure in production.
func newCookie(name, value string, maxAge int, httpOnly, isProduction bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSessionCookie stores token for sessionDays.
func SetSessionCookie(w http.ResponseWriter, token string, sessionDays int, isProduction bool) {
	maxAge := int((time.Duration(sessionDays) * 24 * time.Hour).Seconds())
	http.SetCookie(w, newCookie(SessionCookieName, token, maxAge, true, isProduction))
}

// ClearSessionCookie expires the session cookie immediately
func ClearSessionCookie(w http.ResponseWriter, isProduction bool) {
	http.SetCookie(w, newCookie(SessionCookieName, "", -1, true, isProduction))
}

// GetSessionCookie returns the session token, or "" when absent.
func GetSessionCookie(r *http.Request) string {
	return cookieValue(r, SessionCookieName)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
