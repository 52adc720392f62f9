package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
)

const (
	// CSRFCookieName names both the double-submit cookie and the form field
	// HTML forms post the token in.
	CSRFCookieName = "_csrf"

	// CSRFHeaderName carries the token for JSON requests
	CSRFHeaderName = "X-CSRF-Token"

	CSRFTokenBytes = 32
)

var (
	ErrCSRFCookieMissing = errors.New("missing CSRF cookie")
	ErrCSRFTokenMissing  = errors.New("missing CSRF token in request")
	ErrCSRFMismatch      = errors.New("CSRF token mismatch")
)

// GenerateCSRFToken returns a base64url-encoded random token.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetCSRFCookie sets the double-submit cookie. It is readable by scripts so
// API clients can echo it in CSRFHeaderName.
func SetCSRFCookie(w http.ResponseWriter, token string, isProduction bool) {
	http.SetCookie(w, newCookie(CSRFCookieName, token, 0, false, isProduction))
}

func GetCSRFCookie(r *http.Request) string {
	return cookieValue(r, CSRFCookieName)
}

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// ValidateCSRF compares the header (or, for HTML forms, the form field) token
// with the cookie token.
func ValidateCSRF(r *http.Request) error {
	cookieToken := GetCSRFCookie(r)
	if cookieToken == "" {
		return ErrCSRFCookieMissing
	}

	requestToken := r.Header.Get(CSRFHeaderName)
	if requestToken == "" && isForm(r) {
		requestToken = r.PostFormValue(CSRFCookieName)
	}
	if requestToken == "" {
		return ErrCSRFTokenMissing
	}

	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(requestToken)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}
