package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/aliuyar1234/pmdash/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 8

// SignupRequest represents the signup request payload
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by signup, login and /me.
type SessionResponse struct {
	User User `json:"user"`
}

// HandleSignup creates a user and their profile, then starts a session.
func HandleSignup(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON payload")
			return
		}

		email := validation.NormalizeEmail(req.Email)
		fullName := strings.TrimSpace(req.FullName)

		if err := validation.ValidateEmail(email); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if len(req.Password) < MinPasswordLength {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}
		if err := validation.ValidateName(fullName, 1); err != nil {
			apperrors.WriteBadRequest(w, r, "Full name is required")
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash password")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		user := User{ID: uuid.New(), Email: email, FullName: fullName}
		err = db.WithTx(r.Context(), pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(r.Context(), `
				INSERT INTO users (id, email, password_hash, full_name)
				VALUES ($1, $2, $3, $4)
			`, user.ID, user.Email, passwordHash, user.FullName); err != nil {
				return err
			}
			_, err := tx.Exec(r.Context(), `
				INSERT INTO profiles (id, full_name, email)
				VALUES ($1, $2, $3)
			`, user.ID, user.FullName, user.Email)
			return err
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}
			log.Error().Err(err).Str("email", email).Msg("Failed to insert user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserSignup(r.Context(), user.ID, email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		if !startSession(w, r, user, jwtSecret, sessionDays, isProduction) {
			return
		}

		log.Info().
			Str("user_id", user.ID.String()).
			Str("email", email).
			Msg("User signed up successfully")

		apperrors.WriteSuccess(w, r, http.StatusCreated, SessionResponse{User: user})
	}
}

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = apperrors.Authentication("Invalid credentials")

// Authenticate checks email and password against the users table. Failed
// attempts are recorded in the audit log.
func Authenticate(r *http.Request, pool *pgxpool.Pool, auditor *audit.Writer, email, password string) (User, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var user User
	var passwordHash string
	var fullName *string
	err := pool.QueryRow(r.Context(), `
		SELECT id, email, password_hash, full_name FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &passwordHash, &fullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debug().Str("email", email).Msg("Login failed: user not found")
			recordLoginFailure(r, auditor, email)
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("failed to query user: %w", err)
	}
	if fullName != nil {
		user.FullName = *fullName
	}

	if err := VerifyPassword(passwordHash, password); err != nil {
		log.Debug().Str("email", email).Msg("Login failed: wrong password")
		recordLoginFailure(r, auditor, email)
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}

// HandleLogin authenticates by email and password.
func HandleLogin(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON payload")
			return
		}

		user, err := Authenticate(r, pool, auditor, req.Email, req.Password)
		if err != nil {
			apperrors.WriteFromError(w, r, "auth.login", err)
			return
		}

		if !startSession(w, r, user, jwtSecret, sessionDays, isProduction) {
			return
		}

		log.Info().
			Str("user_id", user.ID.String()).
			Str("email", user.Email).
			Msg("User logged in successfully")

		apperrors.WriteSuccess(w, r, http.StatusOK, SessionResponse{User: user})
	}
}

// HandleCSRF issues a CSRF token for API clients. The token is set as a
// cookie and echoed in the body; mutating requests send it back in the
// X-CSRF-Token header.
func HandleCSRF(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := GenerateCSRFToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to generate CSRF token")
			return
		}
		SetCSRFCookie(w, token, isProduction)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{"csrf_token": token})
	}
}

// HandleLogout clears the session cookie.
func HandleLogout(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSessionCookie(w, isProduction)

		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			log.Info().Str("user_id", userID.String()).Msg("User logged out")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}

// HandleMe returns the authenticated user.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUser(r.Context())
	if !ok {
		apperrors.WriteUnauthorized(w, r, "Authentication required")
		return
	}
	apperrors.WriteSuccess(w, r, http.StatusOK, SessionResponse{User: user})
}

func startSession(w http.ResponseWriter, r *http.Request, user User, jwtSecret string, sessionDays int, isProduction bool) bool {
	token, err := CreateToken(user, jwtSecret, sessionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		apperrors.WriteInternalError(w, r, "Failed to create session")
		return false
	}

	SetSessionCookie(w, token, sessionDays, isProduction)
	return true
}

func recordLoginFailure(r *http.Request, auditor *audit.Writer, email string) {
	if err := auditor.LogLoginFailed(r.Context(), email, r.RemoteAddr); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}
