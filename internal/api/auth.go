package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

const sessionTokenTTL = 7 * 24 * time.Hour

type contextKey string

const userIDKey contextKey = "userID"

// sessionClaims is the JWT payload for a logged-in session.
type sessionClaims struct {
	Admin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

func issueSessionToken(secret string, u *store.User, now time.Time) (string, error) {
	claims := sessionClaims{
		Admin: u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseSessionToken(secret, raw string) (userID int64, admin bool, err error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, false, err
	}
	if !token.Valid {
		return 0, false, fmt.Errorf("invalid token")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid token subject: %w", err)
	}
	return id, claims.Admin, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// requireUser authenticates the session token and stores the user ID in the
// request context.
func (rt *Router) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		userID, _, err := parseSessionToken(rt.cfg.SessionSecret, raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// requireAdmin allows either an admin session token or the configured admin
// API key.
func (rt *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-Admin-Key"); key != "" && rt.cfg.AdminKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(rt.cfg.AdminKey)) == 1 {
				next(w, r)
				return
			}
			writeError(w, http.StatusForbidden, "forbidden", "Invalid admin key")
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		userID, admin, err := parseSessionToken(rt.cfg.SessionSecret, raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
			return
		}
		if !admin {
			writeError(w, http.StatusForbidden, "forbidden", "Admin access required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

func requestUserID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(userIDKey).(int64)
	return id, ok
}

// Failed login tracking, keyed by lowercased email.
type failedLogin struct {
	Count       int
	LockedUntil time.Time
}

var (
	failedLogins      = make(map[string]*failedLogin)
	failedMu          sync.Mutex
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

func recordFailedLogin(identifier string) {
	failedMu.Lock()
	defer failedMu.Unlock()

	f := failedLogins[identifier]
	if f == nil {
		f = &failedLogin{}
		failedLogins[identifier] = f
	}
	f.Count++
	if f.Count >= maxFailedAttempts {
		f.LockedUntil = time.Now().Add(lockoutDuration)
		log.Warn().Str("identifier", identifier).Msg("Account locked after repeated failed logins")
	}
}

func clearFailedLogins(identifier string) {
	failedMu.Lock()
	defer failedMu.Unlock()
	delete(failedLogins, identifier)
}

func isLockedOut(identifier string) bool {
	failedMu.Lock()
	defer failedMu.Unlock()

	f := failedLogins[identifier]
	if f == nil {
		return false
	}
	if f.LockedUntil.IsZero() || time.Now().After(f.LockedUntil) {
		return false
	}
	return true
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	var req registerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid_email", "A valid email address is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to hash password"))
		return
	}

	u, err := rt.store.CreateUser(r.Context(), req.Email, strings.TrimSpace(req.DisplayName), string(hash))
	if err != nil {
		if err == store.ErrEmailTaken {
			writeError(w, http.StatusConflict, "email_taken", "That email is already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to create account"))
		return
	}

	token, err := issueSessionToken(rt.cfg.SessionSecret, u, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to issue session"))
		return
	}

	log.Info().Int64("user_id", u.ID).Msg("User registered")
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: rt.userView(u)})
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if isLockedOut(req.Email) {
		writeError(w, http.StatusTooManyRequests, "locked_out", "Too many failed attempts. Try again later.")
		return
	}

	u, err := rt.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Login failed"))
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		recordFailedLogin(req.Email)
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	clearFailedLogins(req.Email)
	token, err := issueSessionToken(rt.cfg.SessionSecret, u, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to issue session"))
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: rt.userView(u)})
}
