package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// UserKey is the key type for storing the signed-in user in context
type UserKey string

const userKey UserKey = "user"

// SessionState is the auth gate's view of a request. Loading means the
// session could not be resolved yet (the user lookup failed), so the gate
// neither admits nor rejects.
type SessionState string

const (
	SessionLoading       SessionState = "loading"
	SessionAuthenticated SessionState = "authenticated"
	SessionAnonymous     SessionState = "anonymous"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

var credentialLabels = map[string]string{
	"email":    "Email",
	"password": "Password",
}

type authResponse struct {
	Token string     `json:"token"`
	User  store.User `json:"user"`
}

func registerHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		req.Password = strings.TrimSpace(req.Password)
		if err := a.validate.Struct(req); err != nil {
			fields, _ := fieldErrors(err, credentialLabels)
			writeValidation(w, fields)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			a.log.Error("hash password", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "hash_error")
			return
		}

		user, err := a.store.CreateUser(r.Context(), req.Email, string(hashedPassword))
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email_exists")
			return
		} else if err != nil {
			a.log.Error("save user", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "register_error")
			return
		}

		token, err := a.issueToken(user)
		if err != nil {
			a.log.Error("issue token for new user", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "token_generation_error")
			return
		}
		a.setSessionCookie(w, token)
		writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
	}
}

func loginHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		req.Password = strings.TrimSpace(req.Password)
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}

		user, err := a.store.UserByEmail(r.Context(), req.Email)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		} else if err != nil {
			a.log.Error("query user", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}

		// Don't fail login, just log the error
		if err := a.store.TouchLastOnline(r.Context(), user.ID); err != nil {
			a.log.Warn("update last_online", zap.Error(err))
		}

		token, err := a.issueToken(user)
		if err != nil {
			a.log.Error("issue token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "token_generation_error")
			return
		}
		a.setSessionCookie(w, token)
		writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
	}
}

func logoutHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     a.cfg.Auth.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.cfg.Auth.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// GET /session reports the gate state for the current request.
func sessionHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, state := a.resolveSession(r)
		switch state {
		case SessionAuthenticated:
			writeJSON(w, http.StatusOK, map[string]any{"state": state, "user": user})
		case SessionLoading:
			writeLoading(w)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"state": state})
		}
	}
}

func writeLoading(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"state": SessionLoading})
}

// --- tokens ---

func (a *App) issueToken(u store.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"email":   u.Email,
		"expires": a.now().Add(a.cfg.Auth.TokenTTL).Unix(),
	})
	return token.SignedString([]byte(a.cfg.Auth.JWTSecret))
}

// parseToken returns the user id carried by a valid, unexpired token.
func (a *App) parseToken(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.cfg.Auth.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	// jwt.MapClaims stores numbers as float64 by default
	expires, ok := claims["expires"].(float64)
	if !ok || a.now().After(time.Unix(int64(expires), 0)) {
		return "", errors.New("token expired")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user id in token")
	}
	return userID, nil
}

func (a *App) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.cfg.Auth.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenFromRequest tries the Authorization header, then the session cookie,
// then the token query parameter (browsers can't set headers on a websocket).
func (a *App) tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie(a.cfg.Auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// resolveSession runs the gate's state machine for one request.
func (a *App) resolveSession(r *http.Request) (store.User, SessionState) {
	tokenStr := a.tokenFromRequest(r)
	if tokenStr == "" {
		return store.User{}, SessionAnonymous
	}
	userID, err := a.parseToken(tokenStr)
	if err != nil {
		return store.User{}, SessionAnonymous
	}
	user, err := a.store.UserByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, SessionAnonymous
	} else if err != nil {
		a.log.Warn("resolve session", zap.Error(err))
		return store.User{}, SessionLoading
	}
	if err := a.store.TouchLastOnline(r.Context(), user.ID); err != nil {
		a.log.Warn("update last_online", zap.Error(err))
	}
	return user, SessionAuthenticated
}

func withUser(ctx context.Context, u store.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func userFromContext(ctx context.Context) (store.User, bool) {
	u, ok := ctx.Value(userKey).(store.User)
	return u, ok
}

// authenticate guards API endpoints: anonymous callers get 401.
func (a *App) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, state := a.resolveSession(r)
		switch state {
		case SessionLoading:
			writeLoading(w)
			return
		case SessionAnonymous:
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user)))
	}
}

// requireSession guards views. Anonymous visitors are sent to /login and
// the page they asked for is dropped.
func (a *App) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, state := a.resolveSession(r)
		switch state {
		case SessionLoading:
			writeLoading(w)
			return
		case SessionAnonymous:
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}
