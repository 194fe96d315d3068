package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"securechat/internal/auth"
	"securechat/internal/database"
	"securechat/internal/types"
)

const (
	accessCookieKey  = "token"
	refreshCookieKey = "refresh"

	// refreshCookiePath restricts the refresh credential to the one
	// endpoint that consumes it.
	refreshCookiePath = "/api/auth/refresh"

	maxUsernameLen = 32
)

type RegisterRequest struct {
	Username string `json:"username"`
}

type LoginRequest struct {
	Username string `json:"username"`
}

type AuthResponse struct {
	User        types.User `json:"user"`
	AccessToken string     `json:"access_token"`
}

func createAccessCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     accessCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func createRefreshCookie(secret string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieKey,
		Value:    secret,
		Path:     refreshCookiePath,
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func validUsername(username string) bool {
	if username == "" || len(username) > maxUsernameLen {
		return false
	}

	return !strings.ContainsAny(username, " \t\r\n")
}

// setCredentials issues both credentials for the user and attaches
// them as cookies.
func (s *ChatApp) setCredentials(w http.ResponseWriter, user types.User) (string, error) {
	accessToken, err := s.tokens.IssueAccess(user)
	if err != nil {
		return "", err
	}

	refreshSecret, err := s.tokens.IssueRefresh(user.Id)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, createAccessCookie(accessToken, auth.AccessTokenTTL))
	http.SetCookie(w, createRefreshCookie(refreshSecret, auth.RefreshTokenTTL))

	return accessToken, nil
}

func clearCredentials(w http.ResponseWriter) {
	http.SetCookie(w, createAccessCookie("", time.Duration(time.Unix(0, 0).Unix())))
	http.SetCookie(w, createRefreshCookie("", time.Duration(time.Unix(0, 0).Unix())))
}

func (s *ChatApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !validUsername(req.Username) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.CreateAccount(req.Username)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrDuplicateUsername) {
			errResp = NewConflictError("username already taken")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user := toUser(dbUser)
	accessToken, err := s.setCredentials(w, user)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, AuthResponse{User: user, AccessToken: accessToken})
}

func (s *ChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !validUsername(req.Username) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByUsername(req.Username)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user := toUser(dbUser)
	accessToken, err := s.setCredentials(w, user)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, AuthResponse{User: user, AccessToken: accessToken})
}

func (s *ChatApp) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieKey); err == nil {
		s.tokens.RevokeOnLogout(cookie.Value)
	}

	clearCredentials(w)
	s.writeJson(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *ChatApp) me(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]types.User{"user": toUser(dbUser)})
}

// refresh rotates the refresh credential. A spent, expired or revoked
// credential clears both cookies so the client falls back to login.
func (s *ChatApp) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieKey)
	if err != nil || cookie.Value == "" {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, accessToken, refreshSecret, err := s.tokens.Rotate(cookie.Value)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, auth.ErrUnauthorized) {
			clearCredentials(w)
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createAccessCookie(accessToken, auth.AccessTokenTTL))
	http.SetCookie(w, createRefreshCookie(refreshSecret, auth.RefreshTokenTTL))

	s.writeJson(w, http.StatusOK, AuthResponse{User: user, AccessToken: accessToken})
}

func toUser(u database.User) types.User {
	return types.User{
		Id:         u.Id,
		Username:   u.Username,
		ProfilePic: u.ProfilePic,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
