package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/julienschmidt/httprouter"
)

const (
	usernameCookie = "username"
	tokenCookie    = "auth_token"
)

type loginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Chat server is running!"))
}

// handleWebSocket admits the connection before upgrading it, so a rejected
// client gets a plain HTTP status and never a websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.origins.check(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	session, err := s.coordinator.Connect(r.Context(), q.Get("username"), q.Get("token"))
	if err != nil {
		http.Error(w, http.StatusText(handshakeStatus(err)), handshakeStatus(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "username", session.Identity, "error", err)
		s.coordinator.Abort(r.Context(), session)
		return
	}

	s.coordinator.Attach(context.Background(), session, conn, r.RemoteAddr)
}

func handshakeStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrAlreadyConnected):
		return http.StatusConflict
	case errors.Is(err, common.ErrAuthInvalid), errors.Is(err, common.ErrUnknownUser):
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form"})
		return
	}

	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "username and password are required"})
		return
	}

	if _, online := s.coordinator.Presence().Lookup(username); online {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "user already connected"})
		return
	}

	if _, err := s.credentials.Login(ctx, username, password); err != nil {
		if errors.Is(err, common.ErrAuthInvalid) {
			s.logger.Info(ctx, "login failed", "username", username)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
			return
		}
		s.logger.Error(ctx, "login lookup failed", "username", username, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})
		return
	}

	ttl := s.cfg.Token.ShortTTL
	if r.PostForm.Get("remember") == "on" {
		ttl = s.cfg.Token.TTL
	}

	token, err := s.tokens.Issue(ctx, username, ttl)
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "username", username, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not issue token"})
		return
	}

	expires := time.Now().Add(ttl)
	http.SetCookie(w, &http.Cookie{Name: usernameCookie, Value: username, Path: "/", Expires: expires, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: tokenCookie, Value: token, Path: "/", Expires: expires, SameSite: http.SameSiteLaxMode})

	s.logger.Info(ctx, "login", "username", username, "ttl", ttl)
	writeJSON(w, http.StatusOK, loginResponse{Username: username, Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()

	user, errUser := r.Cookie(usernameCookie)
	tok, errTok := r.Cookie(tokenCookie)
	if errUser != nil || errTok != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not logged in"})
		return
	}

	claim, err := s.tokens.Verify(tok.Value)
	if err != nil || claim.Subject != user.Value {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
		return
	}

	if err := s.coordinator.Logout(ctx, user.Value); err != nil && !errors.Is(err, common.ErrUnknownSession) {
		s.logger.Error(ctx, "logout failed", "username", user.Value, "error", err)
	}

	http.SetCookie(w, &http.Cookie{Name: usernameCookie, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: tokenCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"username": user.Value})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
