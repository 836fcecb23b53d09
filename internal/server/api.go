// ABOUTME: HTTP handlers for chat streaming, stream control, and conversation management
// ABOUTME: Chat responses are server-sent events; everything else is JSON

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/its-lightning/light-assistant/internal/auth"
	"github.com/its-lightning/light-assistant/internal/ollama"
	"github.com/its-lightning/light-assistant/internal/relay"
	"github.com/its-lightning/light-assistant/internal/store"
)

// StreamIDHeader carries the stream token of a chat response
const StreamIDHeader = "X-Stream-ID"

const maxChatBody = 1 << 20

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Backend string `json:"backend"`
	Streams int    `json:"streams"`
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /login", s.handleLogin)

	mux.Handle("POST /chat", s.requireAuth(s.handleChat))
	mux.Handle("POST /stop_stream/{id}", s.requireAuth(s.handleStopStream))
	mux.Handle("POST /clear_history", s.requireAuth(s.handleClearHistory))
	mux.Handle("POST /logout", s.requireAuth(s.handleLogout))

	mux.Handle("GET /conversations", s.requireAuth(s.handleListConversations))
	mux.Handle("POST /conversations", s.requireAuth(s.handleCreateConversation))
	mux.Handle("GET /conversations/active", s.requireAuth(s.handleActiveConversation))
	mux.Handle("GET /conversations/{id}", s.requireAuth(s.handleGetConversation))
	mux.Handle("POST /conversations/{id}/activate", s.requireAuth(s.handleActivateConversation))
	mux.Handle("DELETE /conversations/{id}", s.requireAuth(s.handleDeleteConversation))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Warn("route not found", "method", r.Method, "path", r.URL.Path)
		s.sendJSONError(w, http.StatusNotFound, "Not found")
	})
}

func (s *Server) requireAuth(h http.HandlerFunc) http.Handler {
	return auth.Middleware(s.sessions)(h)
}

// identity returns the verified email; requireAuth guarantees it is present.
func identity(r *http.Request) string {
	email, _ := auth.IdentityFromContext(r.Context())
	return email
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := identity(r)

	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatBody)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "No message provided")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	active := s.conversations.GetActive(r.Context(), user)
	conv, ok := s.conversations.Append(r.Context(), user, active.ID, store.Message{
		Role:    store.RoleUser,
		Content: message,
	})
	if !ok {
		s.sendJSONError(w, http.StatusConflict, "active conversation changed, retry")
		return
	}

	token := s.streams.Begin()
	s.logger.Info("chat request",
		"user", user,
		"conversation_id", conv.ID,
		"stream_id", token,
		"context_messages", min(len(conv.Messages), s.prompts.Window))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(StreamIDHeader, token)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := relay.EmitterFunc(func(e relay.Event) error {
		frame, err := relay.FormatSSE(e)
		if err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	s.relay.Run(r.Context(), &relay.Request{
		Token:        token,
		User:         user,
		Conversation: conv,
		Messages:     s.prompts.Build(conv.Messages),
	}, emit)
}

func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.streams.Stop(id) {
		s.logger.Info("stream stopped", "user", identity(r), "stream_id", id)
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	conv := s.conversations.CreateNew(r.Context(), identity(r))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cleared":         true,
		"conversation_id": conv.ID,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": s.conversations.List(r.Context(), identity(r)),
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusCreated, s.conversations.CreateNew(r.Context(), identity(r)))
}

func (s *Server) handleActiveConversation(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.conversations.GetActive(r.Context(), identity(r)))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversations.Get(r.Context(), identity(r), r.PathValue("id"))
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleActivateConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.conversations.SetActive(r.Context(), identity(r), id) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"activated": true, "conversation_id": id})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	deleted := s.conversations.Delete(r.Context(), identity(r), r.PathValue("id"))
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// handleLogin exchanges a session token (from the token command or an external
// identity provider) for the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	email, err := s.sessions.Verify(token)
	switch {
	case errors.Is(err, auth.ErrNotAllowed):
		s.logger.Warn("login denied", "error", err)
		s.sendJSONError(w, http.StatusForbidden, "access denied")
		return
	case err != nil:
		s.sendJSONError(w, http.StatusUnauthorized, "invalid session")
		return
	}
	auth.SetSessionCookie(w, token, s.sessions.TTL(), r.TLS != nil)
	s.logger.Info("user logged in", "user", email)
	s.writeJSON(w, http.StatusOK, map[string]any{"logged_in": true, "email": email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, r.TLS != nil)
	s.logger.Info("user logged out", "user", identity(r))
	s.writeJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := "online"
	if err := s.backend.Ping(r.Context()); err != nil {
		var statusErr *ollama.StatusError
		if errors.Is(err, ollama.ErrUnreachable) || errors.Is(err, ollama.ErrTimeout) || errors.As(err, &statusErr) {
			backend = "offline"
		} else {
			backend = "error"
		}
		s.logger.Debug("backend health check failed", "error", err)
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "running",
		Model:   s.config.Backend.Model,
		Backend: backend,
		Streams: s.streams.Len(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
