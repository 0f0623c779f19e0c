package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firstday-app/firstday/internal/config"
	"github.com/firstday-app/firstday/internal/prompt"
	"github.com/firstday-app/firstday/internal/roles"
	"github.com/firstday-app/firstday/internal/session"
	"github.com/firstday-app/firstday/internal/storage"
)

const sessionCookieName = "firstday_session"

// getClientIP extracts the real client IP from the request.
// It checks X-Forwarded-For and X-Real-IP headers (set by reverse proxies),
// falling back to RemoteAddr if no proxy headers are present.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs: "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

type Server struct {
	cfg        *config.Config
	hub        *Hub
	controller *session.Controller
	catalog    *roles.Catalog
	builder    *prompt.Builder
	logger     *slog.Logger
}

func NewServer(logger *slog.Logger, cfg *config.Config, hub *Hub, controller *session.Controller, catalog *roles.Catalog, builder *prompt.Builder) *Server {
	return &Server{
		cfg:        cfg,
		hub:        hub,
		controller: controller,
		catalog:    catalog,
		builder:    builder,
		logger:     logger.With("component", "web_server"),
	}
}

// Handler builds the full HTTP handler with routes and middleware. Exposed
// separately from Start so tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", instrumentHandler("session_create", s.createSessionHandler))
	mux.HandleFunc("GET /api/sessions", instrumentHandler("session_get", s.getSessionHandler))
	mux.HandleFunc("POST /api/sessions/credential", instrumentHandler("credential", s.credentialHandler))
	mux.HandleFunc("POST /api/sessions/role", instrumentHandler("role_select", s.selectRoleHandler))
	mux.HandleFunc("POST /api/sessions/messages", instrumentHandler("message", s.messageHandler))
	mux.HandleFunc("POST /api/sessions/reset", instrumentHandler("reset", s.resetHandler))
	mux.HandleFunc("GET /api/roles", instrumentHandler("roles", s.rolesHandler))
	mux.HandleFunc("GET /api/help-shortcuts", instrumentHandler("help_shortcuts", s.helpShortcutsHandler))

	mux.HandleFunc("/healthz", instrumentHandler("healthz", s.healthzHandler))
	mux.Handle("/metrics", promhttp.Handler())

	// Chain: Logging -> Auth -> Mux
	handler := s.basicAuthMiddleware(mux)
	handler = s.loggingMiddleware(handler)
	return handler
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. It also runs the hub's idle eviction loop.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Server.Auth.Enabled && s.cfg.Server.Auth.Password == "" {
		bytes := make([]byte, 6) // 12 hex chars
		if _, err := rand.Read(bytes); err != nil {
			return fmt.Errorf("failed to generate random password: %w", err)
		}
		s.cfg.Server.Auth.Password = hex.EncodeToString(bytes)
		fmt.Printf("\nAPI auth password not set, generated: %s\n\n", s.cfg.Server.Auth.Password)
		s.logger.Info("API auth password auto-generated (see console output)")
	}

	server := &http.Server{
		Addr:              ":" + s.cfg.Server.ListenPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("web server shutdown failed", "error", err)
		}
	}()

	go s.hub.Run(ctx, s.cfg.Session.GetIdleTimeout())

	s.logger.Info("Starting web server", "port", s.cfg.Server.ListenPort)
	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

// turnView is one transcript turn as rendered to clients.
type turnView struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Seq     int    `json:"seq"`
}

// sessionView is the session state as rendered to clients. It never includes
// the credential.
type sessionView struct {
	SessionID   string     `json:"session_id"`
	Phase       string     `json:"phase"`
	Role        string     `json:"role,omitempty"`
	TurnCounter int        `json:"turn_counter"`
	Transcript  []turnView `json:"transcript"`
}

func viewFromSession(sess *session.Session) sessionView {
	view := sessionView{
		SessionID:   sess.ID,
		Phase:       string(sess.Phase),
		Role:        sess.RoleName(),
		TurnCounter: sess.TurnCounter,
		Transcript:  make([]turnView, 0, len(sess.Transcript)),
	}
	for _, turn := range sess.Transcript {
		view.Transcript = append(view.Transcript, turnView{
			Speaker: string(turn.Speaker),
			Text:    turn.Text,
			Seq:     turn.Seq,
		})
	}
	return view
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeSessionError maps domain errors onto HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, roles.ErrUnknownRole):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrEmptyCredential), errors.Is(err, session.ErrEmptyMessage):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrInvalidPhase):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; status code is moot but pick one anyway.
		s.writeError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) sessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", fmt.Errorf("%w: no session cookie", storage.ErrSessionNotFound)
	}
	return cookie.Value, nil
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.Create()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	s.writeJSON(w, http.StatusCreated, viewFromSession(sess))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	var view sessionView
	err = s.hub.With(id, func(sess *session.Session) error {
		view = viewFromSession(sess)
		return nil
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) credentialHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	var req struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var view sessionView
	err = s.hub.With(id, func(sess *session.Session) error {
		if err := s.controller.SubmitCredential(sess, req.Credential); err != nil {
			return err
		}
		view = viewFromSession(sess)
		return nil
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) selectRoleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var view sessionView
	err = s.hub.With(id, func(sess *session.Session) error {
		if err := s.controller.SelectRole(r.Context(), sess, req.Role); err != nil {
			return err
		}
		view = viewFromSession(sess)
		return nil
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var view sessionView
	err = s.hub.With(id, func(sess *session.Session) error {
		if err := s.controller.Exchange(r.Context(), sess, req.Message); err != nil {
			return err
		}
		view = viewFromSession(sess)
		return nil
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	var view sessionView
	err = s.hub.With(id, func(sess *session.Session) error {
		if err := s.controller.StartOver(sess); err != nil {
			return err
		}
		view = viewFromSession(sess)
		return nil
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// roleView is one catalog entry as rendered to clients. Instructions are
// deliberately not exposed.
type roleView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) rolesHandler(w http.ResponseWriter, r *http.Request) {
	list := s.catalog.List()
	views := make([]roleView, 0, len(list))
	for _, role := range list {
		views = append(views, roleView{Name: role.Name, Description: role.Description})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) helpShortcutsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.builder.Shortcuts())
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Log healthz and metrics at debug level, other requests at info level
		if path == "/healthz" || path == "/metrics" {
			s.logger.Debug("Received HTTP request",
				"method", r.Method,
				"path", path,
				"client_ip", getClientIP(r),
			)
		} else {
			s.logger.Info("Received HTTP request",
				"method", r.Method,
				"path", path,
				"client_ip", getClientIP(r),
				"user_agent", r.UserAgent(),
			)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only protect /api/ routes
		if strings.HasPrefix(r.URL.Path, "/api/") {
			if !s.cfg.Server.Auth.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || user != s.cfg.Server.Auth.Username || pass != s.cfg.Server.Auth.Password {
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
