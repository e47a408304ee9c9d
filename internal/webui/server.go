// Package webui renders the coordination engine's state for a human
// overseer: project/agent listings, inbox/outbox views, active claims,
// and a websocket feed of new messages so the browser does not need to
// poll. It calls the same Engine the MCP surface calls; it has no
// persistence or policy logic of its own.
package webui

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentfleet/agentmaild/internal/engine"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/mailbox"
	"github.com/agentfleet/agentmaild/internal/model"
)

const requestIDHeader = "X-Request-Id"

// Server is the overseer-facing HTTP surface. It implements http.Handler
// directly so cmd/agentmaild can both mount it and reach Broadcast to
// wire it to the engine's message hook.
type Server struct {
	eng    *engine.Engine
	hub    *hub
	router chi.Router
}

// New builds the webui router rooted at "/", with routes mounted under
// "/api" and the live feed at "/ws".
func New(eng *engine.Engine) *Server {
	s := &Server{eng: eng, hub: newHub()}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)

	// Project human keys are filesystem paths and may contain slashes, so
	// they travel as a "project" query parameter rather than a path
	// segment throughout /api.
	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Get("/project", s.handleGetProject)
		r.Get("/agents", s.handleListAgents)
		r.Get("/claims", s.handleListClaims)
		r.Get("/agents/{agent}/inbox", s.handleInbox)
		r.Get("/agents/{agent}/outbox", s.handleOutbox)
		r.Get("/messages/{id}", s.handleGetMessage)
		r.Post("/overseer-messages", s.handleOverseerSend)
		r.Post("/claims/{claim}/force-release", s.handleForceRelease)
	})

	r.Get("/*", s.handleIndex)

	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler by delegating to the chi router built
// in New.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Broadcast pushes an event to every connected websocket client. Callers
// in cmd/agentmaild wire this to the engine's post-send hook so the
// overseer's browser updates without polling.
func (s *Server) Broadcast(eventType string, payload any) {
	s.hub.broadcast(eventType, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.eng.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("project")
	proj, err := s.eng.EnsureProject(r.Context(), key, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("project")
	activeOnly := r.URL.Query().Get("active_only") == "true"
	agents, err := s.eng.ListAgents(r.Context(), key, activeOnly, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("project")
	claims, err := s.eng.ActiveClaims(r.Context(), key, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	key, agent := r.URL.Query().Get("project"), chi.URLParam(r, "agent")
	msgs, err := s.eng.FetchInbox(r.Context(), key, agent, mailboxOptionsFromQuery(r), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.renderMessages(r.Context(), key, msgs))
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	key, agent := r.URL.Query().Get("project"), chi.URLParam(r, "agent")
	msgs, err := s.eng.FetchOutbox(r.Context(), key, agent, mailboxOptionsFromQuery(r), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.renderMessages(r.Context(), key, msgs))
}

func mailboxOptionsFromQuery(r *http.Request) index.InboxOptions {
	opts := index.InboxOptions{UrgentOnly: r.URL.Query().Get("urgent_only") == "true", Limit: 50}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		opts.Limit = n
	}
	return opts
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("project")
	msg, err := s.eng.GetMessage(r.Context(), key, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	recipients, err := s.eng.Recipients(r.Context(), key, msg.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, renderMessage(msg, recipients))
}

type overseerSendRequest struct {
	To          []string `json:"to"`
	CC          []string `json:"cc"`
	Subject     string   `json:"subject"`
	BodyMD      string   `json:"body_md"`
	AckRequired bool     `json:"ack_required"`
	ThreadID    string   `json:"thread_id"`
}

func (s *Server) handleOverseerSend(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("project")
	var body overseerSendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.eng.Send(r.Context(), key, mailbox.SendParams{
		To: body.To, CC: body.CC, Subject: body.Subject, BodyMD: body.BodyMD,
		Importance: model.ImportanceNormal, AckRequired: body.AckRequired, ThreadID: body.ThreadID,
		Overseer: true,
	}, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Broadcast("overseer_message", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleForceRelease(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("project")
	claimID := chi.URLParam(r, "claim")
	path := r.URL.Query().Get("path")
	releasedBy := r.URL.Query().Get("released_by")
	if releasedBy == "" {
		releasedBy = "overseer"
	}
	if err := s.eng.ForceRelease(r.Context(), key, claimID, path, releasedBy, time.Now().UTC()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("webui: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("webui: panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}
