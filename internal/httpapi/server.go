// Package httpapi exposes the chat bot over HTTP: a browser chat page bound
// to a session cookie, a JSON API and the operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatd/internal/session"
	"chatd/pkg/types"
)

// Generator answers one instruction and reports adapter state.
type Generator interface {
	GenerateResponse(ctx context.Context, instruction string) (string, error)
	Status() types.StatusResponse
	Ready() bool
}

// Sessions is the session store used by the page and the session API.
type Sessions interface {
	Create() *session.Session
	Get(id string) (*session.Session, error)
	Delete(id string) error
	Clear(id string) error
	Submit(ctx context.Context, id, instruction string) (session.Message, error)
	Len() int
}

type server struct {
	bot   Generator
	store Sessions
	page  *pageRenderer
}

// NewMux builds the router. page configures the browser chat page.
func NewMux(bot Generator, store Sessions, page Page) http.Handler {
	s := &server{bot: bot, store: store, page: newPageRenderer(page)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleIndex)
	r.Post("/chat", s.handleChat)
	r.Post("/chat/clear", s.handleClear)
	r.Handle("/static/*", http.StripPrefix("/static/", s.page.static))

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/sessions/{id}/messages", s.handleSessionMessage)
	})

	r.Get("/status", s.handleStatus)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if bot.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

// decodeJSON enforces the content type and body limit. It writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleGenerate godoc
// @Summary      Generate a reply
// @Description  Runs one stateless exchange. The prompt holds only this instruction.
// @Tags         generate
// @Accept       json
// @Produce      json
// @Param        request  body      types.GenerateRequest  true  "Instruction"
// @Success      200      {object}  types.GenerateResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      413      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /api/generate [post]
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	xl := startExchange(r, "", req.Instruction)
	ctx, cancel := exchangeContext(r.Context())
	defer cancel()
	reply, err := s.bot.GenerateResponse(ctx, req.Instruction)
	if err != nil {
		if r.Context().Err() != nil {
			xl.end(499, "", err)
			return
		}
		xl.end(writeError(w, err), "", err)
		return
	}
	writeJSON(w, http.StatusOK, types.GenerateResponse{Response: reply})
	xl.end(http.StatusOK, reply, nil)
}

// handleCreateSession godoc
// @Summary      Start a session
// @Tags         sessions
// @Produce      json
// @Success      201  {object}  types.SessionResponse
// @Router       /api/sessions [post]
func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Create()
	writeJSON(w, http.StatusCreated, sess.ToAPI())
}

// handleGetSession godoc
// @Summary      Get a session and its history
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  types.SessionResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /api/sessions/{id} [get]
func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.ToAPI())
}

// handleDeleteSession godoc
// @Summary      End a session
// @Tags         sessions
// @Param        id   path  string  true  "Session id"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /api/sessions/{id} [delete]
func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionMessage godoc
// @Summary      Send a message
// @Description  Runs one exchange in the session. History grows by two messages on success and is unchanged on failure.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Session id"
// @Param        request  body      types.GenerateRequest  true  "Instruction"
// @Success      200      {object}  types.MessageResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      413      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /api/sessions/{id}/messages [post]
func (s *server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	xl := startExchange(r, id, req.Instruction)
	ctx, cancel := exchangeContext(r.Context())
	defer cancel()
	reply, err := s.store.Submit(ctx, id, req.Instruction)
	if err != nil {
		if r.Context().Err() != nil {
			xl.end(499, "", err)
			return
		}
		xl.end(writeError(w, err), "", err)
		return
	}
	sess, err := s.store.Get(id)
	if err != nil {
		// deleted while generating
		xl.end(writeError(w, err), "", err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Reply: reply.ToAPI(), History: sess.ToAPI().History})
	xl.end(http.StatusOK, reply.Text, nil)
}

// handleStatus godoc
// @Summary      Adapter status
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.bot.Status()
	st.Sessions = s.store.Len()
	writeJSON(w, http.StatusOK, st)
}
