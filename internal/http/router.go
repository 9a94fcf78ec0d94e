package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hackclub/mediafield/internal/config"
	"github.com/hackclub/mediafield/internal/forms"
	"github.com/hackclub/mediafield/internal/session"
	"github.com/rs/zerolog"
)

type contextKey string

const formKey contextKey = "form"

type Server struct {
	config         *config.Config
	logger         zerolog.Logger
	sessionManager *session.Manager
	forms          *forms.Registry
	metrics        http.Handler
}

func NewServer(
	cfg *config.Config,
	logger zerolog.Logger,
	sessionManager *session.Manager,
	registry *forms.Registry,
	metrics http.Handler,
) *Server {
	return &Server{
		config:         cfg,
		logger:         logger,
		sessionManager: sessionManager,
		forms:          registry,
		metrics:        metrics,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.AppBaseURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// websocket upgrades must not sit behind the request timeout
	r.With(s.FormMiddleware).Get("/admin/forms/{formID}/ws", s.HandleWebsocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/healthz", s.HealthCheck)
		r.Get("/api/config", s.HandleConfig)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}
		if s.config.MediaHost == config.HostLocal {
			r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.config.LocalMediaDir))))
		}

		r.Route("/admin", func(r chi.Router) {
			r.Get("/", s.HandleCurrentForm)
			r.Post("/forms", s.HandleCreateForm)

			r.Route("/forms/{formID}", func(r chi.Router) {
				r.Use(s.FormMiddleware)
				r.Get("/", s.HandleGetForm)
				r.Delete("/", s.HandleDeleteForm)
				r.Post("/markup", s.HandleAppendMarkup)
				r.Post("/triggers/{index}/click", s.HandleClick)
				r.Post("/submit", s.HandleSubmit)
			})

			r.Post("/dialogs/{dialogID}", s.HandleDialogUpload)
			r.Delete("/dialogs/{dialogID}", s.HandleDialogClose)
		})
	})

	return r
}

// Middleware

func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("ip", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// FormMiddleware loads the form named in the URL into the request context.
func (s *Server) FormMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form, ok := s.forms.Get(chi.URLParam(r, "formID"))
		if !ok {
			http.Error(w, "Form not found", http.StatusNotFound)
			return
		}
		ctx := context.WithValue(r.Context(), formKey, form)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func formFromContext(ctx context.Context) *forms.Form {
	form, _ := ctx.Value(formKey).(*forms.Form)
	return form
}

// Handlers

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"forms":     s.forms.Len(),
	})
}

// HandleConfig returns the widget settings a page needs to render its
// upload buttons.
func (s *Server) HandleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.config.Widget())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}
