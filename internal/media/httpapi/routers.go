package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	// ArtifactsDir is served under /artifacts/ when set (local blob backend).
	ArtifactsDir string
	// MaxUploadBytes caps the request body of upload routes. Zero means no limit.
	MaxUploadBytes int64
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if cfg.MaxUploadBytes > 0 {
			r.Use(middleware.RequestSize(cfg.MaxUploadBytes))
		}
		r.Post("/upload", h.Upload)
		r.Post("/convert", h.Convert)
	})

	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/events", h.Events)

	if cfg.ArtifactsDir != "" {
		fs := http.StripPrefix("/artifacts/", http.FileServer(http.Dir(cfg.ArtifactsDir)))
		r.Get("/artifacts/*", fs.ServeHTTP)
	}

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
