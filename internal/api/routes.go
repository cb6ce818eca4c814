package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookscan/bookscan-server/internal/metrics"
	"github.com/bookscan/bookscan-server/internal/pipeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORS(cfg.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "not found", "", CodeNotFound)
	})

	r.Get("/", homeHandler())
	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/upload", uploadHandler(cfg))

	return r
}

func homeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HomeResponse{Status: "Backend Running Successfully"})
	}
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			State:  "idle",
			Active: []pipeline.Status{},
		}

		if cfg.Converter != nil {
			if active := cfg.Converter.Active(); len(active) > 0 {
				resp.State = "converting"
				resp.Active = active
			}
		}

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(r.Context())
			switch {
			case err != nil:
				resp.ProbeError = err.Error()
			case caps != nil:
				resp.Capabilities = caps
				if !caps.Modes.Text && !caps.Modes.Images {
					resp.State = "unavailable"
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}
