package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/session-gateway/internal/auth"
	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/events"
	"github.com/lexiqai/session-gateway/internal/export"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/records"
	"github.com/lexiqai/session-gateway/internal/stt"
	"github.com/lexiqai/session-gateway/internal/transcript"
)

// Dependencies are the collaborators the HTTP surface is built from.
// Auth may be nil to serve without authentication and Events nil to skip publishing.
type Dependencies struct {
	Config   *config.Config
	STT      stt.Factory
	Auth     auth.Provider
	Records  records.Store
	Exporter *export.Exporter
	Events   *events.Publisher
	Checks   map[string]observability.HealthCheckFunc
}

// NewRouter constructs the HTTP router for the gateway
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(d.Checks))
	if d.Config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/ws/transcribe", HandleTranscribeWS(d.Config, d.STT, d.Auth, d.Events))

	r.Route("/api", func(r chi.Router) {
		if d.Auth != nil {
			r.Use(requireAuth(d.Auth))
		}
		if d.Records != nil {
			r.Get("/sessions/{id}", handleSession(d.Records))
		}
		if d.Exporter != nil {
			r.Post("/transcripts/export", handleExport(d.Exporter))
		}
	})

	return r
}

func requireAuth(provider auth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := provider.CurrentUser(r.Context(), auth.BearerToken(r)); err != nil {
				observability.RecordError("unauthenticated", "gateway")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionResponse is the session page's record view
type sessionResponse struct {
	Session *records.SessionRecord  `json:"session"`
	History *records.PatientHistory `json:"history,omitempty"`
}

func handleSession(store records.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := store.Session(r.Context(), id)
		if errors.Is(err, records.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("Failed to load session record")
			writeError(w, http.StatusInternalServerError, "failed to load session")
			return
		}

		resp := sessionResponse{Session: rec}
		history, err := store.PatientHistory(r.Context(), rec.Patient.ID)
		switch {
		case err == nil:
			resp.History = history
		case !errors.Is(err, records.ErrNotFound):
			log.Warn().Err(err).Str("patient_id", rec.Patient.ID).Msg("Failed to load patient history")
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// exportRequest carries a client-held transcript to render as a download
type exportRequest struct {
	Subject         string             `json:"subject"`
	DurationSeconds int                `json:"duration_seconds"`
	Entries         []transcript.Entry `json:"entries"`
}

func handleExport(exporter *export.Exporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exportRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid export request")
			return
		}
		if err := exporter.WriteDownload(w, req.Entries, req.Subject, req.DurationSeconds); err != nil {
			log.Warn().Err(err).Msg("Failed to serve transcript download")
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
