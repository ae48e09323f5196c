package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
	"github.com/ILLUVRSE/placements/placement-engine/internal/resolver"
	"github.com/ILLUVRSE/placements/placement-engine/internal/session"
	"github.com/ILLUVRSE/placements/placement-engine/internal/store"
)

const maxTimeout = 25 * time.Second

type Sessions interface {
	Get(id session.Identity) (*session.Session, error)
}

type Server struct {
	sessions Sessions
	verifier *Verifier
	store    store.KV
	logger   *slog.Logger
}

func New(sessions Sessions, verifier *Verifier, kv store.KV, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sessions: sessions,
		verifier: verifier,
		store:    kv,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.verifier.Middleware)
		r.Get("/v1/placements/{placementID}/{kind}", s.handleResolve(false))
		r.Get("/v1/placements/{placementID}/{kind}/untargeted", s.handleResolve(true))
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolve(untargeted bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := models.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		query := r.URL.Query()
		policy, err := models.ParseFetchPolicy(query.Get("policy"))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		req := resolver.Request{
			Kind:        kind,
			PlacementID: chi.URLParam(r, "placementID"),
			Locale:      query.Get("locale"),
			Policy:      policy,
			Untargeted:  untargeted,
		}
		if raw := query.Get("timeout_ms"); raw != "" && !untargeted {
			ms, err := strconv.Atoi(raw)
			if err != nil || ms <= 0 {
				respondError(w, http.StatusBadRequest, "timeout_ms must be a positive integer")
				return
			}
			req.Timeout = time.Duration(ms) * time.Millisecond
			if req.Timeout > maxTimeout {
				req.Timeout = maxTimeout
			}
		}

		id, ok := identityFrom(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "identity required")
			return
		}
		sess, err := s.sessions.Get(id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		v, err := sess.Resolver.Resolve(r.Context(), req)
		if err != nil {
			status := statusFor(err)
			s.logger.Warn("placement resolution failed",
				"profile_id", id.ProfileID,
				"placement_id", req.PlacementID,
				"kind", kind,
				"status", status,
				"request_id", middleware.GetReqID(r.Context()),
				"error", err)
			respondError(w, status, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resolver.ErrDecodingFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resolver.ErrProfileChanged):
		return http.StatusConflict
	case errors.Is(err, resolver.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
