package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evairo/aqmon/backend/internal/checkpoint"
	"github.com/evairo/aqmon/backend/internal/scheduler"
	"github.com/evairo/aqmon/backend/pkg/database"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(ledger checkpoint.Ledger, sched *scheduler.Scheduler, db *database.DB, metricsEnabled bool, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	h := &handler{ledger: ledger, sched: sched, db: db}

	r.HandleFunc("/health", h.health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/checkpoints", h.checkpoints).Methods("GET")
	api.HandleFunc("/checkpoints/latest", h.latestCheckpoint).Methods("GET")
	api.HandleFunc("/jobs", h.jobs).Methods("GET")

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

type handler struct {
	ledger checkpoint.Ledger
	sched  *scheduler.Scheduler
	db     *database.DB
}

// health reports database health alongside service liveness.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status, err := h.db.HealthCheck(r.Context())
	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":   statusWord(err == nil),
		"service":  "aqmon-pipeline",
		"database": status,
	})
}

// checkpoints returns recent checkpoints, newest first.
func (h *handler) checkpoints(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	checkpoints, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"checkpoints": checkpoints})
}

// latestCheckpoint returns the ledger's current checkpoint.
func (h *handler) latestCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := h.ledger.Latest(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if cp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no checkpoints yet"})
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// jobs returns scheduler job statistics.
func (h *handler) jobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.sched.GetJobStats()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusWord(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics.
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					writeJSON(w, http.StatusInternalServerError, map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
