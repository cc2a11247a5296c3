package fleet

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// StatusAPI is a read-only JSON companion surface to the file-based IPC:
// the same fleet snapshot and per-bot stats, reachable over HTTP for a
// host that would rather poll a socket than a file. It serves no HTML —
// a dashboard is explicitly out of scope for the core.
type StatusAPI struct {
	router    *chi.Mux
	ctrl      *Controller
	authToken string
	logger    *logrus.Logger
}

// NewStatusAPI builds a StatusAPI over ctrl. An empty authToken disables
// authentication.
func NewStatusAPI(ctrl *Controller, authToken string, logger *logrus.Logger) *StatusAPI {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	api := &StatusAPI{
		router:    chi.NewRouter(),
		ctrl:      ctrl,
		authToken: authToken,
		logger:    logger,
	}
	api.setupRoutes()
	return api
}

// Router exposes the underlying chi.Mux so cmd/fleetd can mount it under
// an http.Server of its own choosing.
func (a *StatusAPI) Router() *chi.Mux { return a.router }

func (a *StatusAPI) setupRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(10 * time.Second))
	a.router.Use(a.requestLogger)

	a.router.Get("/health", a.handleHealth)

	a.router.Group(func(r chi.Router) {
		if a.authToken != "" {
			r.Use(a.authMiddleware)
		}
		r.Get("/status", a.handleStatus)
		r.Get("/bots/{botID}", a.handleBotStatus)
		r.Get("/bots/{botID}/stats", a.handleBotStats)
	})
}

func (a *StatusAPI) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		a.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("status api request")
	})
}

func (a *StatusAPI) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.authToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *StatusAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *StatusAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := struct {
		GlobalPaused bool `json:"global_paused"`
		Bots         any  `json:"bots"`
	}{
		GlobalPaused: a.ctrl.state.IsGloballyPaused(),
		Bots:         a.ctrl.AllBotStatus(),
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *StatusAPI) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	rec, ok := a.ctrl.BotStatus(botID)
	if !ok {
		http.Error(w, "bot not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *StatusAPI) handleBotStats(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	stats, err := a.ctrl.BotTradingStats(botID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
