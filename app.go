package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/config"
	"gitea.kood.tech/petrkubec/soulmate/backend/media"
	"gitea.kood.tech/petrkubec/soulmate/backend/metrics"
	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// Cache kinds. Writers invalidate by kind.
const (
	kindProfiles      = "profiles"
	kindProfile       = "profile"
	kindInteractions  = "profile_interactions"
	kindAccount       = "account"
	kindNotifications = "notifications"
	kindMessages      = "messages"
)

// App carries the dependencies every handler needs.
type App struct {
	cfg      config.Config
	store    store.Store
	cache    *querycache.Cache
	photos   media.Storage
	hub      *Hub
	log      *zap.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
}

type appDeps struct {
	Config  config.Config
	Store   store.Store
	Photos  media.Storage
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func newApp(d appDeps) *App {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	cc := d.Config.Cache
	cache := querycache.New(
		querycache.WithStaleAfter(cc.StaleAfter),
		querycache.WithRetries(cc.Retries),
		querycache.WithRetryDelay(cc.RetryDelay),
		querycache.WithFetchTimeout(cc.FetchTimeout),
		querycache.WithSize(cc.Size),
		// a missing row will still be missing on the second try
		querycache.WithRetryIf(func(err error) bool { return !errors.Is(err, store.ErrNotFound) }),
		querycache.WithObserver(d.Metrics),
		querycache.WithLogger(log.Named("querycache")),
	)
	return &App{
		cfg:      d.Config,
		store:    d.Store,
		cache:    cache,
		photos:   d.Photos,
		hub:      newHub(d.Metrics),
		log:      log,
		metrics:  d.Metrics,
		validate: newValidator(),
		now:      time.Now,
	}
}

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(a.log, a.metrics))
	r.Use(withCORS(a.cfg.HTTP.CORSOrigins))
	r.Use(DataLoaderMiddleware(a.store))

	r.Get("/", landingHandler())
	r.Get("/login", loginFormHandler())
	r.Post("/login", loginHandler(a))
	r.Get("/register", registerFormHandler())
	r.Post("/register", registerHandler(a))
	r.Post("/logout", logoutHandler(a))
	r.Get("/session", sessionHandler(a))

	r.Get("/profiles", profilesHandler(a))
	r.Get("/profiles/filters", filterOptionsHandler())
	r.Get("/profile/{id}", profileDetailHandler(a))
	r.Post("/profile/{id}/interactions", interactionHandler(a))
	r.Post("/profile/{id}/report", reportHandler())
	r.Get("/interactions", a.authenticate(interactionsHandler(a)))

	r.Group(func(r chi.Router) {
		r.Use(a.requireSession)
		r.Get("/dashboard", dashboardHandler(a))
		r.Get("/settings", settingsHandler(a))
		r.Post("/settings", saveSettingsHandler(a))
		r.Post("/settings/photos", uploadPhotoHandler(a))
	})

	r.Get("/ws/notifications", wsNotificationsHandler(a))

	r.Get("/health", healthHandler(a))
	r.Handle("/metrics", a.metrics.Handler())

	if disk, ok := a.photos.(*media.DiskStorage); ok {
		prefix := strings.TrimSuffix(disk.URLPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(disk.Root))))
	}

	r.NotFound(notFoundHandler())
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "invalid_method")
	})
	return r
}

func healthHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Ping(r.Context()); err != nil {
			a.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// requestLogger logs each request and records it in the HTTP metrics under
// its route pattern.
func requestLogger(log *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, status, time.Since(start))
			log.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
