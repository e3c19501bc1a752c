package api

import (
	"net/http"

	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/root"
)

// Options wires the API surface.
type Options struct {
	Registry       *root.Registry
	Sessions       *root.Sessions
	Bus            *event.Bus[event.RootEvent]
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
}

// NewMux assembles the observability and control endpoints.
func NewMux(options Options) *http.ServeMux {
	mux := http.NewServeMux()

	roots := &RootsHandler{Registry: options.Registry}
	control := &ControlHandler{Registry: options.Registry, Sessions: options.Sessions}
	events := &EventsHandler{
		Bus:            options.Bus,
		Logger:         options.Logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	}

	register := func(pattern, method string, handler apiHandler) {
		wrapped := jsonErrorMiddleware(authMiddleware(options.AuthToken, handler))
		if method != "" {
			wrapped = jsonErrorMiddleware(authMiddleware(options.AuthToken, requireMethod(method, handler)))
		}
		mux.Handle(pattern, loggingMiddleware(options.Logger, wrapped))
	}

	register("/api/roots", http.MethodGet, roots.list)
	register("/api/roots/status", http.MethodGet, roots.status)
	register("/api/watch", http.MethodPost, control.watch)
	register("/api/unwatch", http.MethodPost, control.unwatch)
	register("/api/triggers", "", control.triggers)
	register("/api/subscriptions", "", control.subscriptions)
	register("/api/clients/disconnect", http.MethodPost, control.disconnect)

	mux.Handle("/api/events", events)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = options.Metrics.WritePrometheus(w)
	})

	return mux
}
