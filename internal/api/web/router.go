package web

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the handlers. Request ID, logging, timeout and recovery wrap
// every route; metrics wraps every matched route and is skipped when nil.
func NewRouter(h *Handler, m *Middleware, metrics func(http.Handler) http.Handler, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter().UseEncodedPath()
	r.Use(m.RequestID, m.Logging, m.Recovery, m.Timeout)
	if metrics != nil {
		r.Use(metrics)
	}

	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/register", h.RegisterForm).Methods(http.MethodGet)
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.LoginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{username:.+}", h.GetUser).Methods(http.MethodGet)

	r.HandleFunc("/healthz/live", h.Live).Methods(http.MethodGet)
	r.HandleFunc("/healthz/ready", h.Ready).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	return r
}
