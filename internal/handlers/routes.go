package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/dotr/internal/metrics"
	"github.com/jason-s-yu/dotr/internal/middleware"
)

// newRouter applies the middleware both servers share. An empty allowedOrigins
// permits any http or https origin.
func newRouter(s *wsServer, allowedOrigins []string) chi.Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LogMiddleware(s.logger, s.name))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	return r
}

// SetupRelayRoutes builds the relay server's router. The websocket is served at
// both / and /ws because deployed clients use either.
func SetupRelayRoutes(s *RelayServer, allowedOrigins []string) http.Handler {
	r := newRouter(&s.wsServer, allowedOrigins)

	r.Get("/", s.HandleWS)
	r.Get("/ws", s.HandleWS)
	r.Get("/healthz", Healthz)
	r.Get("/rooms", s.ListRooms)
	r.Get("/rooms/{roomID}", s.GetRoom)
	r.Get("/rooms/{roomID}/actions", s.ListActions)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// SetupSignalingRoutes builds the signaling server's router.
func SetupSignalingRoutes(s *SignalingServer, allowedOrigins []string) http.Handler {
	r := newRouter(&s.wsServer, allowedOrigins)

	r.Get("/", s.HandleWS)
	r.Get("/ws", s.HandleWS)
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
