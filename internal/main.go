package internal

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

// Main wires the routes. The webhook endpoint is always mounted; the
// emulator front (client websockets plus the data plane) only when
// eventHandlerURL is set.
func Main(
	logger *slog.Logger,
	ctx context.Context,
	instanceID string,
	rdb *redis.Client,
	accessKey []byte,
	allowedOrigins []string,
	handlers *Handlers,
	eventHandlerURL string,
) (chi.Router, error) {
	var signer EventSigner
	var verifier EventVerifier
	if len(accessKey) > 0 {
		signer = NewEventSigner(accessKey)
		verifier = NewEventVerifier(accessKey)
	}

	router := chi.NewRouter()
	router.Use(mid(instanceID))
	router.Get("/health", health())
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Get("/eventhandler", ValidationRoute(allowedOrigins))
	router.Options("/eventhandler", ValidationRoute(allowedOrigins))
	router.Post("/eventhandler", EventRoute(logger, rdb, handlers, verifier))

	if eventHandlerURL != "" {
		reg := NewRegistry()
		go SubscribeRelay(ctx, logger, reg, rdb, instanceID)

		router.Get("/client/hubs/{hub}", ClientRoute(reg, logger, rdb, signer, instanceID, eventHandlerURL))
		router.Post("/api/hubs/{hub}/connections/{connection}", SendRoute(reg, rdb))
		router.Delete("/api/hubs/{hub}/connections/{connection}", CloseRoute(reg, rdb))
	}

	return router, nil
}

func health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func mid(instanceID string) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "hookgw")
			w.Header().Set("Instance-ID", instanceID)
			handler.ServeHTTP(w, r)
		})
	}
}
