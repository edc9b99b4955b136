package internal

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

// ValidationRoute answers the endpoint validation handshake: every
// advertised origin on the allow-list is echoed back in the allowed-origin
// header. A handshake without origins is a caller contract violation.
func ValidationRoute(allowedOrigins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, origins := IsValidationRequest(r)
		if !ok || len(origins) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		for _, origin := range origins {
			if originAllowed(allowedOrigins, origin) {
				w.Header().Add(HeaderAllowedOrigin, origin)
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}

	return false
}

// EventRoute is the webhook endpoint: parse, verify, classify, dispatch to
// the application handler, translate its output, reply. Translation
// failures fail open: the cause is logged and counted, the service gets the
// default empty response.
func EventRoute(
	logger *slog.Logger,
	rdb *redis.Client,
	handlers *Handlers,
	verifier EventVerifier,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		evt, err := ParseEventRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if verifier != nil && !verifier(r, evt.ConnectionID) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		eventsTotal.WithLabelValues(evt.Hub, string(evt.Kind)).Inc()

		if rdb != nil {
			rid := fmt.Sprintf("conn:%v", evt.ConnectionID)
			if err := rdb.HIncrBy(ctx, rid, "events", 1).Err(); err != nil {
				logger.Warn("failed to update event stats", slog.String("connection", evt.ConnectionID))
			}
		}

		handler := handlers.For(evt.Kind)
		if handler == nil {
			writeDefault(w, evt.Hub)
			return
		}

		out, err := handler(ctx, evt)
		if err != nil {
			logger.Error("handler failed", err, slog.String("connection", evt.ConnectionID))
			writeResponse(w, evt.Hub, BuildErrorResponse(&ErrorResponse{
				Code:         CodeServerError,
				ErrorMessage: err.Error(),
			}))
			return
		}

		resp, err := BuildResponse(out, evt.Kind, evt.State)
		if err != nil {
			buildFailures.WithLabelValues(evt.Hub).Inc()
			logger.Warn("dropping handler output",
				slog.String("connection", evt.ConnectionID),
				slog.String("cause", err.Error()),
			)
		}

		if resp == nil {
			writeDefault(w, evt.Hub)
			return
		}

		writeResponse(w, evt.Hub, resp)
	}
}

func writeDefault(w http.ResponseWriter, hub string) {
	responsesTotal.WithLabelValues(hub, strconv.Itoa(http.StatusOK)).Inc()
	w.WriteHeader(http.StatusOK)
}

func writeResponse(w http.ResponseWriter, hub string, resp *Response) {
	responsesTotal.WithLabelValues(hub, strconv.Itoa(resp.Status)).Inc()

	w.Header().Set("Content-Type", resp.ContentType)
	if resp.StateHeader != "" {
		w.Header().Set(HeaderConnectionState, resp.StateHeader)
	}

	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
