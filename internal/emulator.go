package internal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"golang.org/x/exp/slog"

	"nhooyr.io/websocket"
)

// serviceConnection plays the service side of the webhook protocol for one
// client connection: it delivers CloudEvents to the event handler endpoint
// and carries the connection state between events.
type serviceConnection struct {
	client *http.Client
	signer EventSigner
	url    string
	hub    string
	id     string
	user   string
	state  *ConnectionState
}

func (c *serviceConnection) deliver(
	ctx context.Context,
	origin EventOrigin,
	eventName string,
	kind PayloadKind,
	body []byte,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	prefix := UserEventPrefix
	if origin == OriginSystem {
		prefix = SystemEventPrefix
	}

	req.Header.Set(HeaderEventType, prefix+eventName)
	req.Header.Set(HeaderEventName, eventName)
	req.Header.Set(HeaderHub, c.hub)
	req.Header.Set(HeaderConnectionID, c.id)
	req.Header.Set("Content-Type", ContentTypeOf(kind))

	if c.user != "" {
		req.Header.Set(HeaderUserID, c.user)
	}

	states := c.state.Snapshot()
	if len(states) > 0 {
		encoded, err := EncodeState(states)
		if err != nil {
			return nil, err
		}

		req.Header.Set(HeaderConnectionState, encoded)
	}

	if c.signer != nil {
		c.signer(req, c.id)
	}

	return c.client.Do(req)
}

// applyState adopts the full merged state echoed back by a webhook
// response. An absent header means no change.
func (c *serviceConnection) applyState(resp *http.Response) error {
	header := resp.Header.Get(HeaderConnectionState)
	if header == "" {
		return nil
	}

	states, err := DecodeState(header)
	if err != nil {
		return err
	}

	c.state.Replace(states)

	return nil
}

// ClientRoute accepts a client websocket and drives its lifecycle against
// the event handler endpoint: connect round trip, async connected event,
// user message events for every frame, disconnected event on close.
func ClientRoute(
	reg *Registry,
	logger *slog.Logger,
	rdb *redis.Client,
	signer EventSigner,
	instanceID, eventHandlerURL string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		now := time.Now()
		hub := chi.URLParam(r, "hub")

		kid, err := ksuid.NewRandom()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		id := kid.String()
		rid := fmt.Sprintf("conn:%v", id)
		log := logger.With(slog.String("connection", id), slog.String("hub", hub))
		hc := http.Client{Timeout: 30 * time.Second}

		sc := &serviceConnection{
			client: &hc,
			signer: signer,
			url:    eventHandlerURL,
			hub:    hub,
			id:     id,
			user:   r.URL.Query().Get("user"),
			state:  NewConnectionState(nil),
		}

		connectBody, err := json.Marshal(map[string]any{
			"query":        flattenValues(r.URL.Query()),
			"subprotocols": r.Header.Values("Sec-WebSocket-Protocol"),
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		resp, err := sc.deliver(ctx, OriginSystem, "connect", KindJSON, connectBody)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		accepted, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			w.WriteHeader(resp.StatusCode)
			_, _ = w.Write(accepted)
			return
		}

		if err := sc.applyState(resp); err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		accept := ConnectResponse{}
		if len(accepted) > 0 {
			// non-JSON accept bodies are tolerated, nothing to honor
			_ = json.Unmarshal(accepted, &accept)
		}

		if accept.UserID != "" {
			sc.user = accept.UserID
		}

		opts := &websocket.AcceptOptions{}
		if accept.Subprotocol != "" {
			opts.Subprotocols = []string{accept.Subprotocol}
		}

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			return
		}

		msgChan := make(chan Message, 16)

		reg.Lock.Lock()
		reg.Connections[id] = msgChan
		reg.Lock.Unlock()

		connectionsActive.Inc()

		data := map[string]any{
			"inst": instanceID,
			"hub":  hub,
			"user": sc.user,
			"join": strconv.Itoa(int(now.Unix())),
			"recv": "0",
			"sent": "0",
		}

		registered := rdb.HSet(ctx, rid, data).Err() == nil &&
			rdb.Expire(ctx, rid, 90*time.Second).Err() == nil
		if !registered {
			log.Warn("failed to register connection")
		}

		defer func() {
			reg.Lock.Lock()
			delete(reg.Connections, id)
			close(msgChan)
			reg.Lock.Unlock()

			connectionsActive.Dec()

			if err := rdb.Del(context.Background(), rid).Err(); err != nil {
				log.Error("failed to cleanup", err)
			}

			body, err := json.Marshal(map[string]string{"reason": "connection closed"})
			if err != nil {
				return
			}

			resp, err := sc.deliver(context.Background(), OriginSystem, "disconnected", KindJSON, body)
			if err != nil {
				return
			}

			//goland:noinspection GoUnhandledErrorResult
			defer resp.Body.Close()
		}()

		go func() {
			resp, err := sc.deliver(ctx, OriginSystem, "connected", KindJSON, []byte("{}"))
			if err != nil {
				log.Warn("failed to deliver connected event")
				return
			}

			_ = resp.Body.Close()
		}()

		go func() {
			defer cancel()
			for {
				typ, b, err := conn.Read(ctx)
				if err != nil {
					return
				}

				if err := rdb.HIncrBy(ctx, rid, "recv", 1).Err(); err != nil {
					log.Warn("failed to update received messages stats")
				}

				kind := KindText
				if typ == websocket.MessageBinary {
					kind = KindBinary
				}

				resp, err := sc.deliver(ctx, OriginUser, "message", kind, b)
				if err != nil {
					log.Error("failed to deliver message event", err)
					return
				}

				rb, err := io.ReadAll(resp.Body)
				_ = resp.Body.Close()
				if err != nil {
					return
				}

				if resp.StatusCode == http.StatusUnauthorized {
					_ = conn.Close(websocket.StatusPolicyViolation, "unauthorized")
					return
				}

				if resp.StatusCode >= http.StatusBadRequest {
					log.Warn("message event rejected", slog.Int("status", resp.StatusCode))
					continue
				}

				if err := sc.applyState(resp); err != nil {
					log.Warn("bad connection state header", slog.String("cause", err.Error()))
				}

				if len(rb) == 0 {
					continue
				}

				rkind, _ := TryKindOf(resp.Header.Get("Content-Type"))

				if !reg.Push(id, Message{DataType: rkind, Buffer: rb}) {
					log.Warn("reply dropped, slow consumer")
				}
			}
		}()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(45 * time.Second):
					if err := conn.Ping(ctx); err != nil {
						log.Error("failed to ping", err)
						_ = conn.Close(websocket.StatusAbnormalClosure, "hello?")
						return
					}

					if err := rdb.Expire(ctx, rid, 60*time.Second).Err(); err != nil {
						log.Error("failed to extend exp", err)
						_ = conn.Close(websocket.StatusAbnormalClosure, "it broke")
						return
					}
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info("left")
				return
			case msg := <-msgChan:
				if msg.Drop {
					_ = conn.Close(websocket.StatusNormalClosure, "closed by service")
					return
				}

				typ := websocket.MessageText
				if msg.DataType == KindBinary {
					typ = websocket.MessageBinary
				}

				if err := conn.Write(ctx, typ, msg.Buffer); err != nil {
					log.Error("failed to write message", err)
					return
				}

				if err := rdb.HIncrBy(ctx, rid, "sent", 1).Err(); err != nil {
					log.Warn("failed to update sent messages stats")
				}
			}
		}
	}
}

func flattenValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = strings.Join(value, ",")
	}

	return out
}

// SendRoute writes a payload to a connection through the data plane. When
// the connection lives on another instance the write is relayed over redis.
func SendRoute(reg *Registry, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "connection")
		rid := fmt.Sprintf("conn:%v", id)
		ctx := r.Context()

		kind, _ := TryKindOf(r.Header.Get("Content-Type"))

		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		reg.Lock.RLock()
		defer reg.Lock.RUnlock()

		connection, ok := reg.Connections[id]
		if !ok {
			instanceID, err := rdb.HGet(ctx, rid, "inst").Result()
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			relay := RelayEvent{
				Type:     RelayWrite,
				ID:       id,
				DataType: kind,
				Payload:  base64.RawURLEncoding.EncodeToString(b),
			}

			if err := publishRelay(ctx, rdb, instanceID, relay); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			w.WriteHeader(http.StatusCreated)
			return
		}

		select {
		case connection <- Message{DataType: kind, Buffer: b}:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}
}

// CloseRoute drops a connection through the data plane, relaying over redis
// when it lives on another instance.
func CloseRoute(reg *Registry, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "connection")
		rid := fmt.Sprintf("conn:%v", id)
		ctx := r.Context()

		reg.Lock.RLock()
		defer reg.Lock.RUnlock()

		connection, ok := reg.Connections[id]
		if !ok {
			instanceID, err := rdb.HGet(ctx, rid, "inst").Result()
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			if err := publishRelay(ctx, rdb, instanceID, RelayEvent{Type: RelayDrop, ID: id}); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			w.WriteHeader(http.StatusCreated)
			return
		}

		select {
		case connection <- Message{Drop: true}:
		default:
		}

		w.WriteHeader(http.StatusOK)
	}
}

func publishRelay(ctx context.Context, rdb *redis.Client, instanceID string, relay RelayEvent) error {
	b, err := json.Marshal(relay)
	if err != nil {
		return err
	}

	return rdb.Publish(ctx, instanceID, base64.RawURLEncoding.EncodeToString(b)).Err()
}

// SubscribeRelay consumes the instance channel and applies relayed
// data-plane operations to locally held connections.
func SubscribeRelay(ctx context.Context, logger *slog.Logger, reg *Registry, rdb *redis.Client, instanceID string) {
	sub := rdb.Subscribe(ctx, instanceID)
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case msg := <-ch:
			b, err := base64.RawURLEncoding.DecodeString(msg.Payload)
			if err != nil {
				logger.Error("failed to decode relay event", err)
				continue
			}

			relay := RelayEvent{}
			if err := json.Unmarshal(b, &relay); err != nil {
				logger.Error("failed to unmarshal relay event", err)
				continue
			}

			switch relay.Type {
			case RelayWrite:
				func() {
					payload, err := base64.RawURLEncoding.DecodeString(relay.Payload)
					if err != nil {
						logger.Warn("failed to decode payload", slog.String("connection", relay.ID))
						return
					}

					reg.Lock.RLock()
					defer reg.Lock.RUnlock()

					connection, ok := reg.Connections[relay.ID]
					if !ok {
						logger.Warn("no such connection", slog.String("connection", relay.ID))
						return
					}

					select {
					case connection <- Message{DataType: relay.DataType, Buffer: payload}:
					default:
						logger.Warn("relay dropped, slow consumer", slog.String("connection", relay.ID))
					}
				}()
			case RelayDrop:
				func() {
					reg.Lock.RLock()
					defer reg.Lock.RUnlock()

					connection, ok := reg.Connections[relay.ID]
					if !ok {
						logger.Warn("no such connection", slog.String("connection", relay.ID))
						return
					}

					select {
					case connection <- Message{Drop: true}:
					default:
					}
				}()
			default:
				logger.Warn("unknown relay type", slog.String("type", string(relay.Type)))
				continue
			}
		}
	}
}
