package internal

import (
	"context"
	"sync"
)

// PayloadKind is the wire representation of a message payload. The zero
// value (and anything unrecognized) is treated as binary.
type PayloadKind string

const (
	KindBinary PayloadKind = "binary"
	KindText   PayloadKind = "text"
	KindJSON   PayloadKind = "json"
)

// EventOrigin splits inbound events into connection lifecycle events owned
// by the service and messages originating from a client.
type EventOrigin string

const (
	OriginSystem EventOrigin = "system"
	OriginUser   EventOrigin = "user"
)

// RequestKind is the dispatch key for response building.
type RequestKind string

const (
	RequestConnect      RequestKind = "connect"
	RequestConnected    RequestKind = "connected"
	RequestDisconnected RequestKind = "disconnected"
	RequestUser         RequestKind = "user"
	RequestIgnored      RequestKind = "ignored"
)

// ErrorCode is an application handler's explicit failure signal. Codes are
// compared case-insensitively; anything unknown maps to a server error.
type ErrorCode string

const (
	CodeUserError    ErrorCode = "userError"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeServerError  ErrorCode = "serverError"
)

// ErrorResponse rejects an event with an error code and a plain text message.
type ErrorResponse struct {
	Code         ErrorCode `json:"code"`
	ErrorMessage string    `json:"errorMessage"`
}

// ConnectResponse accepts a connect event. UserID and Subprotocol are
// honored by the service during the websocket handshake; States seeds the
// connection state.
type ConnectResponse struct {
	States      map[string]any `json:"states,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Subprotocol string         `json:"subprotocol,omitempty"`
}

// UserResponse replies to a user event. Data is written back to the client
// with the declared payload kind.
type UserResponse struct {
	Data     []byte         `json:"data,omitempty"`
	DataType PayloadKind    `json:"dataType,omitempty"`
	States   map[string]any `json:"states,omitempty"`
}

// Response is the outbound webhook response. An empty StateHeader means the
// connection state header is omitted.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	StateHeader string
}

// Event is the classified inbound webhook event handed to application
// handlers.
type Event struct {
	Hub          string
	ConnectionID string
	UserID       string
	EventType    string
	EventName    string
	Origin       EventOrigin
	Kind         RequestKind
	DataType     PayloadKind
	Data         []byte
	State        *ConnectionState
}

// Handler produces the raw output that the response builder translates. It
// may return a typed response, a raw JSON document ([]byte, json.RawMessage
// or string), or nil for no response.
type Handler func(ctx context.Context, evt *Event) (any, error)

// Handlers holds one handler slot per request kind. Nil slots fall back to
// the default empty response.
type Handlers struct {
	Connect      Handler
	Connected    Handler
	Disconnected Handler
	User         Handler
}

func (h *Handlers) For(kind RequestKind) Handler {
	if h == nil {
		return nil
	}

	switch kind {
	case RequestConnect:
		return h.Connect
	case RequestConnected:
		return h.Connected
	case RequestDisconnected:
		return h.Disconnected
	case RequestUser:
		return h.User
	default:
		return nil
	}
}

// Message is a frame queued for delivery to a locally held client connection.
type Message struct {
	Drop     bool
	DataType PayloadKind
	Buffer   []byte
}

// Registry tracks the client connections held by this instance.
type Registry struct {
	Lock        sync.RWMutex
	Connections map[string]chan Message
}

func NewRegistry() *Registry {
	return &Registry{
		Lock:        sync.RWMutex{},
		Connections: make(map[string]chan Message),
	}
}

// Push queues a message for a registered connection without blocking.
// Reports false when the connection is gone or its queue is full.
func (reg *Registry) Push(id string, msg Message) bool {
	reg.Lock.RLock()
	defer reg.Lock.RUnlock()

	connection, ok := reg.Connections[id]
	if !ok {
		return false
	}

	select {
	case connection <- msg:
		return true
	default:
		return false
	}
}

// RelayType tags events routed between instances over redis.
type RelayType string

const (
	RelayWrite RelayType = "write"
	RelayDrop  RelayType = "drop"
)

// RelayEvent is the cross-instance envelope. Payload is base64 encoded so
// binary frames survive the JSON encoding.
type RelayEvent struct {
	Type     RelayType   `json:"type"`
	ID       string      `json:"id"`
	DataType PayloadKind `json:"dataType,omitempty"`
	Payload  string      `json:"payload,omitempty"`
}
