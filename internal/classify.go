package internal

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SystemEventPrefix marks connection lifecycle events emitted by the
// service itself. Every other event type token is a user event.
const (
	SystemEventPrefix = "azure.webpubsub.sys."
	UserEventPrefix   = "azure.webpubsub.user."
)

const (
	HeaderEventType       = "ce-type"
	HeaderEventName       = "ce-eventname"
	HeaderHub             = "ce-hub"
	HeaderConnectionID    = "ce-connectionid"
	HeaderUserID          = "ce-userid"
	HeaderConnectionState = "ce-connectionstate"
	HeaderSignature       = "ce-signature"
	HeaderRequestOrigin   = "WebHook-Request-Origin"
	HeaderAllowedOrigin   = "WebHook-Allowed-Origin"
)

func OriginOf(eventType string) EventOrigin {
	if strings.HasPrefix(strings.ToLower(eventType), SystemEventPrefix) {
		return OriginSystem
	}

	return OriginUser
}

// RequestKindOf classifies an event for response building. Unknown system
// event names are dropped, not errored; the protocol may grow lifecycle
// events this version does not know about.
func RequestKindOf(origin EventOrigin, eventName string) RequestKind {
	if origin == OriginUser {
		return RequestUser
	}

	switch strings.ToLower(eventName) {
	case "connect":
		return RequestConnect
	case "connected":
		return RequestConnected
	case "disconnected":
		return RequestDisconnected
	default:
		return RequestIgnored
	}
}

// IsValidationRequest reports whether the request is an endpoint validation
// handshake, and if so the origins it advertises in header order. Presence
// of the origin header is the caller's contract to enforce.
func IsValidationRequest(r *http.Request) (bool, []string) {
	if r.Method != http.MethodOptions && r.Method != http.MethodGet {
		return false, nil
	}

	return true, r.Header.Values(HeaderRequestOrigin)
}

// ParseEventRequest builds the typed event from the CloudEvents headers and
// the request body. The advertised content type is validated
// opportunistically and defaults to binary.
func ParseEventRequest(r *http.Request) (*Event, error) {
	eventType := r.Header.Get(HeaderEventType)
	if eventType == "" {
		return nil, fmt.Errorf("missing %v header", HeaderEventType)
	}

	connectionID := r.Header.Get(HeaderConnectionID)
	if connectionID == "" {
		return nil, fmt.Errorf("missing %v header", HeaderConnectionID)
	}

	origin := OriginOf(eventType)

	eventName := r.Header.Get(HeaderEventName)
	if eventName == "" {
		eventName = eventNameOf(eventType, origin)
	}

	states, err := DecodeState(r.Header.Get(HeaderConnectionState))
	if err != nil {
		return nil, fmt.Errorf("bad connection state header: %w", err)
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	kind, _ := TryKindOf(r.Header.Get("Content-Type"))

	return &Event{
		Hub:          r.Header.Get(HeaderHub),
		ConnectionID: connectionID,
		UserID:       r.Header.Get(HeaderUserID),
		EventType:    eventType,
		EventName:    eventName,
		Origin:       origin,
		Kind:         RequestKindOf(origin, eventName),
		DataType:     kind,
		Data:         b,
		State:        NewConnectionState(states),
	}, nil
}

func eventNameOf(eventType string, origin EventOrigin) string {
	switch {
	case origin == OriginSystem:
		return eventType[len(SystemEventPrefix):]
	case strings.HasPrefix(strings.ToLower(eventType), UserEventPrefix):
		return eventType[len(UserEventPrefix):]
	default:
		return eventType
	}
}
