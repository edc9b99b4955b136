package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOriginOf(t *testing.T) {
	if OriginOf("azure.webpubsub.sys.connected") != OriginSystem {
		t.Error("lifecycle event not classified as system")
	}

	if OriginOf("Azure.WebPubSub.Sys.Connect") != OriginSystem {
		t.Error("prefix match is not case-insensitive")
	}

	if OriginOf("chat.message") != OriginUser {
		t.Error("application event not classified as user")
	}

	if OriginOf("azure.webpubsub.user.message") != OriginUser {
		t.Error("user event not classified as user")
	}
}

func TestRequestKindOf(t *testing.T) {
	cases := []struct {
		origin    EventOrigin
		eventName string
		want      RequestKind
	}{
		{OriginSystem, "connect", RequestConnect},
		{OriginSystem, "Connected", RequestConnected},
		{OriginSystem, "disconnected", RequestDisconnected},
		{OriginSystem, "foo", RequestIgnored},
		{OriginUser, "anything", RequestUser},
		{OriginUser, "connect", RequestUser},
	}

	for _, c := range cases {
		if got := RequestKindOf(c.origin, c.eventName); got != c.want {
			t.Errorf("(%v, %v): got %v, want %v", c.origin, c.eventName, got, c.want)
		}
	}
}

func TestIsValidationRequest(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		r := httptest.NewRequest(method, "/eventhandler", nil)
		r.Header.Add(HeaderRequestOrigin, "a.example.com")
		r.Header.Add(HeaderRequestOrigin, "b.example.com")

		ok, origins := IsValidationRequest(r)
		if !ok {
			t.Fatalf("%v not recognized as validation request", method)
		}

		if len(origins) != 2 || origins[0] != "a.example.com" || origins[1] != "b.example.com" {
			t.Errorf("origins out of order: %v", origins)
		}
	}

	r := httptest.NewRequest(http.MethodPost, "/eventhandler", nil)
	r.Header.Set(HeaderRequestOrigin, "a.example.com")

	ok, origins := IsValidationRequest(r)
	if ok || len(origins) != 0 {
		t.Error("POST classified as validation request")
	}
}

func TestParseEventRequest(t *testing.T) {
	encoded, err := EncodeState(map[string]any{"room": "a"})
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodPost, "/eventhandler", strings.NewReader("hello"))
	r.Header.Set(HeaderEventType, "azure.webpubsub.user.message")
	r.Header.Set(HeaderEventName, "message")
	r.Header.Set(HeaderHub, "chat")
	r.Header.Set(HeaderConnectionID, "conn-1")
	r.Header.Set(HeaderUserID, "alice")
	r.Header.Set(HeaderConnectionState, encoded)
	r.Header.Set("Content-Type", "text/plain")

	evt, err := ParseEventRequest(r)
	if err != nil {
		t.Fatal(err)
	}

	if evt.Hub != "chat" || evt.ConnectionID != "conn-1" || evt.UserID != "alice" {
		t.Errorf("envelope not parsed: %+v", evt)
	}

	if evt.Origin != OriginUser || evt.Kind != RequestUser {
		t.Errorf("classified as %v/%v", evt.Origin, evt.Kind)
	}

	if evt.DataType != KindText || string(evt.Data) != "hello" {
		t.Errorf("payload not parsed: %v %q", evt.DataType, evt.Data)
	}

	if evt.State.Snapshot()["room"] != "a" {
		t.Error("state not decoded")
	}
}

func TestParseEventRequestEventNameFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/eventhandler", nil)
	r.Header.Set(HeaderEventType, "azure.webpubsub.sys.disconnected")
	r.Header.Set(HeaderConnectionID, "conn-1")

	evt, err := ParseEventRequest(r)
	if err != nil {
		t.Fatal(err)
	}

	if evt.EventName != "disconnected" || evt.Kind != RequestDisconnected {
		t.Errorf("got %v/%v", evt.EventName, evt.Kind)
	}
}

func TestParseEventRequestUnknownContentType(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/eventhandler", strings.NewReader("x"))
	r.Header.Set(HeaderEventType, "azure.webpubsub.user.message")
	r.Header.Set(HeaderConnectionID, "conn-1")
	r.Header.Set("Content-Type", "application/xml")

	evt, err := ParseEventRequest(r)
	if err != nil {
		t.Fatal(err)
	}

	if evt.DataType != KindBinary {
		t.Errorf("got %v", evt.DataType)
	}
}

func TestParseEventRequestMissingHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/eventhandler", nil)
	if _, err := ParseEventRequest(r); err == nil {
		t.Error("accepted request without event type")
	}

	r = httptest.NewRequest(http.MethodPost, "/eventhandler", nil)
	r.Header.Set(HeaderEventType, "azure.webpubsub.sys.connect")
	if _, err := ParseEventRequest(r); err == nil {
		t.Error("accepted request without connection id")
	}
}

func TestParseEventRequestBadState(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/eventhandler", nil)
	r.Header.Set(HeaderEventType, "azure.webpubsub.sys.connect")
	r.Header.Set(HeaderConnectionID, "conn-1")
	r.Header.Set(HeaderConnectionState, "%%%not-base64%%%")

	if _, err := ParseEventRequest(r); err == nil {
		t.Error("accepted corrupt state header")
	}
}
