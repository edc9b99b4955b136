package internal

import (
	"net/http"
	"testing"
)

func TestSignature(t *testing.T) {
	key := []byte("an access key")

	signer := NewEventSigner(key)
	verifier := NewEventVerifier(key)

	req, err := http.NewRequest(http.MethodPost, "https://example.com/eventhandler", nil)
	if err != nil {
		t.Fatal(err)
	}

	signer(req, "conn-1")

	if !verifier(req, "conn-1") {
		t.Error("nope")
	}

	if verifier(req, "conn-2") {
		t.Error("signature verified for the wrong connection")
	}

	if NewEventVerifier([]byte("other key"))(req, "conn-1") {
		t.Error("signature verified with the wrong key")
	}
}

func TestSignatureList(t *testing.T) {
	key := []byte("an access key")
	verifier := NewEventVerifier(key)

	req, err := http.NewRequest(http.MethodPost, "https://example.com/eventhandler", nil)
	if err != nil {
		t.Fatal(err)
	}

	NewEventSigner(key)(req, "conn-1")
	good := req.Header.Get(HeaderSignature)

	req.Header.Set(HeaderSignature, "sha256=deadbeef, "+good)
	if !verifier(req, "conn-1") {
		t.Error("no match in signature list")
	}

	req.Header.Set(HeaderSignature, "sha256=deadbeef")
	if verifier(req, "conn-1") {
		t.Error("bad signature accepted")
	}

	req.Header.Del(HeaderSignature)
	if verifier(req, "conn-1") {
		t.Error("missing signature accepted")
	}
}
