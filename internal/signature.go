package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

type (
	EventSigner   = func(r *http.Request, connectionID string)
	EventVerifier = func(r *http.Request, connectionID string) bool
)

// NewEventSigner signs outbound webhook requests with the shared access
// key: ce-signature carries sha256=<hex hmac(connectionID)>.
func NewEventSigner(accessKey []byte) EventSigner {
	return func(r *http.Request, connectionID string) {
		r.Header.Set(HeaderSignature, fmt.Sprintf("sha256=%v", signConnection(accessKey, connectionID)))
	}
}

// NewEventVerifier checks the ce-signature header against the shared access
// key. The header may carry several comma separated signatures; any match
// accepts.
func NewEventVerifier(accessKey []byte) EventVerifier {
	return func(r *http.Request, connectionID string) bool {
		want := signConnection(accessKey, connectionID)

		for _, part := range strings.Split(r.Header.Get(HeaderSignature), ",") {
			part = strings.TrimSpace(part)

			rest := strings.TrimPrefix(strings.ToLower(part), "sha256=")
			if rest == part {
				continue
			}

			got, err := hex.DecodeString(rest)
			if err != nil {
				continue
			}

			expected, err := hex.DecodeString(want)
			if err != nil {
				continue
			}

			if hmac.Equal(got, expected) {
				return true
			}
		}

		return false
	}
}

func signConnection(accessKey []byte, connectionID string) string {
	mac := hmac.New(sha256.New, accessKey)
	mac.Write([]byte(connectionID))

	return hex.EncodeToString(mac.Sum(nil))
}
