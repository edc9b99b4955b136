package internal

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ContentTypeText   = "text/plain"
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/octet-stream"
)

var ErrUnsupportedMediaType = errors.New("unsupported media type")

// ContentTypeOf maps a payload kind to its content type. Total; anything
// that is not text or json falls back to the binary content type.
func ContentTypeOf(kind PayloadKind) string {
	switch kind {
	case KindText:
		return ContentTypeText
	case KindJSON:
		return ContentTypeJSON
	default:
		return ContentTypeBinary
	}
}

// KindOf maps a content type to a payload kind. Matching is
// case-insensitive and exact; an unknown content type is a hard failure,
// never silently accepted.
func KindOf(contentType string) (PayloadKind, error) {
	switch strings.ToLower(contentType) {
	case ContentTypeText:
		return KindText, nil
	case ContentTypeJSON:
		return KindJSON, nil
	case ContentTypeBinary:
		return KindBinary, nil
	default:
		return KindBinary, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
}

// TryKindOf is the non-throwing form of KindOf, for callers that validate
// an advertised content type opportunistically and default to binary.
func TryKindOf(contentType string) (PayloadKind, bool) {
	kind, err := KindOf(contentType)
	if err != nil {
		return KindBinary, false
	}

	return kind, true
}
