package internal

import (
	"errors"
	"testing"
)

func TestContentTypeRoundTrip(t *testing.T) {
	for _, kind := range []PayloadKind{KindBinary, KindText, KindJSON} {
		got, err := KindOf(ContentTypeOf(kind))
		if err != nil {
			t.Fatal(err)
		}

		if got != kind {
			t.Errorf("round trip for %v yielded %v", kind, got)
		}
	}
}

func TestContentTypeOfUnknownKind(t *testing.T) {
	if ContentTypeOf(PayloadKind("protobuf")) != ContentTypeBinary {
		t.Error("unknown kind did not fall back to binary")
	}

	if ContentTypeOf(PayloadKind("")) != ContentTypeBinary {
		t.Error("zero kind did not fall back to binary")
	}
}

func TestKindOfCaseInsensitive(t *testing.T) {
	kind, err := KindOf("Application/JSON")
	if err != nil {
		t.Fatal(err)
	}

	if kind != KindJSON {
		t.Errorf("got %v", kind)
	}
}

func TestKindOfUnknown(t *testing.T) {
	_, err := KindOf("application/xml")
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Errorf("got %v", err)
	}
}

func TestTryKindOf(t *testing.T) {
	for _, contentType := range []string{"", "nonsense", "text/plain; charset=utf-8", "image/png"} {
		kind, ok := TryKindOf(contentType)
		if ok {
			t.Errorf("accepted %q", contentType)
		}

		if kind != KindBinary {
			t.Errorf("fallback for %q was %v", contentType, kind)
		}
	}

	kind, ok := TryKindOf("TEXT/PLAIN")
	if !ok || kind != KindText {
		t.Errorf("got %v %v", kind, ok)
	}
}
