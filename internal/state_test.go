package internal

import (
	"testing"
)

func TestExtractStateUpdate(t *testing.T) {
	update := ExtractStateUpdate([]byte(`{"states":{"room":"a","level":3}}`))
	if len(update) != 2 || update["room"] != "a" {
		t.Errorf("got %v", update)
	}

	// anything that is not a JSON object is a no-op, never a deletion
	for _, doc := range []string{
		`{"states":null}`,
		`{"states":[1,2]}`,
		`{"states":"room"}`,
		`{"states":42}`,
		`{"other":true}`,
		`"scalar"`,
		`not json`,
	} {
		if update := ExtractStateUpdate([]byte(doc)); len(update) != 0 {
			t.Errorf("%v yielded %v", doc, update)
		}
	}
}

func TestConnectionStateMerge(t *testing.T) {
	state := NewConnectionState(map[string]any{"room": "a", "level": 1})

	merged := state.Merge(map[string]any{"room": "b", "tag": "x"})
	if merged["room"] != "b" {
		t.Error("new value did not win")
	}

	if merged["level"] != 1 || merged["tag"] != "x" {
		t.Errorf("merge is not a union: %v", merged)
	}

	if len(merged) != 3 {
		t.Errorf("merge did not return the full map: %v", merged)
	}

	// the returned map is a copy
	merged["room"] = "c"
	if state.Snapshot()["room"] != "b" {
		t.Error("merge result aliases the state")
	}
}

func TestConnectionStateMergeEmptyUpdate(t *testing.T) {
	state := NewConnectionState(map[string]any{"room": "a"})

	merged := state.Merge(map[string]any{})
	if len(merged) != 1 || merged["room"] != "a" {
		t.Errorf("got %v", merged)
	}
}

func TestStateCodecRoundTrip(t *testing.T) {
	states := map[string]any{"room": "a", "count": float64(2)}

	encoded, err := EncodeState(states)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeState(encoded)
	if err != nil {
		t.Fatal(err)
	}

	if decoded["room"] != "a" || decoded["count"] != float64(2) {
		t.Errorf("got %v", decoded)
	}
}

func TestDecodeStateEmptyHeader(t *testing.T) {
	decoded, err := DecodeState("")
	if err != nil {
		t.Fatal(err)
	}

	if len(decoded) != 0 {
		t.Errorf("got %v", decoded)
	}
}

func TestDecodeStateCorruptHeader(t *testing.T) {
	if _, err := DecodeState("!!!"); err == nil {
		t.Error("accepted corrupt base64")
	}

	if _, err := DecodeState("bm90IGpzb24"); err == nil {
		t.Error("accepted non-JSON payload")
	}
}
