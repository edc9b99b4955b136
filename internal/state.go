package internal

import (
	"encoding/base64"
	"encoding/json"
	"sync"
)

// ConnectionState is the key/value state attached to one live connection.
// It owns its own locking; Merge is a single atomic operation.
type ConnectionState struct {
	lock   sync.RWMutex
	values map[string]any
}

func NewConnectionState(values map[string]any) *ConnectionState {
	if values == nil {
		values = make(map[string]any)
	}

	return &ConnectionState{values: values}
}

// Merge applies an update on top of the current state, new values winning
// on key conflict, and returns a copy of the full resulting map.
func (s *ConnectionState) Merge(update map[string]any) map[string]any {
	s.lock.Lock()
	defer s.lock.Unlock()

	for key, value := range update {
		s.values[key] = value
	}

	return copyValues(s.values)
}

// Replace swaps in the full state map, as echoed back by a webhook response.
func (s *ConnectionState) Replace(values map[string]any) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if values == nil {
		values = make(map[string]any)
	}

	s.values = values
}

func (s *ConnectionState) Snapshot() map[string]any {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return copyValues(s.values)
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}

	return out
}

// ExtractStateUpdate pulls the state update out of a raw handler payload.
// Only a top-level "states" field holding a JSON object counts; any other
// shape (array, scalar, null, absent) is a no-op, never a deletion.
func ExtractStateUpdate(doc []byte) map[string]any {
	probe := struct {
		States json.RawMessage `json:"states"`
	}{}

	if err := json.Unmarshal(doc, &probe); err != nil || len(probe.States) == 0 {
		return map[string]any{}
	}

	update := map[string]any{}
	if err := json.Unmarshal(probe.States, &update); err != nil {
		return map[string]any{}
	}

	return update
}

// EncodeState packs a state map into the single header-safe string carried
// by the connection state header. Callers skip it for empty maps; an absent
// header means "no change".
func EncodeState(states map[string]any) (string, error) {
	b, err := json.Marshal(states)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeState is the inverse of EncodeState. A missing header decodes to an
// empty map.
func DecodeState(header string) (map[string]any, error) {
	if header == "" {
		return map[string]any{}, nil
	}

	b, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, err
	}

	states := map[string]any{}
	if err := json.Unmarshal(b, &states); err != nil {
		return nil, err
	}

	return states, nil
}
