package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// outputShape is the classified form of a handler's raw output, produced
// once at entry to the response builder. Exactly one field is set.
type outputShape struct {
	err     *ErrorResponse
	connect *ConnectResponse
	user    *UserResponse
	raw     []byte
}

// BuildResponse translates a handler's output into the outbound webhook
// response. A (nil, nil) result means no response should be sent and the
// caller falls back to its default empty reply. A non-nil error carries the
// cause of a dropped output; the caller still sends nothing, but the cause
// is observable instead of silently swallowed.
func BuildResponse(out any, kind RequestKind, state *ConnectionState) (*Response, error) {
	if out == nil {
		return nil, nil
	}

	if state == nil {
		state = NewConnectionState(nil)
	}

	shape, err := classifyOutput(out)
	if err != nil {
		return nil, err
	}

	// An error is an error regardless of the event kind.
	if shape.err != nil {
		return BuildErrorResponse(shape.err), nil
	}

	switch kind {
	case RequestConnect:
		return buildConnectResponse(shape, state)
	case RequestUser:
		return buildUserResponse(shape, state)
	default:
		// The service expects no body for connected, disconnected and
		// ignored events.
		return nil, nil
	}
}

// BuildErrorResponse maps an error response to its HTTP form: plain text
// message, status by code, never a state header.
func BuildErrorResponse(e *ErrorResponse) *Response {
	return &Response{
		Status:      statusOf(e.Code),
		ContentType: ContentTypeText,
		Body:        []byte(e.ErrorMessage),
	}
}

func statusOf(code ErrorCode) int {
	switch {
	case strings.EqualFold(string(code), string(CodeUserError)):
		return http.StatusBadRequest
	case strings.EqualFold(string(code), string(CodeUnauthorized)):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func classifyOutput(out any) (outputShape, error) {
	switch v := out.(type) {
	case *ErrorResponse:
		return outputShape{err: v}, nil
	case ErrorResponse:
		return outputShape{err: &v}, nil
	case *ConnectResponse:
		return outputShape{connect: v}, nil
	case ConnectResponse:
		return outputShape{connect: &v}, nil
	case *UserResponse:
		return outputShape{user: v}, nil
	case UserResponse:
		return outputShape{user: &v}, nil
	case json.RawMessage:
		return classifyRaw(v)
	case []byte:
		return classifyRaw(v)
	case string:
		return classifyRaw([]byte(v))
	default:
		return outputShape{}, fmt.Errorf("unsupported handler output %T", out)
	}
}

func classifyRaw(doc []byte) (outputShape, error) {
	if !json.Valid(doc) {
		return outputShape{}, fmt.Errorf("handler output is not valid JSON")
	}

	probe := struct {
		Code         *ErrorCode `json:"code"`
		ErrorMessage string     `json:"errorMessage"`
	}{}

	if err := json.Unmarshal(doc, &probe); err == nil && probe.Code != nil {
		return outputShape{
			err: &ErrorResponse{Code: *probe.Code, ErrorMessage: probe.ErrorMessage},
		}, nil
	}

	return outputShape{raw: doc}, nil
}

func buildConnectResponse(shape outputShape, state *ConnectionState) (*Response, error) {
	var body []byte
	var update map[string]any

	switch {
	case shape.connect != nil:
		b, err := json.Marshal(shape.connect)
		if err != nil {
			return nil, err
		}

		body = b
		update = shape.connect.States
	case shape.raw != nil:
		body = shape.raw
		update = ExtractStateUpdate(shape.raw)
	default:
		return nil, fmt.Errorf("user event response to a connect event")
	}

	resp := &Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeJSON,
		Body:        body,
	}

	if err := attachState(resp, state, update); err != nil {
		return nil, err
	}

	return resp, nil
}

func buildUserResponse(shape outputShape, state *ConnectionState) (*Response, error) {
	var body []byte
	var kind PayloadKind
	var update map[string]any

	switch {
	case shape.user != nil:
		body = shape.user.Data
		kind = normalizeKind(shape.user.DataType)
		update = shape.user.States
	case shape.raw != nil:
		probe := struct {
			Data     json.RawMessage `json:"data"`
			DataType PayloadKind     `json:"dataType"`
		}{}

		if err := json.Unmarshal(shape.raw, &probe); err != nil {
			return nil, err
		}

		kind = normalizeKind(probe.DataType)
		body = rawDataBytes(probe.Data)
		update = ExtractStateUpdate(shape.raw)
	default:
		return nil, fmt.Errorf("connect response to a user event")
	}

	resp := &Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeOf(kind),
		Body:        body,
	}

	if err := attachState(resp, state, update); err != nil {
		return nil, err
	}

	return resp, nil
}

func normalizeKind(kind PayloadKind) PayloadKind {
	switch PayloadKind(strings.ToLower(string(kind))) {
	case KindText:
		return KindText
	case KindJSON:
		return KindJSON
	default:
		return KindBinary
	}
}

// rawDataBytes unwraps the "data" field of an untyped user response: a JSON
// string yields its content, any other JSON value its serialized form.
func rawDataBytes(data json.RawMessage) []byte {
	if len(data) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return []byte(s)
	}

	return data
}

// attachState merges the update into the connection state and, when the
// resulting map is non-empty, encodes it into the response state header.
func attachState(resp *Response, state *ConnectionState, update map[string]any) error {
	merged := state.Merge(update)
	if len(merged) == 0 {
		return nil
	}

	encoded, err := EncodeState(merged)
	if err != nil {
		return err
	}

	resp.StateHeader = encoded

	return nil
}
