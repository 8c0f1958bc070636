// Package appserver implements the client side of the agent backend's
// line-delimited JSON-RPC 2.0 protocol over child-process stdio, plus
// supervision of the backend process itself.
//
// The backend ("app server") is spawned once per workspace. Requests flow
// client→server with numeric ids; the server pushes notifications (thread
// and turn events) and may issue its own requests (approval prompts) that
// the client answers via Respond.
package appserver

import "encoding/json"

// JSON-RPC 2.0 Message Types

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// envelope is the permissive shape used to classify an incoming line as a
// response, a notification, or a server-initiated request.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// isResponse reports whether the envelope answers one of our requests.
// A message carrying both an id and a method is a server-initiated
// request, not a response.
func (e *envelope) isResponse() bool {
	if e.ID == nil {
		return false
	}
	if e.Result != nil || e.Error != nil {
		return true
	}
	return e.Method == ""
}

// Event is anything the server pushes at us: a notification, a
// server-initiated request (RequestID set, answer via Client.Respond),
// or a synthetic event produced by the session itself.
type Event struct {
	Method    string
	Params    json.RawMessage
	RequestID *uint64
}

// IsServerRequest reports whether the event expects an answer.
func (e Event) IsServerRequest() bool {
	return e.RequestID != nil
}

// DecodeParams unmarshals the event params into target.
func (e Event) DecodeParams(target any) error {
	if e.Params == nil {
		return nil
	}
	return json.Unmarshal(e.Params, target)
}

// ParamsMap returns the event params as a generic map, or nil if the
// params are absent or not an object.
func (e Event) ParamsMap() map[string]any {
	if e.Params == nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.Params, &m); err != nil {
		return nil
	}
	return m
}

// Synthetic event methods emitted by the session rather than the backend.
const (
	EventConnected  = "appserver/connected"
	EventStderr     = "appserver/stderr"
	EventParseError = "appserver/parseError"
)

// ParseParams unmarshals request params into the target type.
func ParseParams[T any](raw json.RawMessage) (*T, error) {
	var params T
	if raw == nil {
		return &params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
