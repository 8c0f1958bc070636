package appserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxLineBytes caps a single protocol line. Lines past this indicate a
// broken peer, not a large payload.
const MaxLineBytes = 1 << 20

// Transport handles JSON-RPC message reading and writing over the backend
// process's stdio pipes. Messages are newline-delimited JSON.
type Transport struct {
	scanner *bufio.Scanner
	writer  io.Writer
	writeMu sync.Mutex
}

// NewTransport creates a transport reading from r and writing to w.
func NewTransport(r io.Reader, w io.Writer) *Transport {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Transport{scanner: scanner, writer: w}
}

// ReadMessage reads the next non-empty line. Returns io.EOF when the pipe
// closes cleanly.
func (t *Transport) ReadMessage() (json.RawMessage, error) {
	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer across calls.
		msg := make(json.RawMessage, len(line))
		copy(msg, line)
		return msg, nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// WriteMessage writes a single JSON-RPC message followed by a newline.
// Safe for concurrent use.
func (t *Transport) WriteMessage(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if _, err := t.writer.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

// SendRequest sends a client→server request.
func (t *Transport) SendRequest(id uint64, method string, params interface{}) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		raw = data
	}
	return t.WriteMessage(&Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	})
}

// SendResponse answers a server-initiated request.
func (t *Transport) SendResponse(id uint64, result interface{}) error {
	var raw json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		raw = data
	}
	return t.WriteMessage(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  raw,
	})
}

// SendError answers a server-initiated request with an error.
func (t *Transport) SendError(id uint64, code int, message string) error {
	return t.WriteMessage(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	})
}

// SendNotification sends a client→server notification.
func (t *Transport) SendNotification(method string, params interface{}) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		raw = data
	}
	return t.WriteMessage(&Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
	})
}
