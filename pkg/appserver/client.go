package appserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/overseer/pkg/observability"
)

// DefaultEventBuffer is the session event channel capacity. The reader
// loop blocks when it fills, pushing backpressure into the pipe rather
// than dropping or reordering deltas.
const DefaultEventBuffer = 256

// DefaultHandshakeTimeout bounds the initialize round trip.
const DefaultHandshakeTimeout = 15 * time.Second

// ErrClosed is returned for calls issued after the client shut down.
var ErrClosed = errors.New("appserver: client closed")

// Client is a concurrency-safe JSON-RPC client over a Transport. Responses
// are correlated to in-flight calls through a pending map keyed by request
// id; everything else the server sends surfaces on Events.
type Client struct {
	transport *Transport
	logger    *observability.Logger

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan *Response
	closed  bool

	events chan Event
	done   chan struct{}
}

// NewClient wraps a transport. logger may be nil.
func NewClient(transport *Transport, logger *observability.Logger) *Client {
	return &Client{
		transport: transport,
		logger:    logger,
		pending:   make(map[uint64]chan *Response),
		events:    make(chan Event, DefaultEventBuffer),
		done:      make(chan struct{}),
	}
}

// Events is the stream of server notifications, server-initiated requests,
// and synthetic session events. The channel is never closed; select on
// Done to detect shutdown.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close fails all in-flight calls with ErrClosed. Safe to call more than
// once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = make(map[uint64]chan *Response)
	c.mu.Unlock()
	close(c.done)
}

// ReadLoop pumps incoming messages until the pipe closes or errors. It
// always closes the client on exit. A clean EOF returns nil.
func (c *Client) ReadLoop() error {
	defer c.Close()
	for {
		raw, err := c.transport.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read app server stdout: %w", err)
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		params, _ := json.Marshal(map[string]string{
			"error": err.Error(),
			"raw":   string(raw),
		})
		c.emit(Event{Method: EventParseError, Params: params})
		return
	}

	if env.isResponse() {
		id := *env.ID
		c.mu.Lock()
		ch := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ch != nil {
			ch <- &Response{JSONRPC: env.JSONRPC, ID: id, Result: env.Result, Error: env.Error}
		} else if c.logger != nil {
			c.logger.Debug("response for unknown request id", "id", id)
		}
		return
	}

	if env.Method == "" {
		return
	}
	c.emit(Event{Method: env.Method, Params: env.Params, RequestID: env.ID})
}

// emit blocks until the event is accepted or the client shuts down.
// Dropping is not an option here: delta accumulation depends on every
// event arriving in transport order.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Call issues a request and waits for its response, the context, or
// shutdown. Each call runs under a span named after the RPC method.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, span := observability.StartSpan(ctx, method,
		trace.WithAttributes(observability.AttrRPCMethod.String(method)))
	defer span.End()

	raw, err := c.call(ctx, method, params)
	if err != nil {
		span.RecordError(err)
	}
	return raw, err
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.transport.SendRequest(id, method, params); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// CallInto issues a request and decodes the result into target when both
// are non-nil.
func (c *Client) CallInto(ctx context.Context, method string, params, target any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if target == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(method string, params any) error {
	return c.transport.SendNotification(method, params)
}

// Respond answers a server-initiated request.
func (c *Client) Respond(requestID uint64, result any) error {
	_, span := observability.StartSpan(context.Background(), "respond",
		trace.WithAttributes(observability.AttrRequestID.Int64(int64(requestID))))
	defer span.End()

	err := c.transport.SendResponse(requestID, result)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// RespondDecision answers an approval request with accept or decline.
func (c *Client) RespondDecision(requestID uint64, decision string) error {
	return c.Respond(requestID, ApprovalAnswer{Decision: decision})
}

// Handshake performs the initialize exchange and sends the initialized
// notification. The server's initialize result is returned raw.
func (c *Client) Handshake(ctx context.Context, info ClientInfo) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultHandshakeTimeout)
	defer cancel()

	result, err := c.Call(ctx, MethodInitialize, InitializeParams{ClientInfo: info})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := c.Notify(MethodInitialized, nil); err != nil {
		return nil, fmt.Errorf("initialized: %w", err)
	}
	return result, nil
}

// Typed wrappers for the upstream RPC surface.

func (c *Client) StartThread(ctx context.Context, cwd, approvalPolicy string) (*ThreadStartResult, error) {
	var result ThreadStartResult
	err := c.CallInto(ctx, MethodThreadStart, ThreadStartParams{Cwd: cwd, ApprovalPolicy: approvalPolicy}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ResumeThread(ctx context.Context, threadID string) (*ThreadResumeResult, error) {
	var result ThreadResumeResult
	err := c.CallInto(ctx, MethodThreadResume, ThreadResumeParams{ThreadID: threadID}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListThreads(ctx context.Context, cursor string, limit int) (*ThreadListResult, error) {
	var result ThreadListResult
	err := c.CallInto(ctx, MethodThreadList, ThreadListParams{Cursor: cursor, Limit: limit}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ArchiveThread(ctx context.Context, threadID string) error {
	_, err := c.Call(ctx, MethodThreadArchive, ThreadArchiveParams{ThreadID: threadID})
	return err
}

func (c *Client) StartTurn(ctx context.Context, params TurnStartParams) (*TurnStartResult, error) {
	var result TurnStartResult
	if err := c.CallInto(ctx, MethodTurnStart, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) InterruptTurn(ctx context.Context, threadID, turnID string) error {
	_, err := c.Call(ctx, MethodTurnInterrupt, TurnInterruptParams{ThreadID: threadID, TurnID: turnID})
	return err
}

func (c *Client) StartReview(ctx context.Context, params ReviewStartParams) error {
	_, err := c.Call(ctx, MethodReviewStart, params)
	return err
}

func (c *Client) ListModels(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, MethodModelList, struct{}{})
}

func (c *Client) ReadRateLimits(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, MethodRateLimitsRead, nil)
}

func (c *Client) ListSkills(ctx context.Context, cwd string) (json.RawMessage, error) {
	return c.Call(ctx, MethodSkillsList, SkillsListParams{Cwd: cwd})
}
