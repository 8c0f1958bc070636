package appserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPeer is the server end of an in-memory session: it decodes what the
// client writes and can push raw lines back.
type testPeer struct {
	t      *testing.T
	dec    *json.Decoder
	out    *io.PipeWriter
	client *Client
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	c := NewClient(NewTransport(clientIn, clientOut), nil)
	go func() { _ = c.ReadLoop() }()
	t.Cleanup(c.Close)
	t.Cleanup(func() { serverOut.Close() })

	return &testPeer{
		t:      t,
		dec:    json.NewDecoder(serverIn),
		out:    serverOut,
		client: c,
	}
}

func (p *testPeer) read() envelope {
	p.t.Helper()
	var env envelope
	require.NoError(p.t, p.dec.Decode(&env))
	return env
}

func (p *testPeer) push(line string) {
	p.t.Helper()
	_, err := fmt.Fprintf(p.out, "%s\n", line)
	require.NoError(p.t, err)
}

func (p *testPeer) respond(id uint64, result string) {
	p.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result))
}

func waitEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestClientCallCorrelatesOutOfOrderResponses(t *testing.T) {
	peer := newTestPeer(t)

	type outcome struct {
		raw json.RawMessage
		err error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)
	go func() {
		raw, err := peer.client.Call(context.Background(), "model/list", struct{}{})
		first <- outcome{raw, err}
	}()
	go func() {
		raw, err := peer.client.Call(context.Background(), "skills/list", SkillsListParams{Cwd: "/w"})
		second <- outcome{raw, err}
	}()

	reqA := peer.read()
	reqB := peer.read()
	byMethod := map[string]uint64{reqA.Method: *reqA.ID, reqB.Method: *reqB.ID}
	require.Contains(t, byMethod, "model/list")
	require.Contains(t, byMethod, "skills/list")

	// Answer in reverse arrival order.
	peer.respond(byMethod["skills/list"], `{"data":["review"]}`)
	peer.respond(byMethod["model/list"], `{"data":["gpt-5-codex"]}`)

	got := <-first
	require.NoError(t, got.err)
	assert.JSONEq(t, `{"data":["gpt-5-codex"]}`, string(got.raw))

	got = <-second
	require.NoError(t, got.err)
	assert.JSONEq(t, `{"data":["review"]}`, string(got.raw))
}

func TestClientCallSurfacesRPCError(t *testing.T) {
	peer := newTestPeer(t)

	done := make(chan error, 1)
	go func() {
		_, err := peer.client.Call(context.Background(), MethodThreadArchive, ThreadArchiveParams{ThreadID: "th_x"})
		done <- err
	}()

	req := peer.read()
	peer.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32603,"message":"thread not found"}}`, *req.ID))

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thread not found")
	var rpcErr *Error
	assert.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInternal, rpcErr.Code)
}

func TestClientNotificationBecomesEvent(t *testing.T) {
	peer := newTestPeer(t)

	peer.push(`{"jsonrpc":"2.0","method":"turn/started","params":{"threadId":"th_1","turnId":"tu_1"}}`)

	ev := waitEvent(t, peer.client)
	assert.Equal(t, EventTurnStarted, ev.Method)
	assert.False(t, ev.IsServerRequest())

	var scoped ThreadScopedEvent
	require.NoError(t, ev.DecodeParams(&scoped))
	assert.Equal(t, "th_1", scoped.ThreadID)
	assert.Equal(t, "tu_1", scoped.TurnID)
}

func TestClientServerRequestCarriesIDAndIsAnswerable(t *testing.T) {
	peer := newTestPeer(t)

	peer.push(`{"jsonrpc":"2.0","id":42,"method":"item/commandExecution/requestApproval","params":{"threadId":"th_1","itemId":"item_9"}}`)

	ev := waitEvent(t, peer.client)
	require.Equal(t, RequestCommandApproval, ev.Method)
	require.True(t, ev.IsServerRequest())
	assert.Equal(t, uint64(42), *ev.RequestID)

	require.NoError(t, peer.client.RespondDecision(*ev.RequestID, DecisionAccept))
	answer := peer.read()
	require.NotNil(t, answer.ID)
	assert.Equal(t, uint64(42), *answer.ID)
	assert.JSONEq(t, `{"decision":"accept"}`, string(answer.Result))
}

func TestClientParseFailureBecomesEventNotAbort(t *testing.T) {
	peer := newTestPeer(t)

	peer.push(`this is not json`)
	ev := waitEvent(t, peer.client)
	assert.Equal(t, EventParseError, ev.Method)
	params := ev.ParamsMap()
	assert.Equal(t, "this is not json", params["raw"])

	// The loop keeps going after a bad line.
	peer.push(`{"jsonrpc":"2.0","method":"turn/completed","params":{"threadId":"th_1"}}`)
	ev = waitEvent(t, peer.client)
	assert.Equal(t, EventTurnCompleted, ev.Method)
}

func TestClientCloseFailsPendingCalls(t *testing.T) {
	peer := newTestPeer(t)

	done := make(chan error, 1)
	go func() {
		_, err := peer.client.Call(context.Background(), "model/list", struct{}{})
		done <- err
	}()
	peer.read() // request is on the wire, no response coming

	peer.client.Close()
	assert.ErrorIs(t, <-done, ErrClosed)

	_, err := peer.client.Call(context.Background(), "model/list", struct{}{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientContextCancelAbandonsCall(t *testing.T) {
	peer := newTestPeer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := peer.client.Call(ctx, "model/list", struct{}{})
		done <- err
	}()
	req := peer.read()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	peer.client.mu.Lock()
	_, stillPending := peer.client.pending[*req.ID]
	peer.client.mu.Unlock()
	assert.False(t, stillPending)
}

func TestClientEOFClosesClient(t *testing.T) {
	peer := newTestPeer(t)

	peer.out.Close()
	select {
	case <-peer.client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not close on EOF")
	}
}

func TestClientHandshake(t *testing.T) {
	peer := newTestPeer(t)

	type result struct {
		raw json.RawMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := peer.client.Handshake(context.Background(), ClientInfo{
			Name:    "overseer",
			Title:   "Overseer",
			Version: "0.1.0",
		})
		done <- result{raw, err}
	}()

	init := peer.read()
	require.Equal(t, MethodInitialize, init.Method)
	assert.JSONEq(t, `{"clientInfo":{"name":"overseer","title":"Overseer","version":"0.1.0"}}`, string(init.Params))
	peer.respond(*init.ID, `{"serverInfo":{"name":"codex"}}`)

	note := peer.read()
	assert.Nil(t, note.ID)
	assert.Equal(t, MethodInitialized, note.Method)

	got := <-done
	require.NoError(t, got.err)
	assert.JSONEq(t, `{"serverInfo":{"name":"codex"}}`, string(got.raw))
}

func TestClientTypedWrappers(t *testing.T) {
	peer := newTestPeer(t)
	ctx := context.Background()

	t.Run("thread start", func(t *testing.T) {
		type outcome struct {
			res *ThreadStartResult
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := peer.client.StartThread(ctx, "/repo", ApprovalOnRequest)
			done <- outcome{res, err}
		}()
		req := peer.read()
		require.Equal(t, MethodThreadStart, req.Method)
		assert.JSONEq(t, `{"cwd":"/repo","approvalPolicy":"on-request"}`, string(req.Params))
		peer.respond(*req.ID, `{"thread":{"id":"th_new"}}`)
		got := <-done
		require.NoError(t, got.err)
		assert.Equal(t, "th_new", got.res.Thread.ID)
	})

	t.Run("thread resume returns turns", func(t *testing.T) {
		type outcome struct {
			res *ThreadResumeResult
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := peer.client.ResumeThread(ctx, "th_new")
			done <- outcome{res, err}
		}()
		req := peer.read()
		require.Equal(t, MethodThreadResume, req.Method)
		assert.JSONEq(t, `{"threadId":"th_new"}`, string(req.Params))
		peer.respond(*req.ID, `{"thread":{"id":"th_new","preview":"fix tests","turns":[{"items":[{"id":"i1","type":"agentMessage","text":"hi"}]}]}}`)
		got := <-done
		require.NoError(t, got.err)
		assert.Equal(t, "fix tests", got.res.Thread.Preview)
		require.Len(t, got.res.Thread.Turns, 1)
		require.Len(t, got.res.Thread.Turns[0].Items, 1)
		assert.Equal(t, "agentMessage", got.res.Thread.Turns[0].Items[0]["type"])
	})

	t.Run("thread list pagination params", func(t *testing.T) {
		type outcome struct {
			res *ThreadListResult
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := peer.client.ListThreads(ctx, "cur_1", 20)
			done <- outcome{res, err}
		}()
		req := peer.read()
		require.Equal(t, MethodThreadList, req.Method)
		assert.JSONEq(t, `{"cursor":"cur_1","limit":20}`, string(req.Params))
		peer.respond(*req.ID, `{"data":[{"id":"th_a","cwd":"/repo","createdAt":1700000000}],"nextCursor":"cur_2"}`)
		got := <-done
		require.NoError(t, got.err)
		require.Len(t, got.res.Data, 1)
		assert.Equal(t, "/repo", got.res.Data[0].Cwd)
		assert.Equal(t, "cur_2", got.res.NextCursor)
	})

	t.Run("turn start carries sandbox and model", func(t *testing.T) {
		type outcome struct {
			res *TurnStartResult
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := peer.client.StartTurn(ctx, TurnStartParams{
				ThreadID:       "th_new",
				Input:          []InputItem{TextInput("hello")},
				Cwd:            "/repo",
				ApprovalPolicy: ApprovalOnRequest,
				SandboxPolicy:  WorkspaceWritePolicy("/repo"),
				Model:          "gpt-5-codex",
				Effort:         "medium",
			})
			done <- outcome{res, err}
		}()
		req := peer.read()
		require.Equal(t, MethodTurnStart, req.Method)
		assert.JSONEq(t, `{
			"threadId":"th_new",
			"input":[{"type":"text","text":"hello"}],
			"cwd":"/repo",
			"approvalPolicy":"on-request",
			"sandboxPolicy":{"type":"workspaceWrite","writableRoots":["/repo"],"networkAccess":true},
			"model":"gpt-5-codex",
			"effort":"medium"
		}`, string(req.Params))
		peer.respond(*req.ID, `{"turn":{"id":"tu_7","status":"inProgress"}}`)
		got := <-done
		require.NoError(t, got.err)
		assert.Equal(t, "tu_7", got.res.Turn.ID)
	})

	t.Run("review start", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			done <- peer.client.StartReview(ctx, ReviewStartParams{
				ThreadID: "th_new",
				Target:   ReviewBaseBranch("main"),
			})
		}()
		req := peer.read()
		require.Equal(t, MethodReviewStart, req.Method)
		assert.JSONEq(t, `{"threadId":"th_new","target":{"type":"baseBranch","branch":"main"}}`, string(req.Params))
		peer.respond(*req.ID, `{}`)
		require.NoError(t, <-done)
	})

	t.Run("turn interrupt", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			done <- peer.client.InterruptTurn(ctx, "th_new", "tu_7")
		}()
		req := peer.read()
		require.Equal(t, MethodTurnInterrupt, req.Method)
		assert.JSONEq(t, `{"threadId":"th_new","turnId":"tu_7"}`, string(req.Params))
		peer.respond(*req.ID, `{}`)
		require.NoError(t, <-done)
	})
}
