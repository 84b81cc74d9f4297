// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mcpsession/go-sdk/internal/jsonrpc2"
	"github.com/mcpsession/go-sdk/transport"
)

type echoParams struct {
	Text string `json:"text"`
}

func bindPair(t *testing.T, serverOpts, clientOpts *jsonrpc2.ConnectionOptions) (server, client *jsonrpc2.Connection) {
	t.Helper()
	a, b := transport.Pipe()
	ctx := context.Background()
	server = jsonrpc2.Bind(ctx, a, serverOpts)
	client = jsonrpc2.Bind(ctx, b, clientOpts)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func TestCallEchoRoundTrip(t *testing.T) {
	serverOpts := &jsonrpc2.ConnectionOptions{}
	server, client := bindPair(t, serverOpts, nil)
	server.SetRequestHandler("echo", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		var p echoParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return echoParams{Text: p.Text}, nil
	})

	raw, err := client.Call(context.Background(), "echo", echoParams{Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var got echoParams
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshaling result: %v", err)
	}
	if diff := cmp.Diff(echoParams{Text: "hi"}, got); diff != "" {
		t.Errorf("Call result mismatch (-want +got):\n%s", diff)
	}
}

// TestFirstRequestIDIsZero confirms the per-Connection id counter starts at
// 0, per §3 and §8 invariant 1.
func TestFirstRequestIDIsZero(t *testing.T) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := transport.NewIO(ar, aw, nil)

	ctx := context.Background()
	client := jsonrpc2.Bind(ctx, a, nil)
	defer client.Close()

	go func() {
		client.Call(ctx, "whatever", nil, &jsonrpc2.CallOptions{Timeout: time.Second})
	}()

	scanner := bufio.NewScanner(br)
	if !scanner.Scan() {
		t.Fatalf("reading first request: %v", scanner.Err())
	}
	var wire struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &wire); err != nil {
		t.Fatalf("unmarshaling wire frame: %v", err)
	}
	if string(wire.ID) != "0" {
		t.Fatalf("first request id = %s, want 0", wire.ID)
	}
	bw.Close()
}

func TestCallMethodNotFound(t *testing.T) {
	_, client := bindPair(t, nil, nil)
	_, err := client.Call(context.Background(), "nope", nil, nil)
	if !errors.Is(err, jsonrpc2.ErrMethodNotFound) {
		t.Fatalf("Call error = %v, want ErrMethodNotFound", err)
	}
}

func TestCallHandlerError(t *testing.T) {
	server, client := bindPair(t, nil, nil)
	server.SetRequestHandler("fail", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		return nil, jsonrpc2.ErrInvalidParams.WithData("bad text")
	})
	_, err := client.Call(context.Background(), "fail", nil, nil)
	if !errors.Is(err, jsonrpc2.ErrInvalidParams) {
		t.Fatalf("Call error = %v, want ErrInvalidParams", err)
	}
}

func TestCallTimeout(t *testing.T) {
	server, client := bindPair(t, nil, nil)
	server.SetRequestHandler("slow", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := client.Call(context.Background(), "slow", nil, &jsonrpc2.CallOptions{Timeout: 20 * time.Millisecond})
	if !errors.Is(err, jsonrpc2.ErrRequestTimeout) {
		t.Fatalf("Call error = %v, want ErrRequestTimeout", err)
	}
	var we *jsonrpc2.WireError
	if !errors.As(err, &we) {
		t.Fatalf("Call error = %v, want *WireError", err)
	}
	var data struct {
		Timeout int64 `json:"timeout"`
	}
	if err := json.Unmarshal(we.Data, &data); err != nil {
		t.Fatalf("unmarshaling timeout data: %v", err)
	}
	if data.Timeout != 20 {
		t.Fatalf("timeout data = %+v, want timeout=20", data)
	}
}

func TestCallContextCancel(t *testing.T) {
	server, client := bindPair(t, nil, nil)
	server.SetRequestHandler("slow", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	_, err := client.Call(ctx, "slow", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Call error = %v, want context.Canceled", err)
	}
}

// TestProgressResetsTimeout realizes scenario S3: a handler whose total run
// time exceeds the per-call timeout, but which emits progress more often
// than that timeout, still succeeds.
func TestProgressResetsTimeout(t *testing.T) {
	server, client := bindPair(t, nil, nil)
	const steps = 3
	server.SetRequestHandler("slowecho", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		var meta struct {
			Meta struct {
				ProgressToken any `json:"progressToken"`
			} `json:"_meta"`
		}
		json.Unmarshal(params, &meta)
		for i := 0; i < steps; i++ {
			time.Sleep(15 * time.Millisecond)
			extras.SendNotification(ctx, "notifications/progress", map[string]any{
				"progressToken": meta.Meta.ProgressToken,
				"progress":      i + 1,
			})
		}
		return echoParams{Text: "done"}, nil
	})

	var progressCount int32
	raw, err := client.Call(context.Background(), "slowecho", map[string]any{}, &jsonrpc2.CallOptions{
		Timeout:                25 * time.Millisecond,
		ResetTimeoutOnProgress: true,
		OnProgress: func(jsonrpc2.ProgressParams) {
			atomic.AddInt32(&progressCount, 1)
		},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var got echoParams
	json.Unmarshal(raw, &got)
	if got.Text != "done" {
		t.Errorf("got %q, want %q", got.Text, "done")
	}
	if atomic.LoadInt32(&progressCount) != steps {
		t.Errorf("got %d progress events, want %d", progressCount, steps)
	}
}

// TestMaxTotalTimeoutCeiling confirms progress resets cannot push a call
// past its absolute ceiling.
func TestMaxTotalTimeoutCeiling(t *testing.T) {
	server, client := bindPair(t, nil, nil)
	server.SetRequestHandler("forever", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		for i := 0; i < 100; i++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			extras.SendNotification(ctx, "notifications/progress", map[string]any{
				"progressToken": 0,
			})
		}
		return echoParams{Text: "unreachable"}, nil
	})

	_, err := client.Call(context.Background(), "forever", nil, &jsonrpc2.CallOptions{
		Timeout:                15 * time.Millisecond,
		MaxTotalTimeout:        40 * time.Millisecond,
		ResetTimeoutOnProgress: true,
		OnProgress:             func(jsonrpc2.ProgressParams) {},
	})
	if !errors.Is(err, jsonrpc2.ErrRequestTimeout) {
		t.Fatalf("Call error = %v, want ErrRequestTimeout", err)
	}
	var we *jsonrpc2.WireError
	if !errors.As(err, &we) {
		t.Fatalf("Call error = %v, want *WireError", err)
	}
	var data struct {
		MaxTotalTimeout int64 `json:"max_total_timeout"`
		TotalElapsed    int64 `json:"total_elapsed"`
	}
	if err := json.Unmarshal(we.Data, &data); err != nil {
		t.Fatalf("unmarshaling timeout data: %v", err)
	}
	if data.MaxTotalTimeout != 40 {
		t.Fatalf("timeout data = %+v, want max_total_timeout=40", data)
	}
	if data.TotalElapsed < 40 {
		t.Fatalf("timeout data = %+v, want total_elapsed >= 40", data)
	}
}

// TestInboundCancellation realizes scenario S5: cancelling the caller's
// context causes the peer's blocked handler to observe ctx.Done().
func TestInboundCancellation(t *testing.T) {
	server, client := bindPair(t, nil, nil)
	unblocked := make(chan struct{})
	server.SetRequestHandler("block", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		<-ctx.Done()
		close(unblocked)
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	if _, err := client.Call(ctx, "block", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Call error = %v, want context.Canceled", err)
	}

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("server handler was never cancelled")
	}
}

// TestNotificationDebounce realizes scenario S6: multiple Notify calls for
// a debounce-eligible, param-less method within one tick coalesce into a
// single delivery.
func TestNotificationDebounce(t *testing.T) {
	var mu sync.Mutex
	var count int
	received := make(chan struct{}, 10)

	serverOpts := &jsonrpc2.ConnectionOptions{}
	clientOpts := &jsonrpc2.ConnectionOptions{
		DebouncedNotificationMethods: []string{"notifications/roots/list_changed"},
	}
	server, client := bindPair(t, serverOpts, clientOpts)
	server.SetNotificationHandler("notifications/roots/list_changed", func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) error {
		mu.Lock()
		count++
		mu.Unlock()
		received <- struct{}{}
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := client.Notify(context.Background(), "notifications/roots/list_changed", nil, nil); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("notification never delivered")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	got := count
	mu.Unlock()
	if got != 1 {
		t.Errorf("got %d deliveries, want 1", got)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	server, client := bindPair(t, nil, nil)
	server.SetRequestHandler("block", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "block", nil, nil)
		errCh <- err
	}()

	time.Sleep(15 * time.Millisecond)
	client.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, jsonrpc2.ErrConnectionClosed) {
			t.Fatalf("Call error = %v, want ErrConnectionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Call never returned after Close")
	}
}

// TestOnCloseFiresBeforePendingCallsFail confirms the close cascade's
// ordering: the OnClose hook runs before any pending outbound call is
// completed with ErrConnectionClosed.
func TestOnCloseFiresBeforePendingCallsFail(t *testing.T) {
	a, b := transport.Pipe()
	ctx := context.Background()
	server := jsonrpc2.Bind(ctx, a, nil)
	server.SetRequestHandler("block", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	var onCloseFired int32
	client := jsonrpc2.Bind(ctx, b, &jsonrpc2.ConnectionOptions{
		OnClose: func() { atomic.StoreInt32(&onCloseFired, 1) },
	})
	t.Cleanup(func() { client.Close(); server.Close() })

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "block", nil, nil)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	client.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, jsonrpc2.ErrConnectionClosed) {
			t.Fatalf("unexpected error: %v", err)
		}
		if atomic.LoadInt32(&onCloseFired) == 0 {
			t.Fatal("OnClose had not fired by the time the pending call failed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestWaitReturnsNilOnGracefulClose(t *testing.T) {
	_, client := bindPair(t, nil, nil)
	client.Close()
	if err := client.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestUnknownResponseIDReportsError(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	a, b := transport.Pipe()
	ctx := context.Background()
	jsonrpc2.Bind(ctx, a, &jsonrpc2.ConnectionOptions{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	// b plays the role of a misbehaving peer sending a response to a
	// request id a never issued.
	if err := b.Write(ctx, &jsonrpc2.Response{ID: jsonrpc2.Int64ID(999), Result: json.RawMessage("null")}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(errs)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) == 0 {
		t.Fatal("expected an OnError report for the unknown response id")
	}
	if !containsSubstring(errs[0].Error(), "unknown id") {
		t.Errorf("got error %v, want it to mention an unknown id", errs[0])
	}
}

// TestMalformedFrameReportsErrorAndKeepsReading confirms a decode failure is
// surfaced via OnError rather than tearing down the connection (§3.6, §4.6,
// §7's "unknown message shape" row).
func TestMalformedFrameReportsErrorAndKeepsReading(t *testing.T) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := transport.NewIO(ar, aw, nil)
	b := transport.NewIO(br, bw, nil)

	var mu sync.Mutex
	var errs []error
	ctx := context.Background()
	conn := jsonrpc2.Bind(ctx, a, &jsonrpc2.ConnectionOptions{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	conn.SetRequestHandler("echo", nil, func(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
		return echoParams{Text: "ok"}, nil
	})

	// Write a line that isn't any recognizable JSON-RPC shape directly to the
	// underlying byte stream, bypassing the Message-typed Write method.
	if _, err := bw.Write([]byte("{not json\n")); err != nil {
		t.Fatalf("writing malformed frame: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(errs)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	n := len(errs)
	mu.Unlock()
	if n == 0 {
		t.Fatal("expected an OnError report for the malformed frame")
	}

	// The connection must still be alive: an ordinary call still works.
	client := jsonrpc2.Bind(ctx, b, nil)
	if _, err := client.Call(ctx, "echo", json.RawMessage(`"hi"`), nil); err != nil {
		t.Fatalf("Call after malformed frame: %v", err)
	}
}

func containsSubstring(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

func TestPingBuiltin(t *testing.T) {
	_, client := bindPair(t, nil, nil)
	raw, err := client.Call(context.Background(), "ping", nil, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("ping result = %s, want {}", raw)
	}
}

func TestStrictCapabilitiesGatesOutboundCall(t *testing.T) {
	a, b := transport.Pipe()
	ctx := context.Background()
	jsonrpc2.Bind(ctx, a, nil)
	client := jsonrpc2.Bind(ctx, b, &jsonrpc2.ConnectionOptions{
		StrictCapabilities: true,
		AssertCapabilityForMethod: func(method string) error {
			return fmt.Errorf("capability check: %s not supported", method)
		},
	})
	_, err := client.Call(ctx, "whatever", nil, nil)
	if err == nil {
		t.Fatal("expected capability check to reject the call")
	}
}
