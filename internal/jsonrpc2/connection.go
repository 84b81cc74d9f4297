// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// outboundCall is the registry entry for one in-flight Call (§4.2).
type outboundCall struct {
	id              int64
	result          chan asyncResult
	progress        ProgressHandler
	timeout         *timeoutRecord
	resetOnProgress bool
	validate        Validator
}

type asyncResult struct {
	data json.RawMessage
	err  error
}

// Connection is the Session engine: it owns a Transport, correlates
// outbound requests with their responses, dispatches inbound requests and
// notifications to registered handlers, and runs the timeout and debounce
// state machines described by §4.
//
// A Connection is safe for concurrent use. It must be constructed with Bind
// and is driven entirely by its own reading goroutine; callers never read
// from the Transport directly.
type Connection struct {
	baseCtx    context.Context
	baseCancel context.CancelFunc

	onClose                        func()
	onError                        func(error)
	strictCapabilities             bool
	assertCapabilityForMethod      func(string) error
	assertNotificationCapability   func(string) error
	assertRequestHandlerCapability func(string) error
	debouncedMethods               map[string]bool

	writeMu sync.Mutex // serializes Transport.Write

	mu                   sync.Mutex
	transport            Transport
	nextID               int64
	outbound             map[int64]*outboundCall
	droppedOutbound      map[int64]bool // ids cancelled/timed-out, response still arriving
	inboundCancel        map[string]context.CancelCauseFunc
	requestHandlers      map[string]RequestHandler
	requestValidators    map[string]Validator
	notificationHandlers map[string]NotificationHandler
	fallbackRequest      RequestHandler
	fallbackNotification NotificationHandler
	debouncePending      map[string]bool
	closed               bool
	closeErr             error
	doneCh               chan struct{}
}

// Bind attaches a Connection to t and starts its reading goroutine. ctx
// bounds the lifetime of every inbound handler the Connection spawns; it is
// canceled as part of the close cascade.
func Bind(ctx context.Context, t Transport, opts *ConnectionOptions) *Connection {
	if opts == nil {
		opts = &ConnectionOptions{}
	}
	baseCtx, baseCancel := context.WithCancel(ctx)
	c := &Connection{
		baseCtx:                        baseCtx,
		baseCancel:                     baseCancel,
		onClose:                        opts.OnClose,
		onError:                        opts.OnError,
		strictCapabilities:             opts.StrictCapabilities,
		assertCapabilityForMethod:      opts.AssertCapabilityForMethod,
		assertNotificationCapability:   opts.AssertNotificationCapability,
		assertRequestHandlerCapability: opts.AssertRequestHandlerCapability,
		debouncedMethods:               make(map[string]bool, len(opts.DebouncedNotificationMethods)),
		transport:                      t,
		outbound:                       make(map[int64]*outboundCall),
		droppedOutbound:                make(map[int64]bool),
		inboundCancel:                  make(map[string]context.CancelCauseFunc),
		requestHandlers:                make(map[string]RequestHandler),
		requestValidators:              make(map[string]Validator),
		notificationHandlers:           make(map[string]NotificationHandler),
		debouncePending:                make(map[string]bool),
		doneCh:                         make(chan struct{}),
	}
	for _, m := range opts.DebouncedNotificationMethods {
		c.debouncedMethods[m] = true
	}
	installBuiltins(c)
	go c.readLoop()
	return c
}

func (c *Connection) reportError(err error) {
	if err != nil && c.onError != nil {
		c.onError(err)
	}
}

// readLoop is the Connection's sole reader (§4.1): it pulls messages off the
// Transport until Read fails, at which point it runs the close cascade.
func (c *Connection) readLoop() {
	for {
		msg, err := c.transportForRead().Read(c.baseCtx)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				// Per §3.6/§4.6/§7: an unrecognized frame is surfaced via
				// OnError and otherwise ignored; the connection stays up.
				c.reportError(err)
				continue
			}
			c.closeCascade(err)
			return
		}
		c.dispatch(msg)
	}
}

// transportForRead returns the bound transport. It is only ever called from
// readLoop, which runs for the lifetime of the Connection, so it does not
// need to guard against a nil transport the way writes do.
func (c *Connection) transportForRead() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

func (c *Connection) dispatch(msg Message) {
	switch m := msg.(type) {
	case *Response:
		c.onResponse(m)
	case *Request:
		if m.IsCall() {
			go c.onRequest(m)
		} else {
			go c.onNotification(m)
		}
	default:
		c.reportError(fmt.Errorf("jsonrpc2: dispatch: unrecognized message shape %T", msg))
	}
}

// writeMessage serializes msg and writes it to the currently bound
// transport. It returns ErrConnectionClosed if the connection has
// already been detached from its transport. opts may be nil for sends that
// carry none of §6's transport-forwarding hints.
func (c *Connection) writeMessage(ctx context.Context, msg Message, opts *WriteOptions) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return t.Write(ctx, msg, opts)
}

// Call sends an outbound request and blocks until its response arrives, its
// context is done, or it times out (§4.2).
func (c *Connection) Call(ctx context.Context, method string, params any, opts *CallOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &CallOptions{}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.mu.Unlock()

	if c.strictCapabilities && c.assertCapabilityForMethod != nil {
		if err := c.assertCapabilityForMethod(method); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawParams, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc2: marshaling params: %w", err)
	}

	// nextID is a per-Session counter starting at 0 (§3, §8 invariant 1), so
	// the increment is taken after the identity that will be handed out.
	id := atomic.AddInt64(&c.nextID, 1) - 1

	if opts.OnProgress != nil {
		rawParams, err = injectProgressToken(rawParams, id)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc2: attaching progress token: %w", err)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	call := &outboundCall{
		id:              id,
		result:          make(chan asyncResult, 1),
		progress:        opts.OnProgress,
		resetOnProgress: opts.ResetTimeoutOnProgress,
		validate:        opts.ResultValidator,
	}

	call.timeout = newTimeoutRecord(timeout, opts.MaxTotalTimeout, func(reason error) {
		c.cancelOutbound(id, reason)
	})

	c.mu.Lock()
	c.outbound[id] = call
	c.mu.Unlock()

	// The timer is armed only after call is already visible in c.outbound,
	// so a pathologically short timeout can never fire before cancelOutbound
	// is able to find and remove it.
	call.timeout.arm()

	ctxDone := make(chan struct{})
	defer close(ctxDone)
	go func() {
		select {
		case <-ctx.Done():
			c.cancelOutbound(id, ctx.Err())
		case <-ctxDone:
		}
	}()

	req := &Request{Method: method, ID: Int64ID(id), Params: rawParams}
	writeOpts := &WriteOptions{
		RelatedRequestID:  opts.RelatedRequestID,
		ResumptionToken:   opts.ResumptionToken,
		OnResumptionToken: opts.OnResumptionToken,
	}
	if err := c.writeMessage(ctx, req, writeOpts); err != nil {
		c.mu.Lock()
		delete(c.outbound, id)
		c.mu.Unlock()
		call.timeout.cleanup()
		return nil, err
	}

	res := <-call.result
	if res.err != nil {
		return nil, res.err
	}
	if call.validate != nil {
		if verr := call.validate.Validate(res.data); verr != nil {
			return nil, fmt.Errorf("jsonrpc2: validating result: %w", verr)
		}
	}
	return res.data, nil
}

// cancelOutbound implements the caller-cancel and timeout transitions of
// §4.2: it removes the pending call, best-effort notifies the peer, and
// completes the caller with reason. A call already completed (by a response
// racing in) is a no-op.
func (c *Connection) cancelOutbound(id int64, reason error) {
	c.mu.Lock()
	call, ok := c.outbound[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.outbound, id)
	c.droppedOutbound[id] = true
	c.mu.Unlock()

	call.timeout.cleanup()

	notif := cancelledNotificationParams{RequestID: id, Reason: reasonString(reason)}
	if raw, err := marshalParams(notif); err == nil {
		req := &Request{Method: methodNotificationCancelled, Params: raw}
		if err := c.writeMessage(context.Background(), req, nil); err != nil {
			c.reportError(fmt.Errorf("jsonrpc2: sending cancellation for %d: %w", id, err))
		}
	}

	call.result <- asyncResult{err: reason}
}

func reasonString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// onResponse implements §4.6's response classification: deliver to the
// matching outbound call, silently drop a response for a call already
// cancelled or timed out, or report a genuinely unknown id.
func (c *Connection) onResponse(resp *Response) {
	id, ok := resp.ID.Int64()
	if !ok {
		c.reportError(fmt.Errorf("jsonrpc2: response with non-integer id %v", resp.ID.Raw()))
		return
	}

	c.mu.Lock()
	call, found := c.outbound[id]
	if found {
		delete(c.outbound, id)
	}
	dropped := c.droppedOutbound[id]
	if dropped {
		delete(c.droppedOutbound, id)
	}
	c.mu.Unlock()

	if !found {
		if dropped {
			return
		}
		c.reportError(fmt.Errorf("jsonrpc2: response with unknown id %d", id))
		return
	}

	call.timeout.cleanup()
	if resp.Error != nil {
		call.result <- asyncResult{err: errorFromWire(resp.Error)}
		return
	}
	call.result <- asyncResult{data: resp.Result}
}

// Notify sends a fire-and-forget notification (§4.5), coalescing it if the
// method is debounce-eligible: no params, no related-request-id.
func (c *Connection) Notify(ctx context.Context, method string, params any, opts *NotifyOptions) error {
	if opts == nil {
		opts = &NotifyOptions{}
	}
	if c.strictCapabilities && c.assertNotificationCapability != nil {
		if err := c.assertNotificationCapability(method); err != nil {
			return err
		}
	}

	eligible := c.debouncedMethods[method] && params == nil && !opts.RelatedRequestID.IsValid()
	if eligible {
		c.mu.Lock()
		if c.debouncePending[method] {
			c.mu.Unlock()
			return nil
		}
		c.debouncePending[method] = true
		c.mu.Unlock()
		c.scheduleDebouncedFlush(method)
		return nil
	}

	rawParams, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("jsonrpc2: marshaling params: %w", err)
	}
	req := &Request{Method: method, Params: rawParams}
	return c.writeMessage(ctx, req, &WriteOptions{RelatedRequestID: opts.RelatedRequestID})
}

// Close requests the transport close. The close cascade itself runs
// asynchronously from readLoop once the transport actually signals closure.
func (c *Connection) Close() error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

// Wait blocks until the close cascade has completed and returns the error
// that triggered it, or nil for a graceful close (io.EOF).
func (c *Connection) Wait() error {
	<-c.doneCh
	return c.closeErr
}

// Done returns a channel closed once the close cascade has completed.
func (c *Connection) Done() <-chan struct{} {
	return c.doneCh
}

// closeCascade implements §4.1's close sequence: snapshot and clear the
// outbound registry, clear debounce state, detach the transport, fire
// OnClose, then fail every snapshotted call with ErrConnectionClosed.
func (c *Connection) closeCascade(readErr error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	snapshot := make([]*outboundCall, 0, len(c.outbound))
	for id, call := range c.outbound {
		snapshot = append(snapshot, call)
		delete(c.outbound, id)
	}
	c.droppedOutbound = make(map[int64]bool)
	c.debouncePending = make(map[string]bool)
	c.transport = nil

	if readErr != nil && !errors.Is(readErr, io.EOF) {
		c.closeErr = readErr
	}
	c.mu.Unlock()

	c.baseCancel()

	if c.onClose != nil {
		c.onClose()
	}

	for _, call := range snapshot {
		call.timeout.cleanup()
		call.result <- asyncResult{err: ErrConnectionClosed}
	}

	close(c.doneCh)
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

// injectProgressToken merges {"_meta":{"progressToken":id}} into an existing
// params object without disturbing any other fields it may carry.
func injectProgressToken(params json.RawMessage, id int64) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &obj); err != nil {
			return nil, fmt.Errorf("params with a progress handler must be a JSON object: %w", err)
		}
	}
	meta := map[string]json.RawMessage{}
	if existing, ok := obj["_meta"]; ok {
		if err := json.Unmarshal(existing, &meta); err != nil {
			return nil, err
		}
	}
	tokenRaw, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	meta["progressToken"] = tokenRaw
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	obj["_meta"] = metaRaw
	return json.Marshal(obj)
}
