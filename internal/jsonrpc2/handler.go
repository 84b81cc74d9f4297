// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"context"
	"encoding/json"
	"time"
)

// Transport is a duplex channel of jsonrpc2 Messages. It is the out-of-scope
// collaborator named in the spec's §1: the engine assumes exclusive
// ownership of a Transport once bound, and drives it with a single reading
// goroutine plus serialized writes.
//
// Read must block until a message is available, ctx is done, or the
// channel is closed (in which case it returns an error; io.EOF signals a
// graceful close). Write and Close may be called concurrently with Read.
type Transport interface {
	Read(ctx context.Context) (Message, error)
	Write(ctx context.Context, msg Message, opts *WriteOptions) error
	Close() error
}

// WriteOptions carries the per-send hints named in §6 that the engine itself
// does not interpret but must forward to the transport: related_request_id,
// resumption_token, and on_resumption_token. A nil *WriteOptions means none
// apply.
type WriteOptions struct {
	// RelatedRequestID tags the envelope for correlation by a streaming
	// transport; the zero ID means unrelated.
	RelatedRequestID ID
	// ResumptionToken, if non-empty, asks the transport to resume a prior
	// stream at this point instead of starting a new one.
	ResumptionToken string
	// OnResumptionToken, if non-nil, is called by the transport with the
	// token identifying this send, so a caller can persist it for a future
	// resumption.
	OnResumptionToken func(string)
}

// SessionIDer is an optional Transport extension that supplies a peer- or
// connection-scoped identifier, surfaced to inbound request handlers via
// RequestExtras.SessionID.
type SessionIDer interface {
	SessionID() string
}

// ExtrasProvider is an optional Transport extension for carrying the
// per-message authInfo/requestInfo the spec's §6 describes transports as
// able to annotate onto incoming messages (e.g. an HTTP-backed transport
// attaching bearer-token claims). If a bound Transport implements this, its
// Extras method is called once per inbound request, when that request's
// RequestExtras are built.
type ExtrasProvider interface {
	Extras() (authInfo, requestInfo any)
}

// Validator is the schema-validation collaborator named in the spec's §1 as
// out of scope for the CORE but pluggable into it: RequestHandler
// registration and outbound Call results both accept an optional Validator.
type Validator interface {
	Validate(data json.RawMessage) error
}

// RequestHandler serves an inbound JSON-RPC request (§4.4). It returns the
// value to marshal as the result, or an error to report back to the peer.
type RequestHandler func(ctx context.Context, params json.RawMessage, extras *RequestExtras) (any, error)

// NotificationHandler serves an inbound JSON-RPC notification (§4.5).
// Notifications are fire-and-forget: a returned error is surfaced only via
// the Connection's OnError hook, never to the peer.
type NotificationHandler func(ctx context.Context, params json.RawMessage, extras *RequestExtras) error

// ProgressHandler receives notifications/progress events for a single
// outbound request (§4.6).
type ProgressHandler func(ProgressParams)

// ProgressParams is the params of a notifications/progress event, minus its
// progressToken (the caller already knows which request it belongs to).
type ProgressParams struct {
	Progress float64
	Total    float64
	Message  string
}

// RequestExtras is the handler-extras record built for every inbound
// request (§4.4 step 5). The cancellation signal is ctx itself: handlers
// should select on ctx.Done() rather than look for a separate field.
type RequestExtras struct {
	// SessionID is the transport's session id, if it implements SessionIDer.
	SessionID string
	// Meta is the request's params._meta, if present.
	Meta json.RawMessage
	// AuthInfo and RequestInfo are opaque pass-through values from a
	// Transport implementing ExtrasProvider.
	AuthInfo    any
	RequestInfo any

	conn      *Connection
	relatedID ID
}

// SendNotification sends a notification tagged with this inbound request's
// id as its related-request-id, per §4.4 step 5.
func (e *RequestExtras) SendNotification(ctx context.Context, method string, params any) error {
	return e.conn.Notify(ctx, method, params, &NotifyOptions{RelatedRequestID: e.relatedID})
}

// SendRequest sends a request tagged with this inbound request's id as its
// related-request-id, per §4.4 step 5.
func (e *RequestExtras) SendRequest(ctx context.Context, method string, params any, opts *CallOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	o := *opts
	o.RelatedRequestID = e.relatedID
	return e.conn.Call(ctx, method, params, &o)
}

// ConnectionOptions configures a Connection at bind time.
type ConnectionOptions struct {
	// OnClose is called once, synchronously, as part of the close cascade,
	// before any pending outbound request is failed with ErrConnectionClosed.
	OnClose func()
	// OnError receives errors that have nowhere more specific to go: send
	// failures for responses/notifications/cancellations, unknown response
	// ids, unknown progress tokens, undecodable messages, and notification
	// handler panics/errors.
	OnError func(error)

	// StrictCapabilities, if true, causes every outbound Call and Notify to
	// be checked against AssertCapabilityForMethod/AssertNotificationCapability
	// before anything is sent.
	StrictCapabilities bool
	// AssertCapabilityForMethod gates outbound Call; see §4.2 step 2.
	AssertCapabilityForMethod func(method string) error
	// AssertNotificationCapability gates outbound Notify; see §4.5.
	AssertNotificationCapability func(method string) error
	// AssertRequestHandlerCapability gates SetRequestHandler; see §4.7.
	AssertRequestHandlerCapability func(method string) error

	// DebouncedNotificationMethods lists the notification methods eligible
	// for coalescing, per §4.5's eligibility rule.
	DebouncedNotificationMethods []string
}

// CallOptions configures an outbound Call (§4.2).
type CallOptions struct {
	// Timeout is the per-call timeout; zero means the spec's 60s default.
	Timeout time.Duration
	// MaxTotalTimeout, if nonzero, is an absolute ceiling from send time,
	// checked on each progress event: once it has elapsed, a progress event
	// fails the call instead of restarting the per-call timer. A timer
	// restarted before the ceiling still runs for the full Timeout.
	MaxTotalTimeout time.Duration
	// ResetTimeoutOnProgress, if true, restarts the per-call timer (but not
	// MaxTotalTimeout's origin) on every progress event.
	ResetTimeoutOnProgress bool
	// OnProgress, if non-nil, registers a progress handler under this
	// call's id and attaches params._meta.progressToken.
	OnProgress ProgressHandler
	// ResultValidator, if non-nil, validates a successful response's result
	// before Call returns it.
	ResultValidator Validator
	// RelatedRequestID tags the outbound envelope for correlation by a
	// streaming transport; zero value means unrelated.
	RelatedRequestID ID
	// ResumptionToken and OnResumptionToken are forwarded to the transport
	// and are otherwise uninterpreted by the engine, per §1.
	ResumptionToken   string
	OnResumptionToken func(string)
}

// NotifyOptions configures an outbound Notify (§4.5).
type NotifyOptions struct {
	RelatedRequestID ID
}

const defaultCallTimeout = 60 * time.Second
