// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"context"
	"encoding/json"
	"fmt"
)

// Reserved method names the engine itself understands, per §6.
const (
	methodPing                  = "ping"
	methodNotificationCancelled = "notifications/cancelled"
	methodNotificationProgress  = "notifications/progress"
)

type cancelledNotificationParams struct {
	RequestID any    `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

type progressNotificationParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

type requestMeta struct {
	Meta json.RawMessage `json:"_meta,omitempty"`
}

// installBuiltins wires the three always-installed handlers named in §6:
// ping, notifications/cancelled and notifications/progress. Callers may
// override any of them via SetRequestHandler/SetNotificationHandler.
func installBuiltins(c *Connection) {
	c.requestHandlers[methodPing] = func(ctx context.Context, params json.RawMessage, extras *RequestExtras) (any, error) {
		return struct{}{}, nil
	}
	c.notificationHandlers[methodNotificationCancelled] = func(ctx context.Context, params json.RawMessage, extras *RequestExtras) error {
		var p cancelledNotificationParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("jsonrpc2: decoding %s: %w", methodNotificationCancelled, err)
		}
		// Inbound ids are peer-chosen, so requestId may be a string or a number.
		key, isString := p.RequestID.(string)
		if !isString {
			id, ok := coerceID(p.RequestID)
			if !ok {
				return fmt.Errorf("jsonrpc2: %s with unrecognized requestId %v", methodNotificationCancelled, p.RequestID)
			}
			key = Int64ID(id).String()
		}
		c.mu.Lock()
		cancel, ok := c.inboundCancel[key]
		c.mu.Unlock()
		if !ok {
			return nil
		}
		cancel(fmt.Errorf("jsonrpc2: cancelled by peer: %s", p.Reason))
		return nil
	}
	c.notificationHandlers[methodNotificationProgress] = func(ctx context.Context, params json.RawMessage, extras *RequestExtras) error {
		c.onProgress(params)
		return nil
	}
}

// coerceID implements the Open Question resolution for progress-token
// coercion: tokens travel as `any` on the wire, but the engine only ever
// allocates int64 outbound ids, so only a numeric form can possibly match a
// pending call. The notifications/cancelled handler also uses it for numeric
// requestIds; string requestIds are matched as they are.
func coerceID(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}

// onProgress implements §4.6's progress path: resolve the token to a
// pending outbound call, reset its timeout per §4.3, and invoke its
// progress handler if it installed one. Any failure to resolve the token is
// reported via OnError rather than blocking the notification dispatch.
func (c *Connection) onProgress(raw json.RawMessage) {
	var p progressNotificationParams
	if err := json.Unmarshal(raw, &p); err != nil {
		c.reportError(fmt.Errorf("jsonrpc2: decoding %s: %w", methodNotificationProgress, err))
		return
	}
	id, ok := coerceID(p.ProgressToken)
	if !ok {
		c.reportError(fmt.Errorf("jsonrpc2: %s with unrecognized token %v", methodNotificationProgress, p.ProgressToken))
		return
	}

	c.mu.Lock()
	call, ok := c.outbound[id]
	c.mu.Unlock()
	if !ok {
		c.reportError(fmt.Errorf("jsonrpc2: %s for unknown request %d", methodNotificationProgress, id))
		return
	}

	if call.resetOnProgress {
		if breached := call.timeout.reset(); breached {
			return
		}
	}
	if call.progress != nil {
		call.progress(ProgressParams{Progress: p.Progress, Total: p.Total, Message: p.Message})
	}
}

// onRequest implements §4.4: resolve a handler, install an inbound
// cancellation context, run the handler, and send its result or error back
// to the peer. It always runs in its own goroutine so a slow handler never
// blocks the read loop.
func (c *Connection) onRequest(req *Request) {
	c.mu.Lock()
	handler, ok := c.requestHandlers[req.Method]
	validator := c.requestValidators[req.Method]
	if !ok {
		handler = c.fallbackRequest
		ok = handler != nil
	}
	c.mu.Unlock()

	if !ok {
		c.sendErrorResponse(req.ID, ErrMethodNotFound.WithData(req.Method))
		return
	}

	if validator != nil {
		if err := validator.Validate(req.Params); err != nil {
			c.sendErrorResponse(req.ID, ErrInvalidParams.WithData(err.Error()))
			return
		}
	}

	ctx, cancel := context.WithCancelCause(c.baseCtx)
	key := req.ID.String()
	c.mu.Lock()
	c.inboundCancel[key] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inboundCancel, key)
		c.mu.Unlock()
		cancel(nil)
	}()

	extras := &RequestExtras{conn: c, relatedID: req.ID}
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if sp, ok := t.(SessionIDer); ok {
		extras.SessionID = sp.SessionID()
	}
	if ep, ok := t.(ExtrasProvider); ok {
		extras.AuthInfo, extras.RequestInfo = ep.Extras()
	}
	var meta requestMeta
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &meta); err == nil {
			extras.Meta = meta.Meta
		}
	}

	result, err := handler(ctx, req.Params, extras)
	if ctx.Err() != nil {
		// The caller cancelled us; per §4.4 the response is suppressed.
		return
	}
	if err != nil {
		code, msg, data := codeFromError(err)
		we := &WireError{Code: code, Message: msg, Data: data}
		c.sendErrorResponse(req.ID, we)
		return
	}

	rawResult, merr := marshalParams(result)
	if merr != nil {
		c.sendErrorResponse(req.ID, ErrInternalError.WithData(merr.Error()))
		return
	}
	if rawResult == nil {
		rawResult = json.RawMessage("null")
	}
	resp := &Response{ID: req.ID, Result: rawResult}
	if err := c.writeMessage(context.Background(), resp, nil); err != nil {
		c.reportError(fmt.Errorf("jsonrpc2: sending response for %s: %w", req.ID.String(), err))
	}
}

func (c *Connection) sendErrorResponse(id ID, we *WireError) {
	resp := &Response{ID: id, Error: we}
	if err := c.writeMessage(context.Background(), resp, nil); err != nil {
		c.reportError(fmt.Errorf("jsonrpc2: sending error response for %s: %w", id.String(), err))
	}
}

// onNotification implements §4.5's inbound path: look up a handler (or the
// fallback), and run it in its own goroutine. Handler errors and panics
// never reach the peer; they are reported via OnError.
func (c *Connection) onNotification(req *Request) {
	c.mu.Lock()
	handler, ok := c.notificationHandlers[req.Method]
	if !ok {
		handler = c.fallbackNotification
		ok = handler != nil
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.reportError(fmt.Errorf("jsonrpc2: notification handler for %s panicked: %v", req.Method, r))
		}
	}()
	if err := handler(c.baseCtx, req.Params, &RequestExtras{conn: c}); err != nil {
		c.reportError(fmt.Errorf("jsonrpc2: notification handler for %s: %w", req.Method, err))
	}
}
