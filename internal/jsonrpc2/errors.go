// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes, plus the MCP-specific codes this
// package's engine can itself produce (RequestTimeout, ConnectionClosed).
const (
	CodeParseError     int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternalError  int64 = -32603

	// CodeRequestTimeout and CodeConnectionClosed lie in the JSON-RPC
	// implementation-defined server-error range (-32000 to -32099). The
	// engine raises them for local conditions and does not put them on the
	// wire itself, but they are WireError codes so callers can inspect them
	// uniformly via errors.As.
	CodeRequestTimeout   int64 = -32000
	CodeConnectionClosed int64 = -32001
)

// WireError is a JSON-RPC error object. It implements error, and unwraps to
// nothing further: for errors.Is, its code is the whole of its identity.
type WireError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// NewError returns a *WireError with the given code and message.
func NewError(code int64, message string) *WireError {
	return &WireError{Code: code, Message: message}
}

// WithData returns a copy of e with Data set to the JSON encoding of data.
// If data cannot be marshaled, Data is left unset.
func (e *WireError) WithData(data any) *WireError {
	e2 := *e
	if raw, err := json.Marshal(data); err == nil {
		e2.Data = raw
	}
	return &e2
}

// Is reports whether target is a *WireError with the same code, so that
// errors.Is(err, ErrMethodNotFound) works regardless of message or data.
func (e *WireError) Is(target error) bool {
	t, ok := target.(*WireError)
	return ok && t.Code == e.Code
}

// Sentinel errors for the codes callers most often need to compare against.
// Each is comparable via errors.Is because of WireError.Is above.
var (
	ErrParseError       = NewError(CodeParseError, "Parse error")
	ErrInvalidRequest   = NewError(CodeInvalidRequest, "Invalid Request")
	ErrMethodNotFound   = NewError(CodeMethodNotFound, "Method not found")
	ErrInvalidParams    = NewError(CodeInvalidParams, "Invalid params")
	ErrInternalError    = NewError(CodeInternalError, "Internal error")
	ErrRequestTimeout   = NewError(CodeRequestTimeout, "Request timeout")
	ErrConnectionClosed = NewError(CodeConnectionClosed, "Connection closed")
)

// errorFromWire converts an incoming wire error into a Go error. It always
// returns a *WireError so that errors.As(err, new(*WireError)) works for
// callers that need the code.
func errorFromWire(we *WireError) error {
	if we == nil {
		return nil
	}
	return we
}

// safeCode reports whether v fits the JSON-RPC "safe integer" requirement
// (§4.4): used to decide whether a handler-supplied error code may be sent
// on the wire, or must be replaced by CodeInternalError.
func safeCode(v int64) bool {
	const maxSafeInteger = 1<<53 - 1
	return v >= -maxSafeInteger && v <= maxSafeInteger
}

// codeFromError extracts a wire-safe (code, message, data) triple from an
// arbitrary handler error, per §4.4 step 6: the code is the error's code if
// it is a *WireError with a safe integer code, else CodeInternalError; the
// message is the error's message, or "Internal error" if empty; data is the
// *WireError's Data, and nil otherwise.
func codeFromError(err error) (int64, string, json.RawMessage) {
	var we *WireError
	if errors.As(err, &we) && safeCode(we.Code) {
		msg := we.Message
		if msg == "" {
			msg = "Internal error"
		}
		return we.Code, msg, we.Data
	}
	msg := err.Error()
	if msg == "" {
		msg = "Internal error"
	}
	return CodeInternalError, msg, nil
}
