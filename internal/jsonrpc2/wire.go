// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc2 implements the session-layer engine described by the
// Model Context Protocol: request/response correlation, handler dispatch,
// timeout and cancellation, and notification debouncing, all independent of
// any particular transport or schema-validation library.
package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

// protocolVersion is the JSON-RPC wire version this package speaks.
const protocolVersion = "2.0"

// ID is a JSON-RPC request identifier. The zero ID is invalid and is used
// for notifications, which carry no id on the wire.
//
// An ID wraps either an int64 or a string, matching the two forms the
// JSON-RPC spec allows.
type ID struct {
	value any // nil, int64, or string
}

// Int64ID returns an ID holding the integer v.
func Int64ID(v int64) ID { return ID{value: v} }

// StringID returns an ID holding the string v.
func StringID(v string) ID { return ID{value: v} }

// IsValid reports whether id was constructed by Int64ID or StringID, as
// opposed to being the zero ID used for notifications.
func (id ID) IsValid() bool { return id.value != nil }

// Raw returns the underlying int64 or string, or nil for the zero ID.
func (id ID) Raw() any { return id.value }

// Int64 returns the underlying int64 and true, or 0 and false if id does not
// hold an int64.
func (id ID) Int64() (int64, bool) {
	v, ok := id.value.(int64)
	return v, ok
}

func (id ID) String() string {
	switch v := id.value.(type) {
	case int64:
		return fmt.Sprintf("%d", v)
	case string:
		return v
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch v := id.value.(type) {
	case int64:
		return json.Marshal(v)
	case string:
		return json.Marshal(v)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*id = ID{}
	case string:
		*id = StringID(v)
	case float64:
		*id = Int64ID(int64(v))
	default:
		return fmt.Errorf("jsonrpc2: invalid id %v", raw)
	}
	return nil
}

// Message is the union of the wire forms a Connection can send or receive:
// a *Request (call or notification) or a *Response.
type Message interface {
	// isMessage is unexported so Message is a closed set.
	isMessage()
}

// Request is a JSON-RPC request object. If ID is the zero ID, Request
// represents a notification; otherwise it represents a call awaiting a
// Response with the same ID.
type Request struct {
	Method string
	ID     ID
	Params json.RawMessage
}

func (*Request) isMessage() {}

// IsCall reports whether r expects a Response (as opposed to being a
// fire-and-forget notification).
func (r *Request) IsCall() bool { return r.ID.IsValid() }

// Response is a JSON-RPC response object: exactly one of Result or Error is
// set.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *WireError
}

func (*Response) isMessage() {}

// DecodeError reports that a frame of bytes did not classify into any known
// JSON-RPC shape (§4.6: "anything else -> surface a descriptive error via
// on_error"). It is distinct from a Transport-level read failure: readLoop
// treats a DecodeError as non-fatal and keeps reading.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	data := e.Data
	const preview = 200
	if len(data) > preview {
		data = data[:preview]
	}
	return fmt.Sprintf("jsonrpc2: decoding message %q: %v", data, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireMessage is the JSON shape shared by all three wire forms; EncodeMessage
// and DecodeMessage translate between it and the Message union.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// EncodeMessage marshals msg into its wire JSON form.
func EncodeMessage(msg Message) ([]byte, error) {
	w := wireMessage{JSONRPC: protocolVersion}
	switch m := msg.(type) {
	case *Request:
		w.Method = m.Method
		w.Params = m.Params
		if m.ID.IsValid() {
			id := m.ID
			w.ID = &id
		}
	case *Response:
		id := m.ID
		w.ID = &id
		if m.Error != nil {
			w.Error = m.Error
		} else if m.Result != nil {
			w.Result = m.Result
		} else {
			w.Result = json.RawMessage("null")
		}
	default:
		return nil, fmt.Errorf("jsonrpc2: unknown message type %T", msg)
	}
	return json.Marshal(w)
}

// DecodeMessage classifies and unmarshals raw wire JSON into a Message.
//
// Per §4.6: a message with an id and (result xor error) is a response; a
// message with an id and a method is a request; a message with a method and
// no id is a notification. Anything else is a decode error, which callers
// should surface through their error-reporting path rather than act on.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &DecodeError{Data: data, Err: err}
	}
	switch {
	case w.Method != "":
		id := ID{}
		if w.ID != nil {
			id = *w.ID
		}
		return &Request{Method: w.Method, ID: id, Params: w.Params}, nil
	case w.ID != nil:
		if (w.Result == nil) == (w.Error == nil) {
			return nil, &DecodeError{Data: data, Err: fmt.Errorf("response must carry exactly one of result and error")}
		}
		return &Response{ID: *w.ID, Result: w.Result, Error: w.Error}, nil
	default:
		return nil, &DecodeError{Data: data, Err: fmt.Errorf("message has neither method nor id")}
	}
}
