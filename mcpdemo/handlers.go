// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcpdemo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcpsession/go-sdk/internal/jsonrpc2"
)

// EchoParams is the params shape for echo and slowEcho.
type EchoParams struct {
	Text string `json:"text"`
}

// EchoResult is the result shape for echo and slowEcho.
type EchoResult struct {
	Text string `json:"text"`
}

// Root describes a filesystem root, the one list-style resource this demo
// layer carries (grounded in the teacher's Root type, trimmed to the two
// fields roots/list actually needs).
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult is the result of roots/list.
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

type requestMeta struct {
	Meta struct {
		ProgressToken any `json:"progressToken"`
	} `json:"_meta"`
}

type progressEvent struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

func progressTokenFrom(params json.RawMessage) any {
	if len(params) == 0 {
		return nil
	}
	var m requestMeta
	if err := json.Unmarshal(params, &m); err != nil {
		return nil
	}
	return m.Meta.ProgressToken
}

// installHandlers wires echo, slowEcho, blockingEcho, roots/list and
// notifications/roots/list_changed onto s.Conn, realizing spec.md §8
// scenarios S1 through S6.
func installHandlers(s *Session) error {
	validator, err := newSchemaValidator(echoParamsSchema)
	if err != nil {
		return err
	}

	if err := s.Conn.SetRequestHandler(methodEcho, validator, echoHandler); err != nil {
		return err
	}
	if err := s.Conn.SetRequestHandler(methodSlowEcho, validator, slowEchoHandler); err != nil {
		return err
	}
	if err := s.Conn.SetRequestHandler(methodBlockingEcho, nil, blockingEchoHandler); err != nil {
		return err
	}

	if s.self != nil && s.self.Roots != nil {
		if err := s.Conn.SetRequestHandler(methodRootsList, nil, s.listRootsHandler); err != nil {
			return err
		}
	}

	s.Conn.SetNotificationHandler(notificationRootsListChanged, s.rootsListChangedHandler)
	return nil
}

// echoHandler realizes scenario S1: a simple call/response round trip.
func echoHandler(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
	var p EchoParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, jsonrpc2.ErrInvalidParams.WithData(err.Error())
	}
	return EchoResult{Text: p.Text}, nil
}

const slowEchoSteps = 4

// slowEchoHandler realizes scenarios S2-S4: it emits a progress
// notification per step, giving the caller's timeout state machine
// something to reset against, and returns context.Cause(ctx) promptly if the caller
// cancels or times out mid-flight.
func slowEchoHandler(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
	var p EchoParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, jsonrpc2.ErrInvalidParams.WithData(err.Error())
	}
	token := progressTokenFrom(params)

	for i := 1; i <= slowEchoSteps; i++ {
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-time.After(25 * time.Millisecond):
		}
		if token == nil {
			continue
		}
		ev := progressEvent{
			ProgressToken: token,
			Progress:      float64(i),
			Total:         float64(slowEchoSteps),
			Message:       fmt.Sprintf("step %d/%d", i, slowEchoSteps),
		}
		if err := extras.SendNotification(ctx, "notifications/progress", ev); err != nil {
			return nil, err
		}
	}
	return EchoResult{Text: p.Text}, nil
}

// blockingEchoHandler realizes scenario S5: it never completes on its own,
// so the only way it returns is inbound cancellation (notifications/cancelled)
// or the connection closing out from under it.
func blockingEchoHandler(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
	<-ctx.Done()
	return nil, context.Cause(ctx)
}

func (s *Session) listRootsHandler(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) (any, error) {
	return ListRootsResult{Roots: s.roots}, nil
}

func (s *Session) rootsListChangedHandler(ctx context.Context, params json.RawMessage, extras *jsonrpc2.RequestExtras) error {
	if s.OnRootsListChanged != nil {
		s.OnRootsListChanged()
	}
	return nil
}
