// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	sse "github.com/tmaxmax/go-sse"

	"github.com/mcpsession/go-sdk/internal/jsonrpc2"
)

// SSE is a server-push Transport: outbound messages are delivered over a
// Server-Sent Events stream, and inbound messages arrive out of band, POSTed
// by the client and handed to ServeMessage. Event ids are minted with ulid
// and reported through WriteOptions.OnResumptionToken. The transport keeps
// no event history: a reconnecting client's Last-Event-ID is not replayed,
// and WriteOptions.ResumptionToken is ignored.
type SSE struct {
	id string

	mu   sync.Mutex
	sess *sse.Session

	inbound chan jsonrpc2.Message
	closed  chan struct{}
	once    sync.Once
}

// NewSSE returns an SSE transport. It is not yet usable for Write until
// ServeStream has upgraded a client's GET request.
func NewSSE() *SSE {
	return &SSE{
		id:      uuid.NewString(),
		inbound: make(chan jsonrpc2.Message, 64),
		closed:  make(chan struct{}),
	}
}

// SessionID implements jsonrpc2.SessionIDer.
func (t *SSE) SessionID() string { return t.id }

// ServeStream upgrades r into the SSE session this transport writes to, and
// blocks until the client disconnects or the transport is closed.
func (t *SSE) ServeStream(w http.ResponseWriter, r *http.Request) error {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		return fmt.Errorf("transport: upgrading sse stream: %w", err)
	}
	t.mu.Lock()
	t.sess = sess
	t.mu.Unlock()

	select {
	case <-r.Context().Done():
	case <-t.closed:
	}
	return nil
}

// ServeMessage decodes a POSTed jsonrpc2 message and hands it to the next
// Read call. It is the client-to-server half of the transport; SSE itself
// carries only server-to-client pushes.
func (t *SSE) ServeMessage(body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	msg, err := jsonrpc2.DecodeMessage(data)
	if err != nil {
		return err
	}
	select {
	case t.inbound <- msg:
		return nil
	case <-t.closed:
		return jsonrpc2.ErrConnectionClosed
	}
}

func (t *SSE) Read(ctx context.Context) (jsonrpc2.Message, error) {
	select {
	case msg := <-t.inbound:
		return msg, nil
	case <-t.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *SSE) Write(ctx context.Context, msg jsonrpc2.Message, opts *jsonrpc2.WriteOptions) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("transport: encoding message: %w", err)
	}

	t.mu.Lock()
	sess := t.sess
	t.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("transport: sse stream not yet established")
	}

	eventID := ulid.Make().String()
	m := &sse.Message{ID: sse.ID(eventID)}
	m.AppendData(string(data))
	if err := sess.Send(m); err != nil {
		return err
	}
	if opts != nil && opts.OnResumptionToken != nil {
		opts.OnResumptionToken(eventID)
	}
	return sess.Flush()
}

func (t *SSE) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
