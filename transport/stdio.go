// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport collects concrete jsonrpc2.Transport implementations.
// The engine in internal/jsonrpc2 is transport-agnostic by design (spec
// §1); this package is where that collaborator actually lives.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mcpsession/go-sdk/internal/jsonrpc2"
)

// IO is a newline-delimited-JSON Transport over a byte stream, the shape
// every stdio-based MCP server and CLI client uses.
type IO struct {
	r io.ReadCloser
	w io.Writer
	c io.Closer

	mu      sync.Mutex
	scanner *bufio.Scanner
}

// NewIO returns a Transport that reads newline-delimited messages from r and
// writes newline-delimited messages to w. closer, if non-nil, is used for
// Close instead of closing r (useful when r and w are two halves of one
// *os.Process's pipes). Without a closer, Close closes r only; w is left
// open.
func NewIO(r io.ReadCloser, w io.Writer, closer io.Closer) *IO {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &IO{r: r, w: w, c: closer, scanner: s}
}

// Read does not observe ctx: it returns once a line arrives, or once the
// underlying reader reaches end of input or is closed.
func (t *IO) Read(ctx context.Context) (jsonrpc2.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.scanner.Scan() {
		// A pipe closed by this side's own Close is a graceful close.
		if err := t.scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return nil, err
		}
		return nil, io.EOF
	}
	return jsonrpc2.DecodeMessage(t.scanner.Bytes())
}

func (t *IO) Write(ctx context.Context, msg jsonrpc2.Message, opts *jsonrpc2.WriteOptions) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("transport: encoding message: %w", err)
	}
	data = append(data, '\n')
	if _, err := t.w.Write(data); err != nil {
		return err
	}
	return nil
}

func (t *IO) Close() error {
	if t.c != nil {
		return t.c.Close()
	}
	return t.r.Close()
}
