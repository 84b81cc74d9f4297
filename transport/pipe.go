// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"io"

	"github.com/google/uuid"
	"github.com/mcpsession/go-sdk/internal/jsonrpc2"
)

// sessionIO wraps IO with a stable session identifier, so code exercising
// jsonrpc2.SessionIDer (request extras' SessionID field) has something real
// to observe even over an in-memory pipe.
type sessionIO struct {
	*IO
	id string
}

func (s *sessionIO) SessionID() string { return s.id }

// Pipe returns two connected Transports, each implementing SessionIDer with
// a freshly minted id. Writes to one side's Transport are observed as reads
// on the other's, making it suitable for driving both ends of a Connection
// within a single test process.
func Pipe() (a, b jsonrpc2.Transport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a = &sessionIO{IO: NewIO(ar, aw, rwcCloser{ar, aw}), id: uuid.NewString()}
	b = &sessionIO{IO: NewIO(br, bw, rwcCloser{br, bw}), id: uuid.NewString()}
	return a, b
}

// rwcCloser closes both pipe halves owned by one side of Pipe.
type rwcCloser struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (c rwcCloser) Close() error {
	werr := c.w.Close()
	rerr := c.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
