// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"context"
	"time"
)

// scheduleDebouncedFlush arranges for the pending coalesced notification on
// method to be sent on the next tick (§4.5, scenario S6). Go has no native
// microtask queue, so a zero-delay timer stands in for "next tick": any
// Notify call for the same method that arrives before the timer fires
// observes debouncePending already set and returns immediately without
// re-scheduling.
func (c *Connection) scheduleDebouncedFlush(method string) {
	time.AfterFunc(0, func() {
		c.mu.Lock()
		delete(c.debouncePending, method)
		t := c.transport
		c.mu.Unlock()

		// Resolved by the Open Question: a debounced notification whose
		// flush fires after the connection has closed is silently dropped,
		// never reported as an error.
		if t == nil {
			return
		}

		req := &Request{Method: method}
		if err := c.writeMessage(context.Background(), req, nil); err != nil {
			c.reportError(err)
		}
	})
}
