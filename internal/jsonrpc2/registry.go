// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import "fmt"

// SetRequestHandler installs h to serve inbound requests for method,
// replacing any existing handler (including a built-in one). If validator
// is non-nil, inbound params are checked against it before h runs (§4.7);
// a validation failure is reported to the peer as InvalidParams without
// invoking h.
func (c *Connection) SetRequestHandler(method string, validator Validator, h RequestHandler) error {
	if c.assertRequestHandlerCapability != nil {
		if err := c.assertRequestHandlerCapability(method); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHandlers[method] = h
	if validator != nil {
		c.requestValidators[method] = validator
	} else {
		delete(c.requestValidators, method)
	}
	return nil
}

// RemoveRequestHandler removes the handler for method, if any.
func (c *Connection) RemoveRequestHandler(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.requestHandlers, method)
	delete(c.requestValidators, method)
}

// AssertCanSetRequestHandler reports an error if method already has a
// handler installed, per §4.7's duplicate-registration guard.
func (c *Connection) AssertCanSetRequestHandler(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.requestHandlers[method]; ok {
		return fmt.Errorf("jsonrpc2: a request handler for %q is already registered", method)
	}
	return nil
}

// SetNotificationHandler installs h to serve inbound notifications for
// method, replacing any existing handler (including a built-in one).
func (c *Connection) SetNotificationHandler(method string, h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationHandlers[method] = h
}

// RemoveNotificationHandler removes the handler for method, if any.
func (c *Connection) RemoveNotificationHandler(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.notificationHandlers, method)
}

// SetFallbackRequestHandler installs a handler invoked for any request
// whose method has no specific handler, instead of an automatic
// MethodNotFound response.
func (c *Connection) SetFallbackRequestHandler(h RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbackRequest = h
}

// SetFallbackNotificationHandler installs a handler invoked for any
// notification whose method has no specific handler.
func (c *Connection) SetFallbackNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbackNotification = h
}
