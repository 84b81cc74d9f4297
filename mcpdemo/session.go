// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcpdemo

import (
	"context"

	"github.com/mcpsession/go-sdk/internal/jsonrpc2"
)

// Session binds a jsonrpc2.Connection to a fixed pair of capability sets
// and installs this package's demo handlers on top of it.
//
// The real protocol negotiates capabilities through an initialize
// handshake; that handshake belongs to the client/server subclasses the
// spec places out of scope for the engine. This demo layer models the
// outcome of that negotiation directly as constructor arguments, which is
// enough to exercise every capability hook the engine defines without
// reimplementing the handshake itself.
type Session struct {
	Conn *jsonrpc2.Connection

	self *Capabilities
	peer *Capabilities

	roots []Root

	// OnRootsListChanged, if set, is called whenever this side receives a
	// (possibly debounced) notifications/roots/list_changed from the peer.
	OnRootsListChanged func()
}

// Connect binds t and installs the demo handler set. onError, if non-nil,
// receives errors the engine cannot attribute to a specific caller (see
// jsonrpc2.ConnectionOptions.OnError).
func Connect(ctx context.Context, t jsonrpc2.Transport, self, peer *Capabilities, onError func(error)) (*Session, error) {
	s := &Session{self: self, peer: peer}

	s.Conn = jsonrpc2.Bind(ctx, t, &jsonrpc2.ConnectionOptions{
		OnError:                        onError,
		StrictCapabilities:             true,
		AssertCapabilityForMethod:      s.assertCapabilityForMethod,
		AssertNotificationCapability:   s.assertNotificationCapability,
		AssertRequestHandlerCapability: s.assertRequestHandlerCapability,
		DebouncedNotificationMethods:   []string{notificationRootsListChanged},
	})

	if err := installHandlers(s); err != nil {
		s.Conn.Close()
		return nil, err
	}
	return s, nil
}

// SetRoots replaces the root list served by roots/list and, if the local
// capabilities advertise roots.listChanged, notifies the peer (debounced
// per §4.5, realizing scenario S6).
func (s *Session) SetRoots(ctx context.Context, roots []Root) error {
	s.roots = roots
	if s.self == nil || s.self.Roots == nil || !s.self.Roots.ListChanged {
		return nil
	}
	return s.Conn.Notify(ctx, notificationRootsListChanged, nil, nil)
}
