// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package mcpdemo is a trimmed stand-in for the client/server subclasses
// that specialize capability checks: it gives the session engine in
// internal/jsonrpc2 a caller that exercises its handler registry, progress
// machinery, inbound cancellation, and notification debouncing, without
// carrying the full tool/resource/prompt/pagination surface of a complete
// MCP implementation.
package mcpdemo

import "fmt"

// RootsCapability describes support for listing filesystem roots and for
// notifying the peer when that list changes.
type RootsCapability struct {
	ListChanged bool
}

// SamplingCapability describes support for LLM sampling callbacks. It is
// carried as a presence flag only; this module does not implement sampling
// itself.
type SamplingCapability struct{}

// LoggingCapability describes support for receiving structured log
// messages. Carried as a presence flag only, for the same reason as
// SamplingCapability.
type LoggingCapability struct{}

// Capabilities is one side's advertised feature set. A nil pointer field
// means that capability is not supported.
type Capabilities struct {
	Roots    *RootsCapability
	Sampling *SamplingCapability
	Logging  *LoggingCapability
}

// assertCapabilityForMethod implements §4.2's outbound capability gate: the
// peer must have advertised support before we call a method that assumes
// it.
func (s *Session) assertCapabilityForMethod(method string) error {
	switch method {
	case methodRootsList:
		if s.peer == nil || s.peer.Roots == nil {
			return fmt.Errorf("mcpdemo: peer does not support %s", method)
		}
	}
	return nil
}

// assertNotificationCapability implements §4.5's outbound capability gate
// for notifications we send.
func (s *Session) assertNotificationCapability(method string) error {
	switch method {
	case notificationRootsListChanged:
		if s.self == nil || s.self.Roots == nil || !s.self.Roots.ListChanged {
			return fmt.Errorf("mcpdemo: local capabilities do not advertise roots listChanged")
		}
	}
	return nil
}

// assertRequestHandlerCapability implements §4.7's registration-time gate:
// a handler may only be installed for a method this side has advertised
// support for.
func (s *Session) assertRequestHandlerCapability(method string) error {
	switch method {
	case methodRootsList:
		if s.self == nil || s.self.Roots == nil {
			return fmt.Errorf("mcpdemo: local capabilities do not advertise roots")
		}
	}
	return nil
}
