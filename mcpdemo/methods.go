// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcpdemo

// Method names this demo layer installs handlers for, beyond the engine's
// own built-ins (ping, notifications/cancelled, notifications/progress).
const (
	methodEcho         = "echo"
	methodSlowEcho     = "slowEcho"
	methodBlockingEcho = "blockingEcho"
	methodRootsList    = "roots/list"

	notificationRootsListChanged = "notifications/roots/list_changed"
)
