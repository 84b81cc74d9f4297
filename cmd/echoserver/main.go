// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command echoserver runs the mcpdemo capability layer over stdio, the way
// the teacher's examples/server/basic runs a full server.
package main

import (
	"context"
	"log"
	"os"

	"github.com/mcpsession/go-sdk/mcpdemo"
	"github.com/mcpsession/go-sdk/transport"
)

func main() {
	ctx := context.Background()
	t := transport.NewIO(os.Stdin, os.Stdout, nil)

	self := &mcpdemo.Capabilities{
		Roots: &mcpdemo.RootsCapability{ListChanged: true},
	}
	session, err := mcpdemo.Connect(ctx, t, self, nil, func(err error) {
		log.Printf("echoserver: %v", err)
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := session.Conn.Wait(); err != nil {
		log.Printf("echoserver: connection closed: %v", err)
	}
}
