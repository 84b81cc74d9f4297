// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command httpserver runs the mcpdemo capability layer over the SSE
// transport, configured from the environment the way
// github.com/ggoodman/mcp-streaming-http-go's session host does.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joeshaw/envdecode"

	"github.com/mcpsession/go-sdk/mcpdemo"
	"github.com/mcpsession/go-sdk/transport"
)

// config is decoded from the environment via envdecode; struct tags carry
// the env var name and default, matching the teacher pack's own usage.
type config struct {
	Addr        string `env:"MCPDEMO_ADDR,default=localhost:8080"`
	StreamPath  string `env:"MCPDEMO_STREAM_PATH,default=/sse"`
	MessagePath string `env:"MCPDEMO_MESSAGE_PATH,default=/message"`
}

func main() {
	var cfg config
	// Defaults come from the struct tags above; a decode error just means
	// no MCPDEMO_* env vars were set, which is fine.
	_ = envdecode.Decode(&cfg)

	t := transport.NewSSE()
	self := &mcpdemo.Capabilities{
		Roots: &mcpdemo.RootsCapability{ListChanged: true},
	}

	ctx := context.Background()
	session, err := mcpdemo.Connect(ctx, t, self, nil, func(err error) {
		log.Printf("httpserver: %v", err)
	})
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		if err := session.Conn.Wait(); err != nil {
			log.Printf("httpserver: connection closed: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.StreamPath, func(w http.ResponseWriter, r *http.Request) {
		if err := t.ServeStream(w, r); err != nil {
			log.Printf("httpserver: stream: %v", err)
		}
	})
	mux.HandleFunc(cfg.MessagePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := t.ServeMessage(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	log.Printf("httpserver: listening on %s (session %s)", cfg.Addr, t.SessionID())
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatal(err)
	}
}
