/*
Package helium is the concurrent core of a minimal HTTP/1.1 server.

A single acceptor loop owns the listening socket and every accepted
connection. It reads each request in one shot, parks the connection in a
correlation table under a fresh key and queues the bytes for a fixed pool
of workers. Workers parse, route and run the handler, then send the
response back over a channel; the loop writes it to the matching
connection and closes it.

Quick Start

	package main

	import (
	    "github.com/searchktools/helium/app"
	    "github.com/searchktools/helium/config"
	    "github.com/searchktools/helium/core/http"
	    "github.com/searchktools/helium/core/router"
	)

	func main() {
	    application := app.New(config.New())

	    server := application.Server()
	    server.GET("/", router.Static(func() string {
	        return "Index route"
	    }))
	    server.GET("/hello", router.HandlerFunc(func(req *http.Request) http.TaskResponse {
	        return http.OK("Hello, " + req.QueryValue("name"))
	    }))

	    application.Run()
	}

Modules

  - app: process lifecycle, signals and the metrics endpoint
  - config: flags with env overrides
  - core: Server and the acceptor loop
  - core/http: sanitizer, parser, methods, status codes and responses
  - core/router: exact-match routes and handler adapters
  - core/codec: JSON and protobuf encoders for handler results
  - core/pools: work queue, worker pool and read buffers
  - core/correlator: connection table and key generators
  - core/poller: epoll (Linux) and kqueue (BSD/macOS)
  - core/observability: Prometheus metrics

Every response carries Connection: close. Keep-alive, chunked bodies,
HTTP/2 and TLS are out of scope.
*/
package helium
