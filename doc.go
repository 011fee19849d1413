// Package reactor implements a reactive TCP connection multiplexer: a set of
// selector loops that watch many non-blocking sockets for readiness and hand
// ready events to a bounded worker pool, without ever running application
// code on a selector goroutine.
//
// A ChannelHandler owns Q pairs of selector loops (one read-side loop
// handling CONNECT and READ, one write-side loop handling WRITE, per pair),
// a live-set registry of open connections, and a WorkerPool that actually
// executes application callbacks. Connections are bound to exactly
// one loop pair for their lifetime.
//
// Typical usage:
//
//	handler, err := reactor.New("echo", reactor.DefaultSocketOptions(), pool, 4)
//	if err != nil { ... }
//	handler.Start()
//	defer handler.Terminate()
//	handler.ConnectTo("127.0.0.1:9000", sink)
//
// The package does not implement TLS, message framing, flow control,
// connection pooling, reconnection, or per-operation timeouts; see the
// buffered sub-package for a minimal byte-buffer protocol collaborator built
// on top of this core.
package reactor
