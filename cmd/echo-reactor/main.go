// Command echo-reactor is a minimal TCP echo client built on the reactor
// core and the buffered adapter: it connects to an echoing listener,
// writes one line, and prints whatever comes back.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joeycumines/go-reactor"
	"github.com/joeycumines/go-reactor/buffered"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "address to connect to")
	message := flag.String("message", "hello\n", "line to send")
	flag.Parse()

	pool := reactor.NewFixedWorkerPool(4, 64)
	defer pool.Close()

	handler, err := reactor.New("echo-reactor", reactor.DefaultSocketOptions(), pool, 1)
	if err != nil {
		log.Fatalf("construct: %v", err)
	}
	handler.Start()
	defer handler.Terminate()

	done := make(chan struct{})
	proto := &echoProtocol{message: *message, done: done}
	adapter := buffered.NewAdapter(proto, false, true)

	handler.ConnectTo(*addr, adapter)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		fmt.Fprintln(os.Stderr, "timed out waiting for echo")
		os.Exit(1)
	}
}

type echoProtocol struct {
	message string
	sent    bool
	done    chan struct{}
	conn    *reactor.Connection
}

func (p *echoProtocol) Accepted(h *reactor.Connection) {}
func (p *echoProtocol) Connected(h *reactor.Connection) {
	p.conn = h
	h.SelectForWrite()
}
func (p *echoProtocol) Closing(reason error) {
	if reason != nil {
		fmt.Fprintf(os.Stderr, "closed: %v\n", reason)
	}
	close(p.done)
}

func (p *echoProtocol) NewWriteBuffer() []byte {
	if p.sent {
		return nil
	}
	p.sent = true
	return []byte(p.message)
}

func (p *echoProtocol) WriteReady() {
	p.conn.SelectForRead()
}

func (p *echoProtocol) NewReadBuffer() []byte {
	return make([]byte, 256)
}

func (p *echoProtocol) ReadReady(buf []byte) {
	fmt.Printf("echo: %s", buf)
	p.conn.Close(nil)
}

func (p *echoProtocol) ReadError(err error)  { fmt.Fprintf(os.Stderr, "read error: %v\n", err) }
func (p *echoProtocol) WriteError(err error) { fmt.Fprintf(os.Stderr, "write error: %v\n", err) }
