package ipc

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxLine bounds a single JSON-RPC request/response line.
const maxLine = 4 * 1024 * 1024

// Transport serves Squirrel's JSON-RPC protocol over a Unix domain
// socket, one goroutine per connection, each rate-limited independently
// so one runaway client cannot starve the others.
type Transport struct {
	server *Server
	logger *log.Logger

	socketPath string
	listener   net.Listener
	wg         sync.WaitGroup

	// connRateLimit/connBurst configure the per-connection token bucket.
	// Zero means unlimited.
	connRateLimit rate.Limit
	connBurst     int
}

// TransportOption configures a Transport at construction time.
type TransportOption func(*Transport)

// WithConnRateLimit caps requests per second per connection, with burst
// as the bucket size. rps <= 0 disables limiting.
func WithConnRateLimit(rps float64, burst int) TransportOption {
	return func(t *Transport) {
		t.connRateLimit = rate.Limit(rps)
		t.connBurst = burst
	}
}

// WithTransportLogger overrides the default stderr logger.
func WithTransportLogger(l *log.Logger) TransportOption {
	return func(t *Transport) { t.logger = l }
}

// NewTransport binds a Unix domain socket at socketPath, removing any
// stale socket file left behind by a previous unclean shutdown.
func NewTransport(socketPath string, server *Server, opts ...TransportOption) (*Transport, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		server:     server,
		logger:     log.New(os.Stderr, "", log.LstdFlags),
		socketPath: socketPath,
		listener:   ln,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Serve accepts connections until ctx is canceled, then stops accepting
// and waits (bounded by drainTimeout) for in-flight connections to close.
func (t *Transport) Serve(ctx context.Context, drainTimeout time.Duration) error {
	go func() {
		<-ctx.Done()
		t.listener.Close()
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return t.drain(drainTimeout)
			default:
				if errors.Is(err, net.ErrClosed) {
					return t.drain(drainTimeout)
				}
				t.logger.Printf("ipc: accept error: %v", err)
				continue
			}
		}

		t.wg.Add(1)
		go t.handleConn(ctx, conn)
	}
}

func (t *Transport) drain(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.logger.Printf("ipc: shutdown timed out after %s with connections still open", timeout)
	}
	os.Remove(t.socketPath)
	return nil
}

func (t *Transport) handleConn(ctx context.Context, conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	var limiter *rate.Limiter
	if t.connRateLimit > 0 {
		limiter = rate.NewLimiter(t.connRateLimit, t.connBurst)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		line := append([]byte(nil), scanner.Bytes()...)
		resp := t.server.HandleRequest(ctx, line)
		if resp == nil {
			continue
		}
		resp = append(resp, '\n')
		if _, err := conn.Write(resp); err != nil {
			t.logger.Printf("ipc: write error: %v", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Printf("ipc: connection read error: %v", err)
	}
}

// Close stops accepting new connections immediately, without draining.
func (t *Transport) Close() error {
	return t.listener.Close()
}
