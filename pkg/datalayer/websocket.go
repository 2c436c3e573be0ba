package datalayer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/germanamz/dronebridge/pkg/codec"
)

// DefaultBuffer is the outbound item buffer used when Options.Buffer is zero.
const DefaultBuffer = 64

// Options configures a websocket Client.
type Options struct {
	Buffer       int
	Header       http.Header
	WriteTimeout time.Duration // Per-frame write timeout (default 5s).
	Logger       *slog.Logger
}

// Client pushes items to a companion endpoint over a websocket. Each item is
// one binary CBOR frame. Put and Send never block on the network.
type Client struct {
	conn    *websocket.Conn
	out     chan Item
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var (
	_ Sink      = (*Client)(nil)
	_ Messenger = (*Client)(nil)
)

// Dial connects to the companion endpoint at url.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("datalayer: dial %s: %w", url, err)
	}

	return newClient(conn, opts), nil
}

func newClient(conn *websocket.Conn, opts Options) *Client {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		conn:    conn,
		out:     make(chan Item, opts.Buffer),
		timeout: opts.WriteTimeout,
		log:     opts.Logger,
		done:    make(chan struct{}),
	}

	// The companion never sends frames; CloseRead handles control frames.
	readCtx := conn.CloseRead(context.Background())

	c.wg.Add(1)
	go c.writeLoop(readCtx)

	return c
}

// Put queues a data item for delivery.
func (c *Client) Put(_ context.Context, path string, payload []byte) error {
	return c.enqueue(Item{Op: OpPut, Path: path, Payload: payload})
}

// Send queues a message for delivery.
func (c *Client) Send(_ context.Context, path string, payload []byte) error {
	return c.enqueue(Item{Op: OpMessage, Path: path, Payload: payload})
}

func (c *Client) enqueue(it Item) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}

	select {
	case c.out <- it:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close stops the writer and closes the websocket. Items still buffered are
// dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()

	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) writeLoop(readCtx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case <-readCtx.Done():
			c.log.Warn("companion connection closed", "error", readCtx.Err())
			return
		case it := <-c.out:
			c.write(readCtx, it)
		}
	}
}

func (c *Client) write(ctx context.Context, it Item) {
	data, err := codec.Marshal(it)
	if err != nil {
		c.log.Error("encode data item", "path", it.Path, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		c.log.Warn("deliver data item", "path", it.Path, "error", err)
	}
}
