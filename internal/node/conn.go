package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

var errConnectionDropped = errors.New("connection dropped by node")

// connFactory hands out one fresh connection per logical operation. Work
// fetching, each on-demand query and each block submission never share a socket.
type connFactory struct {
	endpoint Endpoint
}

// conn is a single-purpose HTTP connection to the node. connect dials eagerly
// so a failed connect is distinguishable from a failed request; the dialed
// socket is then handed to the private transport on first use.
type conn struct {
	address   string
	dialer    *net.Dialer
	transport *http.Transport
	client    *http.Client

	// persistent connections never redial: once the connected socket is
	// gone the operation has lost its connection.
	persistent bool

	mu      sync.Mutex
	pending net.Conn
	used    bool
}

// openSession returns a conn bound to the single socket connect dials.
func (f connFactory) openSession(connectTimeout time.Duration) *conn {
	c := f.open(connectTimeout)
	c.persistent = true
	return c
}

func (f connFactory) open(connectTimeout time.Duration) *conn {
	c := &conn{
		address: f.endpoint.Address,
		dialer:  &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second},
	}
	c.transport = &http.Transport{
		DialContext:         c.dial,
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
	c.client = &http.Client{Transport: c.transport}
	return c
}

func (c *conn) connect(ctx context.Context) error {
	nc, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.address, err)
	}
	c.mu.Lock()
	if c.pending != nil {
		c.pending.Close()
	}
	c.pending = nc
	c.mu.Unlock()
	return nil
}

func (c *conn) dial(ctx context.Context, _, _ string) (net.Conn, error) {
	c.mu.Lock()
	nc := c.pending
	c.pending = nil
	used := c.used
	c.used = true
	c.mu.Unlock()
	if nc != nil {
		return nc, nil
	}
	if c.persistent && used {
		return nil, errConnectionDropped
	}
	return c.dialer.DialContext(ctx, "tcp", c.address)
}

func (c *conn) do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

func (c *conn) close() {
	c.mu.Lock()
	if c.pending != nil {
		c.pending.Close()
		c.pending = nil
	}
	c.mu.Unlock()
	c.transport.CloseIdleConnections()
}
