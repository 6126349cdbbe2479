// Package node is the adapter between the pool backend and a bitcoin-family
// daemon speaking JSON-RPC over HTTP. It fetches work, submits blocks,
// queries wallet and chain state and moves funds.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"nodeadapter/internal/metrics"
)

const (
	queryConnectTimeout  = 5 * time.Second
	balanceTimeout       = 10 * time.Second
	confirmationsTimeout = 5 * time.Second
	sendTimeout          = 180 * time.Second
	maxResponseSize      = 64 << 20
)

var (
	// ErrInvalidResponse marks a node reply whose shape does not match the protocol.
	ErrInvalidResponse = errors.New("invalid response format")
	// errUnsupported signals a missing endpoint (HTTP 404 or null result); it
	// triggers a capability downgrade and never reaches callers.
	errUnsupported = errors.New("endpoint not supported")
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CoinInfo carries the per-coin parameters the client needs.
type CoinInfo struct {
	Name             string
	RationalPartSize int64
	DefaultRPCPort   uint16
	SegwitEnabled    bool
}

// Options tunes a Client. Zero values pick production defaults.
type Options struct {
	LongPoll   bool
	Logger     *zap.Logger
	Metrics    metrics.Recorder
	Clock      clock.Clock
	Lookup     LookupFunc
	Dispatcher Dispatcher
}

// Client talks to one node for one coin.
type Client struct {
	coin     CoinInfo
	endpoint Endpoint
	conns    connFactory
	queries  *queryBuilder
	caps     *capabilities
	longPoll bool

	log     *zap.Logger
	metrics metrics.Recorder
	clock   clock.Clock

	mu          sync.Mutex
	dispatcher  Dispatcher
	stopSession context.CancelFunc
	sessionDone chan struct{}
}

// NewClient resolves the node address and prepares the fixed queries. A
// returned error is a *ConfigError: the adapter cannot run with this setup.
func NewClient(ctx context.Context, coin CoinInfo, address, login, password string, opts Options) (*Client, error) {
	if _, ok := scaleDigits(coin.RationalPartSize); !ok {
		return nil, &ConfigError{Address: address, Reason: fmt.Sprintf("rational part size %d is not a power of ten", coin.RationalPartSize)}
	}
	ep, err := ResolveEndpoint(ctx, address, coin.DefaultRPCPort, login, password, opts.Lookup)
	if err != nil {
		return nil, err
	}

	c := &Client{
		coin:       coin,
		endpoint:   ep,
		conns:      connFactory{endpoint: ep},
		queries:    newQueryBuilder(ep),
		caps:       newCapabilities(),
		longPoll:   opts.LongPoll,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		dispatcher: opts.Dispatcher,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.With(zap.String("coin", coin.Name), zap.String("host", ep.HostName), zap.Uint16("port", ep.Port))
	if c.metrics == nil {
		c.metrics = metrics.Default
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.dispatcher == nil {
		c.dispatcher = nopDispatcher{}
	}
	return c, nil
}

// Endpoint returns the resolved node endpoint.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// Coin returns the coin parameters the client was built with.
func (c *Client) Coin() CoinInfo { return c.coin }

// Capabilities returns the current capability flags.
func (c *Client) Capabilities() CapabilityFlags {
	return CapabilityFlags{
		WalletInfoSupported: c.caps.walletInfoSupported(),
		ChainInfoSupported:  c.caps.chainInfoSupported(),
	}
}

// SetDispatcher registers the receiver of work-fetch notifications. It takes
// effect for sessions started by later Poll calls.
func (c *Client) SetDispatcher(d Dispatcher) {
	if d == nil {
		d = nopDispatcher{}
	}
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
}

// exchange performs one HTTP round trip on cn. Only transport failures are
// returned as errors; the status code is left to the caller.
func (c *Client) exchange(ctx context.Context, cn *conn, method string, body []byte, timeout time.Duration) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := c.clock.Now()
	status, data, err := c.roundTrip(ctx, cn, body)
	c.metrics.RPCCall(method, err == nil && status == http.StatusOK, c.clock.Now().Sub(start))
	return status, data, err
}

func (c *Client) roundTrip(ctx context.Context, cn *conn, body []byte) (int, []byte, error) {
	req, err := c.queries.request(ctx, body)
	if err != nil {
		return 0, nil, err
	}
	resp, err := cn.do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// call performs a single request and returns its "result" member.
func (c *Client) call(ctx context.Context, cn *conn, method string, body []byte, timeout time.Duration) (json.RawMessage, error) {
	status, data, err := c.exchange(ctx, cn, method, body, timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	result, err := decodeReply(status, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return result, nil
}

// decodeReply validates a single reply envelope. A null result is returned as
// is; a 404 maps to errUnsupported.
func decodeReply(status int, data []byte) (json.RawMessage, error) {
	if status == http.StatusNotFound {
		return nil, errUnsupported
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil || envelope == nil {
		if status != http.StatusOK {
			return nil, fmt.Errorf("rpc status %d: %s", status, data)
		}
		return nil, fmt.Errorf("%w: not a json object", ErrInvalidResponse)
	}
	if raw, ok := envelope["error"]; ok && !isNull(raw) {
		rpcErr := &RPCError{}
		if err := json.Unmarshal(raw, rpcErr); err != nil {
			return nil, fmt.Errorf("rpc error: %s", raw)
		}
		return nil, rpcErr
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("rpc status %d: %s", status, data)
	}
	result, ok := envelope["result"]
	if !ok {
		return nil, fmt.Errorf("%w: no result", ErrInvalidResponse)
	}
	return result, nil
}
