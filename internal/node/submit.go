package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	submitConnectTimeout = 10 * time.Second
	submitRequestTimeout = 180 * time.Second
)

// SubmitBlockOperation receives the outcome of one block submission. Accept
// is called exactly once per submission that reaches a terminal outcome.
type SubmitBlockOperation interface {
	Accept(success bool, hostname, message string)
}

// SubmitBlockFunc adapts a function to SubmitBlockOperation.
type SubmitBlockFunc func(success bool, hostname, message string)

func (f SubmitBlockFunc) Accept(success bool, hostname, message string) { f(success, hostname, message) }

// PreparedSubmission is a one-shot submitblock request. It is released on the
// submission's terminal outcome and cannot be submitted again.
type PreparedSubmission struct {
	payloadOffset int
	payloadSize   int
	consumed      atomic.Bool
	released      atomic.Bool

	mu   sync.Mutex
	body []byte
	op   SubmitBlockOperation
	conn *conn
}

// PayloadOffset is the byte offset of the block hex inside the rendered request.
func (p *PreparedSubmission) PayloadOffset() int { return p.payloadOffset }

// Body returns the rendered request body; nil once the submission is released.
func (p *PreparedSubmission) Body() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body
}

func (p *PreparedSubmission) release() {
	p.mu.Lock()
	cn := p.conn
	p.conn = nil
	p.op = nil
	p.body = nil
	p.mu.Unlock()
	if cn != nil {
		cn.close()
	}
	p.released.Store(true)
}

// Released reports whether the submission reached its terminal outcome.
func (p *PreparedSubmission) Released() bool { return p.released.Load() }

// PrepareBlock renders the submitblock request for hex-encoded block data.
func (c *Client) PrepareBlock(blockHex []byte) *PreparedSubmission {
	body, offset := c.queries.submitBlock(blockHex)
	return &PreparedSubmission{body: body, payloadOffset: offset, payloadSize: len(blockHex)}
}

// SubmitBlock sends a prepared block on its own connection and reports the
// outcome to op asynchronously. There is no retry: a late resubmission of a
// block is usually moot, so the caller decides.
func (c *Client) SubmitBlock(ctx context.Context, q *PreparedSubmission, op SubmitBlockOperation) {
	if !q.consumed.CompareAndSwap(false, true) {
		op.Accept(false, c.endpoint.HostName, "submission already consumed")
		return
	}
	cn := c.conns.open(submitConnectTimeout)
	q.mu.Lock()
	q.op = op
	q.conn = cn
	body := q.body
	q.mu.Unlock()
	go c.runSubmission(ctx, q, op, cn, body)
}

func (c *Client) runSubmission(ctx context.Context, q *PreparedSubmission, op SubmitBlockOperation, cn *conn, body []byte) {
	defer q.release()

	success, message := c.submit(ctx, cn, body)
	c.metrics.BlockSubmitted(success)
	if !success {
		c.log.Warn("submitblock failed", zap.String("reason", message), zap.Int("payload_offset", q.payloadOffset), zap.Int("payload_size", q.payloadSize))
	} else {
		c.log.Info("submitblock accepted")
	}
	op.Accept(success, c.endpoint.HostName, message)
}

func (c *Client) submit(ctx context.Context, cn *conn, body []byte) (bool, string) {
	if err := cn.connect(ctx); err != nil {
		return false, fmt.Sprintf("connect error: %v", err)
	}
	status, data, err := c.exchange(ctx, cn, "submitblock", body, submitRequestTimeout)
	if err != nil {
		return false, fmt.Sprintf("request error: %v", err)
	}
	result, err := decodeReply(status, data)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return false, rpcErr.Message
		}
		return false, err.Error()
	}
	// BIP22: null means accepted, a string is the rejection reason.
	if isNull(result) {
		return true, ""
	}
	var reason string
	if json.Unmarshal(result, &reason) != nil {
		reason = string(result)
	}
	return false, reason
}
