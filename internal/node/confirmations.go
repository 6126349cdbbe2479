package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	// ConfirmationsUnknown is pre-seeded into every query and left there when
	// the call fails outright.
	ConfirmationsUnknown int64 = -2
	// ConfirmationsOrphan marks a block whose hash no longer sits at its height.
	ConfirmationsOrphan int64 = -1
)

// ConfirmationQuery asks for the confirmations of a block the pool found.
type ConfirmationQuery struct {
	Height        uint64
	Hash          string
	Confirmations int64
}

// GetBlockConfirmations resolves confirmations for every query with one
// batched request. Entries are only updated when the whole batch validates.
func (c *Client) GetBlockConfirmations(ctx context.Context, queries []ConfirmationQuery) error {
	for i := range queries {
		queries[i].Confirmations = ConfirmationsUnknown
	}
	return c.blockConfirmations(ctx, queries, true)
}

func (c *Client) blockConfirmations(ctx context.Context, queries []ConfirmationQuery, allowRetry bool) error {
	cn := c.conns.open(queryConnectTimeout)
	defer cn.close()
	if err := cn.connect(ctx); err != nil {
		return err
	}

	chainInfo := c.caps.chainInfoSupported()
	heights := make([]uint64, len(queries))
	for i, q := range queries {
		heights[i] = q.Height
	}
	status, data, err := c.exchange(ctx, cn, "confirmations_batch", c.queries.blockConfirmations(chainInfo, heights), confirmationsTimeout)
	if err != nil {
		return fmt.Errorf("block confirmations: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("block confirmations: rpc status %d: %s", status, data)
	}

	var replies []json.RawMessage
	if err := json.Unmarshal(data, &replies); err != nil || len(replies) != len(queries)+1 {
		c.log.Warn("response invalid format")
		return fmt.Errorf("block confirmations: %w", ErrInvalidResponse)
	}

	head := newFieldSet(replies[0])
	result, ok := head.fields["result"]
	if !head.Valid() || !ok {
		c.log.Warn("response invalid format")
		return fmt.Errorf("block confirmations: %w", ErrInvalidResponse)
	}
	if isNull(result) {
		if !chainInfo || !allowRetry {
			c.log.Warn("getinfo returned null result")
			return fmt.Errorf("block confirmations: %w", ErrInvalidResponse)
		}
		if c.caps.downgradeChainInfo() {
			c.log.Warn("node doesn't support getblockchaininfo api; falling back to getinfo")
			c.metrics.CapabilityDowngraded(capabilityChainInfo)
		}
		cn.close()
		return c.blockConfirmations(ctx, queries, false)
	}
	info := newFieldSet(result)
	bestHeight := info.Uint64("blocks", true)
	if !info.Valid() {
		c.log.Warn("response invalid format")
		return fmt.Errorf("block confirmations: %w", ErrInvalidResponse)
	}

	resolved := make([]int64, len(queries))
	for i, raw := range replies[1:] {
		reply := newFieldSet(raw)
		hash := reply.String("result", true)
		if !reply.Valid() {
			c.log.Warn("response invalid format")
			return fmt.Errorf("block confirmations: %w", ErrInvalidResponse)
		}
		if hash == queries[i].Hash {
			resolved[i] = int64(bestHeight) - int64(queries[i].Height)
		} else {
			resolved[i] = ConfirmationsOrphan
		}
	}
	for i := range queries {
		queries[i].Confirmations = resolved[i]
	}
	return nil
}
