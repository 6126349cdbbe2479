package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Balance is the wallet state in fixed-point coin units.
type Balance struct {
	Balance   int64 `json:"balance"`
	Immatured int64 `json:"immatured"`
}

// GetBalance reads spendable and immature wallet balance. It prefers
// getwalletinfo and falls back for good to two getbalance calls once the node
// turns out not to support it.
func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	cn := c.conns.open(queryConnectTimeout)
	defer func() { cn.close() }()
	if err := cn.connect(ctx); err != nil {
		return Balance{}, err
	}

	if c.caps.walletInfoSupported() {
		result, err := c.call(ctx, cn, "getwalletinfo", c.queries.walletInfo, balanceTimeout)
		if err == nil && isNull(result) {
			err = errUnsupported
		}
		switch {
		case err == nil:
			f := newFieldSet(result)
			var b Balance
			b.Balance = f.Money("balance", c.coin.RationalPartSize)
			b.Immatured = f.Money("immature_balance", c.coin.RationalPartSize)
			if !f.Valid() {
				c.log.Warn("getwalletinfo invalid format")
				return Balance{}, fmt.Errorf("getwalletinfo: %w", ErrInvalidResponse)
			}
			return b, nil
		case errors.Is(err, errUnsupported):
			if c.caps.downgradeWalletInfo() {
				c.log.Warn("node doesn't support getwalletinfo api; recommended update your node")
				c.metrics.CapabilityDowngraded(capabilityWalletInfo)
			}
			cn.close()
			cn = c.conns.open(queryConnectTimeout)
			if err := cn.connect(ctx); err != nil {
				return Balance{}, err
			}
		default:
			return Balance{}, err
		}
	}

	plain, err := c.call(ctx, cn, "getbalance", c.queries.balance, balanceTimeout)
	if err != nil {
		return Balance{}, err
	}
	full, err := c.call(ctx, cn, "getbalance", c.queries.balanceWithImmatured, balanceTimeout)
	if err != nil {
		return Balance{}, err
	}
	balance, okPlain := parseMoneyRaw(plain, c.coin.RationalPartSize)
	fullBalance, okFull := parseMoneyRaw(full, c.coin.RationalPartSize)
	if !okPlain || !okFull {
		c.log.Warn("getbalance invalid format", zap.ByteString("balance", plain), zap.ByteString("full", full))
		return Balance{}, fmt.Errorf("getbalance: %w", ErrInvalidResponse)
	}
	return Balance{Balance: balance, Immatured: fullBalance - balance}, nil
}
