package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// SendResult describes a completed payment.
type SendResult struct {
	TxID  string
	Fee   int64
	Error string // node error message when sendtoaddress fails
}

// SendMoney pays amount (fixed-point coin units) to address. The fee lookup
// that follows is best effort: the funds have already moved, so its failure
// only leaves Fee at zero.
func (c *Client) SendMoney(ctx context.Context, address string, amount int64) (SendResult, error) {
	var res SendResult
	cn := c.conns.open(queryConnectTimeout)
	defer cn.close()
	if err := cn.connect(ctx); err != nil {
		res.Error = err.Error()
		return res, err
	}

	body := c.queries.sendToAddress(address, FormatMoney(amount, c.coin.RationalPartSize))
	result, err := c.call(ctx, cn, "sendtoaddress", body, sendTimeout)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			res.Error = rpcErr.Message
		} else {
			res.Error = err.Error()
		}
		return res, err
	}
	if err := json.Unmarshal(result, &res.TxID); err != nil || res.TxID == "" {
		c.log.Warn("sendtoaddress response invalid format")
		return SendResult{}, fmt.Errorf("sendtoaddress: %w", ErrInvalidResponse)
	}

	tx, err := c.call(ctx, cn, "gettransaction", c.queries.getTransaction(res.TxID), sendTimeout)
	if err != nil {
		c.log.Warn("can't get transaction fee, assume fee=0", zap.String("txid", res.TxID), zap.Error(err))
		return res, nil
	}
	f := newFieldSet(tx)
	fee := f.Money("fee", c.coin.RationalPartSize)
	if !f.Valid() {
		c.log.Warn("gettransaction response invalid format", zap.String("txid", res.TxID))
		return res, nil
	}
	if fee < 0 {
		fee = -fee
	}
	res.Fee = fee
	return res, nil
}
