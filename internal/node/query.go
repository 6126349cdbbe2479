package node

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/btcsuite/btcd/btcjson"
)

var gbtCapabilities = []string{"coinbasetxn", "workid", "coinbase/append"}

type rpcReq struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// queryBuilder renders node requests. Bodies for the hot fixed calls are
// rendered once; the rest are composed per call.
type queryBuilder struct {
	url       string
	host      string
	basicAuth string

	balance              []byte
	balanceWithImmatured []byte
	walletInfo           []byte
}

func newQueryBuilder(ep Endpoint) *queryBuilder {
	return &queryBuilder{
		url:                  "http://" + ep.HostName + ":" + strconv.Itoa(int(ep.Port)) + "/",
		host:                 ep.HostName,
		basicAuth:            "Basic " + ep.BasicAuth,
		balance:              mustRender(rpcReq{Method: "getbalance", Params: []interface{}{}}),
		balanceWithImmatured: mustRender(rpcReq{Method: "getbalance", Params: []interface{}{"*", 1}}),
		walletInfo:           mustRender(rpcReq{Method: "getwalletinfo", Params: []interface{}{}}),
	}
}

func mustRender(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// request wraps a rendered body into the HTTP POST the node expects.
func (q *queryBuilder) request(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Host = q.host
	req.Header.Set("Authorization", q.basicAuth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	return req, nil
}

func (q *queryBuilder) getBlockTemplate(longPollID string, segwit bool) []byte {
	tr := &btcjson.TemplateRequest{
		Capabilities: gbtCapabilities,
		LongPollID:   longPollID,
	}
	if segwit {
		tr.Rules = []string{"segwit"}
	}
	return mustRender(rpcReq{JSONRPC: "1.0", Method: "getblocktemplate", Params: []interface{}{tr}})
}

// blockConfirmations renders the batched chain-info + getblockhash array.
func (q *queryBuilder) blockConfirmations(chainInfo bool, heights []uint64) []byte {
	batch := make([]rpcReq, 0, len(heights)+1)
	if chainInfo {
		batch = append(batch, rpcReq{Method: "getblockchaininfo", Params: []interface{}{}})
	} else {
		batch = append(batch, rpcReq{Method: "getinfo", Params: []interface{}{}})
	}
	for _, h := range heights {
		batch = append(batch, rpcReq{Method: "getblockhash", Params: []interface{}{h}})
	}
	return mustRender(batch)
}

func (q *queryBuilder) sendToAddress(address string, amount string) []byte {
	return mustRender(rpcReq{Method: "sendtoaddress", Params: []interface{}{address, json.Number(amount)}})
}

func (q *queryBuilder) getTransaction(txID string) []byte {
	return mustRender(rpcReq{Method: "gettransaction", Params: []interface{}{txID}})
}

// submitBlock concatenates the static preamble, the hex payload and the static
// suffix. It returns the body and the payload's byte offset within it.
func (q *queryBuilder) submitBlock(payload []byte) ([]byte, int) {
	const (
		preamble = `{"method": "submitblock", "params": ["`
		suffix   = `"]}`
	)
	body := make([]byte, 0, len(preamble)+len(payload)+len(suffix))
	body = append(body, preamble...)
	offset := len(body)
	body = append(body, payload...)
	body = append(body, suffix...)
	return body, offset
}
