package node

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func testQueries() *queryBuilder {
	return newQueryBuilder(Endpoint{Address: "127.0.0.1:8332", HostName: "127.0.0.1", Port: 8332, BasicAuth: "dXNlcjpwYXNz"})
}

func TestGetBlockTemplateRequest(t *testing.T) {
	q := testQueries()

	var req struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  []struct {
			Capabilities []string `json:"capabilities"`
			LongPollID   *string  `json:"longpollid"`
			Rules        []string `json:"rules"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(q.getBlockTemplate(longPollPlaceholder, true), &req))
	require.Equal(t, "1.0", req.JSONRPC)
	require.Equal(t, "getblocktemplate", req.Method)
	require.Len(t, req.Params, 1)
	require.Equal(t, []string{"coinbasetxn", "workid", "coinbase/append"}, req.Params[0].Capabilities)
	require.NotNil(t, req.Params[0].LongPollID)
	require.Equal(t, longPollPlaceholder, *req.Params[0].LongPollID)
	require.Equal(t, []string{"segwit"}, req.Params[0].Rules)

	req.Params = nil
	require.NoError(t, json.Unmarshal(q.getBlockTemplate("", false), &req))
	require.Nil(t, req.Params[0].LongPollID)
	require.Empty(t, req.Params[0].Rules)
}

func TestSubmitBlockPayloadOffset(t *testing.T) {
	q := testQueries()
	payload := []byte("0000002001020304")
	body, offset := q.submitBlock(payload)
	require.Equal(t, string(payload), string(body[offset:offset+len(payload)]))

	var req rpcCall
	require.NoError(t, json.Unmarshal(body, &req))
	require.Equal(t, "submitblock", req.Method)
	require.Len(t, req.Params, 1)
	require.JSONEq(t, `"0000002001020304"`, string(req.Params[0]))
}

func TestBlockConfirmationsBatch(t *testing.T) {
	q := testQueries()
	var batch []rpcCall
	require.NoError(t, json.Unmarshal(q.blockConfirmations(false, []uint64{95, 96}), &batch))
	require.Len(t, batch, 3)
	require.Equal(t, "getinfo", batch[0].Method)
	require.Equal(t, "getblockhash", batch[1].Method)
	require.JSONEq(t, "95", string(batch[1].Params[0]))
	require.JSONEq(t, "96", string(batch[2].Params[0]))
}

func TestSendToAddressAmountIsNumber(t *testing.T) {
	q := testQueries()
	var req rpcCall
	require.NoError(t, json.Unmarshal(q.sendToAddress(`addr"quoted`, "1.50000000"), &req))
	require.JSONEq(t, `"addr\"quoted"`, string(req.Params[0]))
	require.Equal(t, "1.50000000", string(req.Params[1]))
}
