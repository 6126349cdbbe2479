package node

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nodeadapter/internal/metrics"
)

const (
	hash95 = "000000000000000000034f7a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e"
	hash96 = "00000000000000000001aa7a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e"
)

func chainNode(t *testing.T, chainInfoResult interface{}) *mockNode {
	return newMockNode(t, func(_ *http.Request, call rpcCall) reply {
		switch call.Method {
		case "getblockchaininfo":
			return result(chainInfoResult)
		case "getinfo":
			return result(map[string]interface{}{"blocks": 100})
		case "getblockhash":
			var height uint64
			require.NoError(t, json.Unmarshal(call.Params[0], &height))
			switch height {
			case 95:
				return result(hash95)
			case 96:
				return result(hash96)
			}
			return result("ffff")
		}
		t.Fatalf("unexpected method %s", call.Method)
		return reply{}
	})
}

func TestGetBlockConfirmations(t *testing.T) {
	node := chainNode(t, map[string]interface{}{"chain": "main", "blocks": 100})
	c := newTestClient(t, node.address(), Options{})

	queries := []ConfirmationQuery{
		{Height: 95, Hash: hash95},
		{Height: 96, Hash: "00000000000000000000000000000000000000000000000000000000deadbeef"},
	}
	require.NoError(t, c.GetBlockConfirmations(context.Background(), queries))
	require.Equal(t, int64(5), queries[0].Confirmations)
	require.Equal(t, ConfirmationsOrphan, queries[1].Confirmations)
	require.Equal(t, []string{"getblockchaininfo", "getblockhash", "getblockhash"}, node.methods())
}

func TestGetBlockConfirmationsFallsBackToGetInfo(t *testing.T) {
	node := chainNode(t, nil)
	c := newTestClient(t, node.address(), Options{})

	queries := []ConfirmationQuery{{Height: 96, Hash: hash96}}
	require.NoError(t, c.GetBlockConfirmations(context.Background(), queries))
	require.Equal(t, int64(4), queries[0].Confirmations)
	require.False(t, c.Capabilities().ChainInfoSupported)

	require.NoError(t, c.GetBlockConfirmations(context.Background(), queries))
	require.Len(t, node.callsOf("getblockchaininfo"), 1)
	require.Len(t, node.callsOf("getinfo"), 2)
}

func TestGetBlockConfirmationsFailureLeavesSentinel(t *testing.T) {
	node := newMockNode(t, func(_ *http.Request, call rpcCall) reply {
		if call.Method == "getblockchaininfo" {
			return result(map[string]interface{}{"blocks": "not a number"})
		}
		return result(hash95)
	})
	c := newTestClient(t, node.address(), Options{})

	queries := []ConfirmationQuery{{Height: 95, Hash: hash95, Confirmations: 7}}
	require.Error(t, c.GetBlockConfirmations(context.Background(), queries))
	require.Equal(t, ConfirmationsUnknown, queries[0].Confirmations)

	dead := newTestClient(t, closedAddress(t), Options{})
	queries[0].Confirmations = 3
	require.Error(t, dead.GetBlockConfirmations(context.Background(), queries))
	require.Equal(t, ConfirmationsUnknown, queries[0].Confirmations)
}

func TestGetBlockConfirmationsBadHashReplyIsFailure(t *testing.T) {
	node := newMockNode(t, func(_ *http.Request, call rpcCall) reply {
		if call.Method == "getblockchaininfo" {
			return result(map[string]interface{}{"blocks": 100})
		}
		return rpcFailure(http.StatusOK, -8, "Block height out of range")
	})
	c := newTestClient(t, node.address(), Options{})

	queries := []ConfirmationQuery{{Height: 95, Hash: hash95}, {Height: 500, Hash: hash96}}
	require.ErrorIs(t, c.GetBlockConfirmations(context.Background(), queries), ErrInvalidResponse)
	require.Equal(t, ConfirmationsUnknown, queries[0].Confirmations)
	require.Equal(t, ConfirmationsUnknown, queries[1].Confirmations)
}

type methodRecorder struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	methods []string
}

func (r *methodRecorder) RPCCall(method string, _ bool, _ time.Duration) {
	r.mu.Lock()
	r.methods = append(r.methods, method)
	r.mu.Unlock()
}

func TestGetBlockConfirmationsRecordsBatchLabel(t *testing.T) {
	node := chainNode(t, map[string]interface{}{"blocks": 100})
	rec := &methodRecorder{}
	c := newTestClient(t, node.address(), Options{Metrics: rec})

	queries := []ConfirmationQuery{{Height: 95, Hash: hash95}}
	require.NoError(t, c.GetBlockConfirmations(context.Background(), queries))
	require.Equal(t, []string{"confirmations_batch"}, rec.methods)
}
