package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nodeadapter/internal/node"
	"nodeadapter/internal/watch"
)

type stubAdapter struct{}

func (stubAdapter) Coin() node.CoinInfo { return node.CoinInfo{Name: "LTC"} }
func (stubAdapter) Endpoint() node.Endpoint {
	return node.Endpoint{Address: "10.0.0.5:9332", HostName: "ltc.node", Port: 9332}
}
func (stubAdapter) Capabilities() node.CapabilityFlags {
	return node.CapabilityFlags{WalletInfoSupported: false, ChainInfoSupported: true}
}

type stubNode struct{}

func (stubNode) GetBalance(context.Context) (node.Balance, error) {
	return node.Balance{Balance: 42, Immatured: 7}, nil
}

func (stubNode) GetBlockConfirmations(_ context.Context, queries []node.ConfirmationQuery) error {
	for i := range queries {
		queries[i].Confirmations = 3
	}
	return nil
}

func TestHandlerReportsAdapterState(t *testing.T) {
	watcher := watch.New(stubNode{}, watch.Options{Maturity: 100})
	require.NoError(t, watcher.RefreshBalance(context.Background()))
	watcher.Track(2700000, "aa")
	require.NoError(t, watcher.CheckConfirmations(context.Background()))

	work := watch.NewWorkMonitor(nil, time.Second, nil, nil, nil)
	work.OnWorkFetcherNewWork(&node.BlockTemplate{Height: 2700003, PreviousBlockHash: "beef"})

	rec := httptest.NewRecorder()
	New(stubAdapter{}, work, watcher).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got struct {
		Coin         string `json:"coin"`
		Node         string `json:"node"`
		Capabilities struct {
			WalletInfo bool `json:"wallet_info_supported"`
			ChainInfo  bool `json:"chain_info_supported"`
		} `json:"capabilities"`
		Work struct {
			Height int64 `json:"height"`
		} `json:"work"`
		Balance struct {
			Balance   int64 `json:"balance"`
			Immatured int64 `json:"immatured"`
		} `json:"balance"`
		Blocks []struct {
			Hash          string `json:"hash"`
			Confirmations int64  `json:"confirmations"`
			Status        string `json:"status"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "LTC", got.Coin)
	require.Equal(t, "10.0.0.5:9332", got.Node)
	require.False(t, got.Capabilities.WalletInfo)
	require.True(t, got.Capabilities.ChainInfo)
	require.Equal(t, int64(2700003), got.Work.Height)
	require.Equal(t, int64(42), got.Balance.Balance)
	require.Equal(t, int64(7), got.Balance.Immatured)
	require.Len(t, got.Blocks, 1)
	require.Equal(t, int64(3), got.Blocks[0].Confirmations)
	require.Equal(t, watch.StatusPending, got.Blocks[0].Status)
}

func TestHandlerWithoutWatchers(t *testing.T) {
	rec := httptest.NewRecorder()
	New(stubAdapter{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `null`, string(mustField(t, rec.Body.Bytes(), "work")))
	require.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "blocks")))

	rec = httptest.NewRecorder()
	New(stubAdapter{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func mustField(t *testing.T, body []byte, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	raw, ok := m[name]
	require.True(t, ok, "missing field %s", name)
	return raw
}
