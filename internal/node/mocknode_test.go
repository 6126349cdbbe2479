package node

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testCoin = CoinInfo{Name: "BTC", RationalPartSize: 100000000, DefaultRPCPort: 8332, SegwitEnabled: true}

type rpcCall struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type reply struct {
	status int
	body   interface{}
}

func result(v interface{}) reply {
	return reply{status: http.StatusOK, body: map[string]interface{}{"result": v, "error": nil, "id": nil}}
}

func rpcFailure(status, code int, msg string) reply {
	return reply{status: status, body: map[string]interface{}{"result": nil, "error": map[string]interface{}{"code": code, "message": msg}, "id": nil}}
}

// mockNode is an httptest node answering single and batched JSON-RPC calls.
type mockNode struct {
	t   *testing.T
	srv *httptest.Server

	mu     sync.Mutex
	calls  []rpcCall
	handle func(r *http.Request, call rpcCall) reply
}

func newMockNode(t *testing.T, handle func(r *http.Request, call rpcCall) reply) *mockNode {
	m := &mockNode{t: t, handle: handle}
	m.srv = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockNode) serve(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Basic dXNlcjpwYXNz" {
		m.t.Errorf("unexpected authorization header %q", got)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body = bytes.TrimSpace(body)
	w.Header().Set("Content-Type", "application/json")

	if len(body) > 0 && body[0] == '[' {
		var batch []rpcCall
		if err := json.Unmarshal(body, &batch); err != nil {
			m.t.Errorf("decode batch: %v", err)
			http.Error(w, "bad batch", http.StatusBadRequest)
			return
		}
		replies := make([]interface{}, 0, len(batch))
		for _, call := range batch {
			m.record(call)
			replies = append(replies, m.handle(r, call).body)
		}
		_ = json.NewEncoder(w).Encode(replies)
		return
	}

	var call rpcCall
	if err := json.Unmarshal(body, &call); err != nil {
		m.t.Errorf("decode request: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.record(call)
	rep := m.handle(r, call)
	w.WriteHeader(rep.status)
	if raw, ok := rep.body.([]byte); ok {
		_, _ = w.Write(raw)
		return
	}
	_ = json.NewEncoder(w).Encode(rep.body)
}

func (m *mockNode) record(call rpcCall) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockNode) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Method
	}
	return out
}

func (m *mockNode) callsOf(method string) []rpcCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rpcCall
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockNode) address() string {
	return strings.TrimPrefix(m.srv.URL, "http://")
}

func newTestClient(t *testing.T, address string, opts Options) *Client {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	c, err := NewClient(context.Background(), testCoin, address, "user", "pass", opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// closedAddress returns a local address nothing listens on.
func closedAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
