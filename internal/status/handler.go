package status

import (
	"encoding/json"
	"net/http"
	"time"

	"nodeadapter/internal/node"
	"nodeadapter/internal/watch"
)

// Adapter is the node client state the page reports.
type Adapter interface {
	Coin() node.CoinInfo
	Endpoint() node.Endpoint
	Capabilities() node.CapabilityFlags
}

// Handler serves a lightweight JSON status page for one node adapter.
type Handler struct {
	adapter Adapter
	work    *watch.WorkMonitor
	watcher *watch.Service
	now     func() time.Time
}

// New returns a status handler. work and watcher may be nil.
func New(adapter Adapter, work *watch.WorkMonitor, watcher *watch.Service) http.Handler {
	return &Handler{adapter: adapter, work: work, watcher: watcher, now: time.Now}
}

type response struct {
	GeneratedAt  time.Time              `json:"generated_at"`
	Coin         string                 `json:"coin"`
	Node         string                 `json:"node"`
	Capabilities node.CapabilityFlags   `json:"capabilities"`
	Work         *watch.WorkInfo        `json:"work"`
	Restarts     int                    `json:"work_fetcher_restarts"`
	Balance      *watch.BalanceSnapshot `json:"balance"`
	Blocks       []watch.Block          `json:"blocks"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := response{
		GeneratedAt:  h.now().UTC(),
		Coin:         h.adapter.Coin().Name,
		Node:         h.adapter.Endpoint().Address,
		Capabilities: h.adapter.Capabilities(),
		Blocks:       []watch.Block{},
	}
	if h.work != nil {
		if last, ok := h.work.Last(); ok {
			resp.Work = &last
		}
		resp.Restarts = h.work.Restarts()
	}
	if h.watcher != nil {
		snap := h.watcher.Snapshot()
		resp.Balance = snap.Balance
		resp.Blocks = snap.Blocks
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
