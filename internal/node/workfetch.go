package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"
)

const (
	workFetchConnectTimeout = 3 * time.Second
	workFetchRequestTimeout = 10 * time.Second
	workFetchInterval       = time.Second
)

var longPollPlaceholder = strings.Repeat("0", 64)

// Dispatcher receives work-fetch notifications. All calls for one session
// come from a single goroutine, one at a time. After a connection error or
// loss the session is gone; the dispatcher restarts it with Client.Poll.
type Dispatcher interface {
	OnWorkFetcherConnectionError()
	OnWorkFetcherConnectionLost()
	OnWorkFetcherNewWork(tmpl *BlockTemplate)
}

type nopDispatcher struct{}

func (nopDispatcher) OnWorkFetcherConnectionError()       {}
func (nopDispatcher) OnWorkFetcherConnectionLost()        {}
func (nopDispatcher) OnWorkFetcherNewWork(*BlockTemplate) {}

// workFetchState lives for one Poll session only.
type workFetchState struct {
	longPollID   string // empty: long polling off
	workID       uint64
	haveWork     bool
	lastTemplate time.Time
	conn         *conn
	timer        *clock.Timer
}

func (st *workFetchState) release() {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.conn.close()
}

// Poll starts a fresh work-fetch session, replacing any running one. It does
// not block; results arrive through the registered Dispatcher.
func (c *Client) Poll() {
	c.mu.Lock()
	if c.stopSession != nil {
		c.stopSession()
	}
	prev := c.sessionDone
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stopSession = cancel
	c.sessionDone = done
	dispatcher := c.dispatcher
	c.mu.Unlock()

	st := c.newWorkFetchState()
	go func() {
		defer close(done)
		defer st.release()
		// The replaced session may still be inside a callback.
		if prev != nil {
			<-prev
		}
		c.runWorkFetcher(ctx, st, dispatcher)
	}()
}

// Close stops the work-fetch session and waits for it to exit. It must not be
// called from a Dispatcher callback.
func (c *Client) Close() {
	c.mu.Lock()
	stop, done := c.stopSession, c.sessionDone
	c.stopSession, c.sessionDone = nil, nil
	c.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
}

func (c *Client) newWorkFetchState() *workFetchState {
	st := &workFetchState{conn: c.conns.openSession(workFetchConnectTimeout)}
	if c.longPoll {
		st.longPollID = longPollPlaceholder
	}
	return st
}

func (c *Client) runWorkFetcher(ctx context.Context, st *workFetchState, d Dispatcher) {
	if err := st.conn.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("work fetcher connect failed", zap.Error(err))
		c.metrics.WorkFetcherStopped("connection_error")
		d.OnWorkFetcherConnectionError()
		return
	}

	for {
		tmpl, dispatch, err := c.fetchTemplate(ctx, st)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Warn("work fetcher request failed", zap.Error(err))
			c.metrics.WorkFetcherStopped("connection_lost")
			d.OnWorkFetcherConnectionLost()
			return
		}
		if dispatch && ctx.Err() == nil {
			c.log.Info("new work available", zap.String("prev_block", tmpl.PreviousBlockHash), zap.Int64("height", tmpl.Height))
			c.metrics.WorkDispatched(tmpl.Height)
			d.OnWorkFetcherNewWork(tmpl)
		}

		if st.longPollID != "" {
			continue
		}
		st.timer = c.clock.Timer(workFetchInterval)
		select {
		case <-ctx.Done():
			return
		case <-st.timer.C:
		}
	}
}

func (c *Client) fetchTemplate(ctx context.Context, st *workFetchState) (*BlockTemplate, bool, error) {
	timeout := workFetchRequestTimeout
	if st.longPollID != "" {
		timeout = 0
	}
	body := c.queries.getBlockTemplate(st.longPollID, c.coin.SegwitEnabled)
	status, data, err := c.exchange(ctx, st.conn, "getblocktemplate", body, timeout)
	if err != nil {
		return nil, false, err
	}
	if status != http.StatusOK {
		return nil, false, fmt.Errorf("http status %d: %s", status, data)
	}
	return c.handleTemplate(st, data, c.clock.Now())
}

// handleTemplate parses one getblocktemplate reply, updates the session state
// and decides whether the template is new work.
func (c *Client) handleTemplate(st *workFetchState, body []byte, now time.Time) (*BlockTemplate, bool, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, fmt.Errorf("json parse error: %w", err)
	}
	result := newFieldSet(envelope["result"])
	if !result.Valid() {
		return nil, false, fmt.Errorf("%w: no result object", ErrInvalidResponse)
	}

	prevHash := result.String("previousblockhash", true)
	height := result.Int64("height", true)
	if !result.Valid() || len(prevHash) < 16 {
		return nil, false, fmt.Errorf("%w: getblocktemplate", ErrInvalidResponse)
	}
	hash, err := chainhash.NewHashFromStr(prevHash)
	if err != nil {
		return nil, false, fmt.Errorf("%w: previousblockhash: %v", ErrInvalidResponse, err)
	}
	workID, err := WorkID(prevHash)
	if err != nil {
		return nil, false, fmt.Errorf("%w: previousblockhash: %v", ErrInvalidResponse, err)
	}

	if st.longPollID != "" {
		id, ok := result.lookupString("longpollid")
		if !ok || id == "" {
			c.log.Warn("node does not support long poll, strongly recommended update your node")
			st.longPollID = ""
		} else {
			st.longPollID = id
		}
	}

	tmpl := &BlockTemplate{
		Raw:               envelope["result"],
		PreviousBlockHash: prevHash,
		PrevHash:          *hash,
		Height:            height,
		WorkID:            workID,
		LongPollID:        st.longPollID,
		ReceivedAt:        now,
	}

	// With long polling the node holds the request until something changes,
	// so any reply after a nonzero whole-second gap counts as new work. A plain
	// long-poll timeout therefore also dispatches; this is kept on purpose.
	var dispatch bool
	if st.longPollID != "" {
		dispatch = !st.haveWork || now.Sub(st.lastTemplate) >= time.Second
	} else {
		dispatch = !st.haveWork || st.workID != workID
	}
	st.lastTemplate = now
	st.workID = workID
	st.haveWork = true
	return tmpl, dispatch, nil
}
