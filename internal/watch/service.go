package watch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nodeadapter/internal/metrics"
	"nodeadapter/internal/node"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusOrphan    = "orphan"

	balanceTimeout       = 15 * time.Second
	confirmationsTimeout = 10 * time.Second
)

// Node is the part of node.Client the watcher needs.
type Node interface {
	GetBalance(ctx context.Context) (node.Balance, error)
	GetBlockConfirmations(ctx context.Context, queries []node.ConfirmationQuery) error
}

// Options configures a Service.
type Options struct {
	BalanceCron       string
	ConfirmationsCron string
	Maturity          int64 // confirmations after which a block is final
	Logger            *zap.Logger
	Metrics           metrics.Recorder
	Clock             clock.Clock
}

// Block is a tracked found block.
type Block struct {
	Height        uint64    `json:"height"`
	Hash          string    `json:"hash"`
	Confirmations int64     `json:"confirmations"`
	Status        string    `json:"status"`
	CheckedAt     time.Time `json:"checked_at"`
}

// BalanceSnapshot is the last wallet balance read from the node.
type BalanceSnapshot struct {
	node.Balance
	ObservedAt time.Time `json:"observed_at"`
}

// Snapshot is a copy of the watcher state.
type Snapshot struct {
	Balance *BalanceSnapshot `json:"balance"`
	Blocks  []Block          `json:"blocks"`
}

// Service periodically snapshots the wallet balance and follows tracked
// blocks until they are confirmed or orphaned.
type Service struct {
	node  Node
	opts  Options
	log   *zap.Logger
	rec   metrics.Recorder
	clock clock.Clock

	mu      sync.Mutex
	balance *BalanceSnapshot
	blocks  map[string]*Block
}

// New constructs a watcher over n.
func New(n Node, opts Options) *Service {
	s := &Service{node: n, opts: opts, log: opts.Logger, rec: opts.Metrics, clock: opts.Clock, blocks: make(map[string]*Block)}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.rec == nil {
		s.rec = metrics.Default
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.opts.Maturity <= 0 {
		s.opts.Maturity = 100
	}
	return s
}

// Start registers the cron jobs. It returns a function to stop the scheduler.
func (s *Service) Start() (func(), error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(s.log)))))
	if _, err := c.AddFunc(s.opts.BalanceCron, s.runBalance); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(s.opts.ConfirmationsCron, s.runConfirmations); err != nil {
		return nil, err
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}

func (s *Service) runBalance() {
	ctx, cancel := context.WithTimeout(context.Background(), balanceTimeout)
	defer cancel()
	_ = s.RefreshBalance(ctx)
}

func (s *Service) runConfirmations() {
	ctx, cancel := context.WithTimeout(context.Background(), confirmationsTimeout)
	defer cancel()
	_ = s.CheckConfirmations(ctx)
}

// RefreshBalance reads the wallet balance now.
func (s *Service) RefreshBalance(ctx context.Context) error {
	b, err := s.node.GetBalance(ctx)
	if err != nil {
		s.log.Warn("balance refresh failed", zap.Error(err))
		return err
	}
	s.rec.BalanceObserved(b.Balance, b.Immatured)
	s.mu.Lock()
	s.balance = &BalanceSnapshot{Balance: b, ObservedAt: s.clock.Now()}
	s.mu.Unlock()
	return nil
}

// Track starts following a found block. Tracking an already known hash is a no-op.
func (s *Service) Track(height uint64, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[hash]; ok {
		return
	}
	s.blocks[hash] = &Block{Height: height, Hash: hash, Confirmations: node.ConfirmationsUnknown, Status: StatusPending}
}

// CheckConfirmations resolves confirmations of every pending block in one
// batched query. Final blocks are not asked about again.
func (s *Service) CheckConfirmations(ctx context.Context) error {
	s.mu.Lock()
	var queries []node.ConfirmationQuery
	for _, b := range s.blocks {
		if b.Status == StatusPending {
			queries = append(queries, node.ConfirmationQuery{Height: b.Height, Hash: b.Hash})
		}
	}
	s.mu.Unlock()
	if len(queries) == 0 {
		return nil
	}

	if err := s.node.GetBlockConfirmations(ctx, queries); err != nil {
		s.log.Warn("confirmation check failed", zap.Int("blocks", len(queries)), zap.Error(err))
		return err
	}

	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range queries {
		b, ok := s.blocks[q.Hash]
		if !ok {
			continue
		}
		b.Confirmations = q.Confirmations
		b.CheckedAt = now
		switch {
		case q.Confirmations == node.ConfirmationsOrphan:
			b.Status = StatusOrphan
			s.log.Warn("block orphaned", zap.Uint64("height", b.Height), zap.String("hash", b.Hash))
		case q.Confirmations >= s.opts.Maturity:
			b.Status = StatusConfirmed
			s.log.Info("block confirmed", zap.Uint64("height", b.Height), zap.String("hash", b.Hash), zap.Int64("confirmations", q.Confirmations))
		}
	}
	return nil
}

// Snapshot returns a copy of the current state, blocks ordered by height.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	if s.balance != nil {
		b := *s.balance
		snap.Balance = &b
	}
	snap.Blocks = make([]Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		snap.Blocks = append(snap.Blocks, *b)
	}
	sort.Slice(snap.Blocks, func(i, j int) bool { return snap.Blocks[i].Height < snap.Blocks[j].Height })
	return snap
}
