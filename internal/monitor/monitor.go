package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"approvewatch/internal/chain"
	"approvewatch/internal/metrics"
	"approvewatch/internal/tokens"
	"approvewatch/internal/trigger"
	"approvewatch/internal/txclass"
	"approvewatch/internal/watchlist"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultErrorBackoff = time.Second
)

var ErrNotStarted = errors.New("monitor not started")

// Source is the chain data the loop reads. *chain.Client satisfies it.
type Source interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, n uint64) (*chain.Block, error)
}

// TokenResolver is satisfied by *tokens.Resolver.
type TokenResolver interface {
	Symbol(ctx context.Context, token common.Address) string
	Decimals(ctx context.Context, token common.Address) (uint8, bool)
}

// Trigger is satisfied by *trigger.Machine.
type Trigger interface {
	Armed(wallet common.Address) bool
	Apply(ctx context.Context, sig trigger.Signal) trigger.Decision
}

type Config struct {
	// Name labels logs and metrics ("shared" or a wallet address).
	Name string
	// Owner restricts a per-wallet loop to transactions that resolve to
	// this wallet against the full watchlist. Zero means every wallet.
	Owner        common.Address
	PollInterval time.Duration
	ErrorBackoff time.Duration

	// ApproveSelector overrides the ERC-20 approve selector when non-zero.
	ApproveSelector txclass.Selector
	// DecodeApprovals logs spender and amount for approvals (extra eth_call
	// for token decimals, cached).
	DecodeApprovals bool
}

type Deps struct {
	Source    Source
	Watchlist *watchlist.Watchlist
	Resolver  TokenResolver
	Trigger   Trigger
	Sinks     []Sink
}

// Health is the liveness view of one loop.
type Health struct {
	Name                string    `json:"name"`
	Started             bool      `json:"started"`
	Cursor              uint64    `json:"cursor"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Healthy is true while the loop is starting, or when it has ticked
// successfully within maxStale and has fewer than failThreshold
// consecutive failures.
func (h Health) Healthy(now time.Time, maxStale time.Duration, failThreshold int) bool {
	if !h.Started {
		return true
	}
	if failThreshold > 0 && h.ConsecutiveFailures >= failThreshold {
		return false
	}
	if maxStale > 0 && !h.LastSuccess.IsZero() && now.Sub(h.LastSuccess) > maxStale {
		return false
	}
	return true
}

// Monitor walks new blocks in order and feeds watched transactions through
// the classifier and the trigger.
type Monitor struct {
	cfg        Config
	deps       Deps
	classifier *txclass.Classifier

	mu     sync.RWMutex
	last   uint64
	health Health
}

func New(cfg Config, deps Deps) (*Monitor, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("monitor: source required")
	}
	if deps.Watchlist == nil || deps.Watchlist.Len() == 0 {
		return nil, fmt.Errorf("monitor: %w", watchlist.ErrEmpty)
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("monitor: token resolver required")
	}
	if deps.Trigger == nil {
		return nil, fmt.Errorf("monitor: trigger required")
	}
	if cfg.Owner != (common.Address{}) && !deps.Watchlist.Contains(cfg.Owner) {
		return nil, fmt.Errorf("monitor: owner %s is not watched", watchlist.Key(cfg.Owner))
	}
	if cfg.Name == "" {
		cfg.Name = "shared"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	sel := cfg.ApproveSelector
	if sel == (txclass.Selector{}) {
		sel = txclass.ApproveSelector
	}

	return &Monitor{
		cfg:        cfg,
		deps:       deps,
		classifier: txclass.NewClassifier(sel),
		health:     Health{Name: cfg.Name},
	}, nil
}

func (m *Monitor) Name() string { return m.cfg.Name }

// Start sets the cursor to the current chain height. Blocks at or below it
// are never processed.
func (m *Monitor) Start(ctx context.Context) error {
	head, err := m.deps.Source.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("initial block number: %w", err)
	}
	m.mu.Lock()
	m.last = head
	m.health.Started = true
	m.health.Cursor = head
	m.health.LastSuccess = time.Now()
	m.mu.Unlock()

	metrics.MonitorCursor.WithLabelValues(m.cfg.Name).Set(float64(head))
	return nil
}

func (m *Monitor) Cursor() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

func (m *Monitor) started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health.Started
}

// Tick processes every block in (cursor, head] and then moves the cursor to
// head. On error the cursor stays put and the same range is retried on the
// next tick; trigger transitions already applied for the partial range are
// kept.
func (m *Monitor) Tick(ctx context.Context) (int, error) {
	if !m.started() {
		return 0, ErrNotStarted
	}

	started := time.Now()
	metrics.MonitorTicks.WithLabelValues(m.cfg.Name).Inc()
	defer func() {
		metrics.MonitorTickLatency.WithLabelValues(m.cfg.Name).Observe(time.Since(started).Seconds())
	}()

	head, err := m.deps.Source.BlockNumber(ctx)
	if err != nil {
		return 0, m.fail(fmt.Errorf("block number: %w", err))
	}

	last := m.Cursor()
	if head <= last {
		m.succeed(last)
		return 0, nil
	}

	processed := 0
	for n := last + 1; n <= head; n++ {
		blk, err := m.deps.Source.BlockByNumber(ctx, n)
		if err != nil {
			return processed, m.fail(fmt.Errorf("block %d: %w", n, err))
		}
		if blk == nil {
			return processed, m.fail(fmt.Errorf("block %d: empty response", n))
		}
		for i := range blk.Transactions {
			m.handleTx(ctx, n, blk.Transactions[i])
		}
		processed++
		metrics.MonitorBlocksProcessed.WithLabelValues(m.cfg.Name).Inc()
	}

	m.mu.Lock()
	m.last = head
	m.mu.Unlock()
	m.succeed(head)
	metrics.MonitorCursor.WithLabelValues(m.cfg.Name).Set(float64(head))

	return processed, nil
}

func (m *Monitor) succeed(cursor uint64) {
	m.mu.Lock()
	m.health.Cursor = cursor
	m.health.LastSuccess = time.Now()
	m.health.LastError = ""
	m.health.ConsecutiveFailures = 0
	m.mu.Unlock()
}

func (m *Monitor) fail(err error) error {
	metrics.MonitorTickErrors.WithLabelValues(m.cfg.Name).Inc()
	m.mu.Lock()
	m.health.LastError = err.Error()
	m.health.ConsecutiveFailures++
	m.mu.Unlock()
	return err
}

// Run starts the loop if needed and ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.started() {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}
	log.Printf("[info] %s: watching %s from block %d (poll=%s)", m.cfg.Name, m.deps.Watchlist, m.Cursor(), m.cfg.PollInterval)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[warn] %s: tick failed at cursor=%d: %v", m.cfg.Name, m.Cursor(), err)
			m.publish(Event{
				TsMs:   nowMs(),
				Event:  EventTickError,
				Loop:   m.cfg.Name,
				Cursor: m.Cursor(),
				Err:    err.Error(),
			})
			if err := chain.SleepWithContext(ctx, m.cfg.ErrorBackoff); err != nil {
				return err
			}
			continue
		}

		if err := chain.SleepWithContext(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (m *Monitor) publish(ev Event) {
	for _, s := range m.deps.Sinks {
		s.Publish(ev)
	}
}

func (m *Monitor) handleTx(ctx context.Context, height uint64, tx chain.Transaction) {
	wallet, ok := m.deps.Watchlist.Resolve(tx.From, tx.To)
	if !ok {
		return
	}
	if m.cfg.Owner != (common.Address{}) && wallet != m.cfg.Owner {
		return
	}

	cat := m.classifier.Classify(tx)
	metrics.TransactionsClassified.WithLabelValues(cat.String()).Inc()

	ev := Event{
		TsMs:     nowMs(),
		Event:    EventTx,
		Loop:     m.cfg.Name,
		Wallet:   watchlist.Key(wallet),
		Block:    height,
		TxHash:   tx.Hash.Hex(),
		Category: cat.String(),
	}
	if tx.To != nil {
		ev.To = watchlist.Key(*tx.To)
	}
	if tx.Value != nil {
		ev.ValueWei = tx.Value.String()
	}

	log.Printf("WALLET: %s | BLOCK: %d | HASH: %s | TYPE: %s", ev.Wallet, height, ev.TxHash, ev.Category)

	switch cat {
	case txclass.Approve:
		// Symbol lookup only matters when the wallet can still arm.
		if !m.deps.Trigger.Armed(wallet) {
			ev.Symbol = tokens.Unknown
			if tx.To != nil {
				ev.Symbol = m.deps.Resolver.Symbol(ctx, *tx.To)
			}
		}
		if m.cfg.DecodeApprovals {
			m.describeApproval(ctx, tx, &ev)
		}
	case txclass.Execute:
		log.Printf("EXECUTED CONTRACT: %s", ev.To)
	case txclass.Transfer:
		log.Printf("TRANSFER: %s ETH", txclass.FormatEther(tx.Value))
	}

	d := m.deps.Trigger.Apply(ctx, trigger.Signal{
		Wallet:   wallet,
		Category: cat,
		Symbol:   ev.Symbol,
		TxHash:   tx.Hash,
		Block:    height,
	})
	ev.Action = string(d.Action)
	ev.Armed = d.Armed
	if d.Order != nil {
		ev.OrderID = d.Order.ID
	}
	if d.Err != nil {
		ev.OrderErr = d.Err.Error()
	}

	switch {
	case d.Action == trigger.ActionBuy:
		log.Printf("placing buy order (%s)", ev.Symbol)
	case d.Action == trigger.ActionSell:
		log.Printf("placing sell order")
	case cat == txclass.Approve && ev.Symbol != "" && !d.Armed:
		log.Printf("approval of %s ignored (excluded symbol)", ev.Symbol)
	}

	m.publish(ev)
}

func (m *Monitor) describeApproval(ctx context.Context, tx chain.Transaction, ev *Event) {
	approval, err := m.classifier.DecodeApprove(tx.Input)
	if err != nil {
		log.Printf("[warn] decode approve %s: %v", ev.TxHash, err)
		return
	}
	ev.Spender = watchlist.Key(approval.Spender)

	label := ev.Symbol
	if label == "" {
		label = "tokens"
	}
	if approval.IsUnlimited() {
		ev.Amount = "unlimited"
	} else if tx.To != nil {
		if dec, ok := m.deps.Resolver.Decimals(ctx, *tx.To); ok {
			ev.Amount = txclass.FormatUnits(approval.Amount, int32(dec))
		}
	}
	if ev.Amount == "" {
		ev.Amount = approval.Amount.String()
	}
	log.Printf("APPROVED %s %s spender=%s", ev.Amount, label, ev.Spender)
}
