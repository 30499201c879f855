package trigger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"approvewatch/internal/metrics"
	"approvewatch/internal/trade"
	"approvewatch/internal/txclass"
	"approvewatch/internal/watchlist"
)

type Mode int

const (
	// PerWallet keeps one armed flag per wallet.
	PerWallet Mode = iota
	// Global shares one armed flag across every watched wallet.
	Global
)

func (m Mode) String() string {
	if m == Global {
		return "global"
	}
	return "per-wallet"
}

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "per-wallet", "perwallet", "wallet":
		return PerWallet, nil
	case "global", "single":
		return Global, nil
	default:
		return PerWallet, fmt.Errorf("invalid trigger mode %q (use per-wallet or global)", raw)
	}
}

// GlobalKey is the Snapshot key used in Global mode.
const GlobalKey = "global"

type Action string

const (
	ActionNone Action = "none"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

type Signal struct {
	Wallet   common.Address
	Category txclass.Category
	Symbol   string
	TxHash   common.Hash
	Block    uint64
}

// Decision is the outcome of one Apply. Armed is the state after the
// transition. Order and Err are set only when a trader call was made.
type Decision struct {
	Action Action
	Armed  bool
	Order  *trade.Order
	Err    error
}

type Config struct {
	Mode Mode
	// ExcludeSymbol suppresses arming on approvals of this token symbol.
	// Empty disables the exclusion.
	ExcludeSymbol string
	// OrderTimeout bounds each PlaceOrder call. Zero means 10s.
	OrderTimeout time.Duration
}

type walletState struct {
	armed bool
}

type Machine struct {
	cfg    Config
	trader trade.Trader

	mu     sync.RWMutex
	states map[common.Address]*walletState
}

func New(cfg Config, trader trade.Trader) *Machine {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	if trader == nil {
		trader = trade.DryRun{}
	}
	return &Machine{
		cfg:    cfg,
		trader: trader,
		states: make(map[common.Address]*walletState),
	}
}

func (m *Machine) Mode() Mode { return m.cfg.Mode }

func (m *Machine) ExcludeSymbol() string { return m.cfg.ExcludeSymbol }

func (m *Machine) key(wallet common.Address) common.Address {
	if m.cfg.Mode == Global {
		return common.Address{}
	}
	return wallet
}

// Armed reports whether the wallet (or the shared state in Global mode) has
// an outstanding buy.
func (m *Machine) Armed(wallet common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[m.key(wallet)]
	return ok && st.armed
}

// Qualifies reports whether an approval of symbol may arm a wallet.
func (m *Machine) Qualifies(symbol string) bool {
	return m.cfg.ExcludeSymbol == "" || symbol != m.cfg.ExcludeSymbol
}

// Apply feeds one classified transaction into the state machine.
//
// The state flips before the trader is called and stays flipped whatever
// the trader returns.
func (m *Machine) Apply(ctx context.Context, sig Signal) Decision {
	var side trade.Side

	m.mu.Lock()
	k := m.key(sig.Wallet)
	st, ok := m.states[k]
	if !ok {
		st = &walletState{}
		m.states[k] = st
	}
	switch sig.Category {
	case txclass.Approve:
		if !st.armed && m.Qualifies(sig.Symbol) {
			st.armed = true
			side = trade.SideBuy
		}
	case txclass.Execute:
		if st.armed {
			st.armed = false
			side = trade.SideSell
		}
	}
	armed := st.armed
	m.updateArmedGaugeLocked()
	m.mu.Unlock()

	if side == "" {
		return Decision{Action: ActionNone, Armed: armed}
	}

	order := trade.NewOrder(side, watchlist.Key(sig.Wallet), sig.TxHash.Hex())
	order.Block = sig.Block
	order.Symbol = sig.Symbol

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.OrderTimeout)
	err := m.trader.PlaceOrder(callCtx, order)
	cancel()

	result := "ok"
	if err != nil {
		result = "error"
		log.Printf("[warn] place_order %s wallet=%s tx=%s: %v", side, order.Wallet, order.TxHash, err)
	}
	metrics.TriggerOrders.WithLabelValues(string(side), result).Inc()

	return Decision{Action: Action(side), Armed: armed, Order: &order, Err: err}
}

func (m *Machine) updateArmedGaugeLocked() {
	n := 0
	for _, st := range m.states {
		if st.armed {
			n++
		}
	}
	metrics.TriggerArmedWallets.Set(float64(n))
}

// Snapshot returns armed flags keyed by lowercase wallet, or by GlobalKey
// in Global mode.
func (m *Machine) Snapshot() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.states))
	for addr, st := range m.states {
		if m.cfg.Mode == Global {
			out[GlobalKey] = st.armed
			continue
		}
		out[watchlist.Key(addr)] = st.armed
	}
	return out
}
