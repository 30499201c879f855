package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approvewatch/internal/metrics"
	"approvewatch/internal/trade"
	"approvewatch/internal/txclass"
)

type recordingTrader struct {
	mu     sync.Mutex
	orders []trade.Order
	err    error
}

func (r *recordingTrader) PlaceOrder(ctx context.Context, order trade.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected bounded context")
	}
	r.orders = append(r.orders, order)
	return r.err
}

func (r *recordingTrader) sides() []trade.Side {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]trade.Side, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o.Side)
	}
	return out
}

var (
	walletA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	walletB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func approve(w common.Address, symbol string) Signal {
	return Signal{Wallet: w, Category: txclass.Approve, Symbol: symbol, Block: 1}
}

func execute(w common.Address) Signal {
	return Signal{Wallet: w, Category: txclass.Execute, Block: 2}
}

func TestMachine_ArmBuyThenSell(t *testing.T) {
	tr := &recordingTrader{}
	m := New(Config{ExcludeSymbol: "CHECK"}, tr)
	ctx := context.Background()

	require.False(t, m.Armed(walletA))

	d := m.Apply(ctx, approve(walletA, "FOO"))
	assert.Equal(t, ActionBuy, d.Action)
	assert.True(t, d.Armed)
	require.NotNil(t, d.Order)
	assert.Equal(t, "FOO", d.Order.Symbol)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", d.Order.Wallet)
	assert.Equal(t, trade.OrderID(trade.SideBuy, d.Order.Wallet, common.Hash{}.Hex()), d.Order.ID)

	// Second approval while armed: no re-buy.
	d = m.Apply(ctx, approve(walletA, "FOO"))
	assert.Equal(t, ActionNone, d.Action)
	assert.True(t, d.Armed)
	assert.Nil(t, d.Order)

	d = m.Apply(ctx, execute(walletA))
	assert.Equal(t, ActionSell, d.Action)
	assert.False(t, d.Armed)

	// Execute while disarmed: no sell.
	d = m.Apply(ctx, execute(walletA))
	assert.Equal(t, ActionNone, d.Action)

	assert.Equal(t, []trade.Side{trade.SideBuy, trade.SideSell}, tr.sides())
}

func TestMachine_ReplayedSignalReusesOrderID(t *testing.T) {
	tx := common.HexToHash("0x0101")
	sig := approve(walletA, "FOO")
	sig.TxHash = tx

	first := New(Config{}, &recordingTrader{}).Apply(context.Background(), sig)
	replay := New(Config{}, &recordingTrader{}).Apply(context.Background(), sig)
	require.NotNil(t, first.Order)
	require.NotNil(t, replay.Order)
	assert.Equal(t, first.Order.ID, replay.Order.ID)
	assert.Equal(t, tx.Hex(), replay.Order.TxHash)
}

func TestMachine_ExcludedSymbolNeverArms(t *testing.T) {
	tr := &recordingTrader{}
	m := New(Config{ExcludeSymbol: "CHECK"}, tr)

	d := m.Apply(context.Background(), approve(walletA, "CHECK"))
	assert.Equal(t, ActionNone, d.Action)
	assert.False(t, m.Armed(walletA))
	assert.Empty(t, tr.sides())

	// An unresolved symbol is not the excluded one.
	d = m.Apply(context.Background(), approve(walletA, "UNKNOWN"))
	assert.Equal(t, ActionBuy, d.Action)
}

func TestMachine_EmptyExclusionArmsOnAnything(t *testing.T) {
	m := New(Config{}, &recordingTrader{})
	d := m.Apply(context.Background(), approve(walletA, "CHECK"))
	assert.Equal(t, ActionBuy, d.Action)
}

func TestMachine_TransferIsInformational(t *testing.T) {
	tr := &recordingTrader{}
	m := New(Config{}, tr)
	ctx := context.Background()

	m.Apply(ctx, approve(walletA, "FOO"))
	d := m.Apply(ctx, Signal{Wallet: walletA, Category: txclass.Transfer})
	assert.Equal(t, ActionNone, d.Action)
	assert.True(t, d.Armed)
	assert.Len(t, tr.sides(), 1)
}

func TestMachine_PerWalletIndependence(t *testing.T) {
	tr := &recordingTrader{}
	m := New(Config{Mode: PerWallet}, tr)
	ctx := context.Background()

	assert.Equal(t, ActionBuy, m.Apply(ctx, approve(walletA, "FOO")).Action)
	assert.Equal(t, ActionBuy, m.Apply(ctx, approve(walletB, "FOO")).Action)
	assert.Equal(t, ActionSell, m.Apply(ctx, execute(walletB)).Action)

	assert.True(t, m.Armed(walletA))
	assert.False(t, m.Armed(walletB))
	assert.Equal(t, map[string]bool{
		"0x00000000000000000000000000000000000000aa": true,
		"0x00000000000000000000000000000000000000bb": false,
	}, m.Snapshot())
}

func TestMachine_GlobalSharesState(t *testing.T) {
	tr := &recordingTrader{}
	m := New(Config{Mode: Global}, tr)
	ctx := context.Background()

	assert.Equal(t, ActionBuy, m.Apply(ctx, approve(walletA, "FOO")).Action)
	assert.Equal(t, ActionNone, m.Apply(ctx, approve(walletB, "FOO")).Action)
	assert.True(t, m.Armed(walletB))
	assert.Equal(t, ActionSell, m.Apply(ctx, execute(walletB)).Action)
	assert.False(t, m.Armed(walletA))

	assert.Equal(t, map[string]bool{GlobalKey: false}, m.Snapshot())
}

func TestMachine_TraderErrorKeepsTransition(t *testing.T) {
	tr := &recordingTrader{err: errors.New("exchange down")}
	m := New(Config{}, tr)
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.TriggerOrders.WithLabelValues("buy", "error"))

	d := m.Apply(ctx, approve(walletA, "FOO"))
	assert.Equal(t, ActionBuy, d.Action)
	assert.Error(t, d.Err)
	assert.True(t, m.Armed(walletA))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TriggerOrders.WithLabelValues("buy", "error")))

	d = m.Apply(ctx, execute(walletA))
	assert.Equal(t, ActionSell, d.Action)
	assert.False(t, m.Armed(walletA))
}

type slowTrader struct{}

func (slowTrader) PlaceOrder(ctx context.Context, _ trade.Order) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestMachine_OrderTimeoutBoundsTrader(t *testing.T) {
	m := New(Config{OrderTimeout: 20 * time.Millisecond}, slowTrader{})

	start := time.Now()
	d := m.Apply(context.Background(), approve(walletA, "FOO"))
	assert.ErrorIs(t, d.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, m.Armed(walletA))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Mode{"": PerWallet, "per-wallet": PerWallet, "GLOBAL": Global} {
		got, err := ParseMode(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseMode("both")
	assert.Error(t, err)
}
