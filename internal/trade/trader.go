package trade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is the signal handed to the execution side.
type Order struct {
	ID     string `json:"id"`
	Side   Side   `json:"side"`
	Wallet string `json:"wallet"`
	TxHash string `json:"tx_hash,omitempty"`
	Block  uint64 `json:"block,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	TsMs   int64  `json:"ts_ms"`
}

// orderNamespace scopes name-based order IDs.
var orderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("approvewatch:order"))

// OrderID derives the idempotency key for an order. The same wallet, tx and
// side always map to the same ID, so a replayed block range re-sends the
// key downstream already saw.
func OrderID(side Side, wallet, txHash string) string {
	name := strings.ToLower(wallet) + "|" + strings.ToLower(txHash) + "|" + string(side)
	return uuid.NewSHA1(orderNamespace, []byte(name)).String()
}

func NewOrder(side Side, wallet, txHash string) Order {
	return Order{
		ID:     OrderID(side, wallet, txHash),
		Side:   side,
		Wallet: wallet,
		TxHash: txHash,
		TsMs:   time.Now().UnixMilli(),
	}
}

// Trader places orders. Implementations should be idempotent on Order.ID
// and return quickly; the caller does not retry.
type Trader interface {
	PlaceOrder(ctx context.Context, order Order) error
}

// DryRun only logs.
type DryRun struct{}

func (DryRun) PlaceOrder(_ context.Context, order Order) error {
	log.Printf("[dry] place_order side=%s wallet=%s symbol=%s tx=%s id=%s", order.Side, order.Wallet, order.Symbol, order.TxHash, order.ID)
	return nil
}

// Multi fans an order out to every trader and joins their errors.
type Multi []Trader

func (m Multi) PlaceOrder(ctx context.Context, order Order) error {
	var errs []error
	for _, t := range m {
		if err := t.PlaceOrder(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config selects and configures the trader adapters.
type Config struct {
	// Kinds is a list of dry, webhook, kafka.
	Kinds []string

	WebhookURL   string
	WebhookToken string

	KafkaBrokers []string
	KafkaTopic   string
}

// ParseKinds splits a comma separated adapter list.
func ParseKinds(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// New builds the configured trader. The returned close func releases any
// connections and is never nil.
func New(cfg Config) (Trader, func() error, error) {
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = []string{"dry"}
	}

	var traders Multi
	var closers []func() error
	for _, kind := range kinds {
		switch kind {
		case "dry":
			traders = append(traders, DryRun{})
		case "webhook":
			w, err := NewWebhook(cfg.WebhookURL, cfg.WebhookToken)
			if err != nil {
				return nil, nil, err
			}
			traders = append(traders, w)
		case "kafka":
			k, err := NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
			if err != nil {
				return nil, nil, err
			}
			traders = append(traders, k)
			closers = append(closers, k.Close)
		default:
			return nil, nil, fmt.Errorf("unknown trader %q (use dry, webhook, kafka)", kind)
		}
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if len(traders) == 1 {
		return traders[0], closeAll, nil
	}
	return traders, closeAll, nil
}
