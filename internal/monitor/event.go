package monitor

import "time"

const (
	EventTx        = "tx"
	EventTickError = "tick_error"
)

// Event describes one watched transaction (or a failed tick). It is the
// record written to the JSONL log and pushed to live subscribers.
type Event struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"`
	Loop  string `json:"loop,omitempty"`

	Wallet   string `json:"wallet,omitempty"`
	Block    uint64 `json:"block,omitempty"`
	TxHash   string `json:"tx_hash,omitempty"`
	Category string `json:"category,omitempty"`
	To       string `json:"to,omitempty"`
	ValueWei string `json:"value_wei,omitempty"`

	// Approval detail.
	Symbol  string `json:"symbol,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount,omitempty"`

	// Trigger outcome.
	Action   string `json:"action,omitempty"`
	Armed    bool   `json:"armed,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	OrderErr string `json:"order_err,omitempty"`

	Cursor uint64 `json:"cursor,omitempty"`
	Err    string `json:"err,omitempty"`
}

type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

func nowMs() int64 { return time.Now().UnixMilli() }
