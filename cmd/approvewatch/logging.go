package main

import (
	"log"

	"approvewatch/internal/jsonl"
	"approvewatch/internal/monitor"
)

type runLogEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"` // start | shutdown

	Wallets         []string `json:"wallets,omitempty"`
	ChainID         uint64   `json:"chain_id,omitempty"`
	Head            uint64   `json:"head,omitempty"`
	TriggerMode     string   `json:"trigger_mode,omitempty"`
	Loops           string   `json:"loops,omitempty"`
	Traders         []string `json:"traders,omitempty"`
	ApproveSelector string   `json:"approve_selector,omitempty"`
	ExcludeSymbol   string   `json:"exclude_symbol,omitempty"`

	Ok       bool   `json:"ok,omitempty"`
	Err      string `json:"err,omitempty"`
	UptimeMs int64  `json:"uptime_ms,omitempty"`
}

func logEvent(w *jsonl.Writer, ev any) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] event log write failed: %v", err)
	}
}

// eventLogSink writes every monitor event to the JSONL log.
func eventLogSink(w *jsonl.Writer) monitor.Sink {
	return monitor.SinkFunc(func(ev monitor.Event) {
		logEvent(w, ev)
	})
}
