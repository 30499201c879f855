package main

import (
	"context"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"approvewatch/internal/chain"
	"approvewatch/internal/jsonl"
	"approvewatch/internal/monitor"
	"approvewatch/internal/tokens"
	"approvewatch/internal/trade"
	"approvewatch/internal/trigger"
	"approvewatch/internal/txclass"
	"approvewatch/internal/watchlist"
)

// inspectTx classifies one transaction and shows what the trigger would do
// from a disarmed state. Orders always go to the dry-run trader.
func inspectTx(ctx context.Context, client *chain.Client, resolver *tokens.Resolver, parsed args, eventLog *jsonl.Writer) error {
	tx, err := client.TransactionByHash(ctx, common.HexToHash(parsed.txHash))
	if err != nil {
		return err
	}

	wallet, watched := parsed.wallets.Resolve(tx.From, tx.To)
	if !watched {
		log.Printf("[info] tx %s does not involve a watched wallet (from=%s)", parsed.txHash, watchlist.Key(tx.From))
		wallet = tx.From
	}

	classifier := txclass.NewClassifier(parsed.approveSelector)
	cat := classifier.Classify(*tx)
	ev := monitor.Event{
		TsMs:     time.Now().UnixMilli(),
		Event:    "inspect",
		Wallet:   watchlist.Key(wallet),
		Block:    tx.BlockNumber,
		TxHash:   tx.Hash.Hex(),
		Category: cat.String(),
	}
	if tx.To != nil {
		ev.To = watchlist.Key(*tx.To)
	}
	if tx.Value != nil {
		ev.ValueWei = tx.Value.String()
	}

	log.Printf("WALLET: %s | BLOCK: %d | HASH: %s | TYPE: %s", ev.Wallet, ev.Block, ev.TxHash, ev.Category)
	switch cat {
	case txclass.Approve:
		ev.Symbol = tokens.Unknown
		if tx.To != nil {
			ev.Symbol = resolver.Symbol(ctx, *tx.To)
		}
		if approval, err := classifier.DecodeApprove(tx.Input); err != nil {
			log.Printf("[warn] decode approve: %v", err)
		} else {
			ev.Spender = watchlist.Key(approval.Spender)
			ev.Amount = approval.Amount.String()
			if tx.To != nil {
				if dec, ok := resolver.Decimals(ctx, *tx.To); ok {
					ev.Amount = txclass.FormatUnits(approval.Amount, int32(dec))
				}
			}
			log.Printf("APPROVED %s %s spender=%s", ev.Amount, ev.Symbol, ev.Spender)
		}
	case txclass.Execute:
		log.Printf("EXECUTED CONTRACT: %s", ev.To)
	case txclass.Transfer:
		log.Printf("TRANSFER: %s ETH", txclass.FormatEther(tx.Value))
	}

	if watched {
		machine := trigger.New(trigger.Config{ExcludeSymbol: parsed.excludeSymbol}, trade.DryRun{})
		d := machine.Apply(ctx, trigger.Signal{
			Wallet:   wallet,
			Category: cat,
			Symbol:   ev.Symbol,
			TxHash:   tx.Hash,
			Block:    tx.BlockNumber,
		})
		ev.Action = string(d.Action)
		ev.Armed = d.Armed
		log.Printf("Trigger (from disarmed): action=%s armed=%v", d.Action, d.Armed)
	}

	logEvent(eventLog, ev)
	return nil
}
