package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"approvewatch/internal/chain"
	"approvewatch/internal/dotenv"
	"approvewatch/internal/jsonl"
	"approvewatch/internal/monitor"
	"approvewatch/internal/server"
	"approvewatch/internal/tokens"
	"approvewatch/internal/trade"
	"approvewatch/internal/trigger"
	"approvewatch/internal/watchlist"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Printf("Shutting down...")
		cancel()
	}()

	client, head, err := connect(ctx, parsed)
	if err != nil {
		log.Fatalf("[fatal] rpc %s unreachable: %v", parsed.rpcURL, err)
	}
	defer client.Close()

	var chainID uint64
	if id, err := client.ChainID(ctx); err != nil {
		log.Printf("[warn] chain id: %v", err)
	} else {
		chainID = id.Uint64()
	}
	log.Printf("Connected (chain=%d head=%d)", chainID, head)

	resolver := tokens.NewResolver(client)

	eventLog := jsonl.New(parsed.outFile)
	if eventLog != nil {
		defer func() {
			if err := eventLog.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
	}

	if parsed.txHash != "" {
		if err := inspectTx(ctx, client, resolver, parsed, eventLog); err != nil {
			log.Fatalf("[fatal] inspect tx failed: %v", err)
		}
		return
	}

	trader, closeTrader, err := trade.New(parsed.trader)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer func() {
		if err := closeTrader(); err != nil {
			log.Printf("[warn] trader close: %v", err)
		}
	}()

	machine := trigger.New(trigger.Config{
		Mode:          parsed.triggerMode,
		ExcludeSymbol: parsed.excludeSymbol,
		OrderTimeout:  parsed.orderTimeout,
	}, trader)

	log.Printf("Watching wallets:")
	for _, w := range parsed.wallets.Addresses() {
		log.Printf(" - %s", watchlist.Key(w))
	}
	log.Printf("Trigger: %s (exclude symbol=%q)", parsed.triggerMode, parsed.excludeSymbol)
	log.Printf("Loops: %s  Poll: %s  Backoff: %s", parsed.loops, parsed.pollInterval, parsed.errorBackoff)
	log.Printf("Trader: %v", parsed.trader.Kinds)
	if eventLog != nil {
		log.Printf("Event log: %s (JSONL)", eventLog.Path())
	}

	runStartedAt := time.Now()
	startEvent := runLogEvent{
		TsMs:            runStartedAt.UnixMilli(),
		Event:           "start",
		Wallets:         walletKeys(parsed.wallets),
		ChainID:         chainID,
		Head:            head,
		TriggerMode:     parsed.triggerMode.String(),
		Loops:           string(parsed.loops),
		Traders:         parsed.trader.Kinds,
		ApproveSelector: parsed.approveSelector.Hex(),
		ExcludeSymbol:   parsed.excludeSymbol,
	}
	logEvent(eventLog, startEvent)

	hub := server.NewHub()
	sinks := []monitor.Sink{eventLogSink(eventLog), hub}

	monitors, err := buildMonitors(parsed, client, resolver, machine, sinks)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	loops := make([]server.Loop, 0, len(monitors))
	for _, m := range monitors {
		m := m
		loops = append(loops, m)
		g.Go(func() error { return m.Run(gctx) })
	}
	if parsed.httpAddr != "" {
		maxStale := 3 * max(parsed.pollInterval, parsed.errorBackoff)
		srv := server.New(server.Config{Addr: parsed.httpAddr, MaxStale: maxStale}, loops, machine, hub)
		g.Go(func() error { return srv.Run(gctx) })
	}

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("[warn] stopped: %v", runErr)
	}

	shutdown := runLogEvent{
		TsMs:     time.Now().UnixMilli(),
		Event:    "shutdown",
		Ok:       runErr == nil || errors.Is(runErr, context.Canceled),
		UptimeMs: time.Since(runStartedAt).Milliseconds(),
	}
	if !shutdown.Ok {
		shutdown.Err = runErr.Error()
	}
	logEvent(eventLog, shutdown)
}

// connect makes a single attempt to reach the RPC endpoint within the
// startup deadline.
func connect(ctx context.Context, parsed args) (*chain.Client, uint64, error) {
	dialCtx, cancel := context.WithTimeout(ctx, parsed.dialTimeout)
	defer cancel()
	return chain.Dial(dialCtx, parsed.rpcURL, chain.Options{RPS: parsed.rpcRPS, Burst: parsed.rpcBurst})
}

func buildMonitors(parsed args, src monitor.Source, resolver monitor.TokenResolver, machine monitor.Trigger, sinks []monitor.Sink) ([]*monitor.Monitor, error) {
	cfg := monitor.Config{
		PollInterval:    parsed.pollInterval,
		ErrorBackoff:    parsed.errorBackoff,
		ApproveSelector: parsed.approveSelector,
		DecodeApprovals: parsed.decodeApprovals,
	}
	deps := monitor.Deps{
		Source:   src,
		Resolver: resolver,
		Trigger:  machine,
		Sinks:    sinks,
	}

	if parsed.loops == loopsShared {
		cfg.Name = "shared"
		deps.Watchlist = parsed.wallets
		m, err := monitor.New(cfg, deps)
		if err != nil {
			return nil, err
		}
		return []*monitor.Monitor{m}, nil
	}

	// Every loop resolves against the full list so a tx between two watched
	// wallets is credited to the sender exactly once.
	deps.Watchlist = parsed.wallets
	var out []*monitor.Monitor
	for _, addr := range parsed.wallets.Addresses() {
		cfg.Name = watchlist.Key(addr)
		cfg.Owner = addr
		m, err := monitor.New(cfg, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func walletKeys(wl *watchlist.Watchlist) []string {
	addrs := wl.Addresses()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, watchlist.Key(a))
	}
	return out
}
