package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"approvewatch/internal/chain"
	"approvewatch/internal/trade"
	"approvewatch/internal/trigger"
	"approvewatch/internal/txclass"
	"approvewatch/internal/watchlist"
)

const defaultOutFile = "./out/approvewatch.jsonl"

type loopMode string

const (
	loopsShared    loopMode = "shared"
	loopsPerWallet loopMode = "per-wallet"
)

type args struct {
	rpcURL      string
	rpcRPS      float64
	rpcBurst    int
	dialTimeout time.Duration

	wallets *watchlist.Watchlist

	pollInterval time.Duration
	errorBackoff time.Duration

	approveSelector txclass.Selector
	excludeSymbol   string
	decodeApprovals bool

	triggerMode  trigger.Mode
	loops        loopMode
	orderTimeout time.Duration
	trader       trade.Config

	httpAddr string
	outFile  string
	txHash   string
}

func parseArgs(fs *flag.FlagSet, argv []string) (args, error) {
	var rpcURLFlag string
	var walletsFlag string
	var selectorFlag string
	var excludeFlag string
	var triggerModeFlag string
	var loopsFlag string
	var traderFlag string
	var traderURLFlag string
	var traderTokenFlag string
	var kafkaBrokersFlag string
	var kafkaTopicFlag string
	var httpAddrFlag string
	var outFlag string
	var txHashFlag string

	pollDefault, err := envDuration("POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return args{}, err
	}
	backoffDefault, err := envDuration("ERROR_BACKOFF", time.Second)
	if err != nil {
		return args{}, err
	}
	orderTimeoutDefault, err := envDuration("ORDER_TIMEOUT", 10*time.Second)
	if err != nil {
		return args{}, err
	}
	dialTimeoutDefault, err := envDuration("DIAL_TIMEOUT", 15*time.Second)
	if err != nil {
		return args{}, err
	}
	rpsDefault := 0.0
	if env := strings.TrimSpace(os.Getenv("RPC_RPS")); env != "" {
		v, err := strconv.ParseFloat(env, 64)
		if err != nil {
			return args{}, fmt.Errorf("invalid RPC_RPS %q: %w", env, err)
		}
		rpsDefault = v
	}
	decodeDefault := false
	if env := strings.TrimSpace(os.Getenv("DECODE_APPROVALS")); env != "" {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return args{}, fmt.Errorf("invalid DECODE_APPROVALS %q: %w", env, err)
		}
		decodeDefault = v
	}

	var pollFlag, backoffFlag, orderTimeoutFlag, dialTimeoutFlag time.Duration
	var rpsFlag float64
	var burstFlag int
	var decodeFlag bool

	fs.StringVar(&rpcURLFlag, "rpc-url", "", "Base RPC URL, http(s) or ws(s) (or RPC_URL; default "+chain.DefaultRPCURL+")")
	fs.Float64Var(&rpsFlag, "rpc-rps", rpsDefault, "Max RPC calls per second (0 = unlimited)")
	fs.IntVar(&burstFlag, "rpc-burst", 1, "RPC limiter burst")
	fs.DurationVar(&dialTimeoutFlag, "dial-timeout", dialTimeoutDefault, "Startup deadline for reaching the RPC endpoint")
	fs.StringVar(&walletsFlag, "wallets", "", "Watched wallet address(es) 0x... (comma/space-separated; or WATCHED_WALLETS)")
	fs.StringVar(&walletsFlag, "wallet", "", "Watched wallet address(es) (alias)")
	fs.DurationVar(&pollFlag, "poll-interval", pollDefault, "Delay between polling ticks")
	fs.DurationVar(&backoffFlag, "error-backoff", backoffDefault, "Delay after a failed tick before retrying")
	fs.StringVar(&selectorFlag, "approve-selector", "", "Approval function selector (default "+txclass.ApproveSelector.Hex()+")")
	fs.StringVar(&excludeFlag, "exclude-symbol", "", "Token symbol that never arms the trigger (default CHECK; \"none\" disables)")
	fs.BoolVar(&decodeFlag, "decode-approvals", decodeDefault, "Log approval spender and amount (extra decimals() call per token)")
	fs.StringVar(&triggerModeFlag, "trigger-mode", "", "Trigger state: per-wallet or global")
	fs.StringVar(&loopsFlag, "loops", "", "Polling loops: shared (one loop for all wallets) or per-wallet")
	fs.DurationVar(&orderTimeoutFlag, "order-timeout", orderTimeoutDefault, "Timeout for a single place-order call")
	fs.StringVar(&traderFlag, "trader", "", "Order sink(s): dry, webhook, kafka (comma-separated fan-out; default dry)")
	fs.StringVar(&traderURLFlag, "trader-url", "", "Webhook URL for --trader webhook (or TRADER_URL)")
	fs.StringVar(&traderTokenFlag, "trader-token", "", "Bearer token for the webhook (or TRADER_TOKEN)")
	fs.StringVar(&kafkaBrokersFlag, "kafka-brokers", "", "Kafka brokers host:port, comma-separated (or KAFKA_BROKERS)")
	fs.StringVar(&kafkaTopicFlag, "kafka-topic", "", "Kafka topic for orders (or KAFKA_TOPIC)")
	fs.StringVar(&httpAddrFlag, "http-addr", "", "Serve /healthz, /state, /metrics and /ws on this address (empty disables)")
	fs.StringVar(&outFlag, "out", "", "JSONL event log path (\"-\" = stdout; default "+defaultOutFile+")")
	fs.StringVar(&txHashFlag, "tx-hash", "", "Inspect a specific tx hash (0x...) and exit")

	if err := fs.Parse(argv); err != nil {
		return args{}, err
	}

	txHash := strings.ToLower(strings.TrimSpace(txHashFlag))
	if txHash != "" {
		txHash = strings.TrimPrefix(txHash, "0x")
		if len(txHash) != 64 {
			return args{}, fmt.Errorf("invalid --tx-hash: expected 0x + 64 hex chars")
		}
		if _, err := hex.DecodeString(txHash); err != nil {
			return args{}, fmt.Errorf("invalid --tx-hash: %w", err)
		}
		txHash = "0x" + txHash
	}

	rpcURL := strings.TrimSpace(firstNonEmpty(rpcURLFlag, chain.RPCURLFromEnv(), chain.DefaultRPCURL))
	if err := chain.ValidateRPCURL(rpcURL); err != nil {
		return args{}, err
	}
	if rpsFlag < 0 {
		return args{}, fmt.Errorf("--rpc-rps must be >= 0")
	}

	walletsRaw := strings.TrimSpace(firstNonEmpty(walletsFlag, os.Getenv("WATCHED_WALLETS"), os.Getenv("WALLETS"), os.Getenv("WALLET")))
	if walletsRaw == "" {
		return args{}, fmt.Errorf("wallets required via --wallets or WATCHED_WALLETS")
	}
	wl, err := watchlist.Parse(walletsRaw)
	if err != nil {
		return args{}, fmt.Errorf("invalid wallet list %q: %w", walletsRaw, err)
	}

	if pollFlag <= 0 {
		return args{}, fmt.Errorf("--poll-interval must be > 0")
	}
	if backoffFlag <= 0 {
		return args{}, fmt.Errorf("--error-backoff must be > 0")
	}
	if orderTimeoutFlag <= 0 {
		return args{}, fmt.Errorf("--order-timeout must be > 0")
	}
	if dialTimeoutFlag <= 0 {
		return args{}, fmt.Errorf("--dial-timeout must be > 0")
	}

	selector := txclass.ApproveSelector
	if raw := strings.TrimSpace(firstNonEmpty(selectorFlag, os.Getenv("APPROVE_SELECTOR"))); raw != "" {
		selector, err = txclass.ParseSelector(raw)
		if err != nil {
			return args{}, fmt.Errorf("invalid approve selector: %w", err)
		}
	}

	exclude := strings.TrimSpace(firstNonEmpty(excludeFlag, os.Getenv("EXCLUDE_SYMBOL"), "CHECK"))
	if strings.EqualFold(exclude, "none") {
		exclude = ""
	}

	mode, err := trigger.ParseMode(firstNonEmpty(triggerModeFlag, os.Getenv("TRIGGER_MODE")))
	if err != nil {
		return args{}, err
	}

	var loops loopMode
	switch strings.ToLower(strings.TrimSpace(firstNonEmpty(loopsFlag, os.Getenv("LOOPS")))) {
	case "", "shared":
		loops = loopsShared
	case "per-wallet", "wallet":
		loops = loopsPerWallet
	default:
		return args{}, fmt.Errorf("invalid --loops %q (use shared or per-wallet)", loopsFlag)
	}
	// One global flag driven by several loops would have no single block order.
	if mode == trigger.Global && loops == loopsPerWallet {
		return args{}, fmt.Errorf("--trigger-mode global requires --loops shared")
	}

	traderCfg := trade.Config{
		Kinds:        trade.ParseKinds(firstNonEmpty(traderFlag, os.Getenv("TRADER"), "dry")),
		WebhookURL:   strings.TrimSpace(firstNonEmpty(traderURLFlag, os.Getenv("TRADER_URL"))),
		WebhookToken: strings.TrimSpace(firstNonEmpty(traderTokenFlag, os.Getenv("TRADER_TOKEN"))),
		KafkaTopic:   strings.TrimSpace(firstNonEmpty(kafkaTopicFlag, os.Getenv("KAFKA_TOPIC"))),
	}
	if brokers := firstNonEmpty(kafkaBrokersFlag, os.Getenv("KAFKA_BROKERS")); brokers != "" {
		traderCfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	outFile := strings.TrimSpace(firstNonEmpty(outFlag, os.Getenv("APPROVEWATCH_OUT_FILE"), defaultOutFile))

	return args{
		rpcURL:          rpcURL,
		rpcRPS:          rpsFlag,
		rpcBurst:        burstFlag,
		dialTimeout:     dialTimeoutFlag,
		wallets:         wl,
		pollInterval:    pollFlag,
		errorBackoff:    backoffFlag,
		approveSelector: selector,
		excludeSymbol:   exclude,
		decodeApprovals: decodeFlag,
		triggerMode:     mode,
		loops:           loops,
		orderTimeout:    orderTimeoutFlag,
		trader:          traderCfg,
		httpAddr:        strings.TrimSpace(firstNonEmpty(httpAddrFlag, os.Getenv("HTTP_ADDR"))),
		outFile:         outFile,
		txHash:          txHash,
	}, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	env := strings.TrimSpace(os.Getenv(name))
	if env == "" {
		return def, nil
	}
	d, err := time.ParseDuration(env)
	if err != nil {
		// Bare numbers are seconds.
		secs, ferr := strconv.ParseFloat(env, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, env, err)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
