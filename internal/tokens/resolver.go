package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"approvewatch/internal/metrics"
)

// Unknown is returned for any token whose symbol() could not be read.
const Unknown = "UNKNOWN"

// LookupTimeout bounds one shared symbol() or decimals() call.
const LookupTimeout = 10 * time.Second

var ErrEmptyResult = errors.New("empty call result")

const erc20MetadataABI = `[
  {"name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = mustParseABI(erc20MetadataABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Result is the outcome of a symbol lookup. Symbol is always usable: it is
// Unknown when OK is false, and Err records why.
type Result struct {
	Symbol string
	OK     bool
	Err    error
}

type decimalsEntry struct {
	value uint8
	ok    bool
}

// Resolver reads and caches ERC-20 metadata.
//
// The cache never evicts and never expires: token symbols are treated as
// immutable for the life of the process, and the set of tokens a handful of
// wallets approve is small. Failures are cached too, as Unknown.
//
// Safe for concurrent use; concurrent misses for one token share a single call.
type Resolver struct {
	caller ethereum.ContractCaller

	mu       sync.RWMutex
	symbols  map[common.Address]Result
	decimals map[common.Address]decimalsEntry
	group    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

func NewResolver(caller ethereum.ContractCaller) *Resolver {
	return &Resolver{
		caller:   caller,
		symbols:  make(map[common.Address]Result),
		decimals: make(map[common.Address]decimalsEntry),
	}
}

// Symbol returns the token's symbol, or Unknown. It never fails.
func (r *Resolver) Symbol(ctx context.Context, token common.Address) string {
	return r.Lookup(ctx, token).Symbol
}

// Lookup returns the cached result for token, calling symbol() on a miss.
func (r *Resolver) Lookup(ctx context.Context, token common.Address) Result {
	r.mu.RLock()
	res, ok := r.symbols[token]
	r.mu.RUnlock()
	if ok {
		r.hits.Add(1)
		metrics.TokenLookups.WithLabelValues("hit").Inc()
		return res
	}

	v, _, _ := r.group.Do("symbol:"+token.Hex(), func() (any, error) {
		r.mu.RLock()
		cached, ok := r.symbols[token]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		r.misses.Add(1)
		callCtx, cancel := detached(ctx)
		defer cancel()
		res := r.fetchSymbol(callCtx, token)
		if res.OK {
			metrics.TokenLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.TokenLookups.WithLabelValues("unknown").Inc()
		}

		r.mu.Lock()
		r.symbols[token] = res
		r.mu.Unlock()
		return res, nil
	})
	return v.(Result)
}

func (r *Resolver) fetchSymbol(ctx context.Context, token common.Address) Result {
	vals, err := r.call(ctx, token, "symbol")
	if err != nil {
		return Result{Symbol: Unknown, Err: err}
	}
	if len(vals) != 1 {
		return Result{Symbol: Unknown, Err: fmt.Errorf("symbol: unexpected result len %d", len(vals))}
	}
	sym, ok := vals[0].(string)
	if !ok {
		return Result{Symbol: Unknown, Err: fmt.Errorf("symbol: unexpected type %T", vals[0])}
	}
	return Result{Symbol: sym, OK: true}
}

// Decimals returns decimals() for token. Best effort: (0, false) on failure,
// and the failure is cached.
func (r *Resolver) Decimals(ctx context.Context, token common.Address) (uint8, bool) {
	r.mu.RLock()
	e, ok := r.decimals[token]
	r.mu.RUnlock()
	if ok {
		return e.value, e.ok
	}

	v, _, _ := r.group.Do("decimals:"+token.Hex(), func() (any, error) {
		r.mu.RLock()
		cached, ok := r.decimals[token]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		callCtx, cancel := detached(ctx)
		defer cancel()
		var entry decimalsEntry
		if vals, err := r.call(callCtx, token, "decimals"); err == nil && len(vals) == 1 {
			if d, ok := vals[0].(uint8); ok {
				entry = decimalsEntry{value: d, ok: true}
			}
		}

		r.mu.Lock()
		r.decimals[token] = entry
		r.mu.Unlock()
		return entry, nil
	})
	e = v.(decimalsEntry)
	return e.value, e.ok
}

// detached drops the caller's cancellation: the result of a shared call is
// cached for every waiter, so one caller going away must not turn it into
// Unknown.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), LookupTimeout)
}

func (r *Resolver) call(ctx context.Context, token common.Address, method string) ([]any, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("%s: no contract caller", method)
	}
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s(%s): %w", method, token.Hex(), err)
	}
	// EOAs and non-contracts answer eth_call with empty output.
	if len(out) == 0 {
		return nil, fmt.Errorf("%s(%s): %w", method, token.Hex(), ErrEmptyResult)
	}
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s(%s): unpack: %w", method, token.Hex(), err)
	}
	return vals, nil
}

// Stats reports cache hits and misses for symbol lookups.
func (r *Resolver) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

// Len is the number of cached symbols.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}
