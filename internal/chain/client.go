package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"approvewatch/internal/metrics"
)

// Client is the single RPC handle shared by the block loop and the token
// resolver. It is safe for concurrent use.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	limiter *rate.Limiter
}

type Options struct {
	// RPS caps outgoing calls per second. Zero disables limiting.
	RPS   float64
	Burst int
}

// Dial connects to url and verifies the endpoint by fetching the head. It
// makes one attempt; an unreachable endpoint is an error, bounded by ctx.
func Dial(ctx context.Context, url string, opts Options) (*Client, uint64, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("dial rpc: %w", err)
	}
	c := NewClient(rc, opts)
	head, err := c.BlockNumber(ctx)
	if err != nil {
		c.Close()
		return nil, 0, fmt.Errorf("failed to fetch head: %w", err)
	}
	return c, head, nil
}

func NewClient(rc *rpc.Client, opts Options) *Client {
	c := &Client{rpc: rc, eth: ethclient.NewClient(rc)}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c
}

func (c *Client) Close() {
	if c == nil || c.rpc == nil {
		return
	}
	c.rpc.Close()
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	r := c.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.Inc()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func observe(method string, started time.Time, err error) {
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.RPCErrors.WithLabelValues(method).Inc()
	}
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	started := time.Now()
	n, err := c.eth.BlockNumber(ctx)
	observe("eth_blockNumber", started, err)
	return n, err
}

// BlockByNumber fetches block n with full transaction bodies, in canonical
// block order.
func (c *Client) BlockByNumber(ctx context.Context, n uint64) (*Block, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(n), true)
	observe("eth_getBlockByNumber", started, err)
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", n, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("get block %d: %w", n, ethereum.NotFound)
	}

	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("decode block %d: %w", n, err)
	}
	return &block, nil
}

// TransactionByHash returns the raw form of a single transaction.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionByHash", hash)
	observe("eth_getTransactionByHash", started, err)
	if err != nil {
		return nil, fmt.Errorf("get tx %s: %w", hash.Hex(), err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("get tx %s: %w", hash.Hex(), ethereum.NotFound)
	}

	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode tx %s: %w", hash.Hex(), err)
	}
	return &tx, nil
}

// CallContract implements ethereum.ContractCaller.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	out, err := c.eth.CallContract(ctx, msg, blockNumber)
	observe("eth_call", started, err)
	return out, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	id, err := c.eth.ChainID(ctx)
	observe("eth_chainId", started, err)
	return id, err
}

// SleepWithContext sleeps for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
