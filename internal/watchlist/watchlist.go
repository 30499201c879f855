package watchlist

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEmpty         = errors.New("watchlist: no wallets configured")
	ErrInvalidWallet = errors.New("watchlist: invalid wallet address")
)

// Watchlist is an immutable set of wallet addresses.
//
// common.Address is a fixed 20-byte value, so membership is exact byte
// equality no matter how the input hex was cased.
type Watchlist struct {
	set    map[common.Address]struct{}
	sorted []common.Address
}

// New builds a watchlist from addrs. Duplicates collapse silently; an empty
// input is a configuration error.
func New(addrs []common.Address) (*Watchlist, error) {
	set := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	if len(set) == 0 {
		return nil, ErrEmpty
	}

	sorted := make([]common.Address, 0, len(set))
	for a := range set {
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Bytes(), sorted[j].Bytes()) < 0
	})

	return &Watchlist{set: set, sorted: sorted}, nil
}

// Parse builds a watchlist from a WATCHED_WALLETS style value: addresses
// separated by commas, semicolons or whitespace, in any case. Every entry
// must be exactly one address; two addresses run together without a
// separator are rejected rather than truncated.
func Parse(raw string) (*Watchlist, error) {
	entries := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	addrs := make([]common.Address, 0, len(entries))
	for i, entry := range entries {
		if !common.IsHexAddress(entry) {
			return nil, fmt.Errorf("%w: entry %d %q", ErrInvalidWallet, i+1, entry)
		}
		addrs = append(addrs, common.HexToAddress(entry))
	}
	return New(addrs)
}

func (w *Watchlist) Contains(addr common.Address) bool {
	if w == nil {
		return false
	}
	_, ok := w.set[addr]
	return ok
}

// Resolve returns the watched side of a transaction. The sender is checked
// first, so a tx between two watched wallets belongs to the sender.
// to is nil for contract creation.
func (w *Watchlist) Resolve(from common.Address, to *common.Address) (common.Address, bool) {
	if w.Contains(from) {
		return from, true
	}
	if to != nil && w.Contains(*to) {
		return *to, true
	}
	return common.Address{}, false
}

func (w *Watchlist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.sorted)
}

// Addresses returns the wallets sorted by byte value.
func (w *Watchlist) Addresses() []common.Address {
	if w == nil {
		return nil
	}
	return append([]common.Address(nil), w.sorted...)
}

// String joins the lowercase addresses with commas, for logs.
func (w *Watchlist) String() string {
	if w == nil || len(w.sorted) == 0 {
		return ""
	}
	parts := make([]string, 0, len(w.sorted))
	for _, a := range w.sorted {
		parts = append(parts, Key(a))
	}
	return strings.Join(parts, ",")
}

// Key is the normalized (lowercase hex) form of addr used in logs, JSON and
// map keys outside this package.
func Key(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
