package txclass

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"approvewatch/internal/chain"
)

type Category int

const (
	Transfer Category = iota
	Approve
	Execute
)

func (c Category) String() string {
	switch c {
	case Approve:
		return "APPROVE"
	case Execute:
		return "EXECUTE"
	case Transfer:
		return "TRANSFER"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Selector is the leading 4 bytes of call data.
type Selector [4]byte

// ApproveSelector is keccak256("approve(address,uint256)")[:4].
var ApproveSelector = Selector{0x09, 0x5e, 0xa7, 0xb3}

func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ParseSelector accepts 8 hex chars with or without 0x.
func ParseSelector(raw string) (Selector, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "0x")
	if len(s) != 8 {
		return Selector{}, fmt.Errorf("selector must be 4 bytes (8 hex chars), got %q", raw)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Selector{}, fmt.Errorf("selector %q: %w", raw, err)
	}
	var sel Selector
	copy(sel[:], b)
	return sel, nil
}

// emptyInput is the canonical "no data" value.
const emptyInput = "0x"

// NormalizeInput renders call data as lowercase 0x-prefixed hex. Raw bytes
// and pre-encoded hex strings (any case, with or without 0x) produce the
// same result. Unsupported types normalize to the empty value.
func NormalizeInput(input any) string {
	switch v := input.(type) {
	case []byte:
		return hexutil.Encode(v)
	case hexutil.Bytes:
		return hexutil.Encode(v)
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		s = strings.TrimPrefix(s, "0x")
		return "0x" + s
	default:
		return emptyInput
	}
}

// Classifier maps a transaction to its intent category.
type Classifier struct {
	approve       Selector
	approvePrefix string
}

func NewClassifier(approve Selector) *Classifier {
	return &Classifier{approve: approve, approvePrefix: approve.Hex()}
}

func (c *Classifier) Selector() Selector { return c.approve }

var defaultClassifier = NewClassifier(ApproveSelector)

// Classify uses the standard ERC-20 approve selector.
func Classify(tx chain.Transaction) Category {
	return defaultClassifier.Classify(tx)
}

func ClassifyWithSelector(tx chain.Transaction, approve Selector) Category {
	return NewClassifier(approve).Classify(tx)
}

// Classify applies a priority chain: the approval selector always wins,
// then any call with data to an existing account is EXECUTE, and everything
// else is TRANSFER.
//
// Contract creation with init code (no to) and empty-data calls to a
// contract both land in TRANSFER. That is coarse but matches what the
// trigger expects; do not split them here.
func (c *Classifier) Classify(tx chain.Transaction) Category {
	return c.ClassifyInput(tx.To != nil, NormalizeInput(tx.Input))
}

// ClassifyInput classifies already-normalized call data.
func (c *Classifier) ClassifyInput(hasTo bool, normalized string) Category {
	if strings.HasPrefix(normalized, c.approvePrefix) {
		return Approve
	}
	if hasTo && normalized != emptyInput {
		return Execute
	}
	return Transfer
}
