package txclass

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	ErrShortInput = errors.New("approve: input too short")
	ErrNotApprove = errors.New("approve: selector mismatch")
)

// Approval is the decoded argument list of approve(address,uint256).
type Approval struct {
	Spender common.Address
	Amount  *big.Int
}

var approveArgs = abi.Arguments{
	{Name: "spender", Type: mustABIType("address")},
	{Name: "amount", Type: mustABIType("uint256")},
}

func mustABIType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

// DecodeApprove decodes call data carrying the standard approve selector.
func DecodeApprove(input []byte) (*Approval, error) {
	return decodeApprove(input, ApproveSelector)
}

// DecodeApprove decodes call data carrying the classifier's approval
// selector.
func (c *Classifier) DecodeApprove(input []byte) (*Approval, error) {
	return decodeApprove(input, c.approve)
}

// decodeApprove parses the two 32-byte words after the selector:
// word 0 holds the spender in its low 20 bytes, word 1 the big-endian amount.
// Trailing bytes past the second word are ignored.
func decodeApprove(input []byte, sel Selector) (*Approval, error) {
	// layout:
	// 0..4   selector
	// 4..36  spender (address, left-padded)
	// 36..68 amount (uint256)
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: len=%d", ErrShortInput, len(input))
	}
	if !bytes.Equal(input[:4], sel[:]) {
		return nil, fmt.Errorf("%w: got 0x%x", ErrNotApprove, input[:4])
	}
	if len(input) < 4+2*32 {
		return nil, fmt.Errorf("%w: len=%d", ErrShortInput, len(input))
	}

	vals, err := approveArgs.Unpack(input[4 : 4+2*32])
	if err != nil {
		return nil, fmt.Errorf("approve: unpack: %w", err)
	}
	spender, ok := vals[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("approve: unexpected spender type %T", vals[0])
	}
	amount, ok := vals[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("approve: unexpected amount type %T", vals[1])
	}
	return &Approval{Spender: spender, Amount: amount}, nil
}

// IsUnlimited reports the common "infinite approval" value, max(uint256).
func (a *Approval) IsUnlimited() bool {
	if a == nil || a.Amount == nil {
		return false
	}
	return a.Amount.Cmp(math.MaxBig256) == 0
}
