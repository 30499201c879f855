package txclass

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders v scaled down by 10^decimals without rounding.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// FormatEther renders a wei amount in ether.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, 18)
}
