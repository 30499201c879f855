package chain

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockJSON = `{
  "number": "0x65",
  "hash": "0x1111111111111111111111111111111111111111111111111111111111111111",
  "timestamp": "0x6553f100",
  "transactions": [
    {
      "hash": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
      "from": "0xdeaddeaddeaddeaddeaddeaddeaddeaddead0001",
      "to": "0x4200000000000000000000000000000000000015",
      "input": "0x440a5e20",
      "value": "0x0",
      "type": "0x7e",
      "transactionIndex": "0x0"
    },
    {
      "hash": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
      "from": "0x6cc148a7adbc2efadded8e0e9a86f6faf3678cba",
      "to": null,
      "input": "0x6080",
      "value": "0xde0b6b3a7640000",
      "type": "0x2",
      "blockNumber": "0x65",
      "transactionIndex": "0x1"
    }
  ]
}`

func TestBlockUnmarshal(t *testing.T) {
	var b Block
	require.NoError(t, json.Unmarshal([]byte(blockJSON), &b))

	assert.Equal(t, uint64(101), b.Number)
	require.Len(t, b.Transactions, 2)

	deposit := b.Transactions[0]
	assert.Equal(t, uint64(0x7e), deposit.Type)
	assert.Equal(t, uint64(101), deposit.BlockNumber, "block number backfilled from header")
	require.NotNil(t, deposit.To)
	assert.Equal(t, common.HexToAddress("0x4200000000000000000000000000000000000015"), *deposit.To)
	assert.Equal(t, []byte{0x44, 0x0a, 0x5e, 0x20}, deposit.Input)

	create := b.Transactions[1]
	assert.Nil(t, create.To)
	assert.Equal(t, "1000000000000000000", create.Value.String())
	assert.Equal(t, uint64(1), create.Index)
	assert.Equal(t, common.HexToAddress("0x6cc148a7adbc2efadded8e0e9a86f6faf3678cba"), create.From)
}

func TestBlockUnmarshal_HashOnlyBodiesRejected(t *testing.T) {
	raw := `{"number":"0x1","hash":"0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc","timestamp":"0x0","transactions":["0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"]}`
	var b Block
	require.Error(t, json.Unmarshal([]byte(raw), &b))
}

func TestTransactionUnmarshal_MissingValue(t *testing.T) {
	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"hash":"0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc","from":"0x0000000000000000000000000000000000000001","input":"0x"}`), &tx))
	require.NotNil(t, tx.Value)
	assert.Equal(t, 0, tx.Value.Sign())
	assert.Empty(t, tx.Input)
}

func TestValidateRPCURL(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateRPCURL(DefaultRPCURL))
	require.NoError(t, ValidateRPCURL("wss://base.example/ws"))
	require.Error(t, ValidateRPCURL(""))
	require.Error(t, ValidateRPCURL("ftp://x"))
	require.Error(t, ValidateRPCURL("https://base-mainnet.g.alchemy.com/v2/YOUR_KEY"))
}
