package chain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is the subset of a JSON-RPC transaction object the watcher
// needs. It is decoded from the raw RPC response rather than through
// types.Transaction so that L2 system transactions (e.g. OP-stack deposits,
// type 0x7e) are read instead of rejected.
type Transaction struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address // nil for contract creation
	Input []byte
	Value *big.Int

	Type        uint64
	BlockNumber uint64
	Index       uint64
}

type Block struct {
	Number       uint64
	Hash         common.Hash
	Timestamp    uint64
	Transactions []Transaction
}

type rpcTransaction struct {
	Hash             common.Hash     `json:"hash"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Input            hexutil.Bytes   `json:"input"`
	Value            *hexutil.Big    `json:"value"`
	Type             *hexutil.Uint64 `json:"type"`
	BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
}

type rpcBlock struct {
	Number       hexutil.Uint64    `json:"number"`
	Hash         common.Hash       `json:"hash"`
	Timestamp    hexutil.Uint64    `json:"timestamp"`
	Transactions []json.RawMessage `json:"transactions"`
}

func (tx *Transaction) UnmarshalJSON(b []byte) error {
	var raw rpcTransaction
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*tx = Transaction{
		Hash:  raw.Hash,
		From:  raw.From,
		To:    raw.To,
		Input: []byte(raw.Input),
		Value: new(big.Int),
	}
	if raw.Value != nil {
		tx.Value = raw.Value.ToInt()
	}
	if raw.Type != nil {
		tx.Type = uint64(*raw.Type)
	}
	if raw.BlockNumber != nil {
		tx.BlockNumber = uint64(*raw.BlockNumber)
	}
	if raw.TransactionIndex != nil {
		tx.Index = uint64(*raw.TransactionIndex)
	}
	return nil
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var raw rpcBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	txs := make([]Transaction, 0, len(raw.Transactions))
	for i, rawTx := range raw.Transactions {
		// Hash-only bodies mean the node ignored the full-transactions flag.
		if len(rawTx) > 0 && rawTx[0] == '"' {
			return fmt.Errorf("block %d: tx %d is a hash, expected full transaction object", uint64(raw.Number), i)
		}
		var tx Transaction
		if err := json.Unmarshal(rawTx, &tx); err != nil {
			return fmt.Errorf("block %d: decode tx %d: %w", uint64(raw.Number), i, err)
		}
		if tx.BlockNumber == 0 {
			tx.BlockNumber = uint64(raw.Number)
		}
		txs = append(txs, tx)
	}

	*b = Block{
		Number:       uint64(raw.Number),
		Hash:         raw.Hash,
		Timestamp:    uint64(raw.Timestamp),
		Transactions: txs,
	}
	return nil
}
