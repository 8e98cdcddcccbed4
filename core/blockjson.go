package core

import (
	"encoding/json"
	"fmt"
)

type blockJSON struct {
	ID           string            `json:"id"`
	Timestamp    uint64            `json:"timestamp"`
	Transactions []json.RawMessage `json:"transactions"`
}

// ParseBlockJSON decodes the wire form of a Block: a hex block id, a
// timestamp, and a list of canonical transaction JSON objects.
func ParseBlockJSON(data []byte) (*Block, error) {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, malformed("parse block", err)
	}
	id, err := hashFromHex(j.ID)
	if err != nil {
		return nil, malformed("parse block", fmt.Errorf("bad block id: %w", err))
	}
	txs := make([]Transaction, 0, len(j.Transactions))
	for i, raw := range j.Transactions {
		tx, err := ParseTransactionJSON(raw)
		if err != nil {
			return nil, malformed("parse block", fmt.Errorf("tx %d: %w", i, err))
		}
		txs = append(txs, tx)
	}
	return &Block{ID: id, Timestamp: j.Timestamp, Transactions: txs}, nil
}

// MarshalBlockJSON renders b as its canonical wire JSON.
func MarshalBlockJSON(b *Block) ([]byte, error) {
	j := blockJSON{ID: b.ID.Hex(), Timestamp: b.Timestamp}
	for _, tx := range b.Transactions {
		raw, err := MarshalTransactionJSON(tx)
		if err != nil {
			return nil, err
		}
		j.Transactions = append(j.Transactions, raw)
	}
	return json.Marshal(j)
}
