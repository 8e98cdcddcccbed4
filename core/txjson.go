package core

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// base58Encode and base58Decode centralize the wire encoding used for every
// public-key, signature, and box-id field in the canonical transaction JSON,
// per the pack's convention of reaching for mr-tron/base58 rather than hex.
func base58Encode(b []byte) string {
	return base58.Encode(b)
}

func base58Decode(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("base58 decode: %w", err)
	}
	return b, nil
}

func decodePub(s string) (Ed25519Pub, error) {
	b, err := base58Decode(s)
	if err != nil {
		return Ed25519Pub{}, err
	}
	return parseEd25519Pub(b)
}

func decodeSig(s string) (Sig, error) {
	var sig Sig
	b, err := base58Decode(s)
	if err != nil {
		return sig, err
	}
	if len(b) != 64 {
		return sig, fmt.Errorf("sig: want 64 bytes, got %d", len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// polyInputJSON and its siblings below are the wire shapes for each
// transaction kind, base58-encoding all key/signature/id material.

type polyInputJSON struct {
	Pub   string `json:"pub"`
	Nonce uint64 `json:"nonce"`
}

type polyOutputJSON struct {
	Pub   string `json:"pub"`
	Value uint64 `json:"value"`
}

type polyTransferJSON struct {
	Kind string           `json:"kind"`
	From []polyInputJSON  `json:"from"`
	To   []polyOutputJSON `json:"to"`
	Sigs []string         `json:"sigs"`
	Fee  uint64           `json:"fee"`
	TS   uint64           `json:"ts"`
}

type partyKeyJSON struct {
	Role string `json:"role"`
	Pub  string `json:"pub"`
}

type contractCreationJSON struct {
	Kind      string          `json:"kind"`
	Agreement json.RawMessage `json:"agreement"`
	Parties   []partyKeyJSON  `json:"parties"`
	Sigs      []string        `json:"sigs"`
	Fee       uint64          `json:"fee"`
	TS        uint64          `json:"ts"`
}

type contractBoxJSON struct {
	Prop     mofnJSON        `json:"prop"`
	Nonce    uint64          `json:"nonce"`
	Value    json.RawMessage `json:"value"`
}

type mofnJSON struct {
	M    uint32   `json:"m"`
	Keys []string `json:"keys"`
}

type contractMethodExecutionJSON struct {
	Kind        string          `json:"kind"`
	ContractBox contractBoxJSON `json:"contract_box"`
	Party       partyKeyJSON    `json:"party"`
	Method      string          `json:"method"`
	Params      json.RawMessage `json:"params"`
	Sigs        []string        `json:"sigs"`
	Fee         uint64          `json:"fee"`
	TS          uint64          `json:"ts"`
}

type profileTransactionJSON struct {
	Kind string            `json:"kind"`
	From string            `json:"from"`
	Sig  string            `json:"sig"`
	KV   map[string]string `json:"kv"`
	Fee  uint64            `json:"fee"`
	TS   uint64            `json:"ts"`
}

func mofnToJSON(p MofN) mofnJSON {
	keys := make([]string, len(p.Keys))
	for i, k := range p.Keys {
		keys[i] = base58Encode(k.Bytes())
	}
	return mofnJSON{M: p.M, Keys: keys}
}

func mofnFromJSON(j mofnJSON) (MofN, error) {
	keys := make([]Ed25519Pub, len(j.Keys))
	for i, k := range j.Keys {
		pub, err := decodePub(k)
		if err != nil {
			return MofN{}, err
		}
		keys[i] = pub
	}
	return MofN{M: j.M, Keys: keys}, nil
}

func contractBoxToJSON(b *ContractBox) (contractBoxJSON, error) {
	cj, err := CanonicalJSON(b.Value)
	if err != nil {
		return contractBoxJSON{}, err
	}
	return contractBoxJSON{Prop: mofnToJSON(b.Prop), Nonce: b.NonceVal, Value: cj}, nil
}

func contractBoxFromJSON(j contractBoxJSON) (*ContractBox, error) {
	prop, err := mofnFromJSON(j.Prop)
	if err != nil {
		return nil, err
	}
	value, err := unmarshalJSONMap(j.Value)
	if err != nil {
		return nil, err
	}
	return &ContractBox{Prop: prop, NonceVal: j.Nonce, Value: value}, nil
}

// MarshalTransactionJSON renders tx as the canonical wire JSON for the kind
// it holds.
func MarshalTransactionJSON(tx Transaction) ([]byte, error) {
	switch t := tx.(type) {
	case *PolyTransfer:
		j := polyTransferJSON{Kind: t.Kind(), Fee: t.FeeVal, TS: t.TSVal}
		for _, in := range t.From {
			j.From = append(j.From, polyInputJSON{Pub: base58Encode(in.Prop.Bytes()), Nonce: in.Nonce})
		}
		for _, out := range t.To {
			j.To = append(j.To, polyOutputJSON{Pub: base58Encode(out.Prop.Bytes()), Value: out.Value})
		}
		for _, sig := range t.Sigs {
			j.Sigs = append(j.Sigs, base58Encode(sig[:]))
		}
		return json.Marshal(j)

	case *ContractCreation:
		agreement, err := json.Marshal(t.Agreement)
		if err != nil {
			return nil, err
		}
		j := contractCreationJSON{Kind: t.Kind(), Agreement: agreement, Fee: t.FeeVal, TS: t.TSVal}
		for i, p := range t.Parties {
			j.Parties = append(j.Parties, partyKeyJSON{Role: string(p.Role), Pub: base58Encode(p.Pub.Bytes())})
			j.Sigs = append(j.Sigs, base58Encode(t.Sigs[i][:]))
		}
		return json.Marshal(j)

	case *ContractMethodExecution:
		cb, err := contractBoxToJSON(t.ContractBox)
		if err != nil {
			return nil, err
		}
		params, err := json.Marshal(t.Params)
		if err != nil {
			return nil, err
		}
		j := contractMethodExecutionJSON{
			Kind:        t.Kind(),
			ContractBox: cb,
			Party:       partyKeyJSON{Role: string(t.Party.Role), Pub: base58Encode(t.Party.Pub.Bytes())},
			Method:      t.Method,
			Params:      params,
			Fee:         t.FeeVal,
			TS:          t.TSVal,
		}
		for _, sig := range t.Sigs {
			j.Sigs = append(j.Sigs, base58Encode(sig[:]))
		}
		return json.Marshal(j)

	case *ProfileTransaction:
		j := profileTransactionJSON{
			Kind: t.Kind(),
			From: base58Encode(t.From.Bytes()),
			Sig:  base58Encode(t.Sig[:]),
			KV:   t.KV,
			Fee:  t.FeeVal,
			TS:   t.TSVal,
		}
		return json.Marshal(j)

	default:
		return nil, malformed("marshal transaction", fmt.Errorf("unknown transaction type %T", tx))
	}
}

// ParseTransactionJSON decodes the canonical wire JSON into a concrete
// Transaction, dispatching on the "kind" discriminator field.
func ParseTransactionJSON(data []byte) (Transaction, error) {
	var disc struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, malformed("parse transaction", err)
	}

	switch disc.Kind {
	case "PolyTransfer":
		var j polyTransferJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, malformed("parse PolyTransfer", err)
		}
		t := &PolyTransfer{FeeVal: j.Fee, TSVal: j.TS}
		for _, in := range j.From {
			pub, err := decodePub(in.Pub)
			if err != nil {
				return nil, malformed("parse PolyTransfer", err)
			}
			t.From = append(t.From, PolyInput{Prop: pub, Nonce: in.Nonce})
		}
		for _, out := range j.To {
			pub, err := decodePub(out.Pub)
			if err != nil {
				return nil, malformed("parse PolyTransfer", err)
			}
			t.To = append(t.To, PolyOutput{Prop: pub, Value: out.Value})
		}
		for _, s := range j.Sigs {
			sig, err := decodeSig(s)
			if err != nil {
				return nil, malformed("parse PolyTransfer", err)
			}
			t.Sigs = append(t.Sigs, sig)
		}
		return t, nil

	case "ContractCreation":
		var j contractCreationJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, malformed("parse ContractCreation", err)
		}
		if len(j.Parties) != 3 || len(j.Sigs) != 3 {
			return nil, malformed("parse ContractCreation", fmt.Errorf("expected 3 parties and 3 sigs"))
		}
		agreement, err := unmarshalJSONMap(j.Agreement)
		if err != nil {
			return nil, malformed("parse ContractCreation", err)
		}
		t := &ContractCreation{Agreement: agreement, FeeVal: j.Fee, TSVal: j.TS}
		for i, p := range j.Parties {
			role, err := parseRole(p.Role)
			if err != nil {
				return nil, malformed("parse ContractCreation", err)
			}
			pub, err := decodePub(p.Pub)
			if err != nil {
				return nil, malformed("parse ContractCreation", err)
			}
			t.Parties[i] = PartyKey{Role: role, Pub: pub}
			sig, err := decodeSig(j.Sigs[i])
			if err != nil {
				return nil, malformed("parse ContractCreation", err)
			}
			t.Sigs[i] = sig
		}
		return t, nil

	case "ContractMethodExecution":
		var j contractMethodExecutionJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, malformed("parse ContractMethodExecution", err)
		}
		if len(j.Sigs) != 2 {
			return nil, malformed("parse ContractMethodExecution", fmt.Errorf("expected 2 sigs"))
		}
		cb, err := contractBoxFromJSON(j.ContractBox)
		if err != nil {
			return nil, malformed("parse ContractMethodExecution", err)
		}
		role, err := parseRole(j.Party.Role)
		if err != nil {
			return nil, malformed("parse ContractMethodExecution", err)
		}
		pub, err := decodePub(j.Party.Pub)
		if err != nil {
			return nil, malformed("parse ContractMethodExecution", err)
		}
		params, err := unmarshalJSONMap(j.Params)
		if err != nil {
			return nil, malformed("parse ContractMethodExecution", err)
		}
		t := &ContractMethodExecution{
			ContractBox: cb,
			Party:       PartyKey{Role: role, Pub: pub},
			Method:      j.Method,
			Params:      params,
			FeeVal:      j.Fee,
			TSVal:       j.TS,
		}
		for i, s := range j.Sigs {
			sig, err := decodeSig(s)
			if err != nil {
				return nil, malformed("parse ContractMethodExecution", err)
			}
			t.Sigs[i] = sig
		}
		return t, nil

	case "ProfileTransaction":
		var j profileTransactionJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, malformed("parse ProfileTransaction", err)
		}
		from, err := decodePub(j.From)
		if err != nil {
			return nil, malformed("parse ProfileTransaction", err)
		}
		sig, err := decodeSig(j.Sig)
		if err != nil {
			return nil, malformed("parse ProfileTransaction", err)
		}
		return &ProfileTransaction{From: from, Sig: sig, KV: j.KV, FeeVal: j.Fee, TSVal: j.TS}, nil

	default:
		return nil, malformed("parse transaction", fmt.Errorf("unknown kind %q", disc.Kind))
	}
}
