package core

import (
	"encoding/binary"
	"fmt"
)

// Transaction is the sum of the four admissible transaction kinds. Every
// kind defines its own message_to_sign and stateless semantic_validate;
// stateful validation against committed state lives in the engine, switched
// on the concrete type the same way the contract dispatch table switches on
// method name rather than reflecting over the value.
type Transaction interface {
	Kind() string
	Fee() uint64
	TS() uint64
	MessageToSign() []byte
	SemanticValidate() error
}

// PolyInput references a PolyBox being spent by its (prop, nonce) pair; its
// box id is H(prop.pub || u64_be(nonce)).
type PolyInput struct {
	Prop  Ed25519Pub
	Nonce uint64
}

// ID is the box id of the PolyBox this input spends.
func (in PolyInput) ID() Hash {
	return H(in.Prop.Bytes(), u64be(in.Nonce))
}

// PolyOutput is a recipient (prop, value) pair.
type PolyOutput struct {
	Prop  Ed25519Pub
	Value uint64
}

// PolyTransfer moves poly value from a set of owned boxes to a set of new
// recipients, paying fee out of the difference.
type PolyTransfer struct {
	From    []PolyInput
	To      []PolyOutput
	Sigs    []Sig
	FeeVal  uint64
	TSVal   uint64
}

func (t *PolyTransfer) Kind() string { return "PolyTransfer" }
func (t *PolyTransfer) Fee() uint64  { return t.FeeVal }
func (t *PolyTransfer) TS() uint64   { return t.TSVal }

// MessageToSign = concat(pub_of(to[*]), id_of(inputs[*]), u64_be(ts), u64_be(fee)).
func (t *PolyTransfer) MessageToSign() []byte {
	var msg []byte
	for _, out := range t.To {
		msg = append(msg, out.Prop.Bytes()...)
	}
	for _, in := range t.From {
		id := in.ID()
		msg = append(msg, id[:]...)
	}
	msg = append(msg, u64be(t.TSVal)...)
	msg = append(msg, u64be(t.FeeVal)...)
	return msg
}

func (t *PolyTransfer) SemanticValidate() error {
	if len(t.From) != len(t.Sigs) {
		return semanticInvalid("PolyTransfer", fmt.Errorf("inputs %d != sigs %d", len(t.From), len(t.Sigs)))
	}
	msg := t.MessageToSign()
	for i, in := range t.From {
		if !in.Prop.Verify(msg, t.Sigs[i]) {
			return semanticInvalid("PolyTransfer", fmt.Errorf("sig %d invalid", i))
		}
	}
	return nil
}

// hashNoNonces is the per-tx fingerprint used to derive deterministic output
// box nonces without referencing any nonce of the boxes being created.
func (t *PolyTransfer) hashNoNonces() Hash {
	var toPubs, inputIDs []byte
	for _, out := range t.To {
		toPubs = append(toPubs, out.Prop.Bytes()...)
	}
	for _, in := range t.From {
		id := in.ID()
		inputIDs = append(inputIDs, id[:]...)
	}
	return H(toPubs, inputIDs, u64be(t.TSVal), u64be(t.FeeVal))
}

// InputIDs returns the box ids spent by this transaction.
func (t *PolyTransfer) InputIDs() []Hash {
	ids := make([]Hash, len(t.From))
	for i, in := range t.From {
		ids[i] = in.ID()
	}
	return ids
}

// NewBoxes derives the recipient PolyBoxes. nonce[i] =
// first_8_bytes_as_u64_be(H(prop.pub || hash_no_nonces || u32_be(i))).
func (t *PolyTransfer) NewBoxes() []Box {
	fp := t.hashNoNonces()
	boxes := make([]Box, len(t.To))
	for i, out := range t.To {
		nonceHash := H(out.Prop.Bytes(), fp[:], u32be(uint32(i)))
		boxes[i] = &PolyBox{
			Prop:     out.Prop,
			NonceVal: binary.BigEndian.Uint64(nonceHash[:8]),
			Value:    out.Value,
		}
	}
	return boxes
}

// OutputSum supports the conservation check; the engine re-derives the input
// side from committed state.
func (t *PolyTransfer) OutputSum() uint64 {
	var sum uint64
	for _, out := range t.To {
		sum += out.Value
	}
	return sum
}

// PartyKey binds a claimed role to a public key inside a contract
// transaction.
type PartyKey struct {
	Role Role
	Pub  Ed25519Pub
}

// ContractCreation instantiates a new three-party supply-chain contract.
type ContractCreation struct {
	Agreement map[string]any
	Parties   [3]PartyKey
	Sigs      [3]Sig
	FeeVal    uint64
	TSVal     uint64
}

func (t *ContractCreation) Kind() string { return "ContractCreation" }
func (t *ContractCreation) Fee() uint64  { return t.FeeVal }
func (t *ContractCreation) TS() uint64   { return t.TSVal }

func encodeAgreement(agreement map[string]any) []byte {
	cj, err := CanonicalJSON(agreement)
	if err != nil {
		panic(fmt.Sprintf("encode agreement: %v", err))
	}
	return cj
}

// MessageToSign = u64_be(ts) || encode(agreement) || concat(parties[*].pub).
func (t *ContractCreation) MessageToSign() []byte {
	msg := append([]byte{}, u64be(t.TSVal)...)
	msg = append(msg, encodeAgreement(t.Agreement)...)
	for _, p := range t.Parties {
		msg = append(msg, p.Pub.Bytes()...)
	}
	return msg
}

func validateAgreement(agreement map[string]any) error {
	exp, ok := agreement["expirationTimestamp"]
	if !ok {
		return fmt.Errorf("agreement missing expirationTimestamp")
	}
	switch n := exp.(type) {
	case float64:
		if n < 0 {
			return fmt.Errorf("agreement expirationTimestamp must be non-negative")
		}
	default:
		return fmt.Errorf("agreement expirationTimestamp must be numeric")
	}
	return nil
}

func (t *ContractCreation) SemanticValidate() error {
	seen := map[Role]bool{}
	for _, p := range t.Parties {
		if !ValidRole(p.Role) {
			return malformed("ContractCreation", fmt.Errorf("unknown role %q", p.Role))
		}
		seen[p.Role] = true
	}
	if len(seen) != 3 {
		return semanticInvalid("ContractCreation", fmt.Errorf("roles must cover producer, hub, investor exactly once"))
	}
	if err := validateAgreement(t.Agreement); err != nil {
		return semanticInvalid("ContractCreation", err)
	}
	msg := t.MessageToSign()
	for i, p := range t.Parties {
		if !p.Pub.Verify(msg, t.Sigs[i]) {
			return semanticInvalid("ContractCreation", fmt.Errorf("sig %d invalid", i))
		}
	}
	return nil
}

func (t *ContractCreation) hashNoNonces() Hash {
	var pubs []byte
	for _, p := range t.Parties {
		pubs = append(pubs, p.Pub.Bytes()...)
	}
	return H(encodeAgreement(t.Agreement), pubs, u64be(t.TSVal), u64be(t.FeeVal))
}

// NewContractBox derives the freshly created ContractBox.
func (t *ContractCreation) NewContractBox() *ContractBox {
	keys := make([]Ed25519Pub, 3)
	roles := map[string]string{}
	for i, p := range t.Parties {
		keys[i] = p.Pub
		roles[string(p.Role)] = base58Encode(p.Pub.Bytes())
	}
	prop := MofN{M: 1, Keys: keys}

	value := map[string]any{
		"agreement": t.Agreement,
		"storage": map[string]any{
			"status": "initialized",
		},
		"lastUpdated": t.TSVal,
	}
	for role, pub := range roles {
		value[role] = pub
	}

	fp := t.hashNoNonces()
	nonceHash := H(prop.Encode(), fp[:])
	return &ContractBox{
		Prop:     prop,
		NonceVal: binary.BigEndian.Uint64(nonceHash[:8]),
		Value:    value,
	}
}

// ContractMethodExecution invokes a named method on a live contract.
type ContractMethodExecution struct {
	ContractBox *ContractBox
	Party       PartyKey
	Method      string
	Params      map[string]any
	Sigs        [2]Sig
	FeeVal      uint64
	TSVal       uint64
}

func (t *ContractMethodExecution) Kind() string { return "ContractMethodExecution" }
func (t *ContractMethodExecution) Fee() uint64  { return t.FeeVal }
func (t *ContractMethodExecution) TS() uint64   { return t.TSVal }

// MessageToSign = u64_be(ts) only.
func (t *ContractMethodExecution) MessageToSign() []byte {
	return u64be(t.TSVal)
}

func (t *ContractMethodExecution) SemanticValidate() error {
	msg := t.MessageToSign()
	if !t.ContractBox.Prop.Verify(msg, []Sig{t.Sigs[0]}) {
		return semanticInvalid("ContractMethodExecution", fmt.Errorf("sigs[0] does not satisfy contract proposition"))
	}
	if !t.Party.Pub.Verify(msg, t.Sigs[1]) {
		return semanticInvalid("ContractMethodExecution", fmt.Errorf("sigs[1] invalid for party key"))
	}
	return nil
}

// ProfileTransaction registers one or more key-value facts (today only
// "role") against a public key.
type ProfileTransaction struct {
	From   Ed25519Pub
	Sig    Sig
	KV     map[string]string
	FeeVal uint64
	TSVal  uint64
}

func (t *ProfileTransaction) Kind() string { return "ProfileTransaction" }
func (t *ProfileTransaction) Fee() uint64  { return t.FeeVal }
func (t *ProfileTransaction) TS() uint64   { return t.TSVal }

// MessageToSign = u64_be(ts) || from.pub || utf8(canonical_json(kv)).
func (t *ProfileTransaction) MessageToSign() []byte {
	cj, err := CanonicalJSON(t.KV)
	if err != nil {
		panic(fmt.Sprintf("profile message_to_sign: %v", err))
	}
	msg := append([]byte{}, u64be(t.TSVal)...)
	msg = append(msg, t.From.Bytes()...)
	msg = append(msg, cj...)
	return msg
}

func (t *ProfileTransaction) SemanticValidate() error {
	for k, v := range t.KV {
		if k != "role" {
			return malformed("ProfileTransaction", fmt.Errorf("unsupported kv key %q", k))
		}
		switch v {
		case "investor", "hub", "producer":
		default:
			return semanticInvalid("ProfileTransaction", fmt.Errorf("unknown role value %q", v))
		}
	}
	if !t.From.Verify(t.MessageToSign(), t.Sig) {
		return semanticInvalid("ProfileTransaction", fmt.Errorf("signature invalid"))
	}
	return nil
}

// NewBoxes derives one ProfileBox per kv entry.
func (t *ProfileTransaction) NewBoxes() []Box {
	boxes := make([]Box, 0, len(t.KV))
	for k, v := range t.KV {
		boxes = append(boxes, &ProfileBox{Prop: t.From, Value: v, Field: k})
	}
	return boxes
}
