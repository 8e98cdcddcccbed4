package core

import (
	"encoding/binary"
	"fmt"
)

// Box type tags, the closed set this engine understands.
const (
	TagPolyBox     = "PolyBox"
	TagArbitBox    = "ArbitBox"
	TagContractBox = "ContractBox"
	TagProfileBox  = "ProfileBox"
)

// Box is the sum type of the four unspent-record variants. Every variant
// shares a nonce and a stable, content-derived id.
type Box interface {
	TypeTag() string
	Nonce() uint64
	ID() Hash
	Encode() []byte
}

func encodeTagged(tag string, body []byte) []byte {
	out := make([]byte, 0, 4+len(tag)+len(body))
	out = append(out, u32be(uint32(len(tag)))...)
	out = append(out, []byte(tag)...)
	out = append(out, body...)
	return out
}

// PolyBox is a fungible "poly" holding.
type PolyBox struct {
	Prop     Ed25519Pub
	NonceVal uint64
	Value    uint64
}

func (b *PolyBox) TypeTag() string { return TagPolyBox }
func (b *PolyBox) Nonce() uint64   { return b.NonceVal }

func (b *PolyBox) ID() Hash {
	return H(b.Prop.Bytes(), u64be(b.NonceVal))
}

func (b *PolyBox) Encode() []byte {
	body := make([]byte, 0, 48)
	body = append(body, b.Prop.Bytes()...)
	body = append(body, u64be(b.NonceVal)...)
	body = append(body, u64be(b.Value)...)
	return encodeTagged(TagPolyBox, body)
}

// ArbitBox is a fungible "arbit" holding. No transaction kind currently
// produces or spends it; see SPEC_FULL.md §9 for the open-question decision.
type ArbitBox struct {
	Prop     Ed25519Pub
	NonceVal uint64
	Value    uint64
}

func (b *ArbitBox) TypeTag() string { return TagArbitBox }
func (b *ArbitBox) Nonce() uint64   { return b.NonceVal }

func (b *ArbitBox) ID() Hash {
	return H(b.Prop.Bytes(), u64be(b.NonceVal))
}

func (b *ArbitBox) Encode() []byte {
	body := make([]byte, 0, 48)
	body = append(body, b.Prop.Bytes()...)
	body = append(body, u64be(b.NonceVal)...)
	body = append(body, u64be(b.Value)...)
	return encodeTagged(TagArbitBox, body)
}

// ContractBox is a live three-party supply-chain contract. Value carries
// producer, hub, investor, agreement, storage and lastUpdated.
type ContractBox struct {
	Prop     MofN
	NonceVal uint64
	Value    map[string]any
}

func (b *ContractBox) TypeTag() string { return TagContractBox }
func (b *ContractBox) Nonce() uint64   { return b.NonceVal }

func (b *ContractBox) ID() Hash {
	cj, err := CanonicalJSON(b.Value)
	if err != nil {
		// Value is always constructed internally from JSON-safe maps; a
		// marshal failure here means a caller built an invalid box.
		panic(fmt.Sprintf("contract box id: %v", err))
	}
	return H(b.Prop.Encode(), u64be(b.NonceVal), cj)
}

func (b *ContractBox) Encode() []byte {
	cj, err := CanonicalJSON(b.Value)
	if err != nil {
		panic(fmt.Sprintf("contract box encode: %v", err))
	}
	body := make([]byte, 0, len(b.Prop.Encode())+8+4+len(cj))
	body = append(body, b.Prop.Encode()...)
	body = append(body, u64be(b.NonceVal)...)
	body = append(body, u32be(uint32(len(cj)))...)
	body = append(body, cj...)
	return encodeTagged(TagContractBox, body)
}

// ProfileBox binds a role or other attribute to a public key. Nonce is
// always 0; at most one ProfileBox exists per (prop, field) pair.
type ProfileBox struct {
	Prop  Ed25519Pub
	Value string
	Field string
}

func (b *ProfileBox) TypeTag() string { return TagProfileBox }
func (b *ProfileBox) Nonce() uint64   { return 0 }

func (b *ProfileBox) ID() Hash {
	return H(b.Prop.Bytes(), []byte(b.Field))
}

func (b *ProfileBox) Encode() []byte {
	body := make([]byte, 0, 32+4+len(b.Value)+4+len(b.Field))
	body = append(body, b.Prop.Bytes()...)
	body = append(body, u32be(uint32(len(b.Value)))...)
	body = append(body, []byte(b.Value)...)
	body = append(body, u32be(uint32(len(b.Field)))...)
	body = append(body, []byte(b.Field)...)
	return encodeTagged(TagProfileBox, body)
}

// ParseBox decodes a box from its canonical byte encoding.
func ParseBox(data []byte) (Box, error) {
	if len(data) < 4 {
		return nil, malformed("parse box", fmt.Errorf("truncated header"))
	}
	tagLen := binary.BigEndian.Uint32(data[:4])
	rest := data[4:]
	if uint64(len(rest)) < uint64(tagLen) {
		return nil, malformed("parse box", fmt.Errorf("truncated tag"))
	}
	tag := string(rest[:tagLen])
	body := rest[tagLen:]

	switch tag {
	case TagPolyBox:
		return parseValueBox(body, func(p Ed25519Pub, n, v uint64) Box {
			return &PolyBox{Prop: p, NonceVal: n, Value: v}
		})
	case TagArbitBox:
		return parseValueBox(body, func(p Ed25519Pub, n, v uint64) Box {
			return &ArbitBox{Prop: p, NonceVal: n, Value: v}
		})
	case TagContractBox:
		return parseContractBox(body)
	case TagProfileBox:
		return parseProfileBox(body)
	default:
		return nil, malformed("parse box", fmt.Errorf("unknown type tag %q", tag))
	}
}

func parseValueBox(body []byte, build func(Ed25519Pub, uint64, uint64) Box) (Box, error) {
	if len(body) != 32+8+8 {
		return nil, malformed("parse value box", fmt.Errorf("bad body length %d", len(body)))
	}
	pub, err := parseEd25519Pub(body[:32])
	if err != nil {
		return nil, malformed("parse value box", err)
	}
	nonce := binary.BigEndian.Uint64(body[32:40])
	value := binary.BigEndian.Uint64(body[40:48])
	return build(pub, nonce, value), nil
}

func parseMofN(body []byte) (MofN, []byte, error) {
	if len(body) < 8 {
		return MofN{}, nil, fmt.Errorf("truncated MofN header")
	}
	m := binary.BigEndian.Uint32(body[:4])
	n := binary.BigEndian.Uint32(body[4:8])
	rest := body[8:]
	if uint64(len(rest)) < uint64(n)*32 {
		return MofN{}, nil, fmt.Errorf("truncated MofN keys")
	}
	keys := make([]Ed25519Pub, n)
	for i := uint32(0); i < n; i++ {
		pub, err := parseEd25519Pub(rest[i*32 : i*32+32])
		if err != nil {
			return MofN{}, nil, err
		}
		keys[i] = pub
	}
	return MofN{M: m, Keys: keys}, rest[n*32:], nil
}

func parseContractBox(body []byte) (Box, error) {
	prop, rest, err := parseMofN(body)
	if err != nil {
		return nil, malformed("parse contract box", err)
	}
	if len(rest) < 12 {
		return nil, malformed("parse contract box", fmt.Errorf("truncated nonce/len"))
	}
	nonce := binary.BigEndian.Uint64(rest[:8])
	jsonLen := binary.BigEndian.Uint32(rest[8:12])
	jsonBytes := rest[12:]
	if uint64(len(jsonBytes)) != uint64(jsonLen) {
		return nil, malformed("parse contract box", fmt.Errorf("bad json length"))
	}
	value, err := unmarshalJSONMap(jsonBytes)
	if err != nil {
		return nil, malformed("parse contract box", err)
	}
	return &ContractBox{Prop: prop, NonceVal: nonce, Value: value}, nil
}

func parseProfileBox(body []byte) (Box, error) {
	if len(body) < 32+4 {
		return nil, malformed("parse profile box", fmt.Errorf("truncated"))
	}
	pub, err := parseEd25519Pub(body[:32])
	if err != nil {
		return nil, malformed("parse profile box", err)
	}
	off := 32
	valueLen := binary.BigEndian.Uint32(body[off : off+4])
	off += 4
	if uint64(len(body[off:])) < uint64(valueLen)+4 {
		return nil, malformed("parse profile box", fmt.Errorf("truncated value"))
	}
	value := string(body[off : off+int(valueLen)])
	off += int(valueLen)
	fieldLen := binary.BigEndian.Uint32(body[off : off+4])
	off += 4
	if uint64(len(body[off:])) != uint64(fieldLen) {
		return nil, malformed("parse profile box", fmt.Errorf("bad field length"))
	}
	field := string(body[off : off+int(fieldLen)])
	return &ProfileBox{Prop: pub, Value: value, Field: field}, nil
}
