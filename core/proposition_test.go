package core

import (
	"crypto/ed25519"
	"testing"
)

func genKey(t *testing.T) (Ed25519Pub, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var p Ed25519Pub
	copy(p[:], pub)
	return p, priv
}

func sign(priv ed25519.PrivateKey, msg []byte) Sig {
	var s Sig
	copy(s[:], ed25519.Sign(priv, msg))
	return s
}

func TestEd25519PubVerify(t *testing.T) {
	pub, priv := genKey(t)
	msg := []byte("message")
	sig := sign(priv, msg)
	if !pub.Verify(msg, sig) {
		t.Fatalf("expected valid signature to verify")
	}
	if pub.Verify([]byte("other message"), sig) {
		t.Fatalf("signature should not verify against a different message")
	}
}

func TestMofNVerifyRequiresDistinctKeys(t *testing.T) {
	pub1, priv1 := genKey(t)
	pub2, _ := genKey(t)
	msg := []byte("contract call")
	sig := sign(priv1, msg)

	mofn := MofN{M: 1, Keys: []Ed25519Pub{pub1, pub2}}
	if !mofn.Verify(msg, []Sig{sig}) {
		t.Fatalf("expected one matching signature to satisfy m=1")
	}

	mofn2 := MofN{M: 2, Keys: []Ed25519Pub{pub1, pub2}}
	if mofn2.Verify(msg, []Sig{sig, sig}) {
		t.Fatalf("the same signature should not be able to satisfy two distinct key slots")
	}
}

func TestMofNEncodeKeyOrderIndependent(t *testing.T) {
	pub1, _ := genKey(t)
	pub2, _ := genKey(t)
	a := MofN{M: 1, Keys: []Ed25519Pub{pub1, pub2}}
	b := MofN{M: 1, Keys: []Ed25519Pub{pub2, pub1}}
	if string(a.Encode()) != string(b.Encode()) {
		t.Fatalf("Encode should be independent of input key order")
	}
}

func TestContractCreationPropositionIsOneOfThree(t *testing.T) {
	var parties [3]PartyKey
	for i, role := range []Role{RoleProducer, RoleHub, RoleInvestor} {
		pub, _ := genKey(t)
		parties[i] = PartyKey{Role: role, Pub: pub}
	}
	tx := &ContractCreation{Agreement: validAgreement(), Parties: parties, TSVal: 1000}
	prop := tx.NewContractBox().Prop
	if prop.M != 1 || len(prop.Keys) != 3 {
		t.Fatalf("expected a 1-of-3 contract proposition, got m=%d with %d keys", prop.M, len(prop.Keys))
	}
}
