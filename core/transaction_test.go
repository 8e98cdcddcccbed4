package core

import "testing"

func TestPolyTransferSemanticValidate(t *testing.T) {
	fromPub, fromPriv := genKey(t)
	toPub, _ := genKey(t)

	tx := &PolyTransfer{
		From:   []PolyInput{{Prop: fromPub, Nonce: 1}},
		To:     []PolyOutput{{Prop: toPub, Value: 90}},
		FeeVal: 10,
		TSVal:  1000,
	}
	tx.Sigs = []Sig{sign(fromPriv, tx.MessageToSign())}

	if err := tx.SemanticValidate(); err != nil {
		t.Fatalf("expected valid transfer, got %v", err)
	}

	tampered := *tx
	tampered.FeeVal = 11
	if err := tampered.SemanticValidate(); err == nil {
		t.Fatalf("expected signature to become invalid after fee is tampered with")
	}
}

func TestPolyTransferNewBoxesDeterministic(t *testing.T) {
	fromPub, _ := genKey(t)
	toPub, _ := genKey(t)
	tx := &PolyTransfer{
		From:   []PolyInput{{Prop: fromPub, Nonce: 1}},
		To:     []PolyOutput{{Prop: toPub, Value: 90}},
		FeeVal: 10,
		TSVal:  1000,
	}
	a := tx.NewBoxes()
	b := tx.NewBoxes()
	if a[0].ID() != b[0].ID() {
		t.Fatalf("NewBoxes must derive deterministic ids across calls")
	}
}

func TestPolyTransferOutputSum(t *testing.T) {
	toPub1, _ := genKey(t)
	toPub2, _ := genKey(t)
	tx := &PolyTransfer{To: []PolyOutput{{Prop: toPub1, Value: 10}, {Prop: toPub2, Value: 25}}}
	if sum := tx.OutputSum(); sum != 35 {
		t.Fatalf("expected output sum 35, got %d", sum)
	}
}

func validAgreement() map[string]any {
	return map[string]any{"expirationTimestamp": float64(1_000_000)}
}

func TestContractCreationSemanticValidate(t *testing.T) {
	prodPub, prodPriv := genKey(t)
	hubPub, hubPriv := genKey(t)
	invPub, invPriv := genKey(t)

	tx := &ContractCreation{
		Agreement: validAgreement(),
		Parties: [3]PartyKey{
			{Role: RoleProducer, Pub: prodPub},
			{Role: RoleHub, Pub: hubPub},
			{Role: RoleInvestor, Pub: invPub},
		},
		FeeVal: 5,
		TSVal:  1000,
	}
	msg := tx.MessageToSign()
	tx.Sigs = [3]Sig{sign(prodPriv, msg), sign(hubPriv, msg), sign(invPriv, msg)}

	if err := tx.SemanticValidate(); err != nil {
		t.Fatalf("expected valid creation, got %v", err)
	}
}

func TestContractCreationRejectsDuplicateRole(t *testing.T) {
	prodPub, prodPriv := genKey(t)
	hubPub, hubPriv := genKey(t)
	invPub, invPriv := genKey(t)

	tx := &ContractCreation{
		Agreement: validAgreement(),
		Parties: [3]PartyKey{
			{Role: RoleProducer, Pub: prodPub},
			{Role: RoleProducer, Pub: hubPub},
			{Role: RoleInvestor, Pub: invPub},
		},
		TSVal: 1000,
	}
	msg := tx.MessageToSign()
	tx.Sigs = [3]Sig{sign(prodPriv, msg), sign(hubPriv, msg), sign(invPriv, msg)}

	if err := tx.SemanticValidate(); err == nil {
		t.Fatalf("expected duplicate role to be rejected")
	}
}

func TestContractCreationRejectsMissingExpiration(t *testing.T) {
	prodPub, prodPriv := genKey(t)
	hubPub, hubPriv := genKey(t)
	invPub, invPriv := genKey(t)

	tx := &ContractCreation{
		Agreement: map[string]any{},
		Parties: [3]PartyKey{
			{Role: RoleProducer, Pub: prodPub},
			{Role: RoleHub, Pub: hubPub},
			{Role: RoleInvestor, Pub: invPub},
		},
		TSVal: 1000,
	}
	msg := tx.MessageToSign()
	tx.Sigs = [3]Sig{sign(prodPriv, msg), sign(hubPriv, msg), sign(invPriv, msg)}

	if err := tx.SemanticValidate(); err == nil {
		t.Fatalf("expected missing expirationTimestamp to be rejected")
	}
}

func TestContractMethodExecutionSemanticValidate(t *testing.T) {
	contractPub, contractPriv := genKey(t)
	partyPub, partyPriv := genKey(t)

	box := &ContractBox{Prop: MofN{M: 1, Keys: []Ed25519Pub{contractPub}}, NonceVal: 1, Value: validAgreement()}
	tx := &ContractMethodExecution{
		ContractBox: box,
		Party:       PartyKey{Role: RoleProducer, Pub: partyPub},
		Method:      "currentStatus",
		Params:      map[string]any{},
		TSVal:       2000,
	}
	msg := tx.MessageToSign()
	tx.Sigs = [2]Sig{sign(contractPriv, msg), sign(partyPriv, msg)}

	if err := tx.SemanticValidate(); err != nil {
		t.Fatalf("expected valid execution, got %v", err)
	}

	tampered := *tx
	tampered.Sigs[1] = tx.Sigs[0]
	if err := tampered.SemanticValidate(); err == nil {
		t.Fatalf("expected caller signature slot to reject contract signature")
	}
}

func TestProfileTransactionSemanticValidate(t *testing.T) {
	pub, priv := genKey(t)
	tx := &ProfileTransaction{
		From:  pub,
		KV:    map[string]string{"role": "producer"},
		TSVal: 1000,
	}
	tx.Sig = sign(priv, tx.MessageToSign())

	if err := tx.SemanticValidate(); err != nil {
		t.Fatalf("expected valid profile tx, got %v", err)
	}

	boxes := tx.NewBoxes()
	if len(boxes) != 1 || boxes[0].(*ProfileBox).Value != "producer" {
		t.Fatalf("unexpected boxes: %+v", boxes)
	}
}

func TestProfileTransactionRejectsUnknownRole(t *testing.T) {
	pub, priv := genKey(t)
	tx := &ProfileTransaction{From: pub, KV: map[string]string{"role": "astronaut"}, TSVal: 1000}
	tx.Sig = sign(priv, tx.MessageToSign())
	if err := tx.SemanticValidate(); err == nil {
		t.Fatalf("expected unknown role value to be rejected")
	}
}
