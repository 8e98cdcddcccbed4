package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tristate-ledger/internal/metrics"
)

// Block is a confirmed block handed to the engine by the (out of scope)
// ordering/consensus layer.
type Block struct {
	ID           Hash
	Timestamp    uint64
	Transactions []Transaction
}

// EngineConfig configures clock-skew tolerance for the freshness check.
type EngineConfig struct {
	ClockSkewToleranceMS int64
}

// Engine is the state-transition subsystem: it decides whether a block is
// admissible and, if so, derives and atomically applies its box deltas.
// It is single-writer: ApplyBlock and RollbackTo must not be called
// concurrently with each other, though ClosedBox may run concurrently with
// either (Store.Get takes its own read lock).
type Engine struct {
	store   *Store
	logger  *logrus.Logger
	cfg     EngineConfig
	metrics *metrics.Collector

	stateTS uint64
}

// NewEngine wires a store and logger into an Engine, recovering the current
// state timestamp from the store's sentinel key.
func NewEngine(store *Store, cfg EngineConfig, logger *logrus.Logger) (*Engine, error) {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{store: store, logger: logger, cfg: cfg}
	ts, ok, err := store.LastTimestamp()
	if err != nil {
		return nil, storeError("new engine", err)
	}
	if ok {
		e.stateTS = ts
	}
	return e, nil
}

// SetMetrics attaches a metrics collector; ApplyBlock reports through it
// when set. Metrics are optional so core has no hard dependency on a
// running collector for tests or offline tooling.
func (e *Engine) SetMetrics(c *metrics.Collector) { e.metrics = c }

func (e *Engine) now() uint64 {
	return uint64(time.Now().UTC().UnixMilli())
}

func (e *Engine) wallClockFresh() bool {
	return int64(e.stateTS) < int64(e.now())+e.cfg.ClockSkewToleranceMS
}

// ClosedBox is a point read against the latest committed snapshot.
func (e *Engine) ClosedBox(id Hash) (Box, bool, error) {
	raw, ok, err := e.store.Get(id)
	if err != nil {
		return nil, false, storeError("closed_box", err)
	}
	if !ok {
		return nil, false, nil
	}
	box, err := ParseBox(raw)
	if err != nil {
		return nil, false, err
	}
	return box, true, nil
}

func (e *Engine) getProfile(pub Ed25519Pub, field string) (*ProfileBox, bool, error) {
	id := (&ProfileBox{Prop: pub, Field: field}).ID()
	box, ok, err := e.ClosedBox(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	pb, ok := box.(*ProfileBox)
	if !ok {
		return nil, false, stateInvalid("get profile", fmt.Errorf("box %s is not a ProfileBox", id.Hex()))
	}
	return pb, true, nil
}

// SemanticValidity runs the stateless check a kind defines, usable for
// mempool admission before any box lookups.
func (e *Engine) SemanticValidity(tx Transaction) error {
	return tx.SemanticValidate()
}

// Validate runs full stateful validation against the current committed
// snapshot without applying anything.
func (e *Engine) Validate(tx Transaction) error {
	if err := tx.SemanticValidate(); err != nil {
		return err
	}
	_, _, err := e.statefulCheck(tx)
	return err
}

// txDelta is the per-transaction contribution to a block's changes.
type txDelta struct {
	remove []Hash
	append map[Hash][]byte
}

// statefulCheck validates tx against the pre-block snapshot and returns the
// box delta it would contribute if the whole block commits. The timestamp
// freshness check applies uniformly to every kind, not only the ones whose
// own semantic rules mention a timestamp.
func (e *Engine) statefulCheck(tx Transaction) (*txDelta, *ContractBox, error) {
	if tx.TS() <= e.stateTS {
		return nil, nil, stateInvalid("stateful check", fmt.Errorf("ts %d not ahead of state ts %d", tx.TS(), e.stateTS))
	}
	if !e.wallClockFresh() {
		return nil, nil, stateInvalid("stateful check", fmt.Errorf("state ts not behind wall clock"))
	}
	switch t := tx.(type) {
	case *PolyTransfer:
		return e.checkPolyTransfer(t)
	case *ContractCreation:
		return e.checkContractCreation(t)
	case *ContractMethodExecution:
		return e.checkContractMethodExecution(t)
	case *ProfileTransaction:
		return e.checkProfileTransaction(t)
	default:
		return nil, nil, malformed("stateful check", fmt.Errorf("unknown transaction type %T", tx))
	}
}

func (e *Engine) checkPolyTransfer(t *PolyTransfer) (*txDelta, *ContractBox, error) {
	msg := t.MessageToSign()
	var inputSum uint64
	remove := make([]Hash, 0, len(t.From))
	for i, in := range t.From {
		id := in.ID()
		raw, ok, err := e.store.Get(id)
		if err != nil {
			return nil, nil, storeError("PolyTransfer", err)
		}
		if !ok {
			return nil, nil, stateInvalid("PolyTransfer", fmt.Errorf("input box %s not found", id.Hex()))
		}
		box, err := ParseBox(raw)
		if err != nil {
			return nil, nil, err
		}
		pb, ok := box.(*PolyBox)
		if !ok {
			return nil, nil, stateInvalid("PolyTransfer", fmt.Errorf("box %s is not a PolyBox", id.Hex()))
		}
		if !pb.Prop.Verify(msg, t.Sigs[i]) {
			return nil, nil, stateInvalid("PolyTransfer", fmt.Errorf("sig %d does not validate against box proposition", i))
		}
		inputSum += pb.Value
		remove = append(remove, id)
	}
	if inputSum != t.OutputSum()+t.FeeVal {
		return nil, nil, stateInvalid("PolyTransfer", fmt.Errorf("conservation violated: in=%d out=%d fee=%d", inputSum, t.OutputSum(), t.FeeVal))
	}

	appendMap := make(map[Hash][]byte)
	for _, box := range t.NewBoxes() {
		appendMap[box.ID()] = box.Encode()
	}
	return &txDelta{remove: remove, append: appendMap}, nil, nil
}

func (e *Engine) checkContractCreation(t *ContractCreation) (*txDelta, *ContractBox, error) {
	roles := map[Role]bool{}
	for _, p := range t.Parties {
		profile, ok, err := e.getProfile(p.Pub, "role")
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, stateInvalid("ContractCreation", fmt.Errorf("no role profile for party %s", base58Encode(p.Pub.Bytes())))
		}
		if profile.Value != string(p.Role) {
			return nil, nil, stateInvalid("ContractCreation", fmt.Errorf("party role %q does not match registered role %q", p.Role, profile.Value))
		}
		roles[p.Role] = true
	}
	if len(roles) != 3 {
		return nil, nil, stateInvalid("ContractCreation", fmt.Errorf("roles do not cover producer, hub, investor"))
	}

	newBox := t.NewContractBox()
	if _, ok, err := e.store.Get(newBox.ID()); err != nil {
		return nil, nil, storeError("ContractCreation", err)
	} else if ok {
		return nil, nil, stateInvalid("ContractCreation", fmt.Errorf("contract box %s already exists", newBox.ID().Hex()))
	}

	return &txDelta{append: map[Hash][]byte{newBox.ID(): newBox.Encode()}}, nil, nil
}

func (e *Engine) checkContractMethodExecution(t *ContractMethodExecution) (*txDelta, *ContractBox, error) {
	refID := t.ContractBox.ID()
	raw, ok, err := e.store.Get(refID)
	if err != nil {
		return nil, nil, storeError("ContractMethodExecution", err)
	}
	if !ok {
		return nil, nil, stateInvalid("ContractMethodExecution", fmt.Errorf("contract box %s not found", refID.Hex()))
	}
	box, err := ParseBox(raw)
	if err != nil {
		return nil, nil, err
	}
	current, ok := box.(*ContractBox)
	if !ok {
		return nil, nil, stateInvalid("ContractMethodExecution", fmt.Errorf("box %s is not a ContractBox", refID.Hex()))
	}

	profile, ok, err := e.getProfile(t.Party.Pub, "role")
	if err != nil {
		return nil, nil, err
	}
	if !ok || profile.Value != string(t.Party.Role) {
		return nil, nil, stateInvalid("ContractMethodExecution", fmt.Errorf("caller role does not match registered profile"))
	}

	result, err := DispatchContractMethod(current, t.Party, t.Method, t.Params, t.TSVal)
	if err != nil {
		// Reaching ContractExecutionFailed here means an unauthorized or
		// otherwise invalid call slipped past the checks above; treat as
		// StateInvalid per the error-handling design, leaving the box
		// untouched either way.
		return nil, nil, stateInvalid("ContractMethodExecution", err)
	}
	if result.Box == nil {
		// Pure query method: no state change, fee still applies.
		return &txDelta{}, nil, nil
	}

	newValue := result.Box.Value
	fingerprint := H(current.Prop.Encode(), H(encodeMapCanonical(newValue)).Bytes(), u64be(t.TSVal))
	newBox := &ContractBox{
		Prop:     current.Prop,
		NonceVal: binary.BigEndian.Uint64(fingerprint[:8]),
		Value:    newValue,
	}

	return &txDelta{
		remove: []Hash{refID},
		append: map[Hash][]byte{newBox.ID(): newBox.Encode()},
	}, newBox, nil
}

func encodeMapCanonical(v map[string]any) []byte {
	cj, err := CanonicalJSON(v)
	if err != nil {
		panic(fmt.Sprintf("encode contract value: %v", err))
	}
	return cj
}

func (e *Engine) checkProfileTransaction(t *ProfileTransaction) (*txDelta, *ContractBox, error) {
	appendMap := make(map[Hash][]byte)
	for _, box := range t.NewBoxes() {
		id := box.ID()
		if _, ok, err := e.store.Get(id); err != nil {
			return nil, nil, storeError("ProfileTransaction", err)
		} else if ok {
			return nil, nil, stateInvalid("ProfileTransaction", fmt.Errorf("profile box %s already exists", id.Hex()))
		}
		appendMap[id] = box.Encode()
	}
	return &txDelta{append: appendMap}, nil, nil
}

// ApplyBlock validates every transaction against the pre-block snapshot,
// checks for intra-block conflicts, and atomically commits the union of
// per-tx deltas. On any failure the store is left untouched.
func (e *Engine) ApplyBlock(b *Block) error {
	e.logger.Debugf("engine: applying block %s with %d txs", b.ID.Hex(), len(b.Transactions))
	start := time.Now()

	reject := func(kind Kind, err error) error {
		if e.metrics != nil {
			e.metrics.ObserveRejected(kind.String())
		}
		return err
	}

	removed := map[Hash]bool{}
	appended := map[Hash][]byte{}

	for i, tx := range b.Transactions {
		if err := tx.SemanticValidate(); err != nil {
			e.logger.Warnf("engine: block %s rejected: tx %d semantic: %v", b.ID.Hex(), i, err)
			return reject(kindOf(err), err)
		}
		delta, _, err := e.statefulCheck(tx)
		if err != nil {
			e.logger.Warnf("engine: block %s rejected: tx %d stateful: %v", b.ID.Hex(), i, err)
			return reject(kindOf(err), err)
		}
		for _, id := range delta.remove {
			if removed[id] {
				return reject(KindStateInvalid, stateInvalid("apply block", fmt.Errorf("box %s removed twice within block", id.Hex())))
			}
			removed[id] = true
		}
		for id, bytes := range delta.append {
			if removed[id] {
				return reject(KindStateInvalid, stateInvalid("apply block", fmt.Errorf("box %s re-created after removal within block", id.Hex())))
			}
			if _, exists := appended[id]; exists {
				return reject(KindStateInvalid, stateInvalid("apply block", fmt.Errorf("box %s created twice within block", id.Hex())))
			}
			appended[id] = bytes
		}
	}

	sentinel := timestampSentinelID()
	appended[sentinel] = u64be(b.Timestamp)

	removeIDs := make([]Hash, 0, len(removed))
	for id := range removed {
		removeIDs = append(removeIDs, id)
	}

	if err := e.store.Update(b.ID, removeIDs, appended); err != nil {
		return reject(KindStoreError, storeError("apply block", err))
	}
	e.stateTS = b.Timestamp
	if e.metrics != nil {
		e.metrics.ObserveApplied(time.Since(start).Seconds())
	}
	e.logger.Debugf("engine: block %s applied; state ts now %d", b.ID.Hex(), e.stateTS)
	return nil
}

func kindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindMalformed
}

// RollbackTo truncates the store to version and reconstructs the in-memory
// state timestamp from the sentinel key.
func (e *Engine) RollbackTo(version Hash) error {
	if err := e.store.Rollback(version); err != nil {
		return err
	}
	ts, ok, err := e.store.LastTimestamp()
	if err != nil {
		return storeError("rollback_to", err)
	}
	if ok {
		e.stateTS = ts
	} else {
		e.stateTS = 0
	}
	e.logger.Debugf("engine: rolled back to %s; state ts now %d", version.Hex(), e.stateTS)
	return nil
}

// StateTimestamp returns the engine's current recovered state timestamp.
func (e *Engine) StateTimestamp() uint64 { return e.stateTS }
