package core

import (
	"fmt"
	"time"
)

// contractMethods is the fixed dispatch table; it is never extended at
// runtime and callers cannot invoke anything not listed here. This closes
// the attack surface that a reflective method lookup would otherwise open.
var contractMethods = map[string]func(*contractCall) (*ContractResult, error){
	"complete":        methodComplete,
	"currentStatus":   methodCurrentStatus,
	"deliver":         methodDeliver,
	"confirmDelivery": methodConfirmDelivery,
	"checkExpiration": methodCheckExpiration,
}

// contractCall bundles everything a method handler needs. blockTS is the
// timestamp the engine passes in, which is the calling transaction's ts, not
// the enclosing block's Timestamp. deliver and confirmDelivery write it in
// place of wall-clock time to keep replicas deterministic (see SPEC_FULL.md §9).
type contractCall struct {
	box     *ContractBox
	party   PartyKey
	params  map[string]any
	blockTS uint64
}

// ContractResult is either an updated contract (Box != nil: proposition,
// nonce, agreement and parties unchanged, storage and lastUpdated rewritten,
// so its content-derived ID differs) or a pure query result.
type ContractResult struct {
	Box   *ContractBox
	Query any
}

// DispatchContractMethod looks up method in the fixed table and invokes it.
// Unknown method names fail with KindSemanticInvalid; an authorized call
// that cannot be fulfilled fails with KindContractExecutionFailed and must
// leave box untouched by the caller.
func DispatchContractMethod(box *ContractBox, party PartyKey, method string, params map[string]any, blockTS uint64) (*ContractResult, error) {
	handler, ok := contractMethods[method]
	if !ok {
		return nil, semanticInvalid("contract dispatch", fmt.Errorf("unknown method %q", method))
	}
	return handler(&contractCall{box: box, party: party, params: params, blockTS: blockTS})
}

func cloneContractValue(v map[string]any) map[string]any {
	cj, err := CanonicalJSON(v)
	if err != nil {
		panic(fmt.Sprintf("clone contract value: %v", err))
	}
	clone, err := unmarshalJSONMap(cj)
	if err != nil {
		panic(fmt.Sprintf("clone contract value: %v", err))
	}
	return clone
}

func isParty(box *ContractBox, p PartyKey) bool {
	for _, k := range box.Prop.Keys {
		if k == p.Pub {
			return true
		}
	}
	return false
}

func storageOf(value map[string]any) map[string]any {
	s, _ := value["storage"].(map[string]any)
	if s == nil {
		s = map[string]any{}
		value["storage"] = s
	}
	return s
}

func statusOf(storage map[string]any) string {
	status, _ := storage["status"].(string)
	return status
}

// methodComplete is a no-op: it mutates nothing and leaves the contract box
// untouched, so it reports through Query rather than Box (a non-nil Box
// signals a replacement to the engine).
func methodComplete(c *contractCall) (*ContractResult, error) {
	if !isParty(c.box, c.party) {
		return nil, newErr(KindContractExecutionFailed, "complete", fmt.Errorf("caller is not a party to this contract"))
	}
	return &ContractResult{Query: statusOf(storageOf(c.box.Value))}, nil
}

func methodCurrentStatus(c *contractCall) (*ContractResult, error) {
	storage := storageOf(c.box.Value)
	return &ContractResult{Query: statusOf(storage)}, nil
}

func methodDeliver(c *contractCall) (*ContractResult, error) {
	if c.party.Role != RoleProducer {
		return nil, newErr(KindContractExecutionFailed, "deliver", fmt.Errorf("caller is not the producer"))
	}
	quantity, ok := asUint64(c.params["quantity"])
	if !ok || quantity == 0 {
		return nil, newErr(KindContractExecutionFailed, "deliver", fmt.Errorf("quantity must be a positive integer"))
	}

	newValue := cloneContractValue(c.box.Value)
	storage := storageOf(newValue)
	status := statusOf(storage)
	if status == "expired" || status == "complete" {
		return nil, newErr(KindContractExecutionFailed, "deliver", fmt.Errorf("contract status %q rejects delivery", status))
	}

	fulfillment, _ := storage["currentFulfillment"].(map[string]any)
	if fulfillment == nil {
		fulfillment = map[string]any{}
	}
	pending, _ := fulfillment["pendingDeliveries"].([]any)

	entry := map[string]any{
		"quantity":  quantity,
		"timestamp": c.blockTS,
	}
	idSeed := append(append([]any{}, pending...), entry)
	idBytes, err := CanonicalJSON(idSeed)
	if err != nil {
		return nil, fmt.Errorf("deliver id: %w", err)
	}
	entry["id"] = base58Encode(H(idBytes).Bytes())

	fulfillment["pendingDeliveries"] = append(pending, entry)
	storage["currentFulfillment"] = fulfillment
	newValue["lastUpdated"] = c.blockTS

	return &ContractResult{Box: &ContractBox{Prop: c.box.Prop, NonceVal: c.box.NonceVal, Value: newValue}}, nil
}

func methodConfirmDelivery(c *contractCall) (*ContractResult, error) {
	if c.party.Role != RoleHub {
		return nil, newErr(KindContractExecutionFailed, "confirmDelivery", fmt.Errorf("caller is not the hub"))
	}
	deliveryID, _ := c.params["deliveryId"].(string)
	if deliveryID == "" {
		return nil, newErr(KindContractExecutionFailed, "confirmDelivery", fmt.Errorf("deliveryId required"))
	}

	newValue := cloneContractValue(c.box.Value)
	storage := storageOf(newValue)
	fulfillment, _ := storage["currentFulfillment"].(map[string]any)
	if fulfillment == nil {
		return nil, newErr(KindContractExecutionFailed, "confirmDelivery", fmt.Errorf("no pending deliveries"))
	}
	pending, _ := fulfillment["pendingDeliveries"].([]any)

	idx := -1
	var quantity uint64
	for i, p := range pending {
		entry, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := entry["id"].(string); id == deliveryID {
			idx = i
			quantity, _ = asUint64(entry["quantity"])
			break
		}
	}
	if idx == -1 {
		return nil, newErr(KindContractExecutionFailed, "confirmDelivery", fmt.Errorf("unknown deliveryId %q", deliveryID))
	}

	remaining := make([]any, 0, len(pending)-1)
	remaining = append(remaining, pending[:idx]...)
	remaining = append(remaining, pending[idx+1:]...)
	fulfillment["pendingDeliveries"] = remaining

	delivered, _ := asUint64(fulfillment["deliveredQuantity"])
	fulfillment["deliveredQuantity"] = delivered + quantity
	storage["currentFulfillment"] = fulfillment
	newValue["lastUpdated"] = c.blockTS

	return &ContractResult{Box: &ContractBox{Prop: c.box.Prop, NonceVal: c.box.NonceVal, Value: newValue}}, nil
}

func methodCheckExpiration(c *contractCall) (*ContractResult, error) {
	agreement, _ := c.box.Value["agreement"].(map[string]any)
	exp, _ := asUint64(agreement["expirationTimestamp"])
	nowMS := uint64(time.Now().UnixMilli())
	return &ContractResult{Query: nowMS > exp}, nil
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
