package core

import "testing"

func TestCanonicalJSONKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}
	b := map[string]any{"c": map[string]any{"y": 2, "z": 1}, "a": 2, "b": 1}

	ja, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	jb, err := CanonicalJSON(b)
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	if string(ja) != string(jb) {
		t.Fatalf("canonical json differs for equivalent maps: %s != %s", ja, jb)
	}
}

func TestCanonicalJSONNoInsignificantWhitespace(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"a": 1, "b": []any{1, 2, 3}})
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	want := `{"a":1,"b":[1,2,3]}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}

func TestUnmarshalJSONMapRoundTrip(t *testing.T) {
	cj, err := CanonicalJSON(map[string]any{"status": "initialized", "qty": 5})
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	m, err := unmarshalJSONMap(cj)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["status"] != "initialized" {
		t.Fatalf("unexpected status field: %v", m["status"])
	}
}
