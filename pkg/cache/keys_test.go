package cache

import "testing"

func TestHashLengthAndStability(t *testing.T) {
	h1 := Hash("brake pads for 2019 toyota camry")
	h2 := Hash("brake pads for 2019 toyota camry")
	if h1 != h2 {
		t.Fatal("hash must be deterministic")
	}
	if len(h1) != 16 {
		t.Fatalf("hash length = %d, want 16", len(h1))
	}
	if Hash("a") == Hash("b") {
		t.Fatal("different inputs should hash differently")
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"z": 1, "y": 2}}
	b := map[string]any{"nested": map[string]any{"y": 2, "z": 1}, "a": 1, "b": 2}

	ca, err := CanonicalJSON(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical encodings differ:\n%s\n%s", ca, cb)
	}
	want := `{"a":1,"b":2,"nested":{"y":2,"z":1}}`
	if string(ca) != want {
		t.Fatalf("canonical = %s, want %s", ca, want)
	}
}

func TestHashValueStableAcrossFieldOrder(t *testing.T) {
	h1, err := HashValue(map[string]any{"page": 1, "limit": 20, "q": "bosch"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashValue(map[string]any{"q": "bosch", "page": 1, "limit": 20})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("hash must not depend on insertion order")
	}
}
