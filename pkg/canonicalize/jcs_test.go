package canonicalize

import (
	"encoding/json"
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}
	expected := `{"a":1,"b":2,"c":3}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}
	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}
	// Standard encoding/json would HTML-escape <, > and & as unicode
	// escape sequences; RFC 8785
	// requires the literal characters.
	expected := `{"html":"<script>alert('xss')</script> &"}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalHash_Stability(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}

	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	h1, err := CanonicalHash(v1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(v2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash mismatch for semantically identical inputs: %s != %s", h1, h2)
	}
}

func TestJCS_NumberTypes(t *testing.T) {
	input := map[string]interface{}{
		"num": json.Number("123.456"),
	}
	expected := `{"num":123.456}`

	b, err := JCS(input)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, string(b))
	}
}

func TestJCSString_IsReachable(t *testing.T) {
	s, err := JCSString(map[string]int{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if s == "" {
		t.Fatal("expected non-empty string")
	}
}

// TestJCS_AgreesWithReference exercises the gowebpki/jcs cross-check
// directly against a batch of ledger-shaped payloads, so a future change
// to encodeCanonical that drifts from RFC 8785 fails here rather than as
// an opaque error from computeEventHash.
func TestJCS_AgreesWithReference(t *testing.T) {
	payloads := []interface{}{
		map[string]interface{}{"event_type": "withdrawal-initiated", "amount": json.Number("1000"), "asset": "USDC"},
		map[string]interface{}{"nested": map[string]interface{}{"a": []interface{}{1, 2, 3}, "b": nil}},
		map[string]interface{}{"unicode": "日本語", "empty": ""},
		[]interface{}{},
		map[string]interface{}{},
	}

	for _, p := range payloads {
		if _, err := JCS(p); err != nil {
			t.Errorf("JCS(%v) diverged from reference implementation: %v", p, err)
		}
	}
}

func TestJCS_UnsupportedTypeErrors(t *testing.T) {
	// Functions can't be marshaled by the standard json encoder, so the
	// pre-marshal step fails before encodeCanonical ever sees it.
	_, err := JCS(map[string]interface{}{"bad": func() {}})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
