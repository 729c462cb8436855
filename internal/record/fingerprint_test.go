package record

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	fs := FieldSet{Fields: []Field{{Name: "a", Value: "x"}, {Name: "b", Value: float64(1)}}}
	h1, err := Fingerprint(fs, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	h2, err := Fingerprint(fs, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("fingerprint not deterministic: %s != %s", h1, h2)
	}
}

func TestFingerprintFieldOrderMatters(t *testing.T) {
	a := FieldSet{Fields: []Field{{Name: "a", Value: "x"}, {Name: "b", Value: "y"}}}
	b := FieldSet{Fields: []Field{{Name: "b", Value: "y"}, {Name: "a", Value: "x"}}}

	ha, err := Fingerprint(a, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	hb, err := Fingerprint(b, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if ha == hb {
		t.Fatalf("expected different fingerprints for different field order without sorting")
	}
}

func TestFingerprintSortNormalizesOrder(t *testing.T) {
	a := FieldSet{Fields: []Field{{Name: "a", Value: "x"}, {Name: "b", Value: "y"}}}
	b := FieldSet{Fields: []Field{{Name: "b", Value: "y"}, {Name: "a", Value: "x"}}}

	ha, err := Fingerprint(a, true)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	hb, err := Fingerprint(b, true)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected identical fingerprints when sorted: %s != %s", ha, hb)
	}
}

func TestFingerprintNamesDoNotEnterDigest(t *testing.T) {
	a := FieldSet{Fields: []Field{{Name: "a", Value: "x"}}}
	b := FieldSet{Fields: []Field{{Name: "totally-different-name", Value: "x"}}}

	ha, err := Fingerprint(a, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	hb, err := Fingerprint(b, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected field names to be excluded from the digest")
	}
}

func TestFingerprintDepthExceeded(t *testing.T) {
	var nest Value = "leaf"
	for i := 0; i < MaxDepth+2; i++ {
		nest = []Value{nest}
	}
	fs := FieldSet{Fields: []Field{{Name: "deep", Value: nest}}}

	_, err := Fingerprint(fs, false)
	if err == nil {
		t.Fatalf("expected depth exceeded error")
	}
}

func TestFingerprintNestedMapSortsKeys(t *testing.T) {
	a := FieldSet{Fields: []Field{{Name: "m", Value: map[string]Value{"z": 1, "a": 2}}}}
	b := FieldSet{Fields: []Field{{Name: "m", Value: map[string]Value{"a": 2, "z": 1}}}}

	ha, err := Fingerprint(a, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	hb, err := Fingerprint(b, false)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected map key order to not affect fingerprint")
	}
}
