package dbtypes

import "testing"

type spec struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func TestJSONListValueAndScan(t *testing.T) {
	in := JSONList[spec]{{Name: "Origin", Value: "USA"}, {Name: "Weight", Value: "1.36kg"}}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var out JSONList[spec]
	if err := out.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out) != 2 || out[1].Value != "1.36kg" {
		t.Fatalf("unexpected round trip %+v", out)
	}
}

func TestJSONListNilBecomesEmpty(t *testing.T) {
	var nilList JSONList[string]
	v, err := nilList.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "[]" {
		t.Fatalf("expected empty array literal, got %v", v)
	}

	var out JSONList[string]
	if err := out.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", out)
	}
	if err := out.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
}
