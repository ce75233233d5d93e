package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

func TestSpillBuffer_InMemory(t *testing.T) {
	b := NewSpillBuffer(1<<20, t.TempDir())
	defer b.Close()

	for i := range 3 {
		if err := b.Append(fmt.Appendf(nil, `{"n":%d}`, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3", b.Len())
	}

	var out bytes.Buffer
	if err := b.WriteJSONArray(&out); err != nil {
		t.Fatalf("WriteJSONArray: %v", err)
	}
	var decoded []map[string]int
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, out.String())
	}
	if len(decoded) != 3 || decoded[2]["n"] != 2 {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestSpillBuffer_OverflowsToDisk(t *testing.T) {
	// A tiny budget forces the overflow path immediately.
	b := NewSpillBuffer(16, t.TempDir())
	defer b.Close()

	for i := range 100 {
		if err := b.Append(fmt.Appendf(nil, `{"n":%d}`, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if b.file == nil {
		t.Fatal("expected overflow file to exist")
	}

	var out bytes.Buffer
	if err := b.WriteJSONArray(&out); err != nil {
		t.Fatalf("WriteJSONArray: %v", err)
	}
	var decoded []map[string]int
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(decoded) != 100 {
		t.Errorf("len = %d, want 100", len(decoded))
	}
}

func TestSpillBuffer_EmptyArray(t *testing.T) {
	b := NewSpillBuffer(1<<20, t.TempDir())
	defer b.Close()

	var out bytes.Buffer
	if err := b.WriteJSONArray(&out); err != nil {
		t.Fatalf("WriteJSONArray: %v", err)
	}
	if out.String() != "[]" {
		t.Errorf("output = %q, want []", out.String())
	}
}
