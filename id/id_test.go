package id_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xraph/vectorflow/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"Creation", func() id.ID { return id.New(id.PrefixCreation) }, "vec_"},
		{"Deletion", func() id.ID { return id.New(id.PrefixDeletion) }, "del_"},
		{"Bulk", func() id.ID { return id.New(id.PrefixBulk) }, "bulk_"},
		{"Run", id.NewRunID, "run_"},
		{"SubJob", id.NewSubJobID, "sub_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
			if len(got) != len(tt.prefix)+26 {
				t.Errorf("len(%q) = %d, want %d", got, len(got), len(tt.prefix)+26)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.New(id.PrefixSync)
	parsed, err := id.ParseWithPrefix(original.String(), id.PrefixSync)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no prefix", "01h2xcejqtf2nbrexx3vqjhp41"},
		{"short suffix", "vec_abc"},
		{"not base32", "vec_01h2xcejqtf2nbrexx3vqjhpu!"},
		{"upper-case prefix", "VEC_01h2xcejqtf2nbrexx3vqjhp41"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := id.Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestCrossPrefixRejection(t *testing.T) {
	run := id.NewRunID()
	if _, err := id.ParseWithPrefix(run.String(), id.PrefixBulk); err == nil {
		t.Error("expected prefix mismatch error")
	}
}

func TestSortable(t *testing.T) {
	first := id.New(id.PrefixCreation)
	time.Sleep(2 * time.Millisecond)
	second := id.New(id.PrefixCreation)
	if first.String() >= second.String() {
		t.Errorf("%q should sort before %q", first, second)
	}
}

func TestJSON(t *testing.T) {
	original := id.NewRunID()
	data, err := json.Marshal(struct {
		ID id.ID `json:"id"`
	}{original})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		ID id.ID `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != original.String() {
		t.Errorf("got %q, want %q", out.ID, original)
	}

	var nilID id.ID
	if err := nilID.UnmarshalText(nil); err != nil || !nilID.IsNil() {
		t.Errorf("empty text should yield Nil, got %v, %v", nilID, err)
	}
}

func TestNewPanicsOnBadPrefix(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	id.New("Bad-Prefix")
}
