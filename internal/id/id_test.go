package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGeneratePrefix(t *testing.T) {
	got, err := Generate("view")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(got, "view-") {
		t.Errorf("Generate() = %q, want prefix view-", got)
	}
	if len(got) != len("view-")+21 {
		t.Errorf("Generate() length = %d, want %d", len(got), len("view-")+21)
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		v := MustGenerate("sess")
		if seen[v] {
			t.Fatalf("duplicate id %q", v)
		}
		seen[v] = true
	}
}

func TestDocumentIsUUID(t *testing.T) {
	if _, err := uuid.Parse(Document()); err != nil {
		t.Errorf("Document() is not a uuid: %v", err)
	}
}
