package utils

import "testing"

func TestHashStringToUint64Stable(t *testing.T) {
	if HashStringToUint64("lead-1") != HashStringToUint64("lead-1") {
		t.Fatalf("hash must be deterministic")
	}
	if HashStringToUint64("lead-1") == HashStringToUint64("lead-2") {
		t.Fatalf("expected different hashes for different leads")
	}
	// FNV-1a 64 offset basis.
	if got := HashStringToUint64(""); got != 0xcbf29ce484222325 {
		t.Fatalf("unexpected empty hash %x", got)
	}
}
