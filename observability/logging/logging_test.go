package logging

import (
	"testing"
)

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("recipient", "0xdeadbeef")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("recipient value = %q, want redacted", attr.Value.String())
	}
	attr = MaskField("loan_id", "loan-42")
	if attr.Value.String() != "loan-42" {
		t.Fatalf("allowlisted value = %q, want passthrough", attr.Value.String())
	}
	attr = MaskField("payout_address", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty value = %q, want empty passthrough", attr.Value.String())
	}
}

func TestAllowlistStaysNarrow(t *testing.T) {
	for _, key := range []string{"recipient", "address", "extra_id", "token", "authorization"} {
		if IsAllowlisted(key) {
			t.Fatalf("sensitive key %q must not be allowlisted", key)
		}
	}
	if !IsAllowlisted("TX_ID") {
		t.Fatal("allowlist lookup should be case-insensitive")
	}
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("allowlist should not be empty")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted at %d: %v", i, keys)
		}
	}
}
