package util

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptBytes(t *testing.T) {
	key := Derive32ByteKey("evidence-key")
	plain := []byte("%PDF-1.4 statement")
	sealed, err := EncryptBytes(key, plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatalf("ciphertext leaks plaintext")
	}
	got, err := DecryptBytes(key, sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
	if _, err := DecryptBytes(Derive32ByteKey("other"), sealed); err == nil {
		t.Fatalf("expected decrypt with wrong key to fail")
	}
	if _, err := DecryptBytes(key, []byte{1, 2}); err == nil {
		t.Fatalf("expected short payload to fail")
	}
}

func TestSignVerifyHex(t *testing.T) {
	key := []byte("k")
	sig := SignHex(key, "ref\n123")
	if !VerifyHex(key, "ref\n123", sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifyHex(key, "ref\n124", sig) {
		t.Fatalf("expected tampered message to fail")
	}
	if VerifyHex(key, "ref\n123", "zz") {
		t.Fatalf("expected malformed signature to fail")
	}
}
