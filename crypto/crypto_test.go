package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptorBadKey(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewAESEncryptor(tc.key); err == nil {
				t.Errorf("NewAESEncryptor(%q) should fail", tc.key)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}

	plain := "ya29.a0AfB_refresh-token-material"
	ct, err := EncryptString(enc, plain)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if ct == plain {
		t.Fatal("ciphertext equals plaintext")
	}
	got, err := DecryptString(enc, ct)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if got != plain {
		t.Errorf("round trip = %q, want %q", got, plain)
	}
}

func TestEncryptNonceUnique(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	a, _ := EncryptString(enc, "same input")
	b, _ := EncryptString(enc, "same input")
	if a == b {
		t.Error("two encryptions of the same plaintext should differ (random nonce)")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	enc1, _ := NewAESEncryptor(testKey(t))
	enc2, _ := NewAESEncryptor(testKey(t))
	ct, err := EncryptString(enc1, "secret")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := DecryptString(enc2, ct); err == nil {
		t.Error("decrypt with wrong key should fail")
	}
}

func TestDecryptCorrupted(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	ct, err := EncryptString(enc, "secret")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[len(raw)-1] ^= 0xff
	corrupted := base64.StdEncoding.EncodeToString(raw)
	if _, err := DecryptString(enc, corrupted); err == nil {
		t.Error("decrypt of corrupted ciphertext should fail")
	}
	if _, err := DecryptString(enc, strings.Repeat("A", 4)); err == nil {
		t.Error("decrypt of truncated ciphertext should fail")
	}
}
