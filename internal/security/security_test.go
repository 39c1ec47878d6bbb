package security

import (
	"bytes"
	"testing"
)

func TestNewChunkEncryption(t *testing.T) {
	enc := NewChunkEncryption()
	if enc == nil {
		t.Fatal("Expected ChunkEncryption, got nil")
	}
	if enc.iterations != 100000 {
		t.Errorf("Expected iterations 100000, got %d", enc.iterations)
	}
	if enc.keyLength != 32 {
		t.Errorf("Expected keyLength 32, got %d", enc.keyLength)
	}
}

func TestDeriveKey(t *testing.T) {
	enc := NewChunkEncryption()
	salt := []byte("test-salt-1234567890123456") // 16 bytes

	key := enc.DeriveKey("test-secret", salt)
	if len(key) != 32 {
		t.Errorf("Expected key length 32, got %d", len(key))
	}

	key2 := enc.DeriveKey("test-secret", salt)
	if !bytes.Equal(key, key2) {
		t.Error("Expected same key for same inputs")
	}

	key3 := enc.DeriveKey("different-secret", salt)
	if bytes.Equal(key, key3) {
		t.Error("Expected different key for different secret")
	}
}

func TestEncryptDecryptChunk(t *testing.T) {
	enc := NewChunkEncryption()
	key := []byte("12345678901234567890123456789012") // 32 bytes
	plaintext := []byte("This is a test chunk payload")

	ciphertext, err := enc.EncryptChunk(plaintext, key, "docs/chunk-1")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if len(ciphertext) == 0 {
		t.Error("Expected non-empty ciphertext")
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("Expected ciphertext to be different from plaintext")
	}

	decrypted, err := enc.DecryptChunk(ciphertext, key, "docs/chunk-1")
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Expected decrypted text to match original, got %s", string(decrypted))
	}
}

func TestDecryptChunkWrongChunkKeyFails(t *testing.T) {
	enc := NewChunkEncryption()
	key := []byte("12345678901234567890123456789012")
	plaintext := []byte("This is a test chunk payload")

	ciphertext, err := enc.EncryptChunk(plaintext, key, "docs/chunk-1")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if _, err := enc.DecryptChunk(ciphertext, key, "docs/chunk-2"); err == nil {
		t.Error("Expected decryption to fail when the chunk key doesn't match the one it was encrypted under")
	}
}

func TestDecryptChunkInvalidCiphertext(t *testing.T) {
	enc := NewChunkEncryption()
	key := []byte("12345678901234567890123456789012")

	_, err := enc.DecryptChunk([]byte("short"), key, "docs/chunk-1")
	if err == nil {
		t.Error("Expected error for too short ciphertext")
	}

	_, err = enc.DecryptChunk([]byte("invalid-ciphertext-that-is-long-enough"), key, "docs/chunk-1")
	if err == nil {
		t.Error("Expected error for invalid ciphertext")
	}
}

func TestGenerateSalt(t *testing.T) {
	enc := NewChunkEncryption()

	salt1, err := enc.GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}
	if len(salt1) != 16 {
		t.Errorf("Expected salt length 16, got %d", len(salt1))
	}

	salt2, err := enc.GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate second salt: %v", err)
	}
	if bytes.Equal(salt1, salt2) {
		t.Error("Expected different salts on multiple calls")
	}
}

func TestEncodeDecodeKey(t *testing.T) {
	enc := NewChunkEncryption()
	key := []byte("12345678901234567890123456789012")

	encoded := enc.EncodeKey(key)
	if encoded == "" {
		t.Error("Expected non-empty encoded key")
	}

	decoded, err := enc.DecodeKey(encoded)
	if err != nil {
		t.Fatalf("Failed to decode key: %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Error("Expected decoded key to match original")
	}
}

func TestDecodeKeyInvalid(t *testing.T) {
	enc := NewChunkEncryption()

	_, err := enc.DecodeKey("invalid-base64!")
	if err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestEncryptChunkInvalidKey(t *testing.T) {
	enc := NewChunkEncryption()

	invalidKey := []byte("short-key")
	data := []byte("test data")

	_, err := enc.EncryptChunk(data, invalidKey, "docs/chunk-1")
	if err == nil {
		t.Error("Expected error for invalid key length")
	}
}

func TestDecryptChunkInvalidKey(t *testing.T) {
	enc := NewChunkEncryption()

	invalidKey := []byte("short-key")
	ciphertext := []byte("some-ciphertext")

	_, err := enc.DecryptChunk(ciphertext, invalidKey, "docs/chunk-1")
	if err == nil {
		t.Error("Expected error for invalid key length")
	}
}
