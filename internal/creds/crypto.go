package creds

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var (
	// ErrInvalidCiphertext indicates the ciphertext is malformed or too short
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKeyLength indicates the sealing key is not 32 bytes
	ErrInvalidKeyLength = errors.New("sealing key must be 32 bytes for AES-256")
)

// sealAPIKey encrypts an API key with AES-256-GCM for at-rest storage in
// the file backend. Returns base64 ciphertext with the nonce prepended.
func sealAPIKey(apiKey, key string) (string, error) {
	if apiKey == "" {
		return "", nil
	}

	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return "", ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(apiKey), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// openAPIKey reverses sealAPIKey.
func openAPIKey(sealed, key string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return "", ErrInvalidKeyLength
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}
