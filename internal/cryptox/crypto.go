// Package cryptox seals backup files with a passphrase. The key is derived
// with Argon2id and the content is encrypted with AES-GCM.
//
// Sealed layout: magic | salt (16 bytes) | nonce (12 bytes) | ciphertext.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	magic    = "VPLMSEAL1\n"
	saltSize = 16
	keySize  = 32
)

var (
	ErrNotSealed     = errors.New("not a sealed file")
	ErrBadPassphrase = errors.New("wrong passphrase or damaged file")
)

// randRead fills b with random bytes. Swapped in tests.
var randRead = rand.Read

// DeriveKey turns a passphrase into an AES-256 key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

// IsSealed reports whether b starts with the sealed file header.
func IsSealed(b []byte) bool {
	return bytes.HasPrefix(b, []byte(magic))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under passphrase with a fresh salt and nonce.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := randRead(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}

	aesgcm, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := randRead(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+len(salt)+len(nonce)+len(plaintext)+aesgcm.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aesgcm.Seal(out, nonce, plaintext, []byte(magic)), nil
}

// Open reverses Seal.
func Open(sealed, passphrase []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	rest := sealed[len(magic):]
	if len(rest) < saltSize {
		return nil, ErrBadPassphrase
	}
	salt, rest := rest[:saltSize], rest[saltSize:]

	aesgcm, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	if len(rest) < aesgcm.NonceSize() {
		return nil, ErrBadPassphrase
	}
	nonce, ciphertext := rest[:aesgcm.NonceSize()], rest[aesgcm.NonceSize():]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, []byte(magic))
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}
