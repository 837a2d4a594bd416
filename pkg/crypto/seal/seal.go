// Package seal provides passphrase-based authenticated encryption for data
// at rest.
//
// A Sealer derives a master key from a passphrase with Argon2id, expands a
// purpose-bound subkey with HKDF and encrypts with AES-256-GCM or
// ChaCha20-Poly1305. Sealed output is nonce || ciphertext || tag.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Algorithm identifies the AEAD construction.
type Algorithm string

const (
	AESGCM   Algorithm = "aes-gcm"
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// SaltLength is the Argon2id salt length.
	SaltLength = 16

	// MinPassphraseLength is the shortest accepted passphrase.
	MinPassphraseLength = 8

	keyLen = 32

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

var (
	ErrPassphraseTooWeak = errors.New("seal: passphrase too short (minimum 8 characters)")
	ErrInvalidSalt       = errors.New("seal: salt must be 16 bytes")
	ErrOpenFailed        = errors.New("seal: decryption failed, wrong passphrase or corrupted data")
	ErrUnknownAlgorithm  = errors.New("seal: unknown algorithm")
)

// Sealer encrypts and decrypts with one derived key. Safe for concurrent use.
type Sealer struct {
	alg  Algorithm
	aead cipher.AEAD
}

// Config configures a Sealer.
type Config struct {
	Passphrase []byte

	// Salt must be persisted next to the sealed data. Use NewSalt for a
	// fresh store.
	Salt []byte

	// Purpose binds the subkey to one use, e.g. "archive".
	Purpose string

	// Algorithm defaults to AES-GCM on amd64/arm64, ChaCha20 elsewhere.
	Algorithm Algorithm
}

// NewSalt returns a random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("seal: generate salt: %w", err)
	}
	return salt, nil
}

// New derives the key described by cfg.
func New(cfg Config) (*Sealer, error) {
	if len(cfg.Passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(cfg.Salt) != SaltLength {
		return nil, ErrInvalidSalt
	}

	master := argon2.IDKey(cfg.Passphrase, cfg.Salt, argon2Time, argon2Memory, argon2Threads, keyLen)
	defer zero(master)

	key := make([]byte, keyLen)
	defer zero(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, cfg.Salt, []byte(cfg.Purpose)), key); err != nil {
		return nil, fmt.Errorf("seal: derive subkey: %w", err)
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = preferred()
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch alg {
	case AESGCM:
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case ChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("seal: init %s: %w", alg, err)
	}

	return &Sealer{alg: alg, aead: aead}, nil
}

// Algorithm returns the AEAD in use.
func (s *Sealer) Algorithm() Algorithm {
	return s.alg
}

// Overhead is the number of bytes Seal adds to the plaintext.
func (s *Sealer) Overhead() int {
	return s.aead.NonceSize() + s.aead.Overhead()
}

// Seal encrypts plaintext, authenticating aad.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal with the same aad.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, ErrOpenFailed
	}
	out, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return out, nil
}

// preferred picks AES-GCM where Go uses hardware AES.
func preferred() Algorithm {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x", "ppc64le":
		return AESGCM
	default:
		return ChaCha20
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
