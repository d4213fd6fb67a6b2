package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"fii-monitor/internal/errors"
)

// Codec transforms encoded values on their way to and from the KV.
type Codec interface {
	Name() string
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// PlainCodec stores values unchanged.
type PlainCodec struct{}

// Name implements Codec.
func (PlainCodec) Name() string { return "plain" }

// Encode implements Codec.
func (PlainCodec) Encode(plain []byte) ([]byte, error) { return plain, nil }

// Decode implements Codec.
func (PlainCodec) Decode(stored []byte) ([]byte, error) { return stored, nil }

// ObfuscatedCodec base64-encodes values so they are not readable at a glance.
// This is obfuscation, NOT encryption: anyone with access to the store can
// reverse it. Use SealedCodec when confidentiality matters.
type ObfuscatedCodec struct{}

// Name implements Codec.
func (ObfuscatedCodec) Name() string { return "obfuscated" }

// Encode implements Codec.
func (ObfuscatedCodec) Encode(plain []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(plain)))
	base64.StdEncoding.Encode(out, plain)
	return out, nil
}

// Decode implements Codec.
func (ObfuscatedCodec) Decode(stored []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(stored)))
	n, err := base64.StdEncoding.Decode(out, stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	return out[:n], nil
}

const (
	// EncryptionKeySize is the size of the AES-256 key in bytes.
	EncryptionKeySize = 32
	// SaltSize is the size of the salt for key derivation.
	SaltSize = 16
	// NonceSize is the size of the GCM nonce.
	NonceSize = 12
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
)

// sealedEnvelope is the stored form of a sealed value.
type sealedEnvelope struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// SealedCodec encrypts values with AES-256-GCM under a key derived from a
// passphrase with PBKDF2.
type SealedCodec struct {
	passphrase string
	salt       []byte
	iterations int

	mu   sync.Mutex
	keys map[string][]byte // salt -> derived key
}

// NewSealedCodec creates a codec for passphrase. A fresh salt is drawn for
// values written by this codec; values written under other salts still decode.
func NewSealedCodec(passphrase string) (*SealedCodec, error) {
	return newSealedCodec(passphrase, PBKDF2Iterations)
}

func newSealedCodec(passphrase string, iterations int) (*SealedCodec, error) {
	if passphrase == "" {
		return nil, errors.NewValidationError("passphrase", "", "must not be empty")
	}
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return &SealedCodec{
		passphrase: passphrase,
		salt:       salt,
		iterations: iterations,
		keys:       make(map[string][]byte),
	}, nil
}

// Name implements Codec.
func (c *SealedCodec) Name() string { return "sealed" }

func (c *SealedCodec) key(salt []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := string(salt)
	if k, ok := c.keys[id]; ok {
		return k
	}
	k := pbkdf2.Key([]byte(c.passphrase), salt, c.iterations, EncryptionKeySize, sha256.New)
	c.keys[id] = k
	return k
}

// Encode implements Codec.
func (c *SealedCodec) Encode(plain []byte) ([]byte, error) {
	gcm, err := newGCM(c.key(c.salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	env := sealedEnvelope{
		Version:    1,
		Salt:       base64.StdEncoding.EncodeToString(c.salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plain, nil)),
	}
	return json.Marshal(env)
}

// Decode implements Codec.
func (c *SealedCodec) Decode(stored []byte) ([]byte, error) {
	var env sealedEnvelope
	if err := json.Unmarshal(stored, &env); err != nil {
		return nil, fmt.Errorf("%w: sealed envelope: %v", errors.ErrDecode, err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %v", errors.ErrDecode, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", errors.ErrDecode, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", errors.ErrDecode, err)
	}

	gcm, err := newGCM(c.key(salt))
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupted value", errors.ErrDecode)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
