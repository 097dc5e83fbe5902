package social

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const defaultStateTTL = 10 * time.Minute

// StateManager handles OAuth state encoding and verification.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState is the payload carried through the provider round-trip in
// the OAuth state parameter. Keys are short since the whole struct
// rides in a URL query value.
type OAuthState struct {
	Nonce        string `json:"n"`
	Provider     string `json:"p"`
	CodeVerifier string `json:"cv,omitempty"`
	RedirectURL  string `json:"r,omitempty"`
	Action       string `json:"a"`
	LinkUserID   string `json:"lu,omitempty"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// EncryptedStateManager seals state with AES-GCM and signs the
// ciphertext with HMAC-SHA256.
type EncryptedStateManager struct {
	cipherKey []byte
	macKey    []byte
	ttl       time.Duration
}

// NewEncryptedStateManager creates a new encrypted state manager.
func NewEncryptedStateManager(cipherKey, macKey []byte, ttl time.Duration) *EncryptedStateManager {
	if ttl == 0 {
		ttl = defaultStateTTL
	}
	return &EncryptedStateManager{
		cipherKey: cipherKey,
		macKey:    macKey,
		ttl:       ttl,
	}
}

func (sm *EncryptedStateManager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sm.cipherKey)
	if err != nil {
		return nil, fmt.Errorf("state cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (sm *EncryptedStateManager) sign(ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, sm.macKey)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// Encode encrypts and signs the state.
func (sm *EncryptedStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil {
		return "", ErrInvalidState
	}

	now := time.Now()
	if state.IssuedAt == 0 {
		state.IssuedAt = now.Unix()
	}
	if state.ExpiresAt == 0 {
		state.ExpiresAt = now.Add(sm.ttl).Unix()
	}
	if state.Nonce == "" {
		state.Nonce = generateNonce()
	}

	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("state marshal: %w", err)
	}

	gcm, err := sm.aead()
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("state iv: %w", err)
	}

	sealed := gcm.Seal(iv, iv, plaintext, nil)
	signed := append(sm.sign(sealed), sealed...)

	return base64.URLEncoding.EncodeToString(signed), nil
}

// Decode verifies and decrypts the state. Any tampering or truncation
// collapses into ErrInvalidState so callers leak nothing about which
// layer failed.
func (sm *EncryptedStateManager) Decode(token string) (*OAuthState, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("state decode: %w", err)
	}
	if len(raw) < sha256.Size {
		return nil, ErrInvalidState
	}

	signature, sealed := raw[:sha256.Size], raw[sha256.Size:]
	if !hmac.Equal(signature, sm.sign(sealed)) {
		return nil, ErrInvalidState
	}

	gcm, err := sm.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrInvalidState
	}

	iv, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, iv, body, nil)
	if err != nil {
		return nil, ErrInvalidState
	}

	state := &OAuthState{}
	if err := json.Unmarshal(plaintext, state); err != nil {
		return nil, fmt.Errorf("state unmarshal: %w", err)
	}

	if time.Now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}

	return state, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func computeCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
