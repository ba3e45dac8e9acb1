package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	AuthTokenSlot = "auth_token"

	encryptedPrefix = "enc:"
)

var ErrUndecryptable = errors.New("stored credential cannot be decrypted")

// CredentialStore is the single durable slot holding the bearer token.
// Get returns "" when nothing is stored.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type SQLCredentialStore struct {
	db   *sql.DB
	slot string
	aead cipher.AEAD
}

// NewSQLCredentialStore stores the token in the credentials table. A non-empty secret
// encrypts the value at rest with XChaCha20-Poly1305.
func NewSQLCredentialStore(db *sql.DB, secret string) (*SQLCredentialStore, error) {
	s := &SQLCredentialStore{db: db, slot: AuthTokenSlot}
	if secret == "" {
		return s, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("jorra-tryon credential store"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive credential key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init credential cipher: %w", err)
	}
	s.aead = aead
	return s, nil
}

func (s *SQLCredentialStore) Get(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE slot = ?", s.slot).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return s.open(value)
}

func (s *SQLCredentialStore) Set(ctx context.Context, token string) error {
	value, err := s.seal(token)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM credentials WHERE slot = ?", s.slot); err != nil {
		return fmt.Errorf("failed to replace credential: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO credentials (slot, value) VALUES (?, ?)", s.slot, value); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return tx.Commit()
}

func (s *SQLCredentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE slot = ?", s.slot); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

func (s *SQLCredentialStore) seal(token string) (string, error) {
	if s.aead == nil {
		return token, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(token)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(token), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *SQLCredentialStore) open(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		if s.aead != nil {
			return "", ErrUndecryptable
		}
		return value, nil
	}
	if s.aead == nil {
		return "", ErrUndecryptable
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", ErrUndecryptable
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrUndecryptable
	}
	return string(plain), nil
}

// MemoryCredentialStore keeps the token for the lifetime of the process.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryCredentialStore) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
