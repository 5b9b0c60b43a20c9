// Package credentials provides passphrase storage for locked identities.
//
// Stores are explicit objects constructed once at process start and passed to
// whatever needs to unlock an identity.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

// EnvPassphrase is consulted by stores with env fallback enabled.
const EnvPassphrase = "CREV_PASSPHRASE"

var ErrNoPassphrase = errors.New("no passphrase stored for identity")

// PassphraseStore looks up and records identity passphrases.
type PassphraseStore interface {
	// GetPassphrase reports ok=false when nothing is stored for id.
	GetPassphrase(ctx context.Context, id identity.ID) (pass string, ok bool, err error)
	SetPassphrase(ctx context.Context, id identity.ID, pass string) error
}

// MemoryStore keeps passphrases for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[identity.ID]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[identity.ID]string)}
}

func (m *MemoryStore) GetPassphrase(_ context.Context, id identity.ID) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pass, ok := m.values[id]
	return pass, ok, nil
}

func (m *MemoryStore) SetPassphrase(_ context.Context, id identity.ID, pass string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[id] = pass
	return nil
}

// SQLStore keeps passphrases in a database, encrypted with AES-256-GCM.
type SQLStore struct {
	db          *sql.DB
	encKey      []byte
	mu          sync.RWMutex
	envFallback bool
}

// StoreOption configures an SQLStore.
type StoreOption func(*SQLStore)

// WithEnvFallback makes lookups that find nothing fall back to
// $CREV_PASSPHRASE.
func WithEnvFallback(enabled bool) StoreOption {
	return func(s *SQLStore) {
		s.envFallback = enabled
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS passphrases (
	identity_id TEXT PRIMARY KEY,
	passphrase TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// NewSQLStore creates the store. encryptionKey must be exactly 32 bytes.
func NewSQLStore(db *sql.DB, encryptionKey []byte, opts ...StoreOption) (*SQLStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes for AES-256")
	}
	s := &SQLStore{db: db, encKey: encryptionKey}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Init creates the passphrases table.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create passphrases: %w", err)
	}
	return nil
}

func (s *SQLStore) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// encrypt seals plaintext, binding it to the identity it belongs to.
func (s *SQLStore) encrypt(id identity.ID, plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), []byte(id.String()))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *SQLStore) decrypt(id identity.ID, ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(id.String()))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// SetPassphrase stores or replaces the passphrase of id.
func (s *SQLStore) SetPassphrase(ctx context.Context, id identity.ID, pass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, err := s.encrypt(id, pass)
	if err != nil {
		return fmt.Errorf("failed to encrypt passphrase: %w", err)
	}
	query := `
		INSERT INTO passphrases (identity_id, passphrase, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id) DO UPDATE SET
			passphrase = EXCLUDED.passphrase,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id.String(), enc, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store passphrase: %w", err)
	}
	return nil
}

// GetPassphrase returns the stored passphrase of id.
func (s *SQLStore) GetPassphrase(ctx context.Context, id identity.ID) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var enc string
	err := s.db.QueryRowContext(ctx, `SELECT passphrase FROM passphrases WHERE identity_id = $1`, id.String()).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		if s.envFallback {
			if v := os.Getenv(EnvPassphrase); v != "" {
				return v, true, nil
			}
		}
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get passphrase: %w", err)
	}
	pass, err := s.decrypt(id, enc)
	if err != nil {
		return "", false, err
	}
	return pass, true, nil
}

// Unlock opens locked with the passphrase stored for its identity.
func Unlock(ctx context.Context, store PassphraseStore, locked *identity.LockedID) (*identity.OwnID, error) {
	id, err := locked.ID()
	if err != nil {
		return nil, err
	}
	pass, ok, err := store.GetPassphrase(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPassphrase, id)
	}
	return locked.Unlock(pass)
}
