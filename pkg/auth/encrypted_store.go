package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	envelopeVersion = 1
)

// EncryptedFileStore implements CredentialStore using an AES-GCM encrypted file.
// The key is derived from a passphrase with PBKDF2-SHA256.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// envelope is the on-disk layout
type envelope struct {
	Version   int       `json:"version"`
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates a store at path. An empty passphrase is read
// from TTSCRAPER_PASSPHRASE, or generated once and kept next to the file.
func NewEncryptedFileStore(path, passphrase string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if passphrase == "" {
		var err error
		passphrase, err = resolvePassphrase(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to get passphrase: %w", err)
		}
	}

	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store saves the profile, replacing any profile with the same name
func (e *EncryptedFileStore) Store(profile *Profile) error {
	if profile == nil || profile.Name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profiles, err := e.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load existing profiles: %w", err)
	}
	if profiles == nil {
		profiles = make(map[string]Profile)
	}

	profiles[profile.Name] = *profile
	return e.save(profiles)
}

// Retrieve gets the named profile
func (e *EncryptedFileStore) Retrieve(name string) (*Profile, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	profiles, err := e.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	profile, ok := profiles[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &profile, nil
}

// List returns all stored profiles sorted by name
func (e *EncryptedFileStore) List() ([]*Profile, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	profiles, err := e.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*Profile{}, nil
		}
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	result := make([]*Profile, 0, len(profiles))
	for _, p := range profiles {
		p := p
		result = append(result, &p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes the named profile. The file is removed with the last profile.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profiles, err := e.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	if _, ok := profiles[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(profiles, name)

	if len(profiles) == 0 {
		return os.Remove(e.path)
	}
	return e.save(profiles)
}

// Exists checks if the named profile is stored
func (e *EncryptedFileStore) Exists(name string) bool {
	profile, err := e.Retrieve(name)
	return err == nil && profile != nil
}

// load reads and decrypts the file
func (e *EncryptedFileStore) load() (map[string]Profile, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plaintext, err := decrypt(sealed, deriveKey(e.passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt profiles: %w", err)
	}

	var profiles map[string]Profile
	if err := json.Unmarshal(plaintext, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	return profiles, nil
}

// save encrypts profiles under a fresh salt and replaces the file atomically
func (e *EncryptedFileStore) save(profiles map[string]Profile) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	plaintext, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	sealed, err := encrypt(plaintext, deriveKey(e.passphrase, salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt profiles: %w", err)
	}

	content, err := json.MarshalIndent(envelope{
		Version:   envelopeVersion,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

// resolvePassphrase reads TTSCRAPER_PASSPHRASE, then dir/.passphrase,
// and otherwise generates and saves a new one
func resolvePassphrase(dir string) (string, error) {
	if pass := os.Getenv("TTSCRAPER_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	passphraseFile := filepath.Join(dir, ".passphrase")
	if content, err := os.ReadFile(passphraseFile); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)

	if err := os.WriteFile(passphraseFile, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens data produced by encrypt
func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
