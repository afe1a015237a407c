package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// DefaultProfile is the name used when a profile is saved without one
const DefaultProfile = "default"

// Profile is a named TikTok session cookie
type Profile struct {
	Name         string    `json:"name"`
	Cookie       string    `json:"cookie"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving profiles
type CredentialStore interface {
	// Store saves a profile under its name
	Store(profile *Profile) error

	// Retrieve gets the profile with the given name
	Retrieve(name string) (*Profile, error)

	// List returns all stored profiles
	List() ([]*Profile, error)

	// Delete removes the named profile
	Delete(name string) error

	// Exists checks if a profile is stored under name
	Exists(name string) bool
}

// Manager handles profile storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
	now    func() time.Time
}

// NewManager creates a manager over the system keyring, the encrypted file
// store and the environment, in that order
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "cookies.enc"), "")
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return NewManagerWithStores(stores...), nil
}

// NewManagerWithStores creates a Manager over the given stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores, now: time.Now}
}

// Store validates the cookie and saves the profile in the first store that accepts it
func (m *Manager) Store(profile *Profile) error {
	if profile == nil {
		return ErrInvalidCredentials
	}
	if profile.Name == "" {
		profile.Name = DefaultProfile
	}
	profile.Cookie = strings.TrimSpace(profile.Cookie)
	if err := ValidateCookie(profile.Cookie); err != nil {
		return err
	}

	profile.LastModified = m.now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(profile)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store profile: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the profile from the first store that has it
func (m *Manager) Retrieve(name string) (*Profile, error) {
	for _, store := range m.stores {
		if profile, err := store.Retrieve(name); err == nil && profile != nil {
			return profile, nil
		}
	}
	return nil, fmt.Errorf("profile %q: %w", name, ErrCredentialsNotFound)
}

// RetrieveDefault returns the default profile if one is saved, otherwise the
// most recently modified profile
func (m *Manager) RetrieveDefault() (*Profile, error) {
	if profile, err := m.Retrieve(DefaultProfile); err == nil {
		return profile, nil
	}

	profiles, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrCredentialsNotFound
	}

	latest := profiles[0]
	for _, p := range profiles[1:] {
		if p.LastModified.After(latest.LastModified) {
			latest = p
		}
	}
	return latest, nil
}

// List merges the profiles of every store, sorted by name. When a name is
// present in several stores the most recently modified copy wins.
func (m *Manager) List() ([]*Profile, error) {
	byName := make(map[string]*Profile)

	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, p := range profiles {
			if existing, ok := byName[p.Name]; !ok || p.LastModified.After(existing.LastModified) {
				byName[p.Name] = p
			}
		}
	}

	result := make([]*Profile, 0, len(byName))
	for _, p := range byName {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// Delete removes the profile from every store that has it
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(name)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete profile: %w", lastErr)
	}
	return fmt.Errorf("profile %q: %w", name, ErrCredentialsNotFound)
}

// StoredCookie adapts a Manager to the scraper's cookie source.
// An empty Profile selects the default profile.
type StoredCookie struct {
	Manager *Manager
	Profile string
}

// Cookie returns the stored session cookie
func (s StoredCookie) Cookie() (string, error) {
	if s.Manager == nil {
		return "", ErrStoreUnavailable
	}

	var (
		profile *Profile
		err     error
	)
	if s.Profile == "" {
		profile, err = s.Manager.RetrieveDefault()
	} else {
		profile, err = s.Manager.Retrieve(s.Profile)
	}
	if err != nil {
		return "", err
	}
	return profile.Cookie, nil
}

// ValidateCookie checks that cookie is a non-empty list of name=value pairs
// separated by semicolons, the format of a browser Cookie header
func ValidateCookie(cookie string) error {
	if strings.TrimSpace(cookie) == "" {
		return fmt.Errorf("%w: cookie is empty", ErrInvalidCredentials)
	}

	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, _, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: %q is not a name=value pair", ErrInvalidCredentials, part)
		}
	}
	return nil
}

// HasSessionCookie reports whether cookie carries a logged-in session id
func HasSessionCookie(cookie string) bool {
	for _, part := range strings.Split(cookie, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || value == "" {
			continue
		}
		switch name {
		case "sessionid", "sessionid_ss", "sid_tt":
			return true
		}
	}
	return false
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "ttscraper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "ttscraper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "ttscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "ttscraper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeProfile returns a copy of the profile with the cookie values masked
func SanitizeProfile(profile *Profile) *Profile {
	if profile == nil {
		return nil
	}

	return &Profile{
		Name:         profile.Name,
		Cookie:       MaskCookie(profile.Cookie),
		UserAgent:    profile.UserAgent,
		LastModified: profile.LastModified,
	}
}

// MaskCookie keeps cookie names and masks every value
func MaskCookie(cookie string) string {
	var parts []string
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			parts = append(parts, MaskString(part))
			continue
		}
		parts = append(parts, name+"="+MaskString(value))
	}
	return strings.Join(parts, "; ")
}

// MaskString masks all but the first 4 and last 4 characters of a string
func MaskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
