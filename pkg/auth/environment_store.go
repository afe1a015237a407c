package auth

import (
	"os"
	"strings"
	"time"
)

// Environment variables read by EnvironmentStore, in order of precedence
var cookieEnvVars = []string{"TTSCRAPER_COOKIE", "TIKTOK_COOKIE"}

// EnvironmentStore is a read-only CredentialStore over environment variables.
// It exposes at most one profile, named DefaultProfile.
type EnvironmentStore struct {
	lookup func(string) string
}

// NewEnvironmentStore creates a store reading the process environment
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{lookup: os.Getenv}
}

func (e *EnvironmentStore) cookie() string {
	for _, key := range cookieEnvVars {
		if v := strings.TrimSpace(e.lookup(key)); v != "" {
			return v
		}
	}
	return ""
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment cookie for the default profile or an empty name
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	if name != "" && name != DefaultProfile {
		return nil, ErrCredentialsNotFound
	}

	cookie := e.cookie()
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Profile{
		Name:      DefaultProfile,
		Cookie:    cookie,
		UserAgent: strings.TrimSpace(e.lookup("TTSCRAPER_USER_AGENT")),
		// the environment has no timestamp so stored profiles win on conflicts
		LastModified: time.Time{},
	}, nil
}

// List returns the environment profile if a cookie is set
func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment cookie is set
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
