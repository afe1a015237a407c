package auth

import (
	"sort"
	"sync"
)

// MockStore implements CredentialStore in memory for tests
type MockStore struct {
	profiles map[string]*Profile
	mu       sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates an empty in-memory store
func NewMockStore() *MockStore {
	return &MockStore{
		profiles: make(map[string]*Profile),
	}
}

// Store saves a copy of the profile
func (m *MockStore) Store(profile *Profile) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if profile == nil || profile.Name == "" {
		return ErrInvalidCredentials
	}

	cp := *profile
	m.profiles[profile.Name] = &cp
	return nil
}

// Retrieve returns a copy of the named profile
func (m *MockStore) Retrieve(name string) (*Profile, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		return nil, ErrInvalidCredentials
	}

	profile, exists := m.profiles[name]
	if !exists {
		return nil, ErrCredentialsNotFound
	}

	cp := *profile
	return &cp, nil
}

// List returns copies of all profiles sorted by name
func (m *MockStore) List() ([]*Profile, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	profiles := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		profiles = append(profiles, &cp)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })

	return profiles, nil
}

// Delete removes the named profile
func (m *MockStore) Delete(name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return ErrInvalidCredentials
	}
	if _, exists := m.profiles[name]; !exists {
		return ErrCredentialsNotFound
	}

	delete(m.profiles, name)
	return nil
}

// Exists checks if the profile is stored
func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.profiles[name]
	return exists
}

// Count returns the number of stored profiles
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.profiles)
}

// NewMockManager creates a Manager backed by a single MockStore
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
