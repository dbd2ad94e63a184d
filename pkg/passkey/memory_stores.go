// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const ceremonyTokenBytes = 16

// MemoryCeremonyStore is an in-memory CeremonyStore suitable for single
// process deployments and tests.
type MemoryCeremonyStore struct {
	mu         sync.Mutex
	ceremonies map[string]*Ceremony
	bySubject  map[string]string
	ttl        time.Duration
	now        func() time.Time
}

// NewMemoryCeremonyStore creates a ceremony store whose entries expire after
// ttl.
func NewMemoryCeremonyStore(ttl time.Duration) *MemoryCeremonyStore {
	return &MemoryCeremonyStore{
		ceremonies: make(map[string]*Ceremony),
		bySubject:  make(map[string]string),
		ttl:        ttl,
		now:        time.Now,
	}
}

func subjectKey(kind CeremonyKind, subject string) string {
	return string(kind) + "\x00" + subject
}

// Save stores the ceremony under a fresh random token, evicting any prior
// pending ceremony for the same kind and subject.
func (s *MemoryCeremonyStore) Save(ctx context.Context, ceremony *Ceremony) (string, error) {
	raw := make([]byte, ceremonyTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	token := hex.EncodeToString(raw)

	now := s.now()
	stored := *ceremony
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	if stored.Subject != "" {
		key := subjectKey(stored.Kind, stored.Subject)
		if prior, ok := s.bySubject[key]; ok {
			delete(s.ceremonies, prior)
		}
		s.bySubject[key] = token
	}
	s.ceremonies[token] = &stored
	return token, nil
}

// Take consumes the ceremony for token. The token is spent regardless of
// outcome.
func (s *MemoryCeremonyStore) Take(ctx context.Context, token string) (*Ceremony, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ceremony, ok := s.ceremonies[token]
	if !ok {
		return nil, ErrCeremonyExpiredOrMissing
	}
	s.remove(token, ceremony)
	if ceremony.Expired(s.now()) {
		return nil, ErrCeremonyExpiredOrMissing
	}
	return ceremony, nil
}

// Cleanup removes expired ceremonies.
func (s *MemoryCeremonyStore) Cleanup(ctx context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, ceremony := range s.ceremonies {
		if ceremony.Expired(now) {
			s.remove(token, ceremony)
			removed++
		}
	}
	return removed, nil
}

// remove expects s.mu held.
func (s *MemoryCeremonyStore) remove(token string, ceremony *Ceremony) {
	delete(s.ceremonies, token)
	if ceremony.Subject != "" {
		key := subjectKey(ceremony.Kind, ceremony.Subject)
		if s.bySubject[key] == token {
			delete(s.bySubject, key)
		}
	}
}

// MemoryCredentialRepository is an in-memory CredentialRepository suitable
// for development and tests. All reads return deep copies so callers can
// never mutate stored state.
type MemoryCredentialRepository struct {
	mu          sync.RWMutex
	users       map[string]*User       // hex handle -> user
	credentials map[string]*Credential // hex credential ID -> credential
	now         func() time.Time
}

// NewMemoryCredentialRepository creates an empty repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		users:       make(map[string]*User),
		credentials: make(map[string]*Credential),
		now:         time.Now,
	}
}

func (r *MemoryCredentialRepository) CreateUserWithCredential(ctx context.Context, user *User, credential *Credential) error {
	if user == nil || credential == nil {
		return fmt.Errorf("%w: nil user or credential", ErrInvalidConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	credKey := hex.EncodeToString(credential.ID)
	if _, exists := r.credentials[credKey]; exists {
		return ErrDuplicateCredential
	}

	storedUser := *user
	storedCred := *credential.Clone()
	storedCred.UserHandle = bytes.Clone(user.Handle)

	r.users[hex.EncodeToString(user.Handle)] = &storedUser
	r.credentials[credKey] = &storedCred
	return nil
}

func (r *MemoryCredentialRepository) FindCredentialsForUsername(ctx context.Context, normalizedUsername string) ([]*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make(map[string]bool)
	for key, user := range r.users {
		if user.NormalizedUsername == normalizedUsername {
			handles[key] = true
		}
	}

	var credentials []*Credential
	for _, credential := range r.credentials {
		if handles[hex.EncodeToString(credential.UserHandle)] {
			credentials = append(credentials, credential.Clone())
		}
	}
	return credentials, nil
}

func (r *MemoryCredentialRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	credential, ok := r.credentials[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return credential.Clone(), nil
}

func (r *MemoryCredentialRepository) FindUserByHandle(ctx context.Context, handle []byte) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[hex.EncodeToString(handle)]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *MemoryCredentialRepository) UpdateAfterAssertion(ctx context.Context, credentialID []byte, prevCounter, newCounter uint32, devicePublicKey []byte, backupState bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	credential, ok := r.credentials[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrCredentialNotFound
	}
	if credential.SignatureCounter != prevCounter {
		return ErrConcurrentAssertionConflict
	}
	credential.SignatureCounter = newCounter
	credential.Flags.BackupState = backupState
	credential.LastUsedAt = r.now()
	if devicePublicKey != nil && !credential.HasDevicePublicKey(devicePublicKey) {
		credential.DevicePublicKeys = append(credential.DevicePublicKeys, bytes.Clone(devicePublicKey))
	}
	return nil
}

func (r *MemoryCredentialRepository) CredentialIDIsUnused(ctx context.Context, credentialID []byte) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.credentials[hex.EncodeToString(credentialID)]
	return !exists, nil
}
