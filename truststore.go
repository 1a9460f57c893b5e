package sailor

import (
	"fmt"
	"slices"
	"sync"
)

// FingerprintStore persists the ordered list of trusted fingerprints. It is
// the source of truth; the trust store reads it on every check and writes it
// on every change.
type FingerprintStore interface {
	Fingerprints() ([]string, error)
	SetFingerprints(fingerprints []string) error
}

// TrustStore is the set of certificate fingerprints the local user has chosen
// to trust. Fingerprints are canonicalized with NormalizeFingerprint before
// they are compared or stored. A TrustStore serializes its own read-modify-write
// cycles; processes sharing one persisted store rely on the persistence layer
// and on de-duplication at read time.
type TrustStore struct {
	mu    sync.Mutex
	store FingerprintStore
}

// NewTrustStore returns a trust store backed by the given persistence.
func NewTrustStore(store FingerprintStore) *TrustStore {
	return &TrustStore{store: store}
}

// load reads and canonicalizes the persisted set, dropping duplicates while
// preserving first-seen order. Callers must hold mu.
func (t *TrustStore) load() ([]string, error) {
	raw, err := t.store.Fingerprints()
	if err != nil {
		return nil, fmt.Errorf("loading trusted fingerprints: %w", err)
	}
	seen := make(map[string]bool, len(raw))
	result := make([]string, 0, len(raw))
	for _, fp := range raw {
		fp = NormalizeFingerprint(fp)
		if fp == "" || seen[fp] {
			continue
		}
		seen[fp] = true
		result = append(result, fp)
	}
	return result, nil
}

// Fingerprints returns the canonical trusted fingerprints in stored order.
func (t *TrustStore) Fingerprints() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

// HasFingerprint reports whether the given fingerprint is trusted.
func (t *TrustStore) HasFingerprint(fingerprint string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fps, err := t.load()
	if err != nil {
		return false, err
	}
	return slices.Contains(fps, NormalizeFingerprint(fingerprint)), nil
}

// AddFingerprint adds the given fingerprint to the trusted set. Adding a
// fingerprint that is already present does not write.
func (t *TrustStore) AddFingerprint(fingerprint string) error {
	target := NormalizeFingerprint(fingerprint)
	if target == "" {
		return fmt.Errorf("empty fingerprint")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fps, err := t.load()
	if err != nil {
		return err
	}
	if slices.Contains(fps, target) {
		return nil
	}
	if err := t.store.SetFingerprints(append(fps, target)); err != nil {
		return fmt.Errorf("saving trusted fingerprints: %w", err)
	}
	return nil
}

// RemoveFingerprint removes the given fingerprint from the trusted set and
// reports whether it was present.
func (t *TrustStore) RemoveFingerprint(fingerprint string) (bool, error) {
	target := NormalizeFingerprint(fingerprint)

	t.mu.Lock()
	defer t.mu.Unlock()

	fps, err := t.load()
	if err != nil {
		return false, err
	}
	idx := slices.Index(fps, target)
	if idx < 0 {
		return false, nil
	}
	if err := t.store.SetFingerprints(slices.Delete(fps, idx, idx+1)); err != nil {
		return false, fmt.Errorf("saving trusted fingerprints: %w", err)
	}
	return true, nil
}

// MemoryFingerprints is an in-process FingerprintStore.
type MemoryFingerprints struct {
	mu  sync.Mutex
	fps []string
}

// Fingerprints returns a copy of the stored list.
func (m *MemoryFingerprints) Fingerprints() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.fps), nil
}

// SetFingerprints replaces the stored list.
func (m *MemoryFingerprints) SetFingerprints(fingerprints []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fps = slices.Clone(fingerprints)
	return nil
}
