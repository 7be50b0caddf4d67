/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package truststore holds the set of currently trusted document signer
// certificates, indexed by truncated key identifier and replaced wholesale
// on every trust-list refresh.
package truststore

import (
	"crypto/x509"
	"sync"
)

// TrustedCert is one document signer certificate from the trust list.
type TrustedCert struct {
	Country     string
	Kid         []byte
	Certificate *x509.Certificate
}

// snapshot is an immutable view of the trust set. Validations in flight
// keep the snapshot they started with; Update swaps in a new one.
type snapshot struct {
	certs     []TrustedCert
	kidToCert map[string][]TrustedCert
}

func newSnapshot(certs []TrustedCert) *snapshot {
	s := &snapshot{
		certs:     make([]TrustedCert, len(certs)),
		kidToCert: make(map[string][]TrustedCert, len(certs)),
	}

	copy(s.certs, certs)

	for _, c := range s.certs {
		key := string(c.Kid)
		s.kidToCert[key] = append(s.kidToCert[key], c)
	}

	return s
}

// Store is the trust store. The zero value is empty and ready to use.
type Store struct {
	mu    sync.RWMutex
	state *snapshot
}

// New builds a store seeded with the given certificates.
func New(certs ...TrustedCert) *Store {
	return &Store{state: newSnapshot(certs)}
}

// Update replaces the trust set atomically. Readers observe either the old
// or the new set in its entirety, never a partial mix.
func (s *Store) Update(certs []TrustedCert) {
	next := newSnapshot(certs)

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *Store) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return &snapshot{}
	}

	return s.state
}

// FindByKid returns all trusted certificates sharing the given truncated
// key identifier. Collisions are possible across countries.
func (s *Store) FindByKid(kid []byte) []TrustedCert {
	return s.current().kidToCert[string(kid)]
}

// All returns the full trust set. It is the fallback search set when a kid
// lookup yields nothing, since some issuers omit or mismatch the kid.
func (s *Store) All() []TrustedCert {
	return s.current().certs
}

// Len returns the number of trusted certificates.
func (s *Store) Len() int {
	return len(s.current().certs)
}
