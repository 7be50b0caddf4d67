/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rules

import (
	"strings"
	"sync"
	"time"
)

// Store is the in-memory rule corpus. Updates replace the whole snapshot, so
// a selection in progress sees either the old corpus or the new one, never a
// mix.
type Store struct {
	mu    sync.RWMutex
	state *corpus
}

type corpus struct {
	rules []Rule
}

// NewStore returns a store seeded with the given rules.
func NewStore(rules ...Rule) *Store {
	return &Store{state: newCorpus(rules)}
}

func newCorpus(rules []Rule) *corpus {
	c := &corpus{rules: make([]Rule, len(rules))}
	copy(c.rules, rules)

	return c
}

// Update replaces the corpus atomically.
func (s *Store) Update(rules []Rule) {
	next := newCorpus(rules)

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// All returns the current corpus snapshot.
func (s *Store) All() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.rules
}

// RulesBy returns the rules of the given type and certificate type whose
// validity window contains clock, scoped to the given country
// (case-insensitive).
func (s *Store) RulesBy(country string, clock time.Time, ruleType Type, certType CertificateType) []Rule {
	s.mu.RLock()
	snapshot := s.state
	s.mu.RUnlock()

	var out []Rule

	for _, r := range snapshot.rules {
		if r.Type != ruleType {
			continue
		}

		if !strings.EqualFold(r.Country, country) {
			continue
		}

		if !r.CertificateType.Matches(certType) {
			continue
		}

		if !r.IsValidAt(clock) {
			continue
		}

		out = append(out, r)
	}

	return out
}
