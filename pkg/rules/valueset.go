/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rules

import (
	"encoding/json"
	"sort"
	"sync"
)

// ValueSet is one EU value-set document: a stable identifier and the coded
// values it admits. Rules test membership against these via the external
// "valueSets" parameter.
type ValueSet struct {
	ID     string                     `json:"valueSetId"`
	Date   string                     `json:"valueSetDate"`
	Values map[string]json.RawMessage `json:"valueSetValues"`

	// Hash as reported by the distribution index.
	Hash string `json:"-"`
}

// Keys returns the admitted codes in sorted order.
func (v *ValueSet) Keys() []string {
	keys := make([]string, 0, len(v.Values))
	for k := range v.Values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// ValueSetStore holds the current value sets with the same snapshot-swap
// discipline as the rule corpus.
type ValueSetStore struct {
	mu   sync.RWMutex
	sets []ValueSet
}

// NewValueSetStore returns a store seeded with the given value sets.
func NewValueSetStore(sets ...ValueSet) *ValueSetStore {
	s := &ValueSetStore{}
	s.Update(sets)

	return s
}

// Update replaces all value sets atomically.
func (s *ValueSetStore) Update(sets []ValueSet) {
	next := make([]ValueSet, len(sets))
	copy(next, sets)

	s.mu.Lock()
	s.sets = next
	s.mu.Unlock()
}

// All returns the current snapshot.
func (s *ValueSetStore) All() []ValueSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sets
}

// AsMap flattens the current snapshot into the id-to-codes map the rule
// engine's external parameters carry.
func (s *ValueSetStore) AsMap() map[string][]string {
	s.mu.RLock()
	snapshot := s.sets
	s.mu.RUnlock()

	out := make(map[string][]string, len(snapshot))
	for i := range snapshot {
		out[snapshot[i].ID] = snapshot[i].Keys()
	}

	return out
}
