/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package remote refreshes the rule corpus and value sets from a
// distribution backend. The backend publishes an identifier/hash index;
// full documents are fetched per hash and only when the hash changed, so a
// refresh on an unchanged corpus costs one index request.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/internal/logfields"
	"github.com/dcckit/dcc/pkg/rules"
	"github.com/dcckit/dcc/pkg/rules/schema"
)

var logger = log.New("rules-remote")

const defaultMaxRetries = 3

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Identifier is one entry of the distribution index.
type Identifier struct {
	Identifier string `json:"identifier"`
	Country    string `json:"country"`
	Version    string `json:"version"`
	Hash       string `json:"hash"`
}

// Config holds the dependencies of the refresh service.
type Config struct {
	HTTPClient    httpClient
	BaseURL       string
	RuleStore     *rules.Store
	ValueSetStore *rules.ValueSetStore
	// MaxRetries bounds the retry attempts per request. Zero means the
	// default of 3.
	MaxRetries uint64
}

// Service keeps local rule and value-set snapshots in sync with the
// distribution backend.
type Service struct {
	client        httpClient
	baseURL       string
	ruleStore     *rules.Store
	valueSetStore *rules.ValueSetStore
	maxRetries    uint64
}

// New returns a refresh service.
func New(config *Config) *Service {
	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return &Service{
		client:        config.HTTPClient,
		baseURL:       strings.TrimSuffix(config.BaseURL, "/"),
		ruleStore:     config.RuleStore,
		valueSetStore: config.ValueSetStore,
		maxRetries:    maxRetries,
	}
}

// RefreshRules reconciles the local rule corpus against the backend index.
// Rules whose hash is unchanged are kept as-is; added and changed rules are
// fetched, schema-validated and admitted; rules absent from the index are
// dropped. The store is swapped once, after all fetches succeeded.
func (s *Service) RefreshRules(ctx context.Context) error {
	var index []Identifier
	if err := s.getJSON(ctx, s.baseURL+"/rules", &index); err != nil {
		return fmt.Errorf("fetch rule index: %w", err)
	}

	local := make(map[string]rules.Rule)
	for _, r := range s.ruleStore.All() {
		local[r.Identifier] = r
	}

	next := make([]rules.Rule, 0, len(index))

	var fetched int

	for _, entry := range index {
		if have, ok := local[entry.Identifier]; ok && have.Hash == entry.Hash {
			next = append(next, have)
			continue
		}

		rule, err := s.fetchRule(ctx, entry)
		if err != nil {
			return fmt.Errorf("fetch rule %s: %w", entry.Identifier, err)
		}

		next = append(next, rule)
		fetched++
	}

	s.ruleStore.Update(next)

	logger.Info("rule corpus refreshed", logfields.WithRuleCount(len(next)))

	return nil
}

func (s *Service) fetchRule(ctx context.Context, entry Identifier) (rules.Rule, error) {
	url := fmt.Sprintf("%s/rules/%s/%s", s.baseURL, strings.ToLower(entry.Country), entry.Hash)

	body, err := s.get(ctx, url)
	if err != nil {
		return rules.Rule{}, err
	}

	if err := schema.ValidateRule(body); err != nil {
		return rules.Rule{}, err
	}

	var rule rules.Rule
	if err := json.Unmarshal(body, &rule); err != nil {
		return rules.Rule{}, fmt.Errorf("decode rule document: %w", err)
	}

	rule.Hash = entry.Hash

	return rule, nil
}

// RefreshValueSets reconciles the local value sets against the backend
// index, with the same hash-diff protocol as rules.
func (s *Service) RefreshValueSets(ctx context.Context) error {
	var index []Identifier
	if err := s.getJSON(ctx, s.baseURL+"/valuesets", &index); err != nil {
		return fmt.Errorf("fetch value-set index: %w", err)
	}

	local := make(map[string]rules.ValueSet)
	for _, v := range s.valueSetStore.All() {
		local[v.ID] = v
	}

	next := make([]rules.ValueSet, 0, len(index))

	for _, entry := range index {
		if have, ok := local[entry.Identifier]; ok && have.Hash == entry.Hash {
			next = append(next, have)
			continue
		}

		body, err := s.get(ctx, s.baseURL+"/valuesets/"+entry.Hash)
		if err != nil {
			return fmt.Errorf("fetch value set %s: %w", entry.Identifier, err)
		}

		var set rules.ValueSet
		if err := json.Unmarshal(body, &set); err != nil {
			return fmt.Errorf("decode value set %s: %w", entry.Identifier, err)
		}

		set.Hash = entry.Hash

		next = append(next, set)
	}

	s.valueSetStore.Update(next)

	return nil
}

func (s *Service) getJSON(ctx context.Context, url string, out interface{}) error {
	body, err := s.get(ctx, url)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, out)
}

// get performs one GET with exponential backoff on transient failures.
// Non-2xx responses other than 429 and 5xx are permanent.
func (s *Service) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}

		defer func() {
			if e := resp.Body.Close(); e != nil {
				logger.Warn("close response body", log.WithError(e))
			}
		}()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				return err
			}

			return backoff.Permanent(err)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		return nil
	}

	err := backoff.Retry(op,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx))
	if err != nil {
		return nil, err
	}

	return body, nil
}
