/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcckit/dcc/pkg/rules"
)

const ruleDocTemplate = `{
	"Identifier": "%s",
	"Type": "Acceptance",
	"Country": "DE",
	"Version": "%s",
	"SchemaVersion": "1.0.0",
	"Engine": "CERTLOGIC",
	"EngineVersion": "1.0.0",
	"CertificateType": "General",
	"Description": [{"lang": "en", "desc": "rule"}],
	"ValidFrom": "2021-07-01T00:00:00Z",
	"ValidTo": "2030-06-01T00:00:00Z",
	"AffectedFields": [],
	"Logic": {"var": "payload.ver"}
}`

func TestService_RefreshRules(t *testing.T) {
	t.Run("adds, keeps and drops by hash diff", func(t *testing.T) {
		kept := rules.Rule{Identifier: "GR-DE-0001", Hash: "hash-1"}
		stale := rules.Rule{Identifier: "GR-DE-0002", Hash: "old-hash"}
		removed := rules.Rule{Identifier: "GR-DE-0003", Hash: "hash-3"}

		store := rules.NewStore(kept, stale, removed)

		client := &fakeHTTPClient{responses: map[string]fakeResponse{
			"/rules": {status: http.StatusOK, body: `[
				{"identifier": "GR-DE-0001", "country": "DE", "version": "1.0.0", "hash": "hash-1"},
				{"identifier": "GR-DE-0002", "country": "DE", "version": "1.1.0", "hash": "new-hash"},
				{"identifier": "GR-DE-0004", "country": "DE", "version": "1.0.0", "hash": "hash-4"}
			]`},
			"/rules/de/new-hash": {status: http.StatusOK, body: fmt.Sprintf(ruleDocTemplate, "GR-DE-0002", "1.1.0")},
			"/rules/de/hash-4":   {status: http.StatusOK, body: fmt.Sprintf(ruleDocTemplate, "GR-DE-0004", "1.0.0")},
		}}

		svc := New(&Config{
			HTTPClient: client,
			BaseURL:    "https://distribution.example.com",
			RuleStore:  store,
		})

		require.NoError(t, svc.RefreshRules(context.Background()))

		byID := map[string]rules.Rule{}
		for _, r := range store.All() {
			byID[r.Identifier] = r
		}

		require.Len(t, byID, 3)
		require.Equal(t, "hash-1", byID["GR-DE-0001"].Hash)
		require.Equal(t, "new-hash", byID["GR-DE-0002"].Hash)
		require.Equal(t, "1.1.0", byID["GR-DE-0002"].Version)
		require.Equal(t, "hash-4", byID["GR-DE-0004"].Hash)
		require.NotContains(t, byID, "GR-DE-0003")

		// unchanged rule must not be re-fetched
		require.Zero(t, client.calls["/rules/de/hash-1"])
	})

	t.Run("schema-invalid rule document aborts the refresh", func(t *testing.T) {
		store := rules.NewStore()

		client := &fakeHTTPClient{responses: map[string]fakeResponse{
			"/rules": {status: http.StatusOK, body: `[
				{"identifier": "GR-DE-0001", "country": "DE", "version": "1.0.0", "hash": "h1"}
			]`},
			"/rules/de/h1": {status: http.StatusOK, body: `{"Identifier": "GR-DE-0001"}`},
		}}

		svc := New(&Config{HTTPClient: client, BaseURL: "https://d.example.com", RuleStore: store})

		err := svc.RefreshRules(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "schema")
		require.Empty(t, store.All(), "store must stay untouched on failure")
	})

	t.Run("retries transient server errors", func(t *testing.T) {
		store := rules.NewStore()

		client := &fakeHTTPClient{
			responses: map[string]fakeResponse{
				"/rules": {status: http.StatusOK, body: `[]`},
			},
			failFirst: 2,
		}

		svc := New(&Config{HTTPClient: client, BaseURL: "https://d.example.com", RuleStore: store})

		require.NoError(t, svc.RefreshRules(context.Background()))
		require.Equal(t, 3, client.calls["/rules"])
	})

	t.Run("gives up on permanent client errors", func(t *testing.T) {
		client := &fakeHTTPClient{responses: map[string]fakeResponse{
			"/rules": {status: http.StatusNotFound, body: `not found`},
		}}

		svc := New(&Config{HTTPClient: client, BaseURL: "https://d.example.com", RuleStore: rules.NewStore()})

		err := svc.RefreshRules(context.Background())
		require.Error(t, err)
		require.Equal(t, 1, client.calls["/rules"])
	})
}

func TestService_RefreshValueSets(t *testing.T) {
	store := rules.NewValueSetStore(rules.ValueSet{ID: "vaccines-covid-19-names", Hash: "vh-1"})

	client := &fakeHTTPClient{responses: map[string]fakeResponse{
		"/valuesets": {status: http.StatusOK, body: `[
			{"identifier": "vaccines-covid-19-names", "hash": "vh-1"},
			{"identifier": "covid-19-lab-test-type", "hash": "vh-2"}
		]`},
		"/valuesets/vh-2": {status: http.StatusOK, body: `{
			"valueSetId": "covid-19-lab-test-type",
			"valueSetDate": "2021-04-27",
			"valueSetValues": {"LP6464-4": {}, "LP217198-3": {}}
		}`},
	}}

	svc := New(&Config{
		HTTPClient:    client,
		BaseURL:       "https://d.example.com",
		ValueSetStore: store,
	})

	require.NoError(t, svc.RefreshValueSets(context.Background()))

	m := store.AsMap()
	require.Len(t, m, 2)
	require.Equal(t, []string{"LP217198-3", "LP6464-4"}, m["covid-19-lab-test-type"])
	require.Zero(t, client.calls["/valuesets/vh-1"], "unchanged value set must not be re-fetched")
}

type fakeResponse struct {
	status int
	body   string
}

type fakeHTTPClient struct {
	responses map[string]fakeResponse
	calls     map[string]int
	// failFirst makes the first n requests fail with a 503.
	failFirst int
	total     int
}

func (c *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.calls == nil {
		c.calls = map[string]int{}
	}

	path := req.URL.Path
	c.calls[path]++
	c.total++

	if c.total <= c.failFirst {
		return response(http.StatusServiceUnavailable, "try later"), nil
	}

	r, ok := c.responses[path]
	if !ok {
		return nil, errors.New("unexpected request: " + path)
	}

	return response(r.status, r.body), nil
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}
