/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package remote refreshes the trust store from a distribution backend. The
// backend serves the whole signed signer list in one document; the decoder
// rejects the document outright on a bad distribution signature.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/internal/logfields"
	"github.com/dcckit/dcc/pkg/truststore"
)

var logger = log.New("truststore-remote")

const defaultMaxRetries = 3

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type listDecoder interface {
	Decode(data []byte) ([]truststore.TrustedCert, error)
}

// Config holds the dependencies of the refresh service.
type Config struct {
	HTTPClient httpClient
	// ListURL is the full URL of the signed trust list document.
	ListURL string
	Store   *truststore.Store
	Decoder listDecoder
	// MaxRetries bounds the retry attempts per request. Zero means the
	// default of 3.
	MaxRetries uint64
}

// Service keeps the local trust store in sync with the distribution
// backend.
type Service struct {
	client     httpClient
	listURL    string
	store      *truststore.Store
	decoder    listDecoder
	maxRetries uint64
}

// New returns a refresh service.
func New(config *Config) *Service {
	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return &Service{
		client:     config.HTTPClient,
		listURL:    strings.TrimSuffix(config.ListURL, "/"),
		store:      config.Store,
		decoder:    config.Decoder,
		maxRetries: maxRetries,
	}
}

// Refresh fetches the signed trust list and swaps the store to its decoded
// content. The store keeps its previous snapshot on any failure, including
// a bad list signature.
func (s *Service) Refresh(ctx context.Context) error {
	body, err := s.get(ctx, s.listURL)
	if err != nil {
		return fmt.Errorf("fetch trust list: %w", err)
	}

	certs, err := s.decoder.Decode(body)
	if err != nil {
		return fmt.Errorf("decode trust list: %w", err)
	}

	s.store.Update(certs)

	logger.Info("trust list refreshed", logfields.WithTrustListSize(len(certs)))

	return nil
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
