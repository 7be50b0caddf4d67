/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/dcckit/dcc/cmd/common"
	"github.com/dcckit/dcc/internal/logfields"
	"github.com/dcckit/dcc/pkg/restapi/resterr"
	"github.com/dcckit/dcc/pkg/restapi/v1/healthcheck"
	"github.com/dcckit/dcc/pkg/restapi/v1/verification"
	"github.com/dcckit/dcc/pkg/rules"
	rulesremote "github.com/dcckit/dcc/pkg/rules/remote"
	"github.com/dcckit/dcc/pkg/truststore"
	trustremote "github.com/dcckit/dcc/pkg/truststore/remote"
	"github.com/dcckit/dcc/pkg/verifier"
)

var logger = log.New("dcc-rest")

const httpClientTimeout = 30 * time.Second

type server interface {
	ListenAndServe(host string, handler http.Handler) error
}

// HTTPServer is the standard Go HTTP server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server on the given host.
func (s *HTTPServer) ListenAndServe(host string, handler http.Handler) error {
	return http.ListenAndServe(host, handler) //nolint: gosec
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd(srv server) *cobra.Command {
	startCmd := createStartCmd(srv)

	createFlags(startCmd)

	return startCmd
}

func createStartCmd(srv server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start dcc-rest",
		Long:  "Start the health certificate verification REST service",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := getStartupParameters(cmd)
			if err != nil {
				return err
			}

			return startService(params, srv)
		},
	}
}

func startService(params *startupParameters, srv server) error {
	if params.logLevel != "" {
		common.SetDefaultLogLevel(logger, params.logLevel)
	}

	trustStore := truststore.New()
	ruleStore := rules.NewStore()
	valueSets := rules.NewValueSetStore()

	httpClient := &http.Client{Timeout: httpClientTimeout}

	ctx := context.Background()

	if params.trustListURL != "" {
		trustSvc := trustremote.New(&trustremote.Config{
			HTTPClient: httpClient,
			ListURL:    params.trustListURL,
			Store:      trustStore,
			Decoder:    truststore.NewDecoder(params.trustListKey),
		})

		if err := trustSvc.Refresh(ctx); err != nil {
			return fmt.Errorf("initial trust list refresh: %w", err)
		}

		go refreshLoop(ctx, params.refreshInterval, trustSvc.Refresh)
	}

	if params.rulesServiceURL != "" {
		ruleSvc := rulesremote.New(&rulesremote.Config{
			HTTPClient:    httpClient,
			BaseURL:       params.rulesServiceURL,
			RuleStore:     ruleStore,
			ValueSetStore: valueSets,
		})

		if err := ruleSvc.RefreshRules(ctx); err != nil {
			return fmt.Errorf("initial rule refresh: %w", err)
		}

		if err := ruleSvc.RefreshValueSets(ctx); err != nil {
			return fmt.Errorf("initial value-set refresh: %w", err)
		}

		go refreshLoop(ctx, params.refreshInterval, func(ctx context.Context) error {
			if err := ruleSvc.RefreshRules(ctx); err != nil {
				return err
			}

			return ruleSvc.RefreshValueSets(ctx)
		})
	}

	controller := verification.NewController(&verification.Config{
		VerifySvc: verifier.New(&verifier.Config{TrustStore: trustStore}),
		Engine:    rules.NewEngine(),
		RuleStore: ruleStore,
		ValueSets: valueSets,
		Country:   params.country,
	})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = resterr.HTTPErrorHandler
	e.Use(middleware.Recover())

	e.GET("/healthcheck", (&healthcheck.Controller{}).GetHealthcheck)
	e.POST("/v1/verifications", controller.PostVerification)

	logger.Info("Starting dcc-rest server", logfields.WithHostURL(params.hostURL))

	return srv.ListenAndServe(params.hostURL, e)
}

func refreshLoop(ctx context.Context, interval time.Duration, refresh func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresh(ctx); err != nil {
				logger.Warn("Background refresh failed", log.WithError(err))
			}
		}
	}
}
