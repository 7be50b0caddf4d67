/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	cmdutils "github.com/trustbloc/cmdutil-go/pkg/utils/cmd"

	"github.com/dcckit/dcc/cmd/common"
)

const (
	commonEnvVarUsageText = "Alternatively, this can be set with the following environment variable: "

	hostURLFlagName      = "host-url"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "Host and port to run the dcc-rest instance on. Format: HostName:Port."
	hostURLEnvKey        = "DCC_REST_HOST_URL"

	trustListURLFlagName  = "trust-list-url"
	trustListURLEnvKey    = "DCC_REST_TRUST_LIST_URL"
	trustListURLFlagUsage = "URL of the signed trust list document. If not provided the trust " +
		"store starts empty and every verification fails with an untrusted signature. " +
		commonEnvVarUsageText + trustListURLEnvKey

	trustListKeyFileFlagName  = "trust-list-public-key-file"
	trustListKeyFileEnvKey    = "DCC_REST_TRUST_LIST_PUBLIC_KEY_FILE"
	trustListKeyFileFlagUsage = "Path to the PEM-encoded ECDSA public key that signs the trust " +
		"list. Required when " + trustListURLFlagName + " is set. " +
		commonEnvVarUsageText + trustListKeyFileEnvKey

	rulesURLFlagName  = "rules-service-url"
	rulesURLEnvKey    = "DCC_REST_RULES_SERVICE_URL"
	rulesURLFlagUsage = "Base URL of the rule and value-set distribution service. If not " +
		"provided no business rules are applied. " +
		commonEnvVarUsageText + rulesURLEnvKey

	countryFlagName  = "country"
	countryFlagUsage = "Acceptance country for rule selection (default: de). " +
		commonEnvVarUsageText + countryEnvKey
	countryEnvKey = "DCC_REST_COUNTRY"

	refreshIntervalFlagName  = "refresh-interval"
	refreshIntervalEnvKey    = "DCC_REST_REFRESH_INTERVAL"
	refreshIntervalFlagUsage = "Interval between trust list and rule refreshes, as a Go " +
		"duration (default: 1h). " + commonEnvVarUsageText + refreshIntervalEnvKey
)

const defaultRefreshInterval = time.Hour

type startupParameters struct {
	hostURL         string
	trustListURL    string
	trustListKey    *ecdsa.PublicKey
	rulesServiceURL string
	country         string
	refreshInterval time.Duration
	logLevel        string
}

func getStartupParameters(cmd *cobra.Command) (*startupParameters, error) {
	hostURL, err := cmdutils.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	trustListURL := cmdutils.GetUserSetOptionalVarFromString(cmd, trustListURLFlagName, trustListURLEnvKey)

	var trustListKey *ecdsa.PublicKey

	if trustListURL != "" {
		keyFile, err := cmdutils.GetUserSetVarFromString(cmd, trustListKeyFileFlagName,
			trustListKeyFileEnvKey, false)
		if err != nil {
			return nil, err
		}

		trustListKey, err = readPublicKey(keyFile)
		if err != nil {
			return nil, err
		}
	}

	rulesServiceURL := cmdutils.GetUserSetOptionalVarFromString(cmd, rulesURLFlagName, rulesURLEnvKey)

	country := cmdutils.GetUserSetOptionalVarFromString(cmd, countryFlagName, countryEnvKey)

	refreshInterval := defaultRefreshInterval

	if interval := cmdutils.GetUserSetOptionalVarFromString(cmd, refreshIntervalFlagName,
		refreshIntervalEnvKey); interval != "" {
		refreshInterval, err = time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", refreshIntervalFlagName, err)
		}
	}

	logLevel := cmdutils.GetUserSetOptionalVarFromString(cmd, common.LogLevelFlagName, common.LogLevelEnvKey)

	return &startupParameters{
		hostURL:         hostURL,
		trustListURL:    trustListURL,
		trustListKey:    trustListKey,
		rulesServiceURL: rulesServiceURL,
		country:         country,
		refreshInterval: refreshInterval,
		logLevel:        logLevel,
	}, nil
}

func readPublicKey(path string) (*ecdsa.PublicKey, error) {
	pemBytes, err := os.ReadFile(path) //nolint: gosec
	if err != nil {
		return nil, fmt.Errorf("read trust list public key: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("trust list public key: no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse trust list public key: %w", err)
	}

	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("trust list public key: expected ECDSA, got %T", pub)
	}

	return ecPub, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(trustListURLFlagName, "", "", trustListURLFlagUsage)
	startCmd.Flags().StringP(trustListKeyFileFlagName, "", "", trustListKeyFileFlagUsage)
	startCmd.Flags().StringP(rulesURLFlagName, "", "", rulesURLFlagUsage)
	startCmd.Flags().StringP(countryFlagName, "", "", countryFlagUsage)
	startCmd.Flags().StringP(refreshIntervalFlagName, "", "", refreshIntervalFlagUsage)
	startCmd.Flags().StringP(common.LogLevelFlagName, common.LogLevelFlagShorthand, "",
		common.LogLevelFlagUsage)
}
