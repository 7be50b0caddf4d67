/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockServer struct {
	host    string
	handler http.Handler
	err     error
}

func (s *mockServer) ListenAndServe(host string, handler http.Handler) error {
	s.host = host
	s.handler = handler

	return s.err
}

func TestStartCmd(t *testing.T) {
	t.Run("starts with host-url flag", func(t *testing.T) {
		srv := &mockServer{}

		startCmd := GetStartCmd(srv)
		startCmd.SetArgs([]string{"--" + hostURLFlagName, "localhost:8080"})

		require.NoError(t, startCmd.Execute())
		require.Equal(t, "localhost:8080", srv.host)
		require.NotNil(t, srv.handler)
	})

	t.Run("starts with host-url env var", func(t *testing.T) {
		t.Setenv(hostURLEnvKey, "localhost:8081")

		srv := &mockServer{}

		startCmd := GetStartCmd(srv)
		startCmd.SetArgs(nil)

		require.NoError(t, startCmd.Execute())
		require.Equal(t, "localhost:8081", srv.host)
	})

	t.Run("missing host-url", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})
		startCmd.SetArgs(nil)

		err := startCmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), hostURLFlagName)
	})

	t.Run("trust list url requires public key file", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})
		startCmd.SetArgs([]string{
			"--" + hostURLFlagName, "localhost:8080",
			"--" + trustListURLFlagName, "https://distribution.example.com/trustList",
		})

		err := startCmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), trustListKeyFileFlagName)
	})

	t.Run("invalid refresh interval", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})
		startCmd.SetArgs([]string{
			"--" + hostURLFlagName, "localhost:8080",
			"--" + refreshIntervalFlagName, "often",
		})

		err := startCmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), refreshIntervalFlagName)
	})

	t.Run("sets log level", func(t *testing.T) {
		srv := &mockServer{}

		startCmd := GetStartCmd(srv)
		startCmd.SetArgs([]string{
			"--" + hostURLFlagName, "localhost:8080",
			"--log-level", "debug",
		})

		require.NoError(t, startCmd.Execute())
	})
}

func TestReadPublicKey(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		pub, err := readPublicKey(writeKeyFile(t))
		require.NoError(t, err)
		require.NotNil(t, pub)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readPublicKey(filepath.Join(t.TempDir(), "nope.pem"))
		require.Error(t, err)
	})

	t.Run("not PEM", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.pem")
		require.NoError(t, os.WriteFile(path, []byte("not pem"), 0o600))

		_, err := readPublicKey(path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no PEM block")
	})
}

func writeKeyFile(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dist.pem")

	require.NoError(t, os.WriteFile(path,
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	return path
}
