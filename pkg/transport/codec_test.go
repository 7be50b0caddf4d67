/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		[]byte{},
		[]byte{0x00},
		[]byte("hello world"),
		[]byte{0xd2, 0x84, 0x43, 0xa1, 0x01, 0x26, 0xa0, 0x58, 0x1d},
		bytesOfLen(t, 4096),
	}

	for _, payload := range payloads {
		encoded := Encode(payload)
		require.True(t, strings.HasPrefix(encoded, Prefix))

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, payload, decoded)
	}
}

func TestDecode_WithoutPrefix(t *testing.T) {
	t.Parallel()

	encoded := Encode([]byte("payload"))

	decoded, err := Decode(strings.TrimPrefix(encoded, Prefix))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), decoded)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid base45 alphabet", func(t *testing.T) {
		t.Parallel()

		_, err := Decode("HC1:!!!lowercase is not base45!!!")
		require.Error(t, err)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
	})

	t.Run("valid base45 but corrupt zlib stream", func(t *testing.T) {
		t.Parallel()

		// "BB8" is valid base45 for a payload that is not a zlib stream.
		_, err := Decode("HC1:BB8")
		require.Error(t, err)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
	})

	t.Run("case-sensitive prefix is not stripped", func(t *testing.T) {
		t.Parallel()

		encoded := Encode([]byte("payload"))

		_, err := Decode("hc1:" + strings.TrimPrefix(encoded, Prefix))
		require.Error(t, err)
	})
}

func bytesOfLen(t *testing.T, n int) []byte {
	t.Helper()

	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}

	return b
}
