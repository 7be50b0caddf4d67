/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport implements the QR text transport encoding for health
// certificates: an optional context prefix, base45 text encoding and zlib
// compression on top of the raw COSE bytes.
package transport

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/adrianrudnik/base45-go"
)

// Prefix is the context identifier prepended to QR payloads. It is
// case-sensitive and optional on decode.
const Prefix = "HC1:"

// DecodeError indicates that a QR payload could not be reversed into raw
// COSE bytes. The certificate must be rescanned; retrying is pointless.
type DecodeError struct {
	err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode qr payload: %v", e.err)
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

// Encode compresses raw with zlib, base45-encodes the result and prepends
// the context prefix. It is the strict inverse of Decode.
func Encode(raw []byte) string {
	var buf bytes.Buffer

	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(raw)
	_ = zw.Close()

	return Prefix + string(base45.Encode(buf.Bytes()))
}

// Decode strips the optional context prefix, reverses the base45 encoding
// and inflates the zlib stream. Malformed base45 alphabet or a corrupt
// deflate stream surface as a *DecodeError.
func Decode(qr string) ([]byte, error) {
	compressed, err := base45.Decode([]byte(strings.TrimPrefix(qr, Prefix)))
	if err != nil {
		return nil, &DecodeError{err: fmt.Errorf("base45: %w", err)}
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &DecodeError{err: fmt.Errorf("zlib: %w", err)}
	}
	defer zr.Close() //nolint:errcheck

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecodeError{err: fmt.Errorf("zlib: %w", err)}
	}

	return raw, nil
}
