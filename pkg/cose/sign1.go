/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cose implements the subset of the COSE single-signer message
// format used by health certificates: parsing COSE_Sign1 structures and
// verifying their signatures against an X.509 document signer certificate.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// KidSize is the number of bytes of the truncated key identifier embedded
// in the message headers.
const KidSize = 8

// Header label and algorithm values from RFC 8152.
const (
	labelAlg = 1
	labelKid = 4

	algES256 = -7
	algPS256 = -37
)

// ErrNotSign1 indicates the input is not a well-formed COSE_Sign1 message.
var ErrNotSign1 = errors.New("not a cose-sign1 message")

type header struct {
	Alg int64  `cbor:"1,keyasint,omitempty"`
	Kid []byte `cbor:"4,keyasint,omitempty"`
}

type sign1Message struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected header
	Payload     []byte
	Signature   []byte
}

// Sign1 is a parsed COSE_Sign1 message. The protected header is kept in its
// raw serialized form because it is part of the signed byte structure.
type Sign1 struct {
	Protected []byte
	Payload   []byte
	Signature []byte

	protectedHdr   header
	unprotectedHdr header
}

// Parse decodes a COSE_Sign1 structure from raw bytes. It fails with
// ErrNotSign1 if the bytes do not form a tagged or untagged four-element
// signed message.
func Parse(raw []byte) (*Sign1, error) {
	var msg sign1Message

	if err := cbor.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSign1, err)
	}

	s := &Sign1{
		Protected:      msg.Protected,
		Payload:        msg.Payload,
		Signature:      msg.Signature,
		unprotectedHdr: msg.Unprotected,
	}

	if len(msg.Protected) > 0 {
		if err := cbor.Unmarshal(msg.Protected, &s.protectedHdr); err != nil {
			return nil, fmt.Errorf("%w: protected header: %v", ErrNotSign1, err)
		}
	}

	return s, nil
}

// Kid returns the truncated key identifier, taken from the protected header
// first and falling back to the unprotected header. Some issuers embed a
// full SHA-256 here; only the first KidSize bytes are significant.
func (s *Sign1) Kid() []byte {
	kid := s.protectedHdr.Kid
	if len(kid) == 0 {
		kid = s.unprotectedHdr.Kid
	}

	if len(kid) > KidSize {
		kid = kid[:KidSize]
	}

	return kid
}

// Alg returns the signature algorithm identifier from the protected header,
// falling back to the unprotected header.
func (s *Sign1) Alg() int64 {
	if s.protectedHdr.Alg != 0 {
		return s.protectedHdr.Alg
	}

	return s.unprotectedHdr.Alg
}

// sigStructure builds the Sig_structure byte string covered by the
// signature (RFC 8152 section 4.4).
func (s *Sign1) sigStructure() ([]byte, error) {
	return cbor.Marshal([]interface{}{
		"Signature1",
		s.Protected,
		[]byte{},
		s.Payload,
	})
}

// Verify checks the message signature with the given public key. ES256
// signatures are expected in the raw r||s encoding, PS256 as an RSA PSS
// signature. A wrong key or mangled payload yields a non-nil error.
func (s *Sign1) Verify(pub crypto.PublicKey) error {
	structure, err := s.sigStructure()
	if err != nil {
		return fmt.Errorf("build sig structure: %w", err)
	}

	digest := sha256.Sum256(structure)

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		return verifyES256(key, digest[:], s.Signature)
	case *rsa.PublicKey:
		return rsa.VerifyPSS(key, crypto.SHA256, digest[:], s.Signature, nil)
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
}

func verifyES256(key *ecdsa.PublicKey, digest, signature []byte) error {
	size := (key.Curve.Params().BitSize + 7) / 8
	if len(signature) != 2*size {
		return fmt.Errorf("ecdsa signature length %d, want %d", len(signature), 2*size)
	}

	r := new(big.Int).SetBytes(signature[:size])
	sv := new(big.Int).SetBytes(signature[size:])

	if !ecdsa.Verify(key, digest, r, sv) {
		return errors.New("ecdsa signature mismatch")
	}

	return nil
}

// Sign produces a COSE_Sign1 message over payload with the given ECDSA
// private key. Used for the encode direction and for building fixtures.
func Sign(payload []byte, signer *ecdsa.PrivateKey, kid []byte) (*Sign1, error) {
	protected, err := cbor.Marshal(header{Alg: algES256, Kid: kid})
	if err != nil {
		return nil, fmt.Errorf("marshal protected header: %w", err)
	}

	s := &Sign1{Protected: protected, Payload: payload}
	if err := cbor.Unmarshal(protected, &s.protectedHdr); err != nil {
		return nil, fmt.Errorf("decode protected header: %w", err)
	}

	structure, err := s.sigStructure()
	if err != nil {
		return nil, fmt.Errorf("build sig structure: %w", err)
	}

	digest := sha256.Sum256(structure)

	r, sv, err := ecdsa.Sign(rand.Reader, signer, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}

	size := (signer.Curve.Params().BitSize + 7) / 8
	signature := make([]byte, 2*size)
	r.FillBytes(signature[:size])
	sv.FillBytes(signature[size:])

	s.Signature = signature

	return s, nil
}

// Encode serializes the message back into its tagged CBOR form.
func (s *Sign1) Encode() ([]byte, error) {
	raw, err := cbor.Marshal(sign1Message{
		Protected:   s.Protected,
		Unprotected: s.unprotectedHdr,
		Payload:     s.Payload,
		Signature:   s.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cose-sign1: %w", err)
	}

	tagged, err := cbor.Marshal(cbor.RawTag{Number: 18, Content: cbor.RawMessage(raw)})
	if err != nil {
		return nil, fmt.Errorf("tag cose-sign1: %w", err)
	}

	return tagged, nil
}
