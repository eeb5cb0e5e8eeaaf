// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of cosmos.tx.v1beta1.SignDoc and cosmos.tx.v1beta1.TxRaw.
const (
	signDocBodyBytes     protowire.Number = 1
	signDocAuthInfoBytes protowire.Number = 2
	signDocChainID       protowire.Number = 3
	signDocAccountNumber protowire.Number = 4

	txRawBodyBytes     protowire.Number = 1
	txRawAuthInfoBytes protowire.Number = 2
	txRawSignatures    protowire.Number = 3
)

// Bytes is the protobuf encoding of the sign document, the bytes a Direct
// signature commits to. Zero-valued fields are omitted.
func (d *SignDoc) Bytes() []byte {
	var b []byte
	if len(d.BodyBytes) > 0 {
		b = protowire.AppendTag(b, signDocBodyBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, d.BodyBytes)
	}
	if len(d.AuthInfoBytes) > 0 {
		b = protowire.AppendTag(b, signDocAuthInfoBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, d.AuthInfoBytes)
	}
	if d.ChainID != "" {
		b = protowire.AppendTag(b, signDocChainID, protowire.BytesType)
		b = protowire.AppendString(b, d.ChainID)
	}
	if d.AccountNumber != 0 {
		b = protowire.AppendTag(b, signDocAccountNumber, protowire.VarintType)
		b = protowire.AppendVarint(b, d.AccountNumber)
	}
	return b
}

// TxRaw is a signed transaction ready for SendTx.
type TxRaw struct {
	BodyBytes     []byte
	AuthInfoBytes []byte
	Signatures    [][]byte
}

// EncodeTxRaw gives the protobuf encoding of a cosmos.tx.v1beta1.TxRaw.
func EncodeTxRaw(tx *TxRaw) []byte {
	var b []byte
	if len(tx.BodyBytes) > 0 {
		b = protowire.AppendTag(b, txRawBodyBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, tx.BodyBytes)
	}
	if len(tx.AuthInfoBytes) > 0 {
		b = protowire.AppendTag(b, txRawAuthInfoBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, tx.AuthInfoBytes)
	}
	for _, sig := range tx.Signatures {
		b = protowire.AppendTag(b, txRawSignatures, protowire.BytesType)
		b = protowire.AppendBytes(b, sig)
	}
	return b
}

// DecodeTxRaw parses a protobuf-encoded TxRaw. Unknown fields are skipped.
func DecodeTxRaw(b []byte) (*TxRaw, error) {
	tx := new(TxRaw)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case txRawBodyBytes:
			tx.BodyBytes = append([]byte(nil), v...)
		case txRawAuthInfoBytes:
			tx.AuthInfoBytes = append([]byte(nil), v...)
		case txRawSignatures:
			tx.Signatures = append(tx.Signatures, append([]byte(nil), v...))
		}
	}
	if len(tx.BodyBytes) == 0 {
		return nil, errors.New("tx has no body")
	}
	return tx, nil
}

// TxRaw assembles the signed transaction from the response. The signed
// document, not the one submitted, supplies the body and auth info.
func (r *DirectSignResponse) TxRaw() (*TxRaw, error) {
	sig, err := base64.StdEncoding.DecodeString(r.Signature.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return &TxRaw{
		BodyBytes:     r.Signed.BodyBytes,
		AuthInfoBytes: r.Signed.AuthInfoBytes,
		Signatures:    [][]byte{sig},
	}, nil
}
