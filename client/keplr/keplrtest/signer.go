// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplrtest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/kent-3/keplr/client/keplr"
	"github.com/kent-3/keplr/dex"
)

// signerObject is the wallet's offline signer. Amino-only signers have no
// signDirect method.
type signerObject struct {
	w       *Wallet
	chainID string
	direct  bool
}

var _ keplr.HostObject = (*signerObject)(nil)

func (s *signerObject) Property(name string) (json.RawMessage, error) {
	if name == "chainId" {
		return json.Marshal(s.chainID)
	}
	return nil, nil
}

func (s *signerObject) Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error) {
	if err := s.w.begin(ctx, method); err != nil {
		return nil, err
	}
	if _, err := s.w.enabledChain(s.chainID); err != nil {
		return nil, err
	}
	switch method {
	case "getAccounts":
		return result(s.accounts())
	case "signAmino":
		return s.signAmino(args)
	case "signDirect":
		if s.direct {
			return s.signDirect(args)
		}
	}
	return nil, hostError("signer.%s is not a function", method)
}

func (s *signerObject) accounts() []map[string]interface{} {
	s.w.mtx.Lock()
	n := s.w.accountCount
	s.w.mtx.Unlock()
	accts := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		addr, _ := s.w.Bech32Address(s.chainID, i)
		accts = append(accts, map[string]interface{}{
			"address": addr,
			"algo":    "secp256k1",
			"pubkey":  uint8Array(s.w.PrivateKey(i).PubKey().SerializeCompressed()),
		})
	}
	return accts
}

// signerKey finds the account with the bech32 address.
func (s *signerObject) signerKey(addr string) (*secp256k1.PrivateKey, error) {
	s.w.mtx.Lock()
	n := s.w.accountCount
	s.w.mtx.Unlock()
	for i := 0; i < n; i++ {
		a, err := s.w.Bech32Address(s.chainID, i)
		if err == nil && a == addr {
			return s.w.PrivateKey(i), nil
		}
	}
	return nil, hostError("Unknown signer address %s", addr)
}

func (s *signerObject) signAmino(args []json.RawMessage) (json.RawMessage, error) {
	var addr string
	var doc keplr.StdSignDoc
	if err := arg("signAmino", args, 0, &addr); err != nil {
		return nil, err
	}
	if err := arg("signAmino", args, 1, &doc); err != nil {
		return nil, err
	}
	if doc.ChainID != s.chainID {
		return nil, hostError("Chain id in the message is not matched")
	}
	priv, err := s.signerKey(addr)
	if err != nil {
		return nil, err
	}
	s.w.mtx.Lock()
	if s.w.memoOverride != nil {
		doc.Memo = *s.w.memoOverride
	}
	s.w.mtx.Unlock()
	msg, err := AminoSignBytes(&doc)
	if err != nil {
		return nil, hostError("%v", err)
	}
	return result(&keplr.AminoSignResponse{
		Signed:    doc,
		Signature: stdSignature(priv, msg),
	})
}

func (s *signerObject) signDirect(args []json.RawMessage) (json.RawMessage, error) {
	var addr string
	var doc keplr.SignDoc
	if err := arg("signDirect", args, 0, &addr); err != nil {
		return nil, err
	}
	if err := arg("signDirect", args, 1, &doc); err != nil {
		return nil, err
	}
	if doc.ChainID != s.chainID {
		return nil, hostError("Chain id in the message is not matched")
	}
	priv, err := s.signerKey(addr)
	if err != nil {
		return nil, err
	}
	// The wallet returns Uint8Arrays and a Long account number.
	return result(map[string]interface{}{
		"signed": map[string]interface{}{
			"bodyBytes":     uint8Array(doc.BodyBytes),
			"authInfoBytes": uint8Array(doc.AuthInfoBytes),
			"chainId":       doc.ChainID,
			"accountNumber": strconv.FormatUint(doc.AccountNumber, 10),
		},
		"signature": stdSignature(priv, doc.Bytes()),
	})
}

func stdSignature(priv *secp256k1.PrivateKey, msg []byte) keplr.StdSignature {
	return keplr.StdSignature{
		PubKey: keplr.PubKey{
			Type:  keplr.PubKeyTypeSecp256k1,
			Value: base64.StdEncoding.EncodeToString(priv.PubKey().SerializeCompressed()),
		},
		Signature: base64.StdEncoding.EncodeToString(SignatureBytes(priv, msg)),
	}
}

// SignatureBytes signs SHA256(msg) and returns the 64 byte r || s form used
// by Cosmos SDK chains.
func SignatureBytes(priv *secp256k1.PrivateKey, msg []byte) []byte {
	hash := sha256.Sum256(msg)
	sig := ecdsa.Sign(priv, hash[:])
	r, s := sig.R(), sig.S()
	rb, sb := r.Bytes(), s.Bytes()
	return append(rb[:], sb[:]...)
}

// VerifySignature checks a 64 byte r || s signature of SHA256(msg).
func VerifySignature(pubKey, msg, sig []byte) error {
	pub, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return err
	}
	if len(sig) != 64 {
		return fmt.Errorf("signature is %d bytes", len(sig))
	}
	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
		return fmt.Errorf("signature overflows the group order")
	}
	hash := sha256.Sum256(msg)
	if !ecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// AminoSignBytes is the canonical Amino JSON of the document: keys sorted,
// no insignificant whitespace, and <, > and & escaped.
func AminoSignBytes(doc *keplr.StdSignDoc) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	// Round trip through interface{} to sort object keys at every level.
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// enigma argument decoding shared with the wallet's free functions.
func bytesArg(method string, args []json.RawMessage, i int) ([]byte, error) {
	var b dex.Bytes
	if err := arg(method, args, i, &b); err != nil {
		return nil, err
	}
	return b, nil
}
