// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/kent-3/keplr/dex"
)

// Key is the wallet's active identity for one chain.
type Key struct {
	Name               string    `json:"name"`
	Algo               string    `json:"algo"`
	PubKey             dex.Bytes `json:"pubKey"`
	Address            dex.Bytes `json:"address"`
	Bech32Address      string    `json:"bech32Address"`
	EthereumHexAddress string    `json:"ethereumHexAddress"`
	IsNanoLedger       bool      `json:"isNanoLedger"`
	IsKeystone         bool      `json:"isKeystone"`
}

// keyFields are the fields getKey must return. ethereumHexAddress is
// optional; wallets leave it out for keys with no EVM address.
var keyFields = []string{"name", "algo", "pubKey", "address", "bech32Address", "isNanoLedger", "isKeystone"}

// UnmarshalJSON decodes the key, requiring every field but
// ethereumHexAddress.
func (k *Key) UnmarshalJSON(b []byte) error {
	if err := requireFields(b, keyFields...); err != nil {
		return err
	}
	type key Key
	var w key
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*k = Key(w)
	return nil
}

// requireFields checks that the JSON object b has non-null values for names.
func requireFields(b []byte, names ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for _, name := range names {
		if raw, found := fields[name]; !found || string(raw) == "null" {
			return fmt.Errorf("missing %s", name)
		}
	}
	return nil
}

// String is a diagnostic representation. Binary fields print as base64.
func (k *Key) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Key{name: %q, algo: %q, pubKey: %s, address: %s, bech32Address: %q",
		k.Name, k.Algo, k.PubKey, k.Address, k.Bech32Address)
	if k.EthereumHexAddress != "" {
		fmt.Fprintf(&sb, ", ethereumHexAddress: %q", k.EthereumHexAddress)
	}
	fmt.Fprintf(&sb, ", isNanoLedger: %t, isKeystone: %t}", k.IsNanoLedger, k.IsKeystone)
	return sb.String()
}

// validate checks that the bech32 address is present and well formed, and
// that it encodes the raw address when one is given.
func (k *Key) validate() error {
	if k.Bech32Address == "" {
		return fmt.Errorf("missing bech32Address")
	}
	hrp, data, err := decodeBech32(k.Bech32Address)
	if err != nil {
		return fmt.Errorf("invalid bech32Address %q: %w", k.Bech32Address, err)
	}
	if len(k.Address) > 0 && !bytes.Equal(data, k.Address) {
		return fmt.Errorf("bech32Address %q (prefix %q) does not encode address %s",
			k.Bech32Address, hrp, k.Address)
	}
	return nil
}

// Bech32Prefix is the human-readable part of the key's bech32 address.
func (k *Key) Bech32Prefix() string {
	if i := strings.LastIndexByte(k.Bech32Address, '1'); i > 0 {
		return k.Bech32Address[:i]
	}
	return ""
}

func decodeBech32(addr string) (string, []byte, error) {
	hrp, data5, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return "", nil, err
	}
	data, err := bech32.ConvertBits(data5, 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, data, nil
}

// Algo is the signing algorithm of an account.
type Algo string

// The algorithms the wallet reports for accounts.
const (
	AlgoSecp256k1 Algo = "secp256k1"
	AlgoEd25519   Algo = "ed25519"
	AlgoSr25519   Algo = "sr25519"
)

// UnmarshalJSON rejects algorithms outside the known set.
func (a *Algo) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch algo := Algo(s); algo {
	case AlgoSecp256k1, AlgoEd25519, AlgoSr25519:
		*a = algo
		return nil
	}
	return fmt.Errorf("unknown algo %q", s)
}

// AccountData is an account exposed by an offline signer.
type AccountData struct {
	Address string    `json:"address"`
	Algo    Algo      `json:"algo"`
	PubKey  dex.Bytes `json:"pubkey"`
}

// UnmarshalJSON decodes the account, requiring every field.
func (a *AccountData) UnmarshalJSON(b []byte) error {
	if err := requireFields(b, "address", "algo", "pubkey"); err != nil {
		return err
	}
	type account AccountData
	var w account
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*a = AccountData(w)
	return nil
}

func (a *AccountData) validate() error {
	if a.Address == "" {
		return fmt.Errorf("missing address")
	}
	if a.Algo == AlgoSecp256k1 {
		if _, err := secp256k1.ParsePubKey(a.PubKey); err != nil {
			return fmt.Errorf("invalid secp256k1 pubkey for %s: %w", a.Address, err)
		}
	}
	return nil
}

// Coin is an amount of a denomination. The amount is kept as the decimal
// string the chain uses.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// StdFee is an Amino fee.
type StdFee struct {
	Amount  []Coin `json:"amount"`
	Gas     string `json:"gas"`
	Granter string `json:"granter,omitempty"`
	Payer   string `json:"payer,omitempty"`
}

// MarshalJSON encodes a nil amount as an empty list.
func (f StdFee) MarshalJSON() ([]byte, error) {
	type fee StdFee
	w := fee(f)
	if w.Amount == nil {
		w.Amount = []Coin{}
	}
	return json.Marshal(w)
}

// AminoMsg is an Amino message. Value is the message body, left
// uninterpreted.
type AminoMsg struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// StdSignDoc is the Amino sign document. Fields are in wire order.
type StdSignDoc struct {
	ChainID       string     `json:"chain_id"`
	AccountNumber string     `json:"account_number"`
	Sequence      string     `json:"sequence"`
	Fee           StdFee     `json:"fee"`
	Msgs          []AminoMsg `json:"msgs"`
	Memo          string     `json:"memo"`
}

// MarshalJSON encodes nil msgs as an empty list.
func (d StdSignDoc) MarshalJSON() ([]byte, error) {
	type signDoc StdSignDoc
	w := signDoc(d)
	if w.Msgs == nil {
		w.Msgs = []AminoMsg{}
	}
	return json.Marshal(w)
}

// Known PubKey types. The wallet may report others.
const (
	PubKeyTypeSecp256k1    = "tendermint/PubKeySecp256k1"
	PubKeyTypeEd25519      = "tendermint/PubKeyEd25519"
	PubKeyTypeSr25519      = "tendermint/PubKeySr25519"
	PubKeyTypeEthSecp256k1 = "ethermint/PubKeyEthSecp256k1"
)

// PubKey is an Amino-encoded public key. Value is base64.
type PubKey struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// StdSignature is a signature with the signer's public key. Signature is
// base64.
type StdSignature struct {
	PubKey    PubKey `json:"pub_key"`
	Signature string `json:"signature"`
}

// UnmarshalJSON accepts either pub_key or pubKey.
func (s *StdSignature) UnmarshalJSON(b []byte) error {
	var sig struct {
		PubKey      *PubKey `json:"pub_key"`
		PubKeyAlias *PubKey `json:"pubKey"`
		Signature   string  `json:"signature"`
	}
	if err := json.Unmarshal(b, &sig); err != nil {
		return err
	}
	pk := sig.PubKey
	if pk == nil {
		pk = sig.PubKeyAlias
	}
	if pk == nil {
		return fmt.Errorf("signature missing pub_key")
	}
	*s = StdSignature{PubKey: *pk, Signature: sig.Signature}
	return nil
}

// AminoSignResponse is the result of an Amino signing request. Signed may
// differ from the document submitted for signing, and it is the one that was
// signed.
type AminoSignResponse struct {
	Signed    StdSignDoc   `json:"signed"`
	Signature StdSignature `json:"signature"`
}

// SignDoc is the Direct (protobuf) sign document.
type SignDoc struct {
	BodyBytes     dex.Bytes
	AuthInfoBytes dex.Bytes
	ChainID       string
	AccountNumber uint64
}

type signDocWire struct {
	BodyBytes     json.RawMessage `json:"bodyBytes"`
	AuthInfoBytes json.RawMessage `json:"authInfoBytes"`
	ChainID       string          `json:"chainId"`
	AccountNumber json.RawMessage `json:"accountNumber"`
}

// MarshalJSON encodes the document in the form the wallet accepts: binary
// fields as BytesArg envelopes and the account number as a decimal string.
func (d SignDoc) MarshalJSON() ([]byte, error) {
	body, _ := json.Marshal(BytesArg(d.BodyBytes))
	authInfo, _ := json.Marshal(BytesArg(d.AuthInfoBytes))
	return json.Marshal(&signDocWire{
		BodyBytes:     body,
		AuthInfoBytes: authInfo,
		ChainID:       d.ChainID,
		AccountNumber: json.RawMessage(strconv.Quote(strconv.FormatUint(d.AccountNumber, 10))),
	})
}

// UnmarshalJSON decodes the document. The account number may be a string or
// a number.
func (d *SignDoc) UnmarshalJSON(b []byte) error {
	var w signDocWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var doc SignDoc
	if err := json.Unmarshal(w.BodyBytes, &doc.BodyBytes); err != nil {
		return fmt.Errorf("bodyBytes: %w", err)
	}
	if err := json.Unmarshal(w.AuthInfoBytes, &doc.AuthInfoBytes); err != nil {
		return fmt.Errorf("authInfoBytes: %w", err)
	}
	doc.ChainID = w.ChainID
	acct, err := parseUint64(w.AccountNumber)
	if err != nil {
		return fmt.Errorf("accountNumber: %w", err)
	}
	doc.AccountNumber = acct
	*d = doc
	return nil
}

func parseUint64(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}
	return strconv.ParseUint(s, 10, 64)
}

// DirectSignResponse is the result of a Direct signing request.
type DirectSignResponse struct {
	Signed    SignDoc      `json:"signed"`
	Signature StdSignature `json:"signature"`
}

// BroadcastMode is the mode passed to sendTx.
type BroadcastMode string

// Broadcast modes.
const (
	BroadcastBlock BroadcastMode = "block"
	BroadcastSync  BroadcastMode = "sync"
	BroadcastAsync BroadcastMode = "async"
)

// SettledKey is one entry of a getKeysSettled result. Key is nil when the
// request for that chain was rejected, and Reason holds the error message.
type SettledKey struct {
	Status string
	Key    *Key
	Reason string
}

// Settled result statuses.
const (
	SettledFulfilled = "fulfilled"
	SettledRejected  = "rejected"
)

// UnmarshalJSON decodes {status, value} or {status, reason}. The reason may be
// a string or an object with a message.
func (s *SettledKey) UnmarshalJSON(b []byte) error {
	var w struct {
		Status string          `json:"status"`
		Value  json.RawMessage `json:"value"`
		Reason json.RawMessage `json:"reason"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Status {
	case SettledFulfilled:
		k := new(Key)
		if err := json.Unmarshal(w.Value, k); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		if err := k.validate(); err != nil {
			return err
		}
		*s = SettledKey{Status: w.Status, Key: k}
	case SettledRejected:
		*s = SettledKey{Status: w.Status, Reason: reasonMessage(w.Reason)}
	default:
		return fmt.Errorf("unknown status %q", w.Status)
	}
	return nil
}

func reasonMessage(raw json.RawMessage) string {
	var msg string
	if json.Unmarshal(raw, &msg) == nil && msg != "" {
		return msg
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return unknownMessage
}
