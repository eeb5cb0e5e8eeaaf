// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplrtest

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/kent-3/keplr/client/keplr"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// hkdfSalt is the salt Secret Network uses for transaction keys.
var hkdfSalt, _ = hex.DecodeString("000000000000000000024bead8df69990852c202db0e0097c1a12ea637d7e96d")

// walletEnigmaMethods maps the wallet's chain-ID-parameterized functions to
// the enigma object's methods.
var walletEnigmaMethods = map[string]string{
	"getEnigmaPubKey":          "getPubkey",
	"getEnigmaTxEncryptionKey": "getTxEncryptionKey",
	"enigmaEncrypt":            "encrypt",
	"enigmaDecrypt":            "decrypt",
}

type enigmaObject struct {
	w       *Wallet
	chainID string
}

var _ keplr.HostObject = (*enigmaObject)(nil)

func (e *enigmaObject) Property(name string) (json.RawMessage, error) {
	if name == "chainId" {
		return json.Marshal(e.chainID)
	}
	return nil, nil
}

func (e *enigmaObject) Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error) {
	if err := e.w.begin(ctx, method); err != nil {
		return nil, err
	}
	return e.w.enigmaCall(e.chainID, method, args)
}

func (w *Wallet) scalar(label, chainID string) []byte {
	b := sha256.Sum256([]byte(label + "/" + hex.EncodeToString(w.seed) + "/" + chainID))
	return b[:]
}

// EnigmaPubKey is the wallet's encryption public key for the chain.
func (w *Wallet) EnigmaPubKey(chainID string) []byte {
	pub, _ := curve25519.X25519(w.scalar("enigma", chainID), curve25519.Basepoint)
	return pub
}

// ConsensusPubKey is the chain's consensus encryption key as the wallet
// knows it.
func (w *Wallet) ConsensusPubKey(chainID string) []byte {
	pub, _ := curve25519.X25519(w.scalar("consensus", chainID), curve25519.Basepoint)
	return pub
}

// TxEncryptionKey derives the symmetric key for a nonce from the wallet and
// consensus keys with HKDF-SHA256.
func (w *Wallet) TxEncryptionKey(chainID string, nonce []byte) ([]byte, error) {
	shared, err := curve25519.X25519(w.scalar("enigma", chainID), w.ConsensusPubKey(chainID))
	if err != nil {
		return nil, err
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, append(shared, nonce...), hkdfSalt, nil)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Each key encrypts exactly one message, so the AEAD nonce is fixed.
var aeadNonce = make([]byte, chacha20poly1305.NonceSize)

func (w *Wallet) seal(chainID string, nonce, plaintext []byte) ([]byte, error) {
	key, err := w.TxEncryptionKey(chainID, nonce)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, aeadNonce, plaintext, nil), nil
}

func (w *Wallet) open(chainID string, nonce, ciphertext []byte) ([]byte, error) {
	key, err := w.TxEncryptionKey(chainID, nonce)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, aeadNonce, ciphertext, nil)
}

func nonceArg(method string, args []json.RawMessage, i int) ([]byte, error) {
	nonce, err := bytesArg(method, args, i)
	if err != nil {
		return nil, err
	}
	if len(nonce) != keplr.NonceSize {
		return nil, hostError("%s: nonce must be %d bytes", method, keplr.NonceSize)
	}
	return nonce, nil
}

// enigmaCall implements the enigma object's methods for the chain.
func (w *Wallet) enigmaCall(chainID, method string, args []json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "getPubkey":
		return result(uint8Array(w.EnigmaPubKey(chainID)))
	case "getTxEncryptionKey":
		nonce, err := nonceArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		key, err := w.TxEncryptionKey(chainID, nonce)
		if err != nil {
			return nil, hostError("%v", err)
		}
		return result(uint8Array(key))
	case "encrypt":
		var codeHash string
		if err := arg(method, args, 0, &codeHash); err != nil {
			return nil, err
		}
		if b, err := hex.DecodeString(codeHash); err != nil || len(b) != sha256.Size {
			return nil, hostError("invalid contract code hash %q", codeHash)
		}
		if len(args) < 2 {
			return nil, hostError("%s: missing message", method)
		}
		var msg bytes.Buffer
		if err := json.Compact(&msg, args[1]); err != nil {
			return nil, hostError("%s: invalid message: %v", method, err)
		}
		nonce := make([]byte, keplr.NonceSize)
		rand.Read(nonce)
		ct, err := w.seal(chainID, nonce, msg.Bytes())
		if err != nil {
			return nil, hostError("%v", err)
		}
		out := make([]byte, 0, keplr.EncryptedHeaderSize+len(ct))
		out = append(append(append(out, nonce...), w.EnigmaPubKey(chainID)...), ct...)
		return result(uint8Array(out))
	case "decrypt":
		ct, err := bytesArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		nonce, err := nonceArg(method, args, 1)
		if err != nil {
			return nil, err
		}
		if len(ct) == 0 {
			return result(uint8Array(nil))
		}
		plain, err := w.open(chainID, nonce, ct)
		if err != nil {
			return nil, hostError("Failed to decrypt")
		}
		return result(uint8Array(plain))
	}
	return nil, hostError("enigmaUtils.%s is not a function", method)
}
