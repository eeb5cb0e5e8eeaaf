// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"context"

	"github.com/kent-3/keplr/dex"
)

// Sizes of the parts of an encrypted contract message.
const (
	NonceSize  = 32
	PubKeySize = 32
	// EncryptedHeaderSize is the length of the nonce and public key that
	// precede the ciphertext.
	EncryptedHeaderSize = NonceSize + PubKeySize
)

// EncryptedMessage is an encrypted contract message split into its parts.
type EncryptedMessage struct {
	Nonce      []byte
	PubKey     []byte
	Ciphertext []byte
}

// SplitEncrypted splits the output of Encrypt, laid out as
// nonce || pubkey || ciphertext. The parts share b's memory.
func SplitEncrypted(b []byte) (*EncryptedMessage, error) {
	if len(b) < EncryptedHeaderSize {
		return nil, serializationError("encrypt", nil,
			"encrypted message is %d bytes, less than the %d byte header", len(b), EncryptedHeaderSize)
	}
	return &EncryptedMessage{
		Nonce:      b[:NonceSize],
		PubKey:     b[NonceSize:EncryptedHeaderSize],
		Ciphertext: b[EncryptedHeaderSize:],
	}, nil
}

// enigmaMethods names the host methods for each operation. The handle and
// the chain-ID-parameterized functions on the wallet use different names.
type enigmaMethods struct {
	pubKey, txKey, encrypt, decrypt string
}

var (
	handleMethods = enigmaMethods{
		pubKey:  "getPubkey",
		txKey:   "getTxEncryptionKey",
		encrypt: "encrypt",
		decrypt: "decrypt",
	}
	walletMethods = enigmaMethods{
		pubKey:  "getEnigmaPubKey",
		txKey:   "getEnigmaTxEncryptionKey",
		encrypt: "enigmaEncrypt",
		decrypt: "enigmaDecrypt",
	}
)

// enigmaOps implements the encryption operations once for both call forms.
// leading args (the chain ID for the wallet functions) precede each call's own
// arguments.
type enigmaOps struct {
	k       *Keplr
	c       caller
	methods enigmaMethods
	leading []interface{}
}

func (e *enigmaOps) call(ctx context.Context, op string, result interface{}, args ...interface{}) error {
	return e.k.invoke(ctx, e.c, op, result, append(append([]interface{}(nil), e.leading...), args...)...)
}

func (e *enigmaOps) pubKey(ctx context.Context) ([]byte, error) {
	var pub dex.Bytes
	if err := e.call(ctx, e.methods.pubKey, &pub); err != nil {
		return nil, err
	}
	if len(pub) != PubKeySize {
		return nil, serializationError(e.methods.pubKey, nil, "pubkey is %d bytes, expected %d", len(pub), PubKeySize)
	}
	return pub, nil
}

func (e *enigmaOps) txEncryptionKey(ctx context.Context, nonce []byte) ([]byte, error) {
	op := e.methods.txKey
	if len(nonce) != NonceSize {
		return nil, serializationError(op, nil, "nonce is %d bytes, expected %d", len(nonce), NonceSize)
	}
	var key dex.Bytes
	if err := e.call(ctx, op, &key, BytesArg(nonce)); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, serializationError(op, nil, "empty key")
	}
	return key, nil
}

func (e *enigmaOps) encrypt(ctx context.Context, codeHash string, msg interface{}) ([]byte, error) {
	op := e.methods.encrypt
	if codeHash == "" {
		return nil, serializationError(op, nil, "no contract code hash")
	}
	var enc dex.Bytes
	if err := e.call(ctx, op, &enc, codeHash, msg); err != nil {
		return nil, err
	}
	if len(enc) < EncryptedHeaderSize {
		return nil, serializationError(op, nil, "encrypted message is %d bytes, less than the %d byte header",
			len(enc), EncryptedHeaderSize)
	}
	return enc, nil
}

func (e *enigmaOps) decrypt(ctx context.Context, ciphertext, nonce []byte) ([]byte, error) {
	op := e.methods.decrypt
	if len(nonce) != NonceSize {
		return nil, serializationError(op, nil, "nonce is %d bytes, expected %d", len(nonce), NonceSize)
	}
	var plain dex.Bytes
	if err := e.call(ctx, op, &plain, BytesArg(ciphertext), BytesArg(nonce)); err != nil {
		return nil, err
	}
	return plain, nil
}

// Enigma is a handle to the wallet's encryption utilities for one chain.
// Like signer handles, it holds an immutable host reference and is safe to
// share.
type Enigma struct {
	obj HostObject
	ops enigmaOps
}

// EnigmaUtils returns the encryption utilities for a Secret Network chain.
func (k *Keplr) EnigmaUtils(ctx context.Context, chainID string) (*Enigma, error) {
	obj, err := k.object(ctx, "getEnigmaUtils", chainID)
	if err != nil {
		return nil, err
	}
	return &Enigma{
		obj: obj,
		ops: enigmaOps{k: k, c: obj.Call, methods: handleMethods},
	}, nil
}

// ChainID is the chain the utilities were requested for.
func (e *Enigma) ChainID() (string, error) {
	return objectChainID(e.obj)
}

// GetPubkey returns the wallet's 32 byte encryption public key for the chain.
func (e *Enigma) GetPubkey(ctx context.Context) ([]byte, error) {
	return e.ops.pubKey(ctx)
}

// GetTxEncryptionKey derives the symmetric key for a transaction from its 32
// byte nonce. Any other nonce length is an ErrSerialization and the wallet is
// not called.
func (e *Enigma) GetTxEncryptionKey(ctx context.Context, nonce []byte) ([]byte, error) {
	return e.ops.txEncryptionKey(ctx, nonce)
}

// Encrypt encrypts a contract message. msg is JSON encoded by the wallet. The
// result is nonce || pubkey || ciphertext; see SplitEncrypted.
func (e *Enigma) Encrypt(ctx context.Context, contractCodeHash string, msg interface{}) ([]byte, error) {
	return e.ops.encrypt(ctx, contractCodeHash, msg)
}

// Decrypt decrypts ciphertext that was encrypted with the 32 byte nonce,
// such as a contract's response to a message sent with that nonce.
func (e *Enigma) Decrypt(ctx context.Context, ciphertext, nonce []byte) ([]byte, error) {
	return e.ops.decrypt(ctx, ciphertext, nonce)
}

// DecryptEncrypted decrypts the ciphertext of an Encrypt result with the
// nonce it carries.
func (e *Enigma) DecryptEncrypted(ctx context.Context, encrypted []byte) ([]byte, error) {
	msg, err := SplitEncrypted(encrypted)
	if err != nil {
		return nil, err
	}
	return e.ops.decrypt(ctx, msg.Ciphertext, msg.Nonce)
}

func (k *Keplr) enigmaFuncs(chainID string) *enigmaOps {
	return &enigmaOps{
		k:       k,
		c:       k.host.Call,
		methods: walletMethods,
		leading: []interface{}{chainID},
	}
}

// EnigmaEncrypt is Encrypt without a handle.
func (k *Keplr) EnigmaEncrypt(ctx context.Context, chainID, contractCodeHash string, msg interface{}) ([]byte, error) {
	return k.enigmaFuncs(chainID).encrypt(ctx, contractCodeHash, msg)
}

// EnigmaDecrypt is Decrypt without a handle.
func (k *Keplr) EnigmaDecrypt(ctx context.Context, chainID string, ciphertext, nonce []byte) ([]byte, error) {
	return k.enigmaFuncs(chainID).decrypt(ctx, ciphertext, nonce)
}

// GetEnigmaPubKey is GetPubkey without a handle.
func (k *Keplr) GetEnigmaPubKey(ctx context.Context, chainID string) ([]byte, error) {
	return k.enigmaFuncs(chainID).pubKey(ctx)
}

// GetEnigmaTxEncryptionKey is GetTxEncryptionKey without a handle.
func (k *Keplr) GetEnigmaTxEncryptionKey(ctx context.Context, chainID string, nonce []byte) ([]byte, error) {
	return k.enigmaFuncs(chainID).txEncryptionKey(ctx, nonce)
}
