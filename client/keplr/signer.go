// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"context"
)

// OfflineSigner is the capability shared by every signer handle. Handles
// wrap one host object, hold no mutable state, and may be shared by
// goroutines. Calls on the same handle are serialized by the wallet.
type OfflineSigner interface {
	// ChainID is the chain the signer was requested for. It reads the host
	// object's chainId property and does not block.
	ChainID() (string, error)
	// SupportsDirectSigning is false for amino-only signers. When it is true
	// the signer also implements DirectSigner.
	SupportsDirectSigning() bool
	// GetAccounts returns every account the signer exposes. Any account that
	// fails to decode fails the whole call.
	GetAccounts(ctx context.Context) ([]*AccountData, error)
	// Account returns the first account, which is the active one. A signer
	// with no accounts is an ErrHostUnavailable.
	Account(ctx context.Context) (*AccountData, error)
	// SignAmino requests an Amino signature. Use the returned Signed document,
	// not the one passed in, for anything that follows.
	SignAmino(ctx context.Context, signerAddress string, doc *StdSignDoc) (*AminoSignResponse, error)
}

// DirectSigner is an OfflineSigner that can also produce Direct (protobuf)
// signatures. Amino-only signers do not implement it.
type DirectSigner interface {
	OfflineSigner
	SignDirect(ctx context.Context, signerAddress string, doc *SignDoc) (*DirectSignResponse, error)
}

// signer implements OfflineSigner for both kinds of host signer. The full
// signer embeds it and adds SignDirect.
type signer struct {
	k      *Keplr
	obj    HostObject
	direct bool
}

var _ OfflineSigner = (*signer)(nil)

type directSigner struct {
	*signer
}

var _ DirectSigner = (*directSigner)(nil)

func (s *signer) call(ctx context.Context, op string, result interface{}, args ...interface{}) error {
	return s.k.invoke(ctx, s.obj.Call, op, result, args...)
}

func (s *signer) ChainID() (string, error) {
	return objectChainID(s.obj)
}

func (s *signer) SupportsDirectSigning() bool {
	return s.direct
}

func (s *signer) GetAccounts(ctx context.Context) ([]*AccountData, error) {
	const op = "getAccounts"
	var accts []*AccountData
	if err := s.call(ctx, op, &accts); err != nil {
		return nil, err
	}
	for i, acct := range accts {
		if acct == nil {
			return nil, serializationError(op, nil, "account %d is null", i)
		}
		if err := acct.validate(); err != nil {
			return nil, serializationError(op, err, "account %d: %v", i, err)
		}
	}
	return accts, nil
}

func (s *signer) Account(ctx context.Context) (*AccountData, error) {
	accts, err := s.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accts) == 0 {
		return nil, newError(ErrHostUnavailable, "getAccounts", nil, "signer has no accounts")
	}
	return accts[0], nil
}

func (s *signer) SignAmino(ctx context.Context, signerAddress string, doc *StdSignDoc) (*AminoSignResponse, error) {
	const op = "signAmino"
	if doc == nil {
		return nil, serializationError(op, nil, "no sign doc")
	}
	resp := new(AminoSignResponse)
	if err := s.call(ctx, op, resp, signerAddress, doc); err != nil {
		return nil, err
	}
	if resp.Signature.Signature == "" {
		return nil, serializationError(op, nil, "response has no signature")
	}
	if resp.Signed.ChainID == "" {
		return nil, serializationError(op, nil, "signed document has no chain_id")
	}
	return resp, nil
}

func (s *directSigner) SignDirect(ctx context.Context, signerAddress string, doc *SignDoc) (*DirectSignResponse, error) {
	const op = "signDirect"
	if doc == nil {
		return nil, serializationError(op, nil, "no sign doc")
	}
	resp := new(DirectSignResponse)
	if err := s.call(ctx, op, resp, signerAddress, doc); err != nil {
		return nil, err
	}
	if resp.Signature.Signature == "" {
		return nil, serializationError(op, nil, "response has no signature")
	}
	return resp, nil
}

// objectChainID reads the chainId property that signer and enigma objects
// carry. A missing or malformed property is an ErrSerialization.
func objectChainID(obj HostObject) (string, error) {
	const op = "chainId"
	raw, err := obj.Property(op)
	if err != nil {
		return "", translateHostError(op, err)
	}
	var chainID string
	if err := decodeResult(op, raw, &chainID); err != nil {
		return "", err
	}
	if chainID == "" {
		return "", serializationError(op, nil, "empty chainId")
	}
	return chainID, nil
}

// OfflineSigner returns the chain's full signer, with Amino and Direct
// signing.
func (k *Keplr) OfflineSigner(ctx context.Context, chainID string) (DirectSigner, error) {
	obj, err := k.object(ctx, "getOfflineSigner", chainID)
	if err != nil {
		return nil, err
	}
	return &directSigner{&signer{k: k, obj: obj, direct: true}}, nil
}

// OfflineSignerOnlyAmino returns the chain's amino-only signer. The returned
// value does not implement DirectSigner.
func (k *Keplr) OfflineSignerOnlyAmino(ctx context.Context, chainID string) (OfflineSigner, error) {
	obj, err := k.object(ctx, "getOfflineSignerOnlyAmino", chainID)
	if err != nil {
		return nil, err
	}
	return &signer{k: k, obj: obj}, nil
}

// OfflineSignerAuto fetches the chain's key once and returns an amino-only
// signer for a Ledger-backed key and a full signer otherwise. Check for
// Direct signing with a type assertion to DirectSigner.
func (k *Keplr) OfflineSignerAuto(ctx context.Context, chainID string) (OfflineSigner, error) {
	key, err := k.GetKey(ctx, chainID)
	if err != nil {
		return nil, err
	}
	obj, err := k.object(ctx, "getOfflineSignerAuto", chainID)
	if err != nil {
		return nil, err
	}
	if key.IsNanoLedger {
		k.log.Debugf("Using amino-only signer for ledger key %q on %s", key.Name, chainID)
		return &signer{k: k, obj: obj}, nil
	}
	return &directSigner{&signer{k: k, obj: obj, direct: true}}, nil
}
