// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package keplr is a typed client for the Keplr wallet's JavaScript API. The
// wallet is reached through a Host, which may be the browser itself when
// compiled to WebAssembly (package jshost), a relay page driven over a
// websocket (package relay), or a stub (package keplrtest).
//
// Methods that reach the wallet block until it responds, which for Enable and
// signing requests may take as long as the user takes to approve. Use the
// Context to bound the wait. No call is retried.
package keplr

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kent-3/keplr/dex"
)

// Config is the configuration for a Keplr client.
type Config struct {
	Host   Host
	Logger dex.Logger
}

// Keplr is a client for the wallet. It holds no state besides the Host and is
// safe for concurrent use.
type Keplr struct {
	host Host
	log  dex.Logger
}

// New is the constructor for a *Keplr.
func New(cfg *Config) (*Keplr, error) {
	if cfg.Host == nil {
		return nil, errors.New("no host")
	}
	log := cfg.Logger
	if log == nil {
		log = dex.Disabled
	}
	return &Keplr{
		host: cfg.Host,
		log:  log,
	}, nil
}

// IsAvailable reports whether the wallet is present. Other methods do not
// check, and fail with a less specific error when it is absent.
func (k *Keplr) IsAvailable() bool {
	return k.host.Available()
}

// invoke encodes args, calls the method with c, and decodes the result into
// result, which may be nil to discard it.
func (k *Keplr) invoke(ctx context.Context, c caller, op string, result interface{}, args ...interface{}) error {
	encArgs, err := encodeArgs(op, args)
	if err != nil {
		return err
	}
	raw, err := c(ctx, op, encArgs...)
	if err != nil {
		kerr := translateHostError(op, err)
		k.log.Debugf("%s failed: %v", op, kerr)
		return kerr
	}
	if err := decodeResult(op, raw, result); err != nil {
		k.log.Debugf("%s returned an unexpected value: %v", op, err)
		return err
	}
	return nil
}

// call calls a method of the wallet object.
func (k *Keplr) call(ctx context.Context, op string, result interface{}, args ...interface{}) error {
	return k.invoke(ctx, k.host.Call, op, result, args...)
}

// object calls a wallet method that returns an object.
func (k *Keplr) object(ctx context.Context, op string, args ...interface{}) (HostObject, error) {
	encArgs, err := encodeArgs(op, args)
	if err != nil {
		return nil, err
	}
	obj, err := k.host.Object(ctx, op, encArgs...)
	if err != nil {
		kerr := translateHostError(op, err)
		k.log.Debugf("%s failed: %v", op, kerr)
		return nil, kerr
	}
	if obj == nil {
		return nil, newError(ErrHostUnavailable, op, nil, "no object returned")
	}
	return obj, nil
}

// Ping checks that the wallet responds.
func (k *Keplr) Ping(ctx context.Context) error {
	return k.call(ctx, "ping", nil)
}

// Enable requests authorization for the chains in one prompt. It returns
// immediately if they are already enabled.
func (k *Keplr) Enable(ctx context.Context, chainIDs ...string) error {
	if len(chainIDs) == 0 {
		return serializationError("enable", nil, "no chain IDs")
	}
	return k.call(ctx, "enable", nil, chainIDs)
}

// Disable revokes this origin's authorization for a chain. There is no
// result to check.
func (k *Keplr) Disable(chainID string) {
	arg, _ := json.Marshal(chainID)
	k.host.Notify("disable", arg)
}

// DisableOrigin revokes this origin's authorization for every chain.
func (k *Keplr) DisableOrigin() {
	k.host.Notify("disable")
}

// SuggestChain asks the wallet to add a chain it does not know. The chain
// info is validated before the wallet is called.
func (k *Keplr) SuggestChain(ctx context.Context, info *SuggestingChainInfo) error {
	const op = "experimentalSuggestChain"
	if info == nil {
		return serializationError(op, nil, "no chain info")
	}
	if err := info.Validate(); err != nil {
		return serializationError(op, err, "invalid chain info: %v", err)
	}
	return k.call(ctx, op, nil, info)
}

// GetChainInfo fetches the wallet's metadata for an enabled chain.
func (k *Keplr) GetChainInfo(ctx context.Context, chainID string) (*ChainInfo, error) {
	const op = "getChainInfoWithoutEndpoints"
	ci := new(ChainInfo)
	if err := k.call(ctx, op, ci, chainID); err != nil {
		return nil, err
	}
	if ci.ChainID == "" {
		return nil, serializationError(op, nil, "chain info missing chainId")
	}
	return ci, nil
}

// GetKey fetches the active key for the chain.
func (k *Keplr) GetKey(ctx context.Context, chainID string) (*Key, error) {
	const op = "getKey"
	key := new(Key)
	if err := k.call(ctx, op, key, chainID); err != nil {
		return nil, err
	}
	if err := key.validate(); err != nil {
		return nil, serializationError(op, err, "%v", err)
	}
	return key, nil
}

// GetKeysSettled fetches the active keys for several chains. A chain that is
// not enabled does not fail the call; its SettledKey has the rejection reason.
func (k *Keplr) GetKeysSettled(ctx context.Context, chainIDs ...string) ([]*SettledKey, error) {
	const op = "getKeysSettled"
	if len(chainIDs) == 0 {
		return nil, serializationError(op, nil, "no chain IDs")
	}
	var keys []*SettledKey
	if err := k.call(ctx, op, &keys, chainIDs); err != nil {
		return nil, err
	}
	if len(keys) != len(chainIDs) {
		return nil, serializationError(op, nil, "requested %d keys, got %d", len(chainIDs), len(keys))
	}
	for i, sk := range keys {
		if sk == nil {
			return nil, serializationError(op, nil, "null result for %s", chainIDs[i])
		}
	}
	return keys, nil
}

// GetAccount returns the first account of the chain's amino-only signer.
func (k *Keplr) GetAccount(ctx context.Context, chainID string) (*AccountData, error) {
	s, err := k.OfflineSignerOnlyAmino(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return s.Account(ctx)
}

// GetAccounts returns every account of the chain's full signer.
func (k *Keplr) GetAccounts(ctx context.Context, chainID string) ([]*AccountData, error) {
	s, err := k.OfflineSigner(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return s.GetAccounts(ctx)
}

// SendTx broadcasts a signed, protobuf-encoded transaction through the
// wallet and returns the transaction hash.
func (k *Keplr) SendTx(ctx context.Context, chainID string, tx []byte, mode BroadcastMode) ([]byte, error) {
	const op = "sendTx"
	switch mode {
	case BroadcastBlock, BroadcastSync, BroadcastAsync:
	default:
		return nil, serializationError(op, nil, "unknown broadcast mode %q", mode)
	}
	if len(tx) == 0 {
		return nil, serializationError(op, nil, "empty transaction")
	}
	var txHash dex.Bytes
	if err := k.call(ctx, op, &txHash, chainID, BytesArg(tx), mode); err != nil {
		return nil, err
	}
	k.log.Infof("Broadcast %d byte transaction to %s (%s): %x", len(tx), chainID, mode, []byte(txHash))
	return txHash, nil
}
