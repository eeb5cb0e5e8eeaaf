// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package keplrtest provides an in-memory wallet that satisfies keplr.Host.
// It produces real secp256k1 signatures and real encryption, so results can
// be verified, and it can be switched into the states a browser wallet may be
// in: absent, Ledger-backed, awaiting approval, or returning malformed data.
package keplrtest

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/kent-3/keplr/client/keplr"
	"github.com/kent-3/keplr/dex"
	"golang.org/x/crypto/ripemd160"
)

// ErrAbsent is returned for every call while the wallet is absent.
const ErrAbsent = dex.ErrorKind("window.keplr is undefined")

// Chain IDs known to a new Wallet.
const (
	SecretChainID = "secret-4"
	PulsarChainID = "pulsar-3"
	CosmosChainID = "cosmoshub-4"
)

// Config is the configuration for a Wallet.
type Config struct {
	// Seed makes keys deterministic. A nil Seed uses random keys.
	Seed []byte
	// Name is the key name reported by getKey.
	Name   string
	Logger dex.Logger
}

// Wallet is an in-memory keplr.Host.
type Wallet struct {
	seed []byte
	name string
	log  dex.Logger

	mtx          sync.Mutex
	absent       bool
	ledger       bool
	rejectEnable bool
	pending      bool
	malformedKey bool
	accountCount int
	memoOverride *string
	chains       map[string]*keplr.ChainInfo
	enabled      map[string]bool
	viewingKeys  map[string]string
	calls        []string
	sentTxs      [][]byte
}

var _ keplr.Host = (*Wallet)(nil)

// NewWallet is the constructor for a *Wallet that knows SecretChainID,
// PulsarChainID and CosmosChainID and has one account.
func NewWallet(cfg *Config) *Wallet {
	seed := cfg.Seed
	if seed == nil {
		seed = make([]byte, 32)
		rand.Read(seed)
	}
	name := cfg.Name
	if name == "" {
		name = "keplrtest"
	}
	log := cfg.Logger
	if log == nil {
		log = dex.Disabled
	}
	w := &Wallet{
		seed:         seed,
		name:         name,
		log:          log,
		accountCount: 1,
		chains:       make(map[string]*keplr.ChainInfo),
		enabled:      make(map[string]bool),
		viewingKeys:  make(map[string]string),
	}
	for _, ci := range []*keplr.ChainInfo{
		chainInfo(SecretChainID, "Secret Network", "secret", "uscrt", "SCRT", 529, "secretwasm"),
		chainInfo(PulsarChainID, "Secret Testnet", "secret", "uscrt", "SCRT", 529, "secretwasm"),
		chainInfo(CosmosChainID, "Cosmos Hub", "cosmos", "uatom", "ATOM", 118),
	} {
		w.chains[ci.ChainID] = ci
	}
	return w
}

func chainInfo(chainID, name, prefix, minDenom, denom string, coinType uint32, features ...string) *keplr.ChainInfo {
	cur := &keplr.Currency{CoinDenom: denom, CoinMinimalDenom: minDenom, CoinDecimals: 6}
	return &keplr.ChainInfo{
		ChainID:      chainID,
		ChainName:    name,
		Bip44:        &keplr.Bip44{CoinType: coinType},
		Bech32Config: keplr.NewBech32Config(prefix),
		Currencies:   []*keplr.Currency{cur},
		FeeCurrencies: []*keplr.FeeCurrency{{
			Currency:     *cur,
			GasPriceStep: &keplr.GasPriceStep{Low: 0.1, Average: 0.25, High: 0.5},
		}},
		StakeCurrency: cur,
		Features:      features,
	}
}

// SuggestingChainInfo builds a valid chain suggestion, for tests that add a
// chain the wallet does not know.
func SuggestingChainInfo(chainID, prefix string) *keplr.SuggestingChainInfo {
	cur := &keplr.Currency{CoinDenom: "TEST", CoinMinimalDenom: "utest", CoinDecimals: 6}
	return &keplr.SuggestingChainInfo{
		ChainID:       chainID,
		ChainName:     chainID,
		RPC:           "http://127.0.0.1:26657",
		REST:          "http://127.0.0.1:1317",
		Bip44:         &keplr.Bip44{CoinType: 118},
		Bech32Config:  keplr.NewBech32Config(prefix),
		Currencies:    []*keplr.Currency{cur},
		FeeCurrencies: []*keplr.FeeCurrency{{Currency: *cur}},
		StakeCurrency: cur,
	}
}

// SetAbsent makes the wallet behave as if the extension is not installed.
func (w *Wallet) SetAbsent(absent bool) {
	w.mtx.Lock()
	w.absent = absent
	w.mtx.Unlock()
}

// SetLedger marks the key as Ledger-backed. getOfflineSignerAuto then returns
// an amino-only signer.
func (w *Wallet) SetLedger(ledger bool) {
	w.mtx.Lock()
	w.ledger = ledger
	w.mtx.Unlock()
}

// SetRejectEnable makes enable fail as if the user declined.
func (w *Wallet) SetRejectEnable(reject bool) {
	w.mtx.Lock()
	w.rejectEnable = reject
	w.mtx.Unlock()
}

// SetPendingApproval makes enable wait for its Context, as if the user never
// answers the prompt.
func (w *Wallet) SetPendingApproval(pending bool) {
	w.mtx.Lock()
	w.pending = pending
	w.mtx.Unlock()
}

// SetMalformedKey makes getKey omit bech32Address.
func (w *Wallet) SetMalformedKey(malformed bool) {
	w.mtx.Lock()
	w.malformedKey = malformed
	w.mtx.Unlock()
}

// SetAccountCount sets how many accounts signers return. Zero is allowed.
func (w *Wallet) SetAccountCount(n int) {
	w.mtx.Lock()
	w.accountCount = n
	w.mtx.Unlock()
}

// SetMemoOverride makes signAmino replace the memo before signing, as the
// wallet does when the user edits it in the approval prompt.
func (w *Wallet) SetMemoOverride(memo string) {
	w.mtx.Lock()
	w.memoOverride = &memo
	w.mtx.Unlock()
}

// Enabled reports whether the chain is enabled.
func (w *Wallet) Enabled(chainID string) bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.enabled[chainID]
}

// Calls lists the methods called so far, in order, including those on
// objects.
func (w *Wallet) Calls() []string {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return append([]string(nil), w.calls...)
}

// SentTxs returns the transactions received by sendTx.
func (w *Wallet) SentTxs() [][]byte {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return append([][]byte(nil), w.sentTxs...)
}

// PrivateKey returns the key of account i.
func (w *Wallet) PrivateKey(i int) *secp256k1.PrivateKey {
	b := sha256.Sum256(append(append([]byte("account"), w.seed...), byte(i)))
	return secp256k1.PrivKeyFromBytes(b[:])
}

// Address is the raw address of account i, RIPEMD160(SHA256(pubkey)).
func (w *Wallet) Address(i int) []byte {
	return AddressFromPubKey(w.PrivateKey(i).PubKey().SerializeCompressed())
}

// AddressFromPubKey derives a Cosmos SDK address from a compressed secp256k1
// public key.
func AddressFromPubKey(pubKey []byte) []byte {
	sha := sha256.Sum256(pubKey)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}

// Bech32Address is the address of account i on the chain.
func (w *Wallet) Bech32Address(chainID string, i int) (string, error) {
	w.mtx.Lock()
	ci, found := w.chains[chainID]
	w.mtx.Unlock()
	if !found {
		return "", fmt.Errorf("unknown chain %s", chainID)
	}
	return encodeBech32(ci.Bech32Config.Bech32PrefixAccAddr, w.Address(i))
}

func encodeBech32(prefix string, data []byte) (string, error) {
	data5, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, data5)
}

// uint8Array encodes b the way JSON.stringify encodes a Uint8Array.
func uint8Array(b []byte) map[string]byte {
	m := make(map[string]byte, len(b))
	for i, v := range b {
		m[strconv.Itoa(i)] = v
	}
	return m
}

func hostError(format string, args ...interface{}) error {
	return &keplr.HostError{Message: fmt.Sprintf(format, args...)}
}

// arg decodes argument i into v.
func arg(method string, args []json.RawMessage, i int, v interface{}) error {
	if i >= len(args) {
		return hostError("%s: missing argument %d", method, i)
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return hostError("%s: invalid argument %d: %v", method, i, err)
	}
	return nil
}

func result(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, hostError("%v", err)
	}
	return b, nil
}

// begin records the call and checks presence.
func (w *Wallet) begin(ctx context.Context, method string) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.calls = append(w.calls, method)
	if w.absent {
		return ErrAbsent
	}
	return ctx.Err()
}

// Available is true unless SetAbsent(true) was called.
func (w *Wallet) Available() bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return !w.absent
}

// Notify handles disable.
func (w *Wallet) Notify(method string, args ...json.RawMessage) {
	if w.begin(context.Background(), method) != nil || method != "disable" {
		return
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if len(args) == 0 {
		w.enabled = make(map[string]bool)
		return
	}
	var chainID string
	if json.Unmarshal(args[0], &chainID) == nil {
		delete(w.enabled, chainID)
	}
}

// Call dispatches wallet methods.
func (w *Wallet) Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error) {
	if err := w.begin(ctx, method); err != nil {
		return nil, err
	}
	w.log.Tracef("call %s (%d args)", method, len(args))
	switch method {
	case "ping":
		return nil, nil
	case "enable":
		return nil, w.enable(ctx, args)
	case "experimentalSuggestChain":
		return nil, w.suggestChain(args)
	case "getChainInfoWithoutEndpoints":
		var chainID string
		if err := arg(method, args, 0, &chainID); err != nil {
			return nil, err
		}
		ci, err := w.enabledChain(chainID)
		if err != nil {
			return nil, err
		}
		return result(ci)
	case "getKey":
		var chainID string
		if err := arg(method, args, 0, &chainID); err != nil {
			return nil, err
		}
		key, err := w.key(chainID)
		if err != nil {
			return nil, err
		}
		return result(key)
	case "getKeysSettled":
		return w.keysSettled(args)
	case "sendTx":
		return w.sendTx(args)
	case "suggestToken":
		return nil, w.suggestToken(args)
	case "getSecret20ViewingKey":
		return w.viewingKey(args)
	case "getEnigmaPubKey", "getEnigmaTxEncryptionKey", "enigmaEncrypt", "enigmaDecrypt":
		var chainID string
		if err := arg(method, args, 0, &chainID); err != nil {
			return nil, err
		}
		if _, err := w.knownChain(chainID); err != nil {
			return nil, err
		}
		return w.enigmaCall(chainID, walletEnigmaMethods[method], args[1:])
	}
	return nil, hostError("keplr.%s is not a function", method)
}

// Object returns signer and enigma objects.
func (w *Wallet) Object(ctx context.Context, method string, args ...json.RawMessage) (keplr.HostObject, error) {
	if err := w.begin(ctx, method); err != nil {
		return nil, err
	}
	var chainID string
	if err := arg(method, args, 0, &chainID); err != nil {
		return nil, err
	}
	if _, err := w.knownChain(chainID); err != nil {
		return nil, err
	}
	w.mtx.Lock()
	ledger := w.ledger
	w.mtx.Unlock()
	switch method {
	case "getOfflineSigner":
		return &signerObject{w: w, chainID: chainID, direct: true}, nil
	case "getOfflineSignerOnlyAmino":
		return &signerObject{w: w, chainID: chainID}, nil
	case "getOfflineSignerAuto":
		return &signerObject{w: w, chainID: chainID, direct: !ledger}, nil
	case "getEnigmaUtils":
		return &enigmaObject{w: w, chainID: chainID}, nil
	}
	return nil, hostError("keplr.%s is not a function", method)
}

func (w *Wallet) enable(ctx context.Context, args []json.RawMessage) error {
	var chainIDs []string
	if err := arg("enable", args, 0, &chainIDs); err != nil {
		// A single chain ID string is accepted too.
		var chainID string
		if arg("enable", args, 0, &chainID) != nil {
			return err
		}
		chainIDs = []string{chainID}
	}
	for _, chainID := range chainIDs {
		if _, err := w.knownChain(chainID); err != nil {
			return err
		}
	}
	w.mtx.Lock()
	reject, pending := w.rejectEnable, w.pending
	w.mtx.Unlock()
	if pending {
		<-ctx.Done()
		return ctx.Err()
	}
	if reject {
		return hostError("Request rejected")
	}
	w.mtx.Lock()
	for _, chainID := range chainIDs {
		w.enabled[chainID] = true
	}
	w.mtx.Unlock()
	return nil
}

func (w *Wallet) suggestChain(args []json.RawMessage) error {
	var info keplr.SuggestingChainInfo
	if err := arg("experimentalSuggestChain", args, 0, &info); err != nil {
		return err
	}
	if err := info.Validate(); err != nil {
		return hostError("invalid chain info: %v", err)
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.rejectEnable {
		return hostError("Request rejected")
	}
	w.chains[info.ChainID] = &keplr.ChainInfo{
		ChainID:       info.ChainID,
		ChainName:     info.ChainName,
		Bip44:         info.Bip44,
		Bech32Config:  info.Bech32Config,
		Currencies:    info.Currencies,
		FeeCurrencies: info.FeeCurrencies,
		StakeCurrency: info.StakeCurrency,
		Features:      info.Features,
	}
	return nil
}

func (w *Wallet) knownChain(chainID string) (*keplr.ChainInfo, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	ci, found := w.chains[chainID]
	if !found {
		return nil, hostError("There is no chain info for %s", chainID)
	}
	return ci, nil
}

func (w *Wallet) enabledChain(chainID string) (*keplr.ChainInfo, error) {
	ci, err := w.knownChain(chainID)
	if err != nil {
		return nil, err
	}
	if !w.Enabled(chainID) {
		return nil, hostError("%s is not enabled", chainID)
	}
	return ci, nil
}

// key is the getKey result, with binary fields in Uint8Array form.
func (w *Wallet) key(chainID string) (map[string]interface{}, error) {
	if _, err := w.enabledChain(chainID); err != nil {
		return nil, err
	}
	addr, err := w.Bech32Address(chainID, 0)
	if err != nil {
		return nil, hostError("%v", err)
	}
	w.mtx.Lock()
	ledger, malformed := w.ledger, w.malformedKey
	w.mtx.Unlock()
	key := map[string]interface{}{
		"name":               w.name,
		"algo":               "secp256k1",
		"pubKey":             uint8Array(w.PrivateKey(0).PubKey().SerializeCompressed()),
		"address":            uint8Array(w.Address(0)),
		"bech32Address":      addr,
		"ethereumHexAddress": "",
		"isNanoLedger":       ledger,
		"isKeystone":         false,
	}
	if malformed {
		delete(key, "bech32Address")
	}
	return key, nil
}

func (w *Wallet) keysSettled(args []json.RawMessage) (json.RawMessage, error) {
	var chainIDs []string
	if err := arg("getKeysSettled", args, 0, &chainIDs); err != nil {
		return nil, err
	}
	settled := make([]map[string]interface{}, 0, len(chainIDs))
	for _, chainID := range chainIDs {
		key, err := w.key(chainID)
		if err != nil {
			settled = append(settled, map[string]interface{}{
				"status": keplr.SettledRejected,
				"reason": map[string]string{"message": err.Error()},
			})
			continue
		}
		settled = append(settled, map[string]interface{}{
			"status": keplr.SettledFulfilled,
			"value":  key,
		})
	}
	return result(settled)
}

func (w *Wallet) sendTx(args []json.RawMessage) (json.RawMessage, error) {
	var chainID string
	var tx dex.Bytes
	var mode keplr.BroadcastMode
	if err := arg("sendTx", args, 0, &chainID); err != nil {
		return nil, err
	}
	if err := arg("sendTx", args, 1, &tx); err != nil {
		return nil, err
	}
	if err := arg("sendTx", args, 2, &mode); err != nil {
		return nil, err
	}
	if _, err := w.enabledChain(chainID); err != nil {
		return nil, err
	}
	txRaw, err := keplr.DecodeTxRaw(tx)
	if err != nil {
		return nil, hostError("invalid tx: %v", err)
	}
	if len(txRaw.Signatures) == 0 {
		return nil, hostError("tx is not signed")
	}
	w.mtx.Lock()
	w.sentTxs = append(w.sentTxs, append([]byte(nil), tx...))
	w.mtx.Unlock()
	w.log.Debugf("sendTx %s mode %s, %d bytes", chainID, mode, len(tx))
	hash := sha256.Sum256(tx)
	return result(uint8Array(hash[:]))
}

func (w *Wallet) suggestToken(args []json.RawMessage) error {
	var chainID, contract, vk string
	if err := arg("suggestToken", args, 0, &chainID); err != nil {
		return err
	}
	if err := arg("suggestToken", args, 1, &contract); err != nil {
		return err
	}
	if len(args) > 2 {
		if err := arg("suggestToken", args, 2, &vk); err != nil {
			return err
		}
	}
	ci, err := w.enabledChain(chainID)
	if err != nil {
		return err
	}
	if !ci.HasFeature("secretwasm") {
		return hostError("%s does not support secret20", chainID)
	}
	if vk == "" {
		var b [16]byte
		binary.BigEndian.PutUint64(b[:], uint64(len(w.viewingKeys)))
		rand.Read(b[8:])
		vk = "api_key_" + hex.EncodeToString(b[:])
	}
	w.mtx.Lock()
	w.viewingKeys[chainID+"/"+contract] = vk
	w.mtx.Unlock()
	return nil
}

func (w *Wallet) viewingKey(args []json.RawMessage) (json.RawMessage, error) {
	var chainID, contract string
	if err := arg("getSecret20ViewingKey", args, 0, &chainID); err != nil {
		return nil, err
	}
	if err := arg("getSecret20ViewingKey", args, 1, &contract); err != nil {
		return nil, err
	}
	w.mtx.Lock()
	vk, found := w.viewingKeys[chainID+"/"+contract]
	w.mtx.Unlock()
	if !found {
		return nil, hostError("There is no matched secret20")
	}
	return result(vk)
}

// sortedKeys is used for deterministic iteration in diagnostics.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String describes the wallet's state.
func (w *Wallet) String() string {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return fmt.Sprintf("keplrtest.Wallet{absent: %t, ledger: %t, enabled: %v}",
		w.absent, w.ledger, sortedKeys(w.enabled))
}
