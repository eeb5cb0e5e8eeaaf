// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kent-3/keplr/client/keplr"
)

// command is a keplrctl command. Commands that take an optional chain ID
// fall back to the configured one.
type command struct {
	args    string
	desc    string
	minArgs int
	// maxArgs < 0 means no limit.
	maxArgs int
	run     func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error)
}

var commands = map[string]*command{
	"ping": {
		desc: "Check that the wallet responds.",
		run: func(ctx context.Context, k *keplr.Keplr, _ *config, _ []string) (interface{}, error) {
			return nil, k.Ping(ctx)
		},
	},
	"enable": {
		args:    "[chainID...]",
		desc:    "Request authorization for the chains.",
		maxArgs: -1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			if len(args) == 0 {
				args = []string{cfg.ChainID}
			}
			return nil, k.Enable(ctx, args...)
		},
	},
	"disable": {
		args:    "[chainID]",
		desc:    "Revoke authorization for a chain.",
		maxArgs: 1,
		run: func(_ context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			k.Disable(chainArg(cfg, args, 0))
			return nil, nil
		},
	},
	"disableorigin": {
		desc: "Revoke authorization for every chain.",
		run: func(_ context.Context, k *keplr.Keplr, _ *config, _ []string) (interface{}, error) {
			k.DisableOrigin()
			return nil, nil
		},
	},
	"suggestchain": {
		args:    "chainInfoJSON",
		desc:    "Ask the wallet to add a chain. The chain info is validated first.",
		minArgs: 1,
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, _ *config, args []string) (interface{}, error) {
			info := new(keplr.SuggestingChainInfo)
			if err := json.Unmarshal([]byte(args[0]), info); err != nil {
				return nil, fmt.Errorf("invalid chain info: %w", err)
			}
			return nil, k.SuggestChain(ctx, info)
		},
	},
	"chaininfo": {
		args:    "[chainID]",
		desc:    "Show the wallet's chain info, without endpoints.",
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			return k.GetChainInfo(ctx, chainArg(cfg, args, 0))
		},
	},
	"key": {
		args:    "[chainID]",
		desc:    "Show the active key for a chain.",
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			return k.GetKey(ctx, chainArg(cfg, args, 0))
		},
	},
	"keys": {
		args:    "chainID...",
		desc:    "Show the active keys for several chains. One chain failing does not fail the others.",
		minArgs: 1,
		maxArgs: -1,
		run: func(ctx context.Context, k *keplr.Keplr, _ *config, args []string) (interface{}, error) {
			settled, err := k.GetKeysSettled(ctx, args...)
			if err != nil {
				return nil, err
			}
			res := make([]*settledKeyResult, 0, len(settled))
			for i, s := range settled {
				res = append(res, &settledKeyResult{
					ChainID: args[i],
					Status:  s.Status,
					Key:     s.Key,
					Reason:  s.Reason,
				})
			}
			return res, nil
		},
	},
	"account": {
		args:    "[chainID]",
		desc:    "Show the first account of the amino-only signer.",
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			return k.GetAccount(ctx, chainArg(cfg, args, 0))
		},
	},
	"accounts": {
		args:    "[chainID]",
		desc:    "Show every account of the signer.",
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			return k.GetAccounts(ctx, chainArg(cfg, args, 0))
		},
	},
	"signamino": {
		args:    "stdSignDocJSON [signerAddress]",
		desc:    "Sign an Amino document. The signer defaults to the first account.",
		minArgs: 1,
		maxArgs: 2,
		run:     signAmino,
	},
	"signdirect": {
		args:    "signDocJSON [signerAddress]",
		desc:    "Sign a Direct document and show the signed transaction. Fails for Ledger keys.",
		minArgs: 1,
		maxArgs: 2,
		run:     signDirect,
	},
	"sendtx": {
		args:    "txBase64 [mode]",
		desc:    "Broadcast a signed transaction. Mode is block, sync (default), or async.",
		minArgs: 1,
		maxArgs: 2,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			tx, err := base64.StdEncoding.DecodeString(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid transaction: %w", err)
			}
			mode := keplr.BroadcastSync
			if len(args) > 1 {
				mode = keplr.BroadcastMode(args[1])
			}
			txHash, err := k.SendTx(ctx, cfg.ChainID, tx, mode)
			if err != nil {
				return nil, err
			}
			return &txHashResult{TxHash: strings.ToUpper(hex.EncodeToString(txHash))}, nil
		},
	},
	"enigmapubkey": {
		desc: "Show the wallet's enigma public key for the configured chain.",
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, _ []string) (interface{}, error) {
			pk, err := k.GetEnigmaPubKey(ctx, cfg.ChainID)
			if err != nil {
				return nil, err
			}
			return &pubKeyResult{PubKey: hex.EncodeToString(pk)}, nil
		},
	},
	"txencryptionkey": {
		args:    "nonceHex",
		desc:    "Show the key used to decrypt a transaction's results.",
		minArgs: 1,
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			nonce, err := hex.DecodeString(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid nonce: %w", err)
			}
			key, err := k.GetEnigmaTxEncryptionKey(ctx, cfg.ChainID, nonce)
			if err != nil {
				return nil, err
			}
			return &txKeyResult{Key: hex.EncodeToString(key)}, nil
		},
	},
	"encrypt": {
		args:    "codeHash msgJSON",
		desc:    "Encrypt a contract message.",
		minArgs: 2,
		maxArgs: 2,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			msg := json.RawMessage(args[1])
			if !json.Valid(msg) {
				return nil, fmt.Errorf("message is not valid JSON")
			}
			enc, err := k.EnigmaEncrypt(ctx, cfg.ChainID, args[0], msg)
			if err != nil {
				return nil, err
			}
			parts, err := keplr.SplitEncrypted(enc)
			if err != nil {
				return nil, err
			}
			return &encryptResult{
				Encrypted:  hex.EncodeToString(enc),
				Nonce:      hex.EncodeToString(parts.Nonce),
				PubKey:     hex.EncodeToString(parts.PubKey),
				Ciphertext: hex.EncodeToString(parts.Ciphertext),
			}, nil
		},
	},
	"decrypt": {
		args:    "ciphertextHex nonceHex",
		desc:    "Decrypt a contract response with the nonce of the message that produced it.",
		minArgs: 2,
		maxArgs: 2,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			ciphertext, err := hex.DecodeString(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid ciphertext: %w", err)
			}
			nonce, err := hex.DecodeString(args[1])
			if err != nil {
				return nil, fmt.Errorf("invalid nonce: %w", err)
			}
			plaintext, err := k.EnigmaDecrypt(ctx, cfg.ChainID, ciphertext, nonce)
			if err != nil {
				return nil, err
			}
			return plaintextResult(plaintext), nil
		},
	},
	"decryptmsg": {
		args:    "encryptedHex",
		desc:    "Decrypt a message produced by encrypt, in nonce || pubkey || ciphertext form.",
		minArgs: 1,
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			enc, err := hex.DecodeString(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid message: %w", err)
			}
			enigma, err := k.EnigmaUtils(ctx, cfg.ChainID)
			if err != nil {
				return nil, err
			}
			plaintext, err := enigma.DecryptEncrypted(ctx, enc)
			if err != nil {
				return nil, err
			}
			return plaintextResult(plaintext), nil
		},
	},
	"suggesttoken": {
		args:    "contractAddress [viewingKey]",
		desc:    "Ask the wallet to track a Secret20 token.",
		minArgs: 1,
		maxArgs: 2,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			var viewingKey string
			if len(args) > 1 {
				viewingKey = args[1]
			}
			return nil, k.SuggestToken(ctx, cfg.ChainID, args[0], viewingKey)
		},
	},
	"viewingkey": {
		args:    "contractAddress",
		desc:    "Show the viewing key the wallet holds for a Secret20 token.",
		minArgs: 1,
		maxArgs: 1,
		run: func(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
			vk, err := k.GetSecret20ViewingKey(ctx, cfg.ChainID, args[0])
			if err != nil {
				return nil, err
			}
			return &viewingKeyResult{ViewingKey: vk}, nil
		},
	},
}

type settledKeyResult struct {
	ChainID string     `json:"chainId"`
	Status  string     `json:"status"`
	Key     *keplr.Key `json:"key,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

type txHashResult struct {
	TxHash string `json:"txHash"`
}

type pubKeyResult struct {
	PubKey string `json:"pubKey"`
}

type txKeyResult struct {
	Key string `json:"key"`
}

type encryptResult struct {
	Encrypted  string `json:"encrypted"`
	Nonce      string `json:"nonce"`
	PubKey     string `json:"pubKey"`
	Ciphertext string `json:"ciphertext"`
}

type viewingKeyResult struct {
	ViewingKey string `json:"viewingKey"`
}

type directSignResult struct {
	*keplr.DirectSignResponse
	// TxRaw is the base64 protobuf encoding of the signed transaction, ready
	// for sendtx.
	TxRaw string `json:"txRaw"`
}

// plaintextResult shows decrypted bytes as JSON when they are JSON, and as
// hex otherwise.
func plaintextResult(b []byte) interface{} {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return map[string]string{"plaintext": hex.EncodeToString(b)}
}

func chainArg(cfg *config, args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return cfg.ChainID
}

// signerAddress is the address argument, or the first account of the signer.
func signerAddress(ctx context.Context, s keplr.OfflineSigner, args []string) (string, error) {
	if len(args) > 1 {
		return args[1], nil
	}
	acct, err := s.Account(ctx)
	if err != nil {
		return "", err
	}
	return acct.Address, nil
}

func signAmino(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
	doc := new(keplr.StdSignDoc)
	if err := json.Unmarshal([]byte(args[0]), doc); err != nil {
		return nil, fmt.Errorf("invalid sign doc: %w", err)
	}
	chainID := doc.ChainID
	if chainID == "" {
		chainID = cfg.ChainID
	}
	s, err := k.OfflineSignerAuto(ctx, chainID)
	if err != nil {
		return nil, err
	}
	addr, err := signerAddress(ctx, s, args)
	if err != nil {
		return nil, err
	}
	return s.SignAmino(ctx, addr, doc)
}

func signDirect(ctx context.Context, k *keplr.Keplr, cfg *config, args []string) (interface{}, error) {
	doc := new(keplr.SignDoc)
	if err := json.Unmarshal([]byte(args[0]), doc); err != nil {
		return nil, fmt.Errorf("invalid sign doc: %w", err)
	}
	chainID := doc.ChainID
	if chainID == "" {
		chainID = cfg.ChainID
	}
	s, err := k.OfflineSignerAuto(ctx, chainID)
	if err != nil {
		return nil, err
	}
	ds, ok := s.(keplr.DirectSigner)
	if !ok {
		return nil, fmt.Errorf("the key for %s is on a Ledger, which only signs Amino documents", chainID)
	}
	addr, err := signerAddress(ctx, ds, args)
	if err != nil {
		return nil, err
	}
	resp, err := ds.SignDirect(ctx, addr, doc)
	if err != nil {
		return nil, err
	}
	tx, err := resp.TxRaw()
	if err != nil {
		return nil, err
	}
	return &directSignResult{
		DirectSignResponse: resp,
		TxRaw:              base64.StdEncoding.EncodeToString(keplr.EncodeTxRaw(tx)),
	}, nil
}

// checkArgs checks the number of arguments for a command.
func (c *command) checkArgs(name string, n int) error {
	if n < c.minArgs {
		return fmt.Errorf("%s needs at least %d arguments, got %d. Usage: %s", name, c.minArgs, n, c.usage(name))
	}
	if c.maxArgs >= 0 && n > c.maxArgs {
		return fmt.Errorf("%s takes at most %d arguments, got %d. Usage: %s", name, c.maxArgs, n, c.usage(name))
	}
	return nil
}

func (c *command) usage(name string) string {
	if c.args == "" {
		return name
	}
	return name + " " + c.args
}

// listCommands lists the commands with their usage.
func listCommands() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(&sb, "  %s\n      %s\n", c.usage(name), c.desc)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
