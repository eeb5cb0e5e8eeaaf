// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import "context"

// SuggestToken asks the wallet to track a SNIP-20 token. With an empty
// viewingKey the wallet creates one.
func (k *Keplr) SuggestToken(ctx context.Context, chainID, contractAddress, viewingKey string) error {
	const op = "suggestToken"
	if contractAddress == "" {
		return serializationError(op, nil, "no contract address")
	}
	args := []interface{}{chainID, contractAddress}
	if viewingKey != "" {
		args = append(args, viewingKey)
	}
	return k.call(ctx, op, nil, args...)
}

// GetSecret20ViewingKey returns the viewing key the wallet holds for a
// SNIP-20 token.
func (k *Keplr) GetSecret20ViewingKey(ctx context.Context, chainID, contractAddress string) (string, error) {
	const op = "getSecret20ViewingKey"
	var vk string
	if err := k.call(ctx, op, &vk, chainID, contractAddress); err != nil {
		return "", err
	}
	if vk == "" {
		return "", serializationError(op, nil, "empty viewing key")
	}
	return vk, nil
}
