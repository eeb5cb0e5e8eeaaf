// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"errors"
	"fmt"
)

// Bip44 holds the coin type used for key derivation.
type Bip44 struct {
	CoinType uint32 `json:"coinType"`
}

// Bech32Config lists the bech32 prefixes of a chain.
type Bech32Config struct {
	Bech32PrefixAccAddr  string `json:"bech32PrefixAccAddr"`
	Bech32PrefixAccPub   string `json:"bech32PrefixAccPub"`
	Bech32PrefixValAddr  string `json:"bech32PrefixValAddr"`
	Bech32PrefixValPub   string `json:"bech32PrefixValPub"`
	Bech32PrefixConsAddr string `json:"bech32PrefixConsAddr"`
	Bech32PrefixConsPub  string `json:"bech32PrefixConsPub"`
}

// NewBech32Config derives the standard Cosmos SDK prefixes from the account
// prefix, e.g. "secret" gives "secretpub", "secretvaloper" and so on.
func NewBech32Config(prefix string) *Bech32Config {
	return &Bech32Config{
		Bech32PrefixAccAddr:  prefix,
		Bech32PrefixAccPub:   prefix + "pub",
		Bech32PrefixValAddr:  prefix + "valoper",
		Bech32PrefixValPub:   prefix + "valoperpub",
		Bech32PrefixConsAddr: prefix + "valcons",
		Bech32PrefixConsPub:  prefix + "valconspub",
	}
}

func (c *Bech32Config) validate() error {
	for _, p := range []struct{ name, prefix string }{
		{"bech32PrefixAccAddr", c.Bech32PrefixAccAddr},
		{"bech32PrefixAccPub", c.Bech32PrefixAccPub},
		{"bech32PrefixValAddr", c.Bech32PrefixValAddr},
		{"bech32PrefixValPub", c.Bech32PrefixValPub},
		{"bech32PrefixConsAddr", c.Bech32PrefixConsAddr},
		{"bech32PrefixConsPub", c.Bech32PrefixConsPub},
	} {
		if p.prefix == "" {
			return fmt.Errorf("missing %s", p.name)
		}
	}
	return nil
}

// Currency describes a denomination.
type Currency struct {
	CoinDenom        string `json:"coinDenom"`
	CoinMinimalDenom string `json:"coinMinimalDenom"`
	CoinDecimals     uint8  `json:"coinDecimals"`
	CoinGeckoID      string `json:"coinGeckoId,omitempty"`
}

func (c *Currency) validate() error {
	if c.CoinDenom == "" {
		return errors.New("missing coinDenom")
	}
	if c.CoinMinimalDenom == "" {
		return fmt.Errorf("%s: missing coinMinimalDenom", c.CoinDenom)
	}
	return nil
}

// GasPriceStep is the low, average and high gas price offered to the user.
type GasPriceStep struct {
	Low     float64 `json:"low"`
	Average float64 `json:"average"`
	High    float64 `json:"high"`
}

// FeeCurrency is a Currency that fees can be paid in.
type FeeCurrency struct {
	Currency
	GasPriceStep *GasPriceStep `json:"gasPriceStep,omitempty"`
}

// SuggestingChainInfo is the metadata for a chain the wallet does not know.
type SuggestingChainInfo struct {
	ChainID       string         `json:"chainId"`
	ChainName     string         `json:"chainName"`
	RPC           string         `json:"rpc"`
	REST          string         `json:"rest"`
	Bip44         *Bip44         `json:"bip44"`
	Bech32Config  *Bech32Config  `json:"bech32Config"`
	Currencies    []*Currency    `json:"currencies"`
	FeeCurrencies []*FeeCurrency `json:"feeCurrencies"`
	StakeCurrency *Currency      `json:"stakeCurrency"`
	Features      []string       `json:"features,omitempty"`
}

// Validate checks that every required field is present.
func (ci *SuggestingChainInfo) Validate() error {
	switch {
	case ci.ChainID == "":
		return errors.New("missing chainId")
	case ci.ChainName == "":
		return errors.New("missing chainName")
	case ci.RPC == "":
		return errors.New("missing rpc")
	case ci.REST == "":
		return errors.New("missing rest")
	case ci.Bip44 == nil:
		return errors.New("missing bip44")
	case ci.Bech32Config == nil:
		return errors.New("missing bech32Config")
	case len(ci.Currencies) == 0:
		return errors.New("no currencies")
	case len(ci.FeeCurrencies) == 0:
		return errors.New("no feeCurrencies")
	case ci.StakeCurrency == nil:
		return errors.New("missing stakeCurrency")
	}
	if err := ci.Bech32Config.validate(); err != nil {
		return err
	}
	for i, c := range ci.Currencies {
		if c == nil {
			return fmt.Errorf("currency %d is nil", i)
		}
		if err := c.validate(); err != nil {
			return fmt.Errorf("currency %d: %w", i, err)
		}
	}
	for i, c := range ci.FeeCurrencies {
		if c == nil {
			return fmt.Errorf("fee currency %d is nil", i)
		}
		if err := c.validate(); err != nil {
			return fmt.Errorf("fee currency %d: %w", i, err)
		}
	}
	if err := ci.StakeCurrency.validate(); err != nil {
		return fmt.Errorf("stake currency: %w", err)
	}
	return nil
}

// ChainInfo is the wallet's description of a known chain, without endpoints.
type ChainInfo struct {
	ChainID       string         `json:"chainId"`
	ChainName     string         `json:"chainName"`
	Bip44         *Bip44         `json:"bip44"`
	Bech32Config  *Bech32Config  `json:"bech32Config"`
	Currencies    []*Currency    `json:"currencies"`
	FeeCurrencies []*FeeCurrency `json:"feeCurrencies"`
	StakeCurrency *Currency      `json:"stakeCurrency"`
	Features      []string       `json:"features,omitempty"`
}

// HasFeature reports whether the chain lists the feature, e.g. "secretwasm".
func (ci *ChainInfo) HasFeature(feature string) bool {
	for _, f := range ci.Features {
		if f == feature {
			return true
		}
	}
	return false
}
