// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"encoding/json"
	"testing"
)

func validChainInfo() *SuggestingChainInfo {
	cur := &Currency{CoinDenom: "SCRT", CoinMinimalDenom: "uscrt", CoinDecimals: 6, CoinGeckoID: "secret"}
	return &SuggestingChainInfo{
		ChainID:       "secret-4",
		ChainName:     "Secret Network",
		RPC:           "https://rpc.secret.example",
		REST:          "https://lcd.secret.example",
		Bip44:         &Bip44{CoinType: 529},
		Bech32Config:  NewBech32Config("secret"),
		Currencies:    []*Currency{cur},
		FeeCurrencies: []*FeeCurrency{{Currency: *cur, GasPriceStep: &GasPriceStep{0.1, 0.25, 0.5}}},
		StakeCurrency: cur,
		Features:      []string{"secretwasm"},
	}
}

func TestSuggestingChainInfoValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*SuggestingChainInfo)
		wantErr bool
	}{
		{"ok", func(*SuggestingChainInfo) {}, false},
		{"no chain ID", func(ci *SuggestingChainInfo) { ci.ChainID = "" }, true},
		{"no name", func(ci *SuggestingChainInfo) { ci.ChainName = "" }, true},
		{"no rpc", func(ci *SuggestingChainInfo) { ci.RPC = "" }, true},
		{"no rest", func(ci *SuggestingChainInfo) { ci.REST = "" }, true},
		{"no bip44", func(ci *SuggestingChainInfo) { ci.Bip44 = nil }, true},
		{"no bech32 config", func(ci *SuggestingChainInfo) { ci.Bech32Config = nil }, true},
		{"missing prefix", func(ci *SuggestingChainInfo) { ci.Bech32Config.Bech32PrefixConsPub = "" }, true},
		{"no currencies", func(ci *SuggestingChainInfo) { ci.Currencies = nil }, true},
		{"nil currency", func(ci *SuggestingChainInfo) { ci.Currencies = append(ci.Currencies, nil) }, true},
		{"no fee currencies", func(ci *SuggestingChainInfo) { ci.FeeCurrencies = nil }, true},
		{"fee currency without denom", func(ci *SuggestingChainInfo) { ci.FeeCurrencies[0].CoinMinimalDenom = "" }, true},
		{"no stake currency", func(ci *SuggestingChainInfo) { ci.StakeCurrency = nil }, true},
		{"stake currency without denom", func(ci *SuggestingChainInfo) {
			ci.StakeCurrency = &Currency{CoinMinimalDenom: "uscrt"}
		}, true},
		{"no features", func(ci *SuggestingChainInfo) { ci.Features = nil }, false},
	}
	for _, tt := range tests {
		ci := validChainInfo()
		tt.modify(ci)
		err := ci.Validate()
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: wantErr = %t, err = %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestNewBech32Config(t *testing.T) {
	c := NewBech32Config("secret")
	if c.Bech32PrefixValAddr != "secretvaloper" || c.Bech32PrefixConsPub != "secretvalconspub" {
		t.Fatalf("wrong prefixes %+v", c)
	}
	if err := c.validate(); err != nil {
		t.Fatalf("validate error: %v", err)
	}
}

func TestChainInfoJSON(t *testing.T) {
	ci := validChainInfo()
	b, err := json.Marshal(ci)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	// The wallet's own description has no endpoints.
	var known ChainInfo
	if err := json.Unmarshal(b, &known); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if known.ChainID != ci.ChainID || known.Bip44.CoinType != 529 || !known.HasFeature("secretwasm") {
		t.Fatalf("wrong chain info %+v", known)
	}
	if known.HasFeature("ibc-transfer") {
		t.Fatalf("unexpected feature")
	}
	fee := known.FeeCurrencies[0]
	if fee.CoinMinimalDenom != "uscrt" || fee.GasPriceStep == nil || fee.GasPriceStep.High != 0.5 {
		t.Fatalf("wrong fee currency %+v", fee)
	}
	var m map[string]json.RawMessage
	json.Unmarshal(b, &m)
	for _, field := range []string{"chainId", "bech32Config", "feeCurrencies", "stakeCurrency", "rpc", "rest"} {
		if _, ok := m[field]; !ok {
			t.Fatalf("missing field %s in %s", field, b)
		}
	}
}
