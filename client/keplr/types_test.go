// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestSignDocJSON(t *testing.T) {
	doc := &SignDoc{
		BodyBytes:     []byte{1, 2},
		AuthInfoBytes: []byte{3},
		ChainID:       "secret-4",
		AccountNumber: 18446744073709551615,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	const want = `{"bodyBytes":{"$bytes":"AQI="},"authInfoBytes":{"$bytes":"Aw=="},"chainId":"secret-4","accountNumber":"18446744073709551615"}`
	if string(b) != want {
		t.Fatalf("wrong encoding\n got: %s\nwant: %s", b, want)
	}

	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"envelopes", want, false},
		{"uint8array objects", `{"bodyBytes":{"0":1,"1":2},"authInfoBytes":{"0":3},"chainId":"secret-4","accountNumber":"18446744073709551615"}`, false},
		{"arrays and base64", `{"bodyBytes":[1,2],"authInfoBytes":"Aw==","chainId":"secret-4","accountNumber":"18446744073709551615"}`, false},
		{"number account", `{"bodyBytes":"AQI=","authInfoBytes":"Aw","chainId":"secret-4","accountNumber":18446744073709551615}`, false},
		{"negative account", `{"bodyBytes":"AQI=","authInfoBytes":"Aw==","chainId":"secret-4","accountNumber":"-1"}`, true},
		{"missing account", `{"bodyBytes":"AQI=","authInfoBytes":"Aw==","chainId":"secret-4"}`, true},
		{"bad body", `{"bodyBytes":true,"authInfoBytes":"Aw==","chainId":"secret-4","accountNumber":"1"}`, true},
	}
	for _, tt := range tests {
		var got SignDoc
		err := json.Unmarshal([]byte(tt.json), &got)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: wantErr = %t, err = %v", tt.name, tt.wantErr, err)
		}
		if tt.wantErr {
			continue
		}
		if !bytes.Equal(got.BodyBytes, doc.BodyBytes) || !bytes.Equal(got.AuthInfoBytes, doc.AuthInfoBytes) ||
			got.ChainID != doc.ChainID || got.AccountNumber != doc.AccountNumber {
			t.Fatalf("%s: wrong doc %+v", tt.name, got)
		}
	}
}

func TestSignDocBytes(t *testing.T) {
	doc := &SignDoc{
		BodyBytes:     []byte{1, 2},
		AuthInfoBytes: []byte{3},
		ChainID:       "a",
		AccountNumber: 1,
	}
	want, _ := hex.DecodeString("0a020102120103" + "1a0161" + "2001")
	if got := doc.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("wrong bytes %x, wanted %x", got, want)
	}
	// Zero fields are omitted.
	if got := (&SignDoc{ChainID: "a"}).Bytes(); !bytes.Equal(got, []byte{0x1a, 0x01, 0x61}) {
		t.Fatalf("wrong bytes for chain ID only: %x", got)
	}
	// Multi-byte varint.
	got := (&SignDoc{AccountNumber: 300}).Bytes()
	if !bytes.Equal(got, []byte{0x20, 0xac, 0x02}) {
		t.Fatalf("wrong varint encoding %x", got)
	}
}

func TestTxRaw(t *testing.T) {
	tx := &TxRaw{
		BodyBytes:     []byte{1, 2},
		AuthInfoBytes: []byte{3},
		Signatures:    [][]byte{{4, 5}, {6}},
	}
	b := EncodeTxRaw(tx)
	want, _ := hex.DecodeString("0a020102" + "120103" + "1a020405" + "1a0106")
	if !bytes.Equal(b, want) {
		t.Fatalf("wrong encoding %x", b)
	}
	got, err := DecodeTxRaw(b)
	if err != nil {
		t.Fatalf("DecodeTxRaw error: %v", err)
	}
	if !bytes.Equal(got.BodyBytes, tx.BodyBytes) || !bytes.Equal(got.AuthInfoBytes, tx.AuthInfoBytes) ||
		len(got.Signatures) != 2 || !bytes.Equal(got.Signatures[1], []byte{6}) {
		t.Fatalf("wrong tx %+v", got)
	}

	// An unknown varint field is skipped.
	withUnknown := append(append([]byte{}, b...), 0x20, 0x05)
	if _, err := DecodeTxRaw(withUnknown); err != nil {
		t.Fatalf("unknown field not skipped: %v", err)
	}
	if _, err := DecodeTxRaw(b[:len(b)-1]); err == nil {
		t.Fatalf("no error for truncated tx")
	}
	if _, err := DecodeTxRaw([]byte{0x12, 0x01, 0x03}); err == nil {
		t.Fatalf("no error for tx without body")
	}

	resp := &DirectSignResponse{
		Signed:    SignDoc{BodyBytes: []byte{1}, AuthInfoBytes: []byte{2}},
		Signature: StdSignature{Signature: "AQID"},
	}
	txRaw, err := resp.TxRaw()
	if err != nil {
		t.Fatalf("TxRaw error: %v", err)
	}
	if len(txRaw.Signatures) != 1 || !bytes.Equal(txRaw.Signatures[0], []byte{1, 2, 3}) {
		t.Fatalf("wrong signatures %x", txRaw.Signatures)
	}
	resp.Signature.Signature = "not base64!"
	if _, err := resp.TxRaw(); err == nil {
		t.Fatalf("no error for bad signature encoding")
	}
}

func TestStdSignature(t *testing.T) {
	for _, js := range []string{
		`{"pub_key":{"type":"tendermint/PubKeySecp256k1","value":"AA=="},"signature":"AQ=="}`,
		`{"pubKey":{"type":"tendermint/PubKeySecp256k1","value":"AA=="},"signature":"AQ=="}`,
	} {
		var sig StdSignature
		if err := json.Unmarshal([]byte(js), &sig); err != nil {
			t.Fatalf("Unmarshal error for %s: %v", js, err)
		}
		if sig.PubKey.Type != PubKeyTypeSecp256k1 || sig.PubKey.Value != "AA==" || sig.Signature != "AQ==" {
			t.Fatalf("wrong signature %+v", sig)
		}
		b, _ := json.Marshal(&sig)
		if !strings.Contains(string(b), `"pub_key"`) {
			t.Fatalf("not encoded with pub_key: %s", b)
		}
	}
	var sig StdSignature
	if err := json.Unmarshal([]byte(`{"signature":"AQ=="}`), &sig); err == nil {
		t.Fatalf("no error for missing pub_key")
	}
	// Unknown key types are carried through.
	if err := json.Unmarshal([]byte(`{"pub_key":{"type":"other/PubKey","value":""},"signature":""}`), &sig); err != nil {
		t.Fatalf("error for unknown key type: %v", err)
	}
}

func TestAlgo(t *testing.T) {
	for _, s := range []string{"secp256k1", "ed25519", "sr25519"} {
		var a Algo
		if err := json.Unmarshal([]byte(`"`+s+`"`), &a); err != nil || string(a) != s {
			t.Fatalf("%s: %q, %v", s, a, err)
		}
	}
	for _, s := range []string{`"ethsecp256k1"`, `""`, `1`} {
		var a Algo
		if err := json.Unmarshal([]byte(s), &a); err == nil {
			t.Fatalf("no error for %s", s)
		}
	}
}

func TestStdSignDocEmptyLists(t *testing.T) {
	b, err := json.Marshal(&StdSignDoc{ChainID: "secret-4", Fee: StdFee{Gas: "1"}})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	const want = `{"chain_id":"secret-4","account_number":"","sequence":"","fee":{"amount":[],"gas":"1"},"msgs":[],"memo":""}`
	if string(b) != want {
		t.Fatalf("wrong encoding\n got: %s\nwant: %s", b, want)
	}
	// Values encode the same as pointers.
	b, _ = json.Marshal(StdFee{Gas: "1", Payer: "secret1p"})
	if string(b) != `{"amount":[],"gas":"1","payer":"secret1p"}` {
		t.Fatalf("wrong fee encoding %s", b)
	}
	var doc StdSignDoc
	if err := json.Unmarshal([]byte(`{"chain_id":"a","fee":{"amount":[{"denom":"u","amount":"1"}],"gas":"2"},"msgs":[]}`), &doc); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if len(doc.Fee.Amount) != 1 || doc.Fee.Gas != "2" || doc.Msgs == nil {
		t.Fatalf("wrong doc %+v", doc)
	}
}

func TestRequiredFields(t *testing.T) {
	const fullKey = `{"name": "k", "algo": "secp256k1", "pubKey": "AA==", "address": "AA==",
		"bech32Address": "secret1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnpn9nv9", "isNanoLedger": true, "isKeystone": false}`
	var k Key
	if err := json.Unmarshal([]byte(fullKey), &k); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !k.IsNanoLedger || k.EthereumHexAddress != "" {
		t.Fatalf("wrong key %s", &k)
	}
	for _, field := range keyFields {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(fullKey), &fields); err != nil {
			t.Fatalf("fixture error: %v", err)
		}
		delete(fields, field)
		b, _ := json.Marshal(fields)
		if err := json.Unmarshal(b, new(Key)); err == nil {
			t.Fatalf("no error for key without %s", field)
		}
		fields[field] = json.RawMessage("null")
		b, _ = json.Marshal(fields)
		if err := json.Unmarshal(b, new(Key)); err == nil {
			t.Fatalf("no error for key with null %s", field)
		}
	}

	for _, s := range []string{
		`{"algo": "ed25519", "pubkey": "AA=="}`,
		`{"address": "secret1a", "pubkey": "AA=="}`,
		`{"address": "secret1a", "algo": "ed25519"}`,
		`{"address": "secret1a", "algo": "ed25519", "pubkey": null}`,
		`[]`,
	} {
		if err := json.Unmarshal([]byte(s), new(AccountData)); err == nil {
			t.Fatalf("no error for account %s", s)
		}
	}
}

func TestSettledKey(t *testing.T) {
	var keys []*SettledKey
	err := json.Unmarshal([]byte(`[
		{"status": "fulfilled", "value": {"name": "k", "algo": "secp256k1", "pubKey": "AA==",
			"address": "AAECAwQFBgcICQoLDA0ODxAREhM=", "bech32Address": "secret1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnpn9nv9",
			"isNanoLedger": false, "isKeystone": false}},
		{"status": "rejected", "reason": "not enabled"},
		{"status": "rejected", "reason": {"message": "no chain info"}},
		{"status": "rejected", "reason": {}}
	]`), &keys)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if keys[0].Key == nil || keys[0].Key.Bech32Prefix() != "secret" {
		t.Fatalf("wrong fulfilled key %+v", keys[0])
	}
	for i, want := range []string{"not enabled", "no chain info", unknownMessage} {
		if k := keys[i+1]; k.Key != nil || k.Reason != want {
			t.Fatalf("wrong rejected result %d: %+v", i+1, k)
		}
	}
	var sk SettledKey
	if err := json.Unmarshal([]byte(`{"status": "pending"}`), &sk); err == nil {
		t.Fatalf("no error for unknown status")
	}
	if err := json.Unmarshal([]byte(`{"status": "fulfilled", "value": {}}`), &sk); err == nil {
		t.Fatalf("no error for fulfilled key without address")
	}
}

func TestErrors(t *testing.T) {
	err := translateHostError("getKey", &HostError{Message: "boom"})
	if !errors.Is(err, ErrJavaScript) || errors.Is(err, ErrSerialization) {
		t.Fatalf("wrong kind %v", err)
	}
	if err.Error() != "getKey: javascript error: boom" {
		t.Fatalf("wrong message %q", err.Error())
	}
	// An *Error passes through unchanged.
	if got := translateHostError("other", err); got != err {
		t.Fatalf("error was rewrapped")
	}
	cause := errors.New("socket closed")
	err = translateHostError("getKey", cause)
	if !errors.Is(err, ErrHostUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("wrong translation %v", err)
	}
	if (&HostError{}).Error() != unknownMessage {
		t.Fatalf("empty HostError message")
	}
}

func TestEncodeArgs(t *testing.T) {
	args, err := encodeArgs("test", []interface{}{"a", BytesArg{1, 2}, 5})
	if err != nil {
		t.Fatalf("encodeArgs error: %v", err)
	}
	want := []string{`"a"`, `{"$bytes":"AQI="}`, `5`}
	for i, arg := range args {
		if string(arg) != want[i] {
			t.Fatalf("arg %d = %s, wanted %s", i, arg, want[i])
		}
	}
	_, err = encodeArgs("test", []interface{}{make(chan int)})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("wrong error for unencodable arg: %v", err)
	}
	if err := decodeResult("test", nil, nil); err != nil {
		t.Fatalf("error discarding result: %v", err)
	}
	var s string
	for _, raw := range []string{"", "null", "5"} {
		if err := decodeResult("test", json.RawMessage(raw), &s); !errors.Is(err, ErrSerialization) {
			t.Fatalf("wrong error for %q: %v", raw, err)
		}
	}
}
