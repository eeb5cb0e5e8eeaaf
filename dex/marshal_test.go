// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestBytes_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		enc     string
		want    []byte
		wantErr bool
	}{
		{
			name: "base64",
			enc:  `"Dw4="`,
			want: []byte{0x0f, 0x0e},
		},
		{
			name: "base64 unpadded",
			enc:  `"Dw4"`,
			want: []byte{0x0f, 0x0e},
		},
		{
			name:    "bad base64",
			enc:     `"$$$"`,
			wantErr: true,
		},
		{
			name: "ok empty",
			enc:  `""`,
			want: []byte{},
		},
		{
			name: "null",
			enc:  `null`,
			want: nil,
		},
		{
			name: "number array",
			enc:  `[15, 14, 255]`,
			want: []byte{0x0f, 0x0e, 0xff},
		},
		{
			name:    "number array overflow",
			enc:     `[256]`,
			wantErr: true,
		},
		{
			name:    "number array negative",
			enc:     `[-1]`,
			wantErr: true,
		},
		{
			name: "indexed object",
			enc:  `{"1": 14, "0": 15, "2": 0}`,
			want: []byte{0x0f, 0x0e, 0x00},
		},
		{
			name:    "indexed object gap",
			enc:     `{"0": 15, "2": 14}`,
			wantErr: true,
		},
		{
			name:    "indexed object bad key",
			enc:     `{"0": 15, "x": 14}`,
			wantErr: true,
		},
		{
			name: "envelope",
			enc:  `{"$bytes": "Dw4="}`,
			want: []byte{0x0f, 0x0e},
		},
		{
			name:    "too short",
			enc:     `2`,
			wantErr: true,
		},
		{
			name:    "not json",
			enc:     `abc`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := new(Bytes)
			err := b.UnmarshalJSON([]byte(tt.enc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Bytes.UnmarshalJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !bytes.Equal(*b, tt.want) {
				t.Fatalf("wanted %v, got %v", tt.want, []byte(*b))
			}
			if tt.want == nil && *b != nil {
				t.Fatalf("expected nil Bytes for null")
			}
		})
	}
}

func TestBytes_String(t *testing.T) {
	b := Bytes{0x0f, 0x0e}
	if b.String() != "Dw4=" {
		t.Fatalf("wrong string %q", b.String())
	}
	// Structs print binary fields in base64, not raw.
	type rec struct {
		PubKey Bytes `json:"pubKey"`
	}
	enc, err := json.Marshal(&rec{PubKey: b})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(enc) != `{"pubKey":"Dw4="}` {
		t.Fatalf("wrong encoding %s", enc)
	}
}
