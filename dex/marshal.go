// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Bytes is a byte slice that marshals to a base64 string and unmarshals from
// any of the shapes a JavaScript host produces for binary data: a base64
// string, an array of numbers, an index-keyed object (what JSON.stringify
// yields for a Uint8Array), or a {"$bytes": base64} envelope.
type Bytes []byte

// String returns the base64 encoding of the Bytes.
func (b Bytes) String() string {
	return base64.StdEncoding.EncodeToString(b)
}

// MarshalJSON satisfies the json.Marshaller interface, and will marshal the
// bytes to a base64 string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

// UnmarshalJSON satisfies the json.Unmarshaler interface.
func (b *Bytes) UnmarshalJSON(enc []byte) error {
	enc = bytes.TrimSpace(enc)
	if len(enc) == 0 {
		return fmt.Errorf("marshalled Bytes empty")
	}
	switch enc[0] {
	case 'n':
		if string(enc) != "null" {
			return fmt.Errorf("marshalled Bytes, '%s', not valid", string(enc))
		}
		*b = nil
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(enc, &s); err != nil {
			return err
		}
		raw, err := decodeBase64(s)
		if err != nil {
			return err
		}
		*b = raw
		return nil
	case '[':
		var nums []json.Number
		if err := json.Unmarshal(enc, &nums); err != nil {
			return err
		}
		raw := make([]byte, len(nums))
		for i, n := range nums {
			v, err := byteValue(n)
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			raw[i] = v
		}
		*b = raw
		return nil
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(enc, &m); err != nil {
			return err
		}
		if env, found := m["$bytes"]; found && len(m) == 1 {
			var s string
			if err := json.Unmarshal(env, &s); err != nil {
				return fmt.Errorf("$bytes envelope: %w", err)
			}
			raw, err := decodeBase64(s)
			if err != nil {
				return err
			}
			*b = raw
			return nil
		}
		return b.fromIndexedObject(m)
	}
	return fmt.Errorf("marshalled Bytes, '%s', not valid", string(enc))
}

// fromIndexedObject decodes {"0": 12, "1": 255, ...}. Keys must be exactly the
// indexes 0..n-1.
func (b *Bytes) fromIndexedObject(m map[string]json.RawMessage) error {
	idxs := make([]int, 0, len(m))
	vals := make(map[int]json.RawMessage, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			return fmt.Errorf("unexpected key %q in byte object", k)
		}
		idxs = append(idxs, i)
		vals[i] = v
	}
	sort.Ints(idxs)
	raw := make([]byte, len(idxs))
	for pos, i := range idxs {
		if i != pos {
			return fmt.Errorf("byte object missing index %d", pos)
		}
		var n json.Number
		if err := json.Unmarshal(vals[i], &n); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
		v, err := byteValue(n)
		if err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
		raw[pos] = v
	}
	*b = raw
	return nil
}

func byteValue(n json.Number) (byte, error) {
	v, err := strconv.ParseUint(n.String(), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%s is not a byte", n)
	}
	return byte(v), nil
}

// decodeBase64 accepts padded and unpadded standard encodings.
func decodeBase64(s string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
