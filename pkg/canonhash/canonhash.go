// Package canonhash computes deterministic SHA-256 digests over structured
// values. Values are canonicalized before hashing: object keys sorted
// lexicographically at every depth, array order preserved, numbers kept in
// their exact JSON literal form, strings UTF-8 encoded. The same value always
// produces the same digest regardless of map iteration order or call timing.
package canonhash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrEncoding is the only error this package returns: the value cannot be
// serialized (channels, funcs, cyclic structures, NaN floats).
var ErrEncoding = errors.New("canonhash: value is not encodable")

// Sum returns the lowercase 64-char hex SHA-256 of the canonical form of v,
// along with the canonical bytes themselves.
func Sum(v any) (string, []byte, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// SumHex is Sum without the canonical bytes.
func SumHex(v any) (string, error) {
	h, _, err := Sum(v)
	return h, err
}

// SumString hashes a raw string without canonicalization.
func SumString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SumBytes hashes raw bytes without canonicalization.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Canonicalize serializes v into canonical JSON. The value is first marshaled
// through encoding/json (which rejects unencodable inputs), then re-read with
// json.Number so numeric literals survive untouched, then written back with
// sorted object keys.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	var b bytes.Buffer
	if err := writeCanonical(&b, tree); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func writeCanonical(b *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case json.Number:
		b.WriteString(t.String())
	case string:
		s, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		b.Write(s)
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrEncoding, err)
			}
			b.Write(kb)
			b.WriteByte(':')
			if err := writeCanonical(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("%w: unsupported node %T", ErrEncoding, v)
	}
	return nil
}
