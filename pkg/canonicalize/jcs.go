// Package canonicalize produces RFC 8785 (JSON Canonicalization Scheme)
// output for deterministic hashing of ledger payloads and policy decision
// inputs. Encoding is hand-rolled so it can walk arbitrary Go values
// (structs, maps, json.Number) without forcing callers through an
// intermediate map themselves; every result is cross-checked against
// gowebpki/jcs, the reference RFC 8785 transform, so a divergence between
// the two never silently produces a hash an external verifier running the
// reference implementation couldn't reproduce.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
func JCS(v interface{}) ([]byte, error) {
	premarshaled, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: marshal: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(premarshaled))
	decoder.UseNumber()
	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("jcs: decode intermediate: %w", err)
	}

	out, err := encodeCanonical(generic)
	if err != nil {
		return nil, err
	}

	if err := crossCheck(premarshaled, out); err != nil {
		return nil, err
	}

	return out, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// JCSString returns the canonical form of v as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// crossCheck verifies encodeCanonical's output against gowebpki/jcs, the
// reference RFC 8785 transform, given the same pre-marshaled JSON. A
// mismatch means the hand-rolled encoder diverged from the spec, which
// would silently break hash reproducibility for anyone verifying a ledger
// export with the reference implementation instead of this package.
func crossCheck(premarshaled, ours []byte) error {
	reference, err := jcs.Transform(premarshaled)
	if err != nil {
		return fmt.Errorf("jcs: reference transform rejected input our encoder accepted: %w", err)
	}
	if !bytes.Equal(reference, ours) {
		return fmt.Errorf("jcs: canonical form diverged from reference implementation")
	}
	return nil
}

// encodeCanonical walks a decoded JSON value (as produced by a
// json.Decoder with UseNumber) and writes it back out in canonical form:
// object keys sorted by UTF-16 code unit (equivalent to byte-wise sort for
// the ASCII key names this service uses), no HTML escaping, numbers
// preserved exactly as decoded.
func encodeCanonical(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return []byte(t.String()), nil
	case string:
		return encodeCanonicalString(t)
	case []interface{}:
		return encodeCanonicalArray(t)
	case map[string]interface{}:
		return encodeCanonicalObject(t)
	default:
		return nil, fmt.Errorf("jcs: unsupported decoded type %T", v)
	}
}

func encodeCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("jcs: encode string: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func encodeCanonicalArray(items []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := encodeCanonical(item)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func encodeCanonicalObject(obj map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := encodeCanonicalString(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := encodeCanonical(obj[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
