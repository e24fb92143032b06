// Package fingerprint computes the content hash used to detect duplicate
// personal and phonebook contacts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

// IDField is never part of the fingerprint: identity is not content.
const IDField = "id"

// Clean returns a copy of fields without empty values and without the id key.
func Clean(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == IDField || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// ErrEmptyKey is returned by Normalize for a blank field name.
var ErrEmptyKey = errors.New("field names must not be empty")

// Normalize trims field names and drops the id key of a contact input. Values
// are kept as given; Clean drops the empty ones at storage time.
func Normalize(fields map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, ErrEmptyKey
		}
		if key == IDField {
			continue
		}
		out[key] = v
	}
	return out, nil
}

// Compute hashes the non-empty (key, value) pairs of fields.
// Pairs are sorted byte-wise on the key and each key and value is written
// with a big-endian uint32 length prefix before hashing with SHA-256.
func Compute(fields map[string]string) string {
	cleaned := Clean(fields)
	keys := make([]string, 0, len(cleaned))
	for k := range cleaned {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	var prefix [4]byte
	write := func(s string) {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(s)))
		h.Write(prefix[:])
		h.Write([]byte(s))
	}
	for _, k := range keys {
		write(k)
		write(cleaned[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
