// Package identity defines the canonical user identifier used across the
// realtime core and the REST surface.
//
// Clients are not consistent about how they send identifiers: plain strings,
// numbers, or objects wrapping a document id ({"$oid": ...}, {"_id": ...},
// {"id": ...}) all show up. Everything is normalized to one string form at
// ingress so two callers naming the same user always hit the same directory key.
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrEmpty   = errors.New("identity: empty identifier")
	ErrInvalid = errors.New("identity: unsupported identifier shape")
)

// wrapperKeys are the object keys recognised as carrying an identifier,
// checked in order.
var wrapperKeys = []string{"$oid", "_id", "id"}

// ID is a canonical user (or listing) identifier.
type ID string

// New canonicalizes a plain string identifier.
func New(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}
	return ID(s), nil
}

// Parse canonicalizes a raw JSON identifier of any supported shape.
func Parse(raw json.RawMessage) (ID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrEmpty
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return New(s)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		for _, key := range wrapperKeys {
			if v, ok := obj[key]; ok {
				return Parse(v)
			}
		}
		return "", ErrInvalid
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return fromNumber(n)
	}
}

// fromNumber accepts only integral numbers and formats them in base 10, so
// 1000, 1e3 and 1000.0 name the same identifier.
func fromNumber(n json.Number) (ID, error) {
	if i, err := n.Int64(); err == nil {
		return ID(strconv.FormatInt(i, 10)), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return "", fmt.Errorf("%w: non-integer number %s", ErrInvalid, n)
	}
	return ID(strconv.FormatInt(int64(f), 10)), nil
}

// UnmarshalJSON normalizes the identifier on decode, so any payload field
// typed ID is canonical once decoded. null and "" leave the ID unset; callers
// decide whether the field is required.
func (id *ID) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if errors.Is(err, ErrEmpty) {
		*id = ""
		return nil
	}
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the identifier was never set.
func (id ID) IsZero() bool {
	return id == ""
}
