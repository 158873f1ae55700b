package types

import (
	"encoding/hex"
	"strings"

	ierr "github.com/flexprice/pullpay/internal/errors"
	"golang.org/x/crypto/sha3"
)

// Address identifies a participant: payer, recipient, controller, community,
// hook or billing instance. It is always stored as lower-case 0x-prefixed hex.
type Address string

const (
	AddressLength = 20

	ZeroAddress Address = "0x0000000000000000000000000000000000000000"
)

// IsHexAddress reports whether s is a 0x-prefixed 20 byte hex string
func IsHexAddress(s string) bool {
	if len(s) != 2+2*AddressLength || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// ParseAddress validates and normalizes s
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !IsHexAddress(s) {
		return "", ierr.NewError("invalid address").
			WithHintf("%q is not a valid address", s).
			Mark(ierr.ErrValidation)
	}
	return Address(strings.ToLower(s)), nil
}

// MustParseAddress is ParseAddress for constants and tests
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseAddresses parses a list, failing on the first invalid entry
func ParseAddresses(in []string) ([]Address, error) {
	out := make([]Address, 0, len(in))
	for _, s := range in {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (a Address) String() string {
	return string(a)
}

// IsZero is true for the empty string and the all-zero address
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// DeriveAddress computes a deterministic address from a creator and a salt:
// the last 20 bytes of keccak256(creator || salt).
func DeriveAddress(creator Address, salt string) Address {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.ToLower(string(creator))))
	h.Write([]byte(salt))
	sum := h.Sum(nil)
	return Address("0x" + hex.EncodeToString(sum[len(sum)-AddressLength:]))
}
