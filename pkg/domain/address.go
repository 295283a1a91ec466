// Package domain provides type-safe primitives shared across the identity modules.
package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "didgate/pkg/domain-errors"
)

// DIDMethod is the DID method prefix used when rendering an owner's identifier.
const DIDMethod = "did:rsk:"

// Address is an EVM account address. The zero value is the nil address and
// represents "no wallet connected".
type Address common.Address

// ParseAddress validates a 0x-prefixed hex address at a trust boundary.
// Input is case-insensitive; checksum casing is not enforced.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be 0x-prefixed")
	}
	if !common.IsHexAddress(s) {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address format")
	}
	return Address(common.HexToAddress(s)), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the EIP-55 checksummed form.
func (a Address) String() string { return common.Address(a).Hex() }

// Common returns the go-ethereum representation for RPC bindings.
func (a Address) Common() common.Address { return common.Address(a) }

// IsNil reports whether a is the zero address.
func (a Address) IsNil() bool { return common.Address(a) == (common.Address{}) }

// DID renders the decentralized identifier for the owner address.
func (a Address) DID() string {
	return DIDMethod + strings.ToLower(a.String())
}

// Short returns a log-safe abbreviation (0x1234…abcd).
func (a Address) Short() string {
	s := a.String()
	return s[:6] + "…" + s[len(s)-4:]
}
