package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inst_01HZX8W4YQ6T0Q2R6F0D3K9JXM
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_INSTANCE   = "inst"
	UUID_PREFIX_SUBSCRIBER = "subr"
	UUID_PREFIX_CHARGE     = "chg"
	UUID_PREFIX_EVENT      = "evt"
	UUID_PREFIX_TRANSFER   = "xfer"
)
