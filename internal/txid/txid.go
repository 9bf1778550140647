// Package txid mints transaction identifiers for the WAL. It follows the
// teacher's uuid_helpers.go convention of deriving identity from
// github.com/google/uuid rather than a process-local counter, so that
// transaction IDs stay unique even across restarts of the same process
// working against the same database file.
package txid

import "github.com/google/uuid"

// New returns a fresh, effectively-unique 64-bit transaction identifier
// taken from the low 8 bytes of a random UUID.
func New() uint64 {
	id := uuid.New()
	b := id[:]
	var v uint64
	for i := 8; i < 16; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
