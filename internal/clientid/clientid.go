// Package clientid generates the 20-byte peer ID this client advertises in
// handshakes and tracker announces.
package clientid

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

// Prefix identifies this client the way Azureus-style peer IDs do: a dash,
// a two-letter client code, a four-digit version, then a dash.
const Prefix = "-RB0001-"

// Generate returns a fresh peer ID: Prefix followed by random bytes filling
// out the remaining 20 bytes.
func Generate() ([20]byte, error) {
	var id [20]byte
	copy(id[:], Prefix)
	if _, err := rand.Read(id[len(Prefix):]); err != nil {
		return id, errors.Wrap(err, "clientid: read random suffix")
	}
	return id, nil
}
