package publication

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// inputDomainKey separates publication input digests from any other BLAKE3
// keyed hash. ASCII "didgate.publication.input", zero-padded to 32 bytes.
var inputDomainKey = [32]byte{
	'd', 'i', 'd', 'g', 'a', 't', 'e', '.', 'p', 'u', 'b', 'l', 'i', 'c', 'a', 't',
	'i', 'o', 'n', '.', 'i', 'n', 'p', 'u', 't', 0, 0, 0, 0, 0, 0, 0,
}

// InputDigest returns a stable fingerprint of what the caller asked to
// publish. Identical inputs give identical digests even though each
// publication yields new content identifiers, so callers can dedupe retries.
func InputDigest(in Input) string {
	h, err := blake3.NewKeyed(inputDomainKey[:])
	if err != nil {
		panic("publication: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	field := func(b []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		_, _ = h.Write(n[:])
		_, _ = h.Write(b)
	}
	field(in.Caller.Common().Bytes())
	field([]byte(in.Name))
	field([]byte(in.Email))
	field([]byte(in.Description))
	if in.Asset != nil {
		_, _ = h.Write([]byte{1})
		field([]byte(in.Asset.Filename))
		field(in.Asset.Data)
	} else {
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
