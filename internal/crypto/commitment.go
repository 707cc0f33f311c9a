// Package crypto provides commitment hashing for the commit-reveal protocol
// and encrypted storage of keeper credentials.
package crypto

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// OrderDigest is the input to a commitment hash. The fields must round-trip
// exactly between commit and reveal; any difference produces a hash mismatch.
type OrderDigest struct {
	User           string
	SyntheticID    string
	IsBuy          bool
	Amount         uint64
	LimitPriceBps  uint64
	MaxSlippageBps uint16
}

// CommitmentHash computes the keccak256 commitment for an order and nonce.
// The encoding is length-prefixed so that no two distinct digests can
// produce the same byte stream.
func CommitmentHash(d OrderDigest, nonce uint64) [32]byte {
	buf := make([]byte, 0, 2*len(d.User)+2*len(d.SyntheticID)+64)

	buf = appendString(buf, d.User)
	buf = appendString(buf, d.SyntheticID)
	if d.IsBuy {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint64(buf, d.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, d.LimitPriceBps)
	buf = binary.LittleEndian.AppendUint16(buf, d.MaxSlippageBps)
	buf = binary.LittleEndian.AppendUint64(buf, nonce)

	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
