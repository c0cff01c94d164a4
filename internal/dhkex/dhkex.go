// Package dhkex implements the Diffie-Hellman keypair and shared-secret
// computation used during the access-point handshake. The modulus is a
// fixed 768-bit safe prime with generator 2, matching the published
// reference. Grounded on original_source/core/src/diffie_hellman.rs.
package dhkex

import (
	"crypto/rand"
	"math/big"
)

var (
	generator = big.NewInt(2)
	prime     = new(big.Int).SetBytes([]byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xc9, 0x0f, 0xda, 0xa2, 0x21, 0x68, 0xc2,
		0x34, 0xc4, 0xc6, 0x62, 0x8b, 0x80, 0xdc, 0x1c, 0xd1, 0x29, 0x02, 0x4e, 0x08, 0x8a, 0x67,
		0xcc, 0x74, 0x02, 0x0b, 0xbe, 0xa6, 0x3b, 0x13, 0x9b, 0x22, 0x51, 0x4a, 0x08, 0x79, 0x8e,
		0x34, 0x04, 0xdd, 0xef, 0x95, 0x19, 0xb3, 0xcd, 0x3a, 0x43, 0x1b, 0x30, 0x2b, 0x0a, 0x6d,
		0xf2, 0x5f, 0x14, 0x37, 0x4f, 0xe1, 0x35, 0x6d, 0x6d, 0x51, 0xc2, 0x45, 0xe4, 0x85, 0xb5,
		0x76, 0x62, 0x5e, 0x7e, 0xc6, 0xf4, 0x4c, 0x42, 0xe9, 0xa6, 0x3a, 0x36, 0x20, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	})
)

// privateKeyBytes is the byte width the private exponent is drawn from (95
// bytes == 760 bits, the original implementation's own choice, slightly
// short of the 768-bit modulus).
const privateKeyBytes = 95

// LocalKeys holds one side's ephemeral Diffie-Hellman keypair.
type LocalKeys struct {
	private *big.Int
	public  *big.Int
}

// Generate draws a fresh random keypair.
func Generate() (*LocalKeys, error) {
	buf := make([]byte, privateKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	priv := new(big.Int).SetBytes(buf)
	pub := new(big.Int).Exp(generator, priv, prime)
	return &LocalKeys{private: priv, public: pub}, nil
}

// PublicKey renders the public key as a big-endian byte slice.
func (k *LocalKeys) PublicKey() []byte {
	return k.public.Bytes()
}

// SharedSecret computes the shared secret given the remote's public key
// bytes, rendered as a big-endian byte slice.
func (k *LocalKeys) SharedSecret(remotePublic []byte) []byte {
	remote := new(big.Int).SetBytes(remotePublic)
	shared := new(big.Int).Exp(remote, k.private, prime)
	return shared.Bytes()
}
