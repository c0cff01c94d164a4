package discovery

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"fmt"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/dhkex"
)

// sessionKeys are the checksum/encryption material both sides of a zeroconf
// pairing derive from the Diffie-Hellman shared secret, before either has
// exchanged anything else. Grounded on original_source/src/discovery.rs's
// add_user handler.
type sessionKeys struct {
	checksumKey   [20]byte
	encryptionKey [16]byte
	iv            [16]byte
}

// deriveSessionKeys expands a raw DH shared secret into the keys that
// protect an addUser request body: a SHA1-truncated base key, then two
// HMAC-SHA1 expansions (one per purpose, each fed a trailing counter byte
// to produce more than the 20-byte native HMAC output) for the checksum and
// for the AES-128-CTR key/IV pair.
func deriveSessionKeys(sharedSecret []byte) sessionKeys {
	base := sha1.Sum(sharedSecret)

	var keys sessionKeys
	copy(keys.checksumKey[:], expandHMAC(base[:16], []byte("checksum"), 20))

	encMaterial := expandHMAC(base[:16], []byte("encryption"), 32)
	copy(keys.encryptionKey[:], encMaterial[:16])
	copy(keys.iv[:], encMaterial[16:32])

	return keys
}

// expandHMAC produces n bytes of keying material from repeated HMAC-SHA1
// calls over info with an incrementing trailing counter byte, the way the
// reference pairing handshake stretches a single 20-byte HMAC output to the
// 32 bytes an AES-128 key+IV pair needs.
func expandHMAC(key, info []byte, n int) []byte {
	out := make([]byte, 0, n+sha1.Size)
	for counter := byte(0); len(out) < n; counter++ {
		mac := hmac.New(sha1.New, key)
		mac.Write(info)
		mac.Write([]byte{counter})
		out = mac.Sum(out)
	}
	return out[:n]
}

// decryptAddUserBlob verifies the HMAC checksum over an addUser request's
// encrypted blob and decrypts it with AES-128-CTR, returning the inner
// stored-credentials blob still in its PBKDF2-wrapped form.
func decryptAddUserBlob(sharedSecret, encrypted, checksum []byte) ([]byte, error) {
	keys := deriveSessionKeys(sharedSecret)

	mac := hmac.New(sha1.New, keys.checksumKey[:])
	mac.Write(encrypted)
	want := mac.Sum(nil)
	if !hmac.Equal(want, checksum) {
		return nil, coreerr.PermissionDenied(fmt.Errorf("discovery: addUser checksum mismatch"))
	}

	block, err := aes.NewCipher(keys.encryptionKey[:])
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(encrypted))
	cipher.NewCTR(block, keys.iv[:]).XORKeyStream(plain, encrypted)
	return plain, nil
}

// pairUser runs the full addUser flow: it derives the shared secret from
// our ephemeral DH keypair and the client's public key, decrypts the
// posted blob, and unwraps the stored-credentials payload it contains into
// Credentials the session can log in with.
func pairUser(keys *dhkex.LocalKeys, username, deviceID string, clientPublicKey, encryptedBlob, checksum []byte) (credentials.Credentials, error) {
	shared := keys.SharedSecret(clientPublicKey)

	blob, err := decryptAddUserBlob(shared, encryptedBlob, checksum)
	if err != nil {
		return credentials.Credentials{}, err
	}

	return unwrapStoredBlob(deviceID, username, blob)
}
