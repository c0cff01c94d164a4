package discovery

import (
	"bytes"
	"crypto/aes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
)

// blobKeyIterations is the PBKDF2 round count the reference client hard
// codes for stored-credential blob unwrapping (0x100 in the original).
const blobKeyIterations = 0x100

// deriveBlobKey derives the AES-192 key a stored-credentials blob is
// encrypted under: PBKDF2-HMAC-SHA1 keyed by SHA1(deviceID), salted with
// username, then re-hashed and appended with a fixed 20-length big-endian
// trailer. Grounded on
// original_source/core/src/authentication.rs's Credentials::with_blob.
func deriveBlobKey(deviceID, username string) [24]byte {
	secret := sha1.Sum([]byte(deviceID))
	derived := pbkdf2.Key(secret[:], []byte(username), blobKeyIterations, 20, sha1.New)

	var key [24]byte
	hash := sha1.Sum(derived)
	copy(key[:20], hash[:])
	binary.BigEndian.PutUint32(key[20:], 20)
	return key
}

// unwrapStoredBlob decrypts a stored-credentials blob (the format both a
// zeroconf pairing payload and the persisted on-disk "blob" credential type
// share) and parses out the wrapped Credentials. Grounded on the same
// source: AES ECB decryption block-by-block with no padding, followed by a
// byte-wise XOR pass that undoes the reference encoder's CBC-style
// chaining, then a small varint-length-prefixed field reader.
func unwrapStoredBlob(deviceID, username string, encryptedBlob []byte) (credentials.Credentials, error) {
	if len(encryptedBlob)%aes.BlockSize != 0 || len(encryptedBlob) < aes.BlockSize {
		return credentials.Credentials{}, coreerr.InvalidArgument(fmt.Errorf("discovery: stored blob length %d is not a multiple of the AES block size", len(encryptedBlob)))
	}

	key := deriveBlobKey(deviceID, username)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return credentials.Credentials{}, err
	}

	data := append([]byte(nil), encryptedBlob...)
	for off := 0; off < len(data); off += aes.BlockSize {
		block.Decrypt(data[off:off+aes.BlockSize], data[off:off+aes.BlockSize])
	}

	l := len(data)
	for i := 0; i < l-0x10; i++ {
		data[l-i-1] ^= data[l-i-0x11]
	}

	return parseBlobFields(data, username)
}

func parseBlobFields(blob []byte, username string) (credentials.Credentials, error) {
	r := bytes.NewReader(blob)

	if _, err := readByte(r); err != nil {
		return credentials.Credentials{}, err
	}
	if _, err := readLengthPrefixed(r); err != nil {
		return credentials.Credentials{}, err
	}
	if _, err := readByte(r); err != nil {
		return credentials.Credentials{}, err
	}
	authType, err := readVarint(r)
	if err != nil {
		return credentials.Credentials{}, err
	}
	if _, err := readByte(r); err != nil {
		return credentials.Credentials{}, err
	}
	authData, err := readLengthPrefixed(r)
	if err != nil {
		return credentials.Credentials{}, err
	}

	return credentials.Credentials{
		Username: username,
		AuthType: credentials.AuthType(authType),
		AuthData: authData,
	}, nil
}

func readByte(r *bytes.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, coreerr.InvalidArgument(fmt.Errorf("discovery: truncated stored blob: %w", err))
	}
	return b, nil
}

// readVarint reads the reference client's 2-byte continuation-bit integer:
// one byte if its top bit is clear, otherwise that byte's low 7 bits plus a
// second byte shifted left 7.
func readVarint(r *bytes.Reader) (uint32, error) {
	lo, err := readByte(r)
	if err != nil {
		return 0, err
	}
	if lo&0x80 == 0 {
		return uint32(lo), nil
	}
	hi, err := readByte(r)
	if err != nil {
		return 0, err
	}
	return uint32(lo&0x7f) | uint32(hi)<<7, nil
}

func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, coreerr.InvalidArgument(fmt.Errorf("discovery: truncated stored blob field: %w", err))
	}
	return buf, nil
}
