package connection

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/dhkex"
)

// Field numbers below mirror the keyexchange.proto layout closely enough for
// our own encoder/decoder to agree; the real schema is an assumed
// pre-generated external concern (see spec's scope boundary in §1).
const (
	fieldClientHelloBuildInfo      = 1
	fieldClientHelloCryptosuites   = 3
	fieldClientHelloLoginCrypto    = 4
	fieldClientHelloClientNonce    = 5
	fieldClientHelloPadding        = 6

	fieldBuildInfoProduct  = 1
	fieldBuildInfoPlatform = 3
	fieldBuildInfoVersion  = 4

	fieldLoginCryptoHelloDH = 10
	fieldDHHelloGc          = 1
	fieldDHHelloServerKeys  = 2

	fieldAPResponseChallenge  = 2
	fieldChallengeLoginCrypto = 1
	fieldLoginChallengeDH     = 10
	fieldDHChallengeGs        = 1

	fieldClientResponseLoginCrypto = 1
	fieldResponseCryptoDH          = 10
	fieldDHResponseHmac            = 1
	fieldClientResponsePow         = 2
	fieldClientResponseCrypto      = 3

	productPartner       = 1
	platformLinuxX86     = 4
	cryptosuiteShannon   = 1
	clientVersionNumber  = 109800078
)

// Handshake performs the Diffie-Hellman key exchange over rw and returns a
// Codec ready to frame encrypted traffic in both directions.
func Handshake(rw io.ReadWriter) (*Codec, error) {
	keys, err := dhkex.Generate()
	if err != nil {
		return nil, coreerr.Unavailable(fmt.Errorf("generate dh keypair: %w", err))
	}

	clientHello, err := buildClientHello(keys.PublicKey())
	if err != nil {
		return nil, coreerr.InvalidArgument(fmt.Errorf("build client hello: %w", err))
	}
	if _, err := rw.Write(clientHello); err != nil {
		return nil, coreerr.Unavailable(fmt.Errorf("write client hello: %w", err))
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(rw, sizeBuf[:]); err != nil {
		return nil, coreerr.Unavailable(fmt.Errorf("read response size: %w", err))
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size < 4 {
		return nil, coreerr.Unavailable(fmt.Errorf("response size %d too small", size))
	}
	body := make([]byte, size-4)
	if _, err := io.ReadFull(rw, body); err != nil {
		return nil, coreerr.Unavailable(fmt.Errorf("read response body: %w", err))
	}

	remoteKey, err := extractRemoteKey(body)
	if err != nil {
		return nil, coreerr.Unavailable(fmt.Errorf("extract server dh key: %w", err))
	}

	accumulator := append(append([]byte{}, clientHello...), sizeBuf[:]...)
	accumulator = append(accumulator, body...)

	sharedSecret := keys.SharedSecret(remoteKey)
	challenge, sendKey, recvKey := computeKeys(sharedSecret, accumulator)

	response := buildClientResponse(challenge)
	if _, err := rw.Write(response); err != nil {
		return nil, coreerr.Unavailable(fmt.Errorf("write client response: %w", err))
	}

	return NewCodec(rw, sendKey, recvKey), nil
}

func buildClientHello(publicKey []byte) ([]byte, error) {
	var buildInfo []byte
	buildInfo = appendVarintField(buildInfo, fieldBuildInfoProduct, productPartner)
	buildInfo = appendVarintField(buildInfo, fieldBuildInfoPlatform, platformLinuxX86)
	buildInfo = appendVarintField(buildInfo, fieldBuildInfoVersion, clientVersionNumber)

	var dhHello []byte
	dhHello = appendBytesField(dhHello, fieldDHHelloGc, publicKey)
	dhHello = appendVarintField(dhHello, fieldDHHelloServerKeys, 1)

	var loginCryptoHello []byte
	loginCryptoHello = appendMessageField(loginCryptoHello, fieldLoginCryptoHelloDH, dhHello)

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	var packet []byte
	packet = appendMessageField(packet, fieldClientHelloBuildInfo, buildInfo)
	packet = appendVarintField(packet, fieldClientHelloCryptosuites, cryptosuiteShannon)
	packet = appendMessageField(packet, fieldClientHelloLoginCrypto, loginCryptoHello)
	packet = appendBytesField(packet, fieldClientHelloClientNonce, nonce)
	packet = appendBytesField(packet, fieldClientHelloPadding, []byte{0x1e})

	size := 2 + 4 + len(packet)
	out := make([]byte, 0, size)
	out = append(out, 0x00, 0x04)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(size))
	out = append(out, sizeBuf[:]...)
	out = append(out, packet...)
	return out, nil
}

func buildClientResponse(challenge []byte) []byte {
	var dhResponse []byte
	dhResponse = appendBytesField(dhResponse, fieldDHResponseHmac, challenge)

	var loginCrypto []byte
	loginCrypto = appendMessageField(loginCrypto, fieldResponseCryptoDH, dhResponse)

	var packet []byte
	packet = appendMessageField(packet, fieldClientResponseLoginCrypto, loginCrypto)
	packet = appendMessageField(packet, fieldClientResponsePow, nil)
	packet = appendMessageField(packet, fieldClientResponseCrypto, nil)

	size := 4 + len(packet)
	out := make([]byte, 0, size)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(size))
	out = append(out, sizeBuf[:]...)
	out = append(out, packet...)
	return out
}

// extractRemoteKey digs the server's DH public key (gs) out of the nested
// APResponseMessage.challenge.login_crypto_challenge.diffie_hellman.gs path.
func extractRemoteKey(body []byte) ([]byte, error) {
	challenge, ok := findBytesField(body, fieldAPResponseChallenge)
	if !ok {
		return nil, fmt.Errorf("no challenge field in response")
	}
	loginCrypto, ok := findBytesField(challenge, fieldChallengeLoginCrypto)
	if !ok {
		return nil, fmt.Errorf("no login_crypto_challenge field")
	}
	dh, ok := findBytesField(loginCrypto, fieldLoginChallengeDH)
	if !ok {
		return nil, fmt.Errorf("no diffie_hellman field")
	}
	gs, ok := findBytesField(dh, fieldDHChallengeGs)
	if !ok {
		return nil, fmt.Errorf("no gs field")
	}
	return gs, nil
}

// computeKeys derives (challenge, send_key, recv_key) from the shared secret
// and the accumulated handshake bytes: five rounds of
// HMAC-SHA1(secret, accumulator || i) concatenated into 100 bytes of keying
// material, then a final HMAC over the accumulator keyed by the first 20
// bytes of that material.
func computeKeys(sharedSecret, accumulator []byte) (challenge, sendKey, recvKey []byte) {
	var keyingMaterial []byte
	for i := byte(1); i <= 5; i++ {
		mac := hmac.New(sha1.New, sharedSecret)
		mac.Write(accumulator)
		mac.Write([]byte{i})
		keyingMaterial = append(keyingMaterial, mac.Sum(nil)...)
	}

	macKey := keyingMaterial[0:20]
	sendKey = keyingMaterial[20:52]
	recvKey = keyingMaterial[52:84]

	challengeMac := hmac.New(sha1.New, macKey)
	challengeMac.Write(accumulator)
	challenge = challengeMac.Sum(nil)

	return challenge, sendKey, recvKey
}
