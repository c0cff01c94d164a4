package connection

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/shannon"
)

const (
	headerSize = 3
	macSize    = 4
)

// Codec wraps an already-handshaken connection with Shannon-encrypted
// framing in both directions. One Codec instance owns both directions'
// nonce counters and ciphers; Write and Read are each safe to call from a
// single goroutine per direction (Write holds its own lock since multiple
// senders may share one connection, e.g. the dispatch loop and channel
// writers).
type Codec struct {
	rw io.ReadWriter

	encodeMu    sync.Mutex
	encodeNonce uint32
	encodeCipher *shannon.Cipher

	decodeNonce uint32
	decodeCipher *shannon.Cipher
}

// NewCodec builds a Codec from the handshake's derived send/recv keys.
func NewCodec(rw io.ReadWriter, sendKey, recvKey []byte) *Codec {
	return &Codec{
		rw:           rw,
		encodeCipher: shannon.New(sendKey),
		decodeCipher: shannon.New(recvKey),
	}
}

// WriteFrame encrypts and writes one cmd/payload frame, appending the MAC.
func (c *Codec) WriteFrame(cmd Command, payload []byte) error {
	c.encodeMu.Lock()
	defer c.encodeMu.Unlock()

	buf := make([]byte, headerSize+len(payload)+macSize)
	buf[0] = byte(cmd)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[headerSize:], payload)

	c.encodeCipher.Nonce(c.encodeNonce)
	c.encodeNonce++
	c.encodeCipher.Encrypt(buf[:headerSize+len(payload)])
	c.encodeCipher.Finish(buf[headerSize+len(payload):])

	_, err := c.rw.Write(buf)
	if err != nil {
		return coreerr.Unavailable(fmt.Errorf("write frame: %w", err))
	}
	return nil
}

// ReadFrame blocks for the next full frame, decrypting and MAC-checking it.
// Only one goroutine may call ReadFrame at a time (the dispatch loop owns
// this).
func (c *Codec) ReadFrame() (Command, []byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(c.rw, header); err != nil {
		return 0, nil, coreerr.Unavailable(fmt.Errorf("read header: %w", err))
	}

	c.decodeCipher.Nonce(c.decodeNonce)
	c.decodeNonce++
	c.decodeCipher.Decrypt(header)

	cmd := Command(header[0])
	size := binary.BigEndian.Uint16(header[1:3])

	rest := make([]byte, int(size)+macSize)
	if _, err := io.ReadFull(c.rw, rest); err != nil {
		return 0, nil, coreerr.Unavailable(fmt.Errorf("read payload: %w", err))
	}

	payload := rest[:size]
	mac := rest[size:]

	c.decodeCipher.Decrypt(payload)

	var expectedMac [macSize]byte
	c.decodeCipher.Finish(expectedMac[:])
	for i := range mac {
		if mac[i] != expectedMac[i] {
			return 0, nil, coreerr.Unavailable(fmt.Errorf("frame MAC mismatch"))
		}
	}

	return cmd, payload, nil
}
