// Package audiokey implements the per-session audio-key request/response
// client: one sequence-matched request per (track, file) pair, resolved by
// a 16-byte AesKey frame or failed by an AesKeyError reason code. Grounded
// on spec.md §4.5.
package audiokey

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/librespot-org/librespot-sub003/internal/connection"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

// Key is the 16-byte symmetric key scoped to one (track, file) pair.
type Key [16]byte

// KeyError carries the two-byte reason code from an AesKeyError frame.
type KeyError struct {
	Code uint16
}

func (e *KeyError) Error() string { return fmt.Sprintf("audio key error, code %d", e.Code) }

// Client owns the sequence counter and pending-waiter table for one
// access-point connection.
type Client struct {
	writeFrame func(cmd connection.Command, payload []byte) error

	seq uint32

	mu      sync.Mutex
	pending map[uint32]chan result
}

type result struct {
	key Key
	err error
}

// NewClient builds an audio-key client that writes outbound request frames
// via writeFrame (typically Codec.WriteFrame).
func NewClient(writeFrame func(cmd connection.Command, payload []byte) error) *Client {
	return &Client{writeFrame: writeFrame, pending: make(map[uint32]chan result)}
}

// Request sends command 0x0c and blocks until the matching AesKey or
// AesKeyError frame arrives via HandleFrame.
func (c *Client) Request(trackID ids.SpotifyId, fileID ids.FileId) (Key, error) {
	seq := atomic.AddUint32(&c.seq, 1)
	ch := make(chan result, 1)

	c.mu.Lock()
	c.pending[seq] = ch
	c.mu.Unlock()

	raw := trackID.ToRaw()
	payload := make([]byte, 0, 20+16+4+2)
	payload = append(payload, fileID[:]...)
	payload = append(payload, raw[:]...)
	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], seq)
	payload = append(payload, seqBuf[:]...)
	payload = append(payload, 0x00, 0x00)

	if err := c.writeFrame(connection.CmdRequestKey, payload); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return Key{}, err
	}

	r := <-ch
	return r.key, r.err
}

// HandleFrame processes one AesKey/AesKeyError frame from the dispatch loop.
func (c *Client) HandleFrame(cmd connection.Command, payload []byte) {
	if len(payload) < 4 {
		return
	}
	seq := binary.BigEndian.Uint32(payload[:4])

	c.mu.Lock()
	ch, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	switch cmd {
	case connection.CmdAesKey:
		if len(payload) < 4+16 {
			ch <- result{err: coreerr.Unavailable(fmt.Errorf("aes key frame too short"))}
			return
		}
		var key Key
		copy(key[:], payload[4:4+16])
		ch <- result{key: key}
	case connection.CmdAesKeyError:
		var code uint16
		if len(payload) >= 6 {
			code = binary.BigEndian.Uint16(payload[4:6])
		}
		ch <- result{err: coreerr.Unavailable(&KeyError{Code: code})}
	}
}
