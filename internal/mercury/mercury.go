// Package mercury implements the request/response and publish/subscribe
// protocol layered over the access-point connection. Grounded on spec.md
// §4.3 and original_source/core/src/mercury/types.rs.
package mercury

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/librespot-org/librespot-sub003/internal/connection"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// Method is the request verb carried in a Mercury Header.
type Method string

const (
	MethodGet   Method = "GET"
	MethodSend  Method = "SEND"
	MethodSub   Method = "SUB"
	MethodUnsub Method = "UNSUB"
)

const flagFinal = 1

// Header is the first part of every Mercury message.
type Header struct {
	URI         string
	Method      Method
	ContentType string
	StatusCode  int
}

// Response is the fully reassembled result of a request or a pub-sub event.
type Response struct {
	Header Header
	Parts  [][]byte
}

// Client owns the sequence counter, pending-request table, and subscription
// table for one access-point connection.
type Client struct {
	writeFrame func(cmd connection.Command, payload []byte) error

	seqCounter uint64

	mu       sync.Mutex
	pending  map[uint64]chan Response
	partial  map[uint64]*reassembly
	subs     map[string]chan Response
}

type reassembly struct {
	header Header
	parts  [][]byte
}

// NewClient builds a Mercury client that writes outbound frames via
// writeFrame (typically Codec.WriteFrame).
func NewClient(writeFrame func(cmd connection.Command, payload []byte) error) *Client {
	return &Client{
		writeFrame: writeFrame,
		pending:    make(map[uint64]chan Response),
		partial:    make(map[uint64]*reassembly),
		subs:       make(map[string]chan Response),
	}
}

// Request sends a GET/SEND and returns a channel that receives exactly one
// Response once the sequence completes.
func (c *Client) Request(method Method, uri string, parts [][]byte) (<-chan Response, error) {
	seq := atomic.AddUint64(&c.seqCounter, 1)

	resultCh := make(chan Response, 1)
	c.mu.Lock()
	c.pending[seq] = resultCh
	c.mu.Unlock()

	if err := c.send(connection.CmdMercuryReq, seq, Header{URI: uri, Method: method}, parts); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, err
	}
	return resultCh, nil
}

// Subscribe registers a URI prefix for pub-sub delivery and sends the SUB
// frame establishing it.
func (c *Client) Subscribe(uri string) (<-chan Response, error) {
	ch := make(chan Response, 32)
	c.mu.Lock()
	c.subs[uri] = ch
	c.mu.Unlock()

	seq := atomic.AddUint64(&c.seqCounter, 1)
	if err := c.send(connection.CmdMercurySub, seq, Header{URI: uri, Method: MethodSub}, nil); err != nil {
		c.mu.Lock()
		delete(c.subs, uri)
		c.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

func (c *Client) send(cmd connection.Command, seq uint64, header Header, parts [][]byte) error {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)

	headerBytes := encodeHeader(header)

	var buf []byte
	buf = append(buf, byte(len(seqBytes)>>8), byte(len(seqBytes)))
	buf = append(buf, seqBytes[:]...)
	buf = append(buf, flagFinal)

	partCount := 1 + len(parts)
	buf = append(buf, byte(partCount>>8), byte(partCount))

	buf = appendPart(buf, headerBytes)
	for _, p := range parts {
		buf = appendPart(buf, p)
	}

	return c.writeFrame(cmd, buf)
}

func appendPart(buf, part []byte) []byte {
	buf = append(buf, byte(len(part)>>8), byte(len(part)))
	return append(buf, part...)
}

// HandleFrame processes one MercuryReq/Sub/Unsub/Event frame delivered by
// the dispatch loop.
func (c *Client) HandleFrame(cmd connection.Command, payload []byte) {
	seq, flags, parts, err := decodeFrame(payload)
	if err != nil {
		return
	}

	c.mu.Lock()
	r, ok := c.partial[seq]
	if !ok {
		r = &reassembly{}
		c.partial[seq] = r
	}
	r.parts = append(r.parts, parts...)
	c.mu.Unlock()

	if flags&flagFinal == 0 {
		return
	}

	c.mu.Lock()
	delete(c.partial, seq)
	c.mu.Unlock()

	if len(r.parts) == 0 {
		return
	}
	header, err := decodeHeader(r.parts[0])
	if err != nil {
		return
	}
	resp := Response{Header: header, Parts: r.parts[1:]}

	if cmd == connection.CmdMercuryEvent {
		c.deliverToSubscribers(header.URI, resp)
		return
	}

	c.mu.Lock()
	waiter, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if header.StatusCode >= 400 {
		waiter <- Response{Header: header}
		return
	}
	waiter <- resp
}

func (c *Client) deliverToSubscribers(uri string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for prefix, ch := range c.subs {
		if strings.HasPrefix(uri, prefix) {
			select {
			case ch <- resp:
			default:
			}
		}
	}
}

func decodeFrame(payload []byte) (seq uint64, flags byte, parts [][]byte, err error) {
	if len(payload) < 2 {
		return 0, 0, nil, coreerr.Unavailable(fmt.Errorf("mercury frame too short"))
	}
	seqLen := int(binary.BigEndian.Uint16(payload[:2]))
	off := 2
	if off+seqLen > len(payload) {
		return 0, 0, nil, coreerr.Unavailable(fmt.Errorf("mercury frame seq truncated"))
	}
	seqBytes := payload[off : off+seqLen]
	off += seqLen
	var seqPadded [8]byte
	copy(seqPadded[8-len(seqBytes):], seqBytes)
	seq = binary.BigEndian.Uint64(seqPadded[:])

	if off+1 > len(payload) {
		return 0, 0, nil, coreerr.Unavailable(fmt.Errorf("mercury frame missing flags"))
	}
	flags = payload[off]
	off++

	if off+2 > len(payload) {
		return 0, 0, nil, coreerr.Unavailable(fmt.Errorf("mercury frame missing part count"))
	}
	partCount := int(binary.BigEndian.Uint16(payload[off : off+2]))
	off += 2

	for i := 0; i < partCount; i++ {
		if off+2 > len(payload) {
			return 0, 0, nil, coreerr.Unavailable(fmt.Errorf("mercury frame part header truncated"))
		}
		partLen := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2
		if off+partLen > len(payload) {
			return 0, 0, nil, coreerr.Unavailable(fmt.Errorf("mercury frame part body truncated"))
		}
		parts = append(parts, payload[off:off+partLen])
		off += partLen
	}
	return seq, flags, parts, nil
}

// encodeHeader and decodeHeader use a tiny length-prefixed field encoding
// (uri, method, content_type, status_code) standing in for the Header
// protobuf that spec.md treats as a pre-generated external schema.
func encodeHeader(h Header) []byte {
	var buf []byte
	buf = appendField(buf, []byte(h.URI))
	buf = appendField(buf, []byte(h.Method))
	buf = appendField(buf, []byte(h.ContentType))
	var status [4]byte
	binary.BigEndian.PutUint32(status[:], uint32(h.StatusCode))
	buf = appendField(buf, status[:])
	return buf
}

func decodeHeader(b []byte) (Header, error) {
	uri, rest, err := readField(b)
	if err != nil {
		return Header{}, err
	}
	method, rest, err := readField(rest)
	if err != nil {
		return Header{}, err
	}
	contentType, rest, err := readField(rest)
	if err != nil {
		return Header{}, err
	}
	statusBytes, _, err := readField(rest)
	if err != nil {
		return Header{}, err
	}
	var status int
	if len(statusBytes) == 4 {
		status = int(binary.BigEndian.Uint32(statusBytes))
	}
	return Header{
		URI:         string(uri),
		Method:      Method(method),
		ContentType: string(contentType),
		StatusCode:  status,
	}, nil
}

func appendField(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readField(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("mercury header field truncated")
	}
	length := int(binary.BigEndian.Uint32(b[:4]))
	if len(b) < 4+length {
		return nil, nil, fmt.Errorf("mercury header field body truncated")
	}
	return b[4 : 4+length], b[4+length:], nil
}
