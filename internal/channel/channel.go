// Package channel implements the logical-channel multiplexer layered over
// the access-point connection: large binary payloads (file chunks, images)
// are split into numbered channels, each a pull source of Header/Data
// events. Grounded on spec.md §4.2.
package channel

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/librespot-org/librespot-sub003/internal/connection"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// Event is either a Header or a Data chunk delivered on a channel's Events
// channel, terminated by a final event with End set or Err set.
type Event struct {
	Header *Header
	Data   []byte
	End    bool
	Err    error
}

// Header is one length-prefixed header entry preceding a channel's data.
type Header struct {
	Kind byte
	Data []byte
}

// Stream is the pull source returned by Allocate.
type Stream struct {
	Events chan Event
}

// Mux multiplexes StreamChunkRes/ChannelError frames from the access-point
// connection across allocated logical channels.
type Mux struct {
	mu       sync.Mutex
	nextID   uint16
	channels map[uint16]chan Event
}

// NewMux builds an empty multiplexer.
func NewMux() *Mux {
	return &Mux{channels: make(map[uint16]chan Event)}
}

// Allocate reserves the next monotonic channel id and returns it along with
// a Stream the caller can range over for events.
func (m *Mux) Allocate() (uint16, *Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	events := make(chan Event, 16)
	m.channels[id] = events
	return id, &Stream{Events: events}
}

// Release removes a channel's registration once its consumer is done.
func (m *Mux) Release(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		close(ch)
		delete(m.channels, id)
	}
}

// HandleFrame processes one StreamChunkRes or ChannelError frame from the
// dispatch loop.
func (m *Mux) HandleFrame(cmd connection.Command, payload []byte) {
	if len(payload) < 2 {
		return
	}
	id := binary.BigEndian.Uint16(payload[:2])
	rest := payload[2:]

	m.mu.Lock()
	events, ok := m.channels[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	if cmd == connection.CmdChannelError {
		events <- Event{Err: coreerr.Aborted(fmt.Errorf("channel %d error", id))}
		return
	}

	headers, data, err := parseHeadersAndData(rest)
	if err != nil {
		events <- Event{Err: coreerr.Unavailable(err)}
		return
	}
	for _, h := range headers {
		events <- Event{Header: &h}
	}
	if len(data) == 0 {
		events <- Event{End: true}
		return
	}
	events <- Event{Data: data}
}

// parseHeadersAndData splits the channel body into its header sequence
// (u16 length || u8 kind || (length-1) bytes, terminated by a length-0
// entry) and the trailing data payload.
func parseHeadersAndData(body []byte) ([]Header, []byte, error) {
	var headers []Header
	off := 0
	for {
		if off+2 > len(body) {
			return nil, nil, fmt.Errorf("truncated channel header at offset %d", off)
		}
		length := binary.BigEndian.Uint16(body[off : off+2])
		off += 2
		if length == 0 {
			break
		}
		if off+int(length) > len(body) {
			return nil, nil, fmt.Errorf("truncated channel header body at offset %d", off)
		}
		kind := body[off]
		data := body[off+1 : off+int(length)]
		headers = append(headers, Header{Kind: kind, Data: data})
		off += int(length)
	}
	return headers, body[off:], nil
}
