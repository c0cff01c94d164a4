package channel

import (
	"encoding/binary"
	"testing"

	"github.com/librespot-org/librespot-sub003/internal/connection"
)

func encodeBody(id uint16, headers []Header, data []byte) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, id)
	for _, h := range headers {
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(1+len(h.Data)))
		buf = append(buf, lenBuf...)
		buf = append(buf, h.Kind)
		buf = append(buf, h.Data...)
	}
	buf = append(buf, 0, 0)
	buf = append(buf, data...)
	return buf
}

func TestAllocateIdsAreMonotonic(t *testing.T) {
	m := NewMux()
	id1, _ := m.Allocate()
	id2, _ := m.Allocate()
	if id2 != id1+1 {
		t.Errorf("ids not monotonic: %d then %d", id1, id2)
	}
}

func TestHandleFrameDeliversHeadersThenData(t *testing.T) {
	m := NewMux()
	id, stream := m.Allocate()

	headers := []Header{{Kind: 3, Data: []byte("hdr")}}
	body := encodeBody(id, headers, []byte("payload"))
	m.HandleFrame(connection.CmdStreamChunkRes, body)

	ev := <-stream.Events
	if ev.Header == nil || ev.Header.Kind != 3 || string(ev.Header.Data) != "hdr" {
		t.Fatalf("expected header event, got %+v", ev)
	}
	ev = <-stream.Events
	if string(ev.Data) != "payload" {
		t.Fatalf("expected data event, got %+v", ev)
	}
}

func TestHandleFrameEmptyDataSignalsEnd(t *testing.T) {
	m := NewMux()
	id, stream := m.Allocate()

	body := encodeBody(id, nil, nil)
	m.HandleFrame(connection.CmdStreamChunkRes, body)

	ev := <-stream.Events
	if !ev.End {
		t.Fatalf("expected End event, got %+v", ev)
	}
}

func TestHandleFrameChannelErrorAbortsStream(t *testing.T) {
	m := NewMux()
	id, stream := m.Allocate()

	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, id)
	m.HandleFrame(connection.CmdChannelError, buf)

	ev := <-stream.Events
	if ev.Err == nil {
		t.Fatalf("expected error event, got %+v", ev)
	}
}

func TestHandleFrameUnknownChannelIsIgnored(t *testing.T) {
	m := NewMux()
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, 999)
	// Should not panic or block.
	m.HandleFrame(connection.CmdStreamChunkRes, buf)
}
