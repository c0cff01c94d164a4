package mercury

import (
	"encoding/binary"
	"testing"

	"github.com/librespot-org/librespot-sub003/internal/connection"
)

// buildResponseFrame hand-assembles a single-part final Mercury response
// frame using the same wire format send() produces, so HandleFrame can be
// exercised without a real access-point connection.
func buildResponseFrame(seq uint64, header Header, bodyParts [][]byte) []byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)

	headerBytes := encodeHeader(header)

	var buf []byte
	buf = append(buf, 0, 8)
	buf = append(buf, seqBytes[:]...)
	buf = append(buf, flagFinal)

	partCount := 1 + len(bodyParts)
	buf = append(buf, byte(partCount>>8), byte(partCount))
	buf = appendPart(buf, headerBytes)
	for _, p := range bodyParts {
		buf = appendPart(buf, p)
	}
	return buf
}

func TestRequestResponseRoundTrip(t *testing.T) {
	var captured []byte
	writeFrame := func(cmd connection.Command, payload []byte) error {
		captured = payload
		return nil
	}
	c := NewClient(writeFrame)

	resultCh, err := c.Request(MethodGet, "hm://test/uri", nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	seq, _, _, err := decodeFrame(captured)
	if err != nil {
		t.Fatalf("decodeFrame(captured): %v", err)
	}

	responseFrame := buildResponseFrame(seq, Header{URI: "hm://test/uri", StatusCode: 200}, [][]byte{[]byte("body")})
	c.HandleFrame(connection.CmdMercuryReq, responseFrame)

	select {
	case resp := <-resultCh:
		if len(resp.Parts) != 1 || string(resp.Parts[0]) != "body" {
			t.Errorf("unexpected response parts: %v", resp.Parts)
		}
	default:
		t.Fatal("expected a response to be delivered")
	}
}

func TestRequestErrorStatusDeliversEmptyResponse(t *testing.T) {
	var captured []byte
	writeFrame := func(cmd connection.Command, payload []byte) error {
		captured = payload
		return nil
	}
	c := NewClient(writeFrame)

	resultCh, err := c.Request(MethodGet, "hm://test/missing", nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	seq, _, _, _ := decodeFrame(captured)

	responseFrame := buildResponseFrame(seq, Header{URI: "hm://test/missing", StatusCode: 404}, nil)
	c.HandleFrame(connection.CmdMercuryReq, responseFrame)

	resp := <-resultCh
	if resp.Header.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", resp.Header.StatusCode)
	}
}

func TestSubscribeRoutesByURIPrefix(t *testing.T) {
	c := NewClient(func(cmd connection.Command, payload []byte) error { return nil })

	ch, err := c.Subscribe("hm://remote/user/")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	event := buildResponseFrame(99, Header{URI: "hm://remote/user/123/state"}, [][]byte{[]byte("evt")})
	c.HandleFrame(connection.CmdMercuryEvent, event)

	select {
	case resp := <-ch:
		if string(resp.Parts[0]) != "evt" {
			t.Errorf("unexpected event parts: %v", resp.Parts)
		}
	default:
		t.Fatal("expected subscriber to receive the event")
	}
}

func TestSubscribeIgnoresNonMatchingPrefix(t *testing.T) {
	c := NewClient(func(cmd connection.Command, payload []byte) error { return nil })
	ch, _ := c.Subscribe("hm://remote/user/")

	event := buildResponseFrame(100, Header{URI: "hm://other/path"}, nil)
	c.HandleFrame(connection.CmdMercuryEvent, event)

	select {
	case resp := <-ch:
		t.Fatalf("unexpected delivery for non-matching uri: %+v", resp)
	default:
	}
}

func TestDuplicateSequenceDropped(t *testing.T) {
	var captured []byte
	c := NewClient(func(cmd connection.Command, payload []byte) error {
		captured = payload
		return nil
	})

	resultCh, _ := c.Request(MethodGet, "hm://test/dup", nil)
	seq, _, _, _ := decodeFrame(captured)

	frame := buildResponseFrame(seq, Header{URI: "hm://test/dup", StatusCode: 200}, [][]byte{[]byte("first")})
	c.HandleFrame(connection.CmdMercuryReq, frame)
	<-resultCh

	// A second delivery for the same (now-removed) sequence must not panic
	// or block, and must not be re-delivered since the waiter is gone.
	c.HandleFrame(connection.CmdMercuryReq, frame)
}
