package connection

import (
	"bytes"
	"testing"
)

// loopback is an io.ReadWriter backed by two independent buffers so a
// writer and a reader can be tested against each other without a real
// socket.
type loopback struct {
	toPeer   *bytes.Buffer
	fromPeer *bytes.Buffer
}

func newLoopbackPair() (*loopback, *loopback) {
	a := &bytes.Buffer{}
	b := &bytes.Buffer{}
	return &loopback{toPeer: a, fromPeer: b}, &loopback{toPeer: b, fromPeer: a}
}

func (l *loopback) Write(p []byte) (int, error) { return l.toPeer.Write(p) }
func (l *loopback) Read(p []byte) (int, error)  { return l.fromPeer.Read(p) }

func TestCodecRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x55}, 32)

	clientSide, serverSide := newLoopbackPair()
	clientCodec := NewCodec(clientSide, key, key)
	serverCodec := NewCodec(serverSide, key, key)

	payload := []byte("ping payload")
	if err := clientCodec.WriteFrame(CmdPing, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	cmd, got, err := serverCodec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if cmd != CmdPing {
		t.Errorf("cmd = %v, want %v", cmd, CmdPing)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
}

func TestCodecMultipleFramesPreserveOrder(t *testing.T) {
	key := bytes.Repeat([]byte{0x77}, 32)
	clientSide, serverSide := newLoopbackPair()
	clientCodec := NewCodec(clientSide, key, key)
	serverCodec := NewCodec(serverSide, key, key)

	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, f := range frames {
		if err := clientCodec.WriteFrame(CmdPing, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for _, want := range frames {
		_, got, err := serverCodec.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestCommandString(t *testing.T) {
	if CmdPing.String() != "ping" {
		t.Errorf("CmdPing.String() = %q", CmdPing.String())
	}
	if CmdUnknown0x0f.String() != "unknown_reserved" {
		t.Errorf("CmdUnknown0x0f.String() = %q", CmdUnknown0x0f.String())
	}
}
