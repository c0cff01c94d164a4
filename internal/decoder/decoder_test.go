package decoder

import (
	"bytes"
	"context"
	"testing"

	"github.com/librespot-org/librespot-sub003/internal/oggpage"
)

type fakeSource struct {
	data []byte
}

func (f *fakeSource) Size() int64 { return int64(len(f.data)) }

func (f *fakeSource) ReadAt(ctx context.Context, offset int64, buf []byte) (int, error) {
	if offset >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(buf, f.data[offset:])
	return n, nil
}

func vorbisIdentPacket(channels byte, sampleRate uint32) []byte {
	pkt := make([]byte, 30)
	pkt[0] = 1
	copy(pkt[1:7], "vorbis")
	pkt[11] = channels
	pkt[12] = byte(sampleRate)
	pkt[13] = byte(sampleRate >> 8)
	pkt[14] = byte(sampleRate >> 16)
	pkt[15] = byte(sampleRate >> 24)
	return pkt
}

func buildFixture(audioPages int) []byte {
	var buf bytes.Buffer

	ident := vorbisIdentPacket(2, 44100)
	comment := []byte{3, 'c', 'o', 'm', 'm', 'e', 'n', 't'}
	setup := []byte{5, 's', 'e', 't', 'u', 'p'}

	write := func(packet []byte, headerType byte, granule uint64, seq uint32) {
		p := &oggpage.Page{
			HeaderType: headerType,
			GranulePos: granule,
			Serial:     1,
			Sequence:   seq,
			Segments:   oggpage.Lace(len(packet)),
			Data:       packet,
		}
		buf.Write(p.Encode())
	}

	write(ident, oggpage.FlagBOS, 0, 0)
	write(append(append([]byte{}, comment...), setup...), 0, 0, 1)

	for i := 0; i < audioPages; i++ {
		granule := uint64((i + 1) * 1024)
		flags := byte(0)
		if i == audioPages-1 {
			flags = oggpage.FlagEOS
		}
		write([]byte{byte(0x10 + i), 'a', 'u', 'd', 'i', 'o'}, flags, granule, uint32(2+i))
	}

	return buf.Bytes()
}

func TestPassthroughDecoderCollectsHeadersAndEmitsOggData(t *testing.T) {
	src := &fakeSource{data: buildFixture(3)}
	d, err := NewPassthroughDecoder(context.Background(), src)
	if err != nil {
		t.Fatalf("NewPassthroughDecoder: %v", err)
	}

	pkt, err := d.NextPacket(context.Background())
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if pkt == nil || pkt.Kind != KindOggData || len(pkt.OggData) == 0 {
		t.Fatalf("expected a non-empty OggData packet, got %+v", pkt)
	}
	// The re-muxed output must itself be a well-formed OGG page.
	if _, err := oggpage.ReadPage(bytes.NewReader(pkt.OggData)); err != nil {
		t.Errorf("re-muxed output is not a valid ogg page: %v", err)
	}
}

func TestPassthroughDecoderEndsCleanlyAtEOF(t *testing.T) {
	src := &fakeSource{data: buildFixture(1)}
	d, err := NewPassthroughDecoder(context.Background(), src)
	if err != nil {
		t.Fatalf("NewPassthroughDecoder: %v", err)
	}

	var gotAny bool
	for i := 0; i < 10; i++ {
		pkt, err := d.NextPacket(context.Background())
		if err != nil {
			t.Fatalf("NextPacket: %v", err)
		}
		if pkt == nil {
			break
		}
		gotAny = true
	}
	if !gotAny {
		t.Fatal("expected at least one packet before the stream ended")
	}
}

func TestVorbisDecoderParsesIdentHeader(t *testing.T) {
	src := &fakeSource{data: buildFixture(2)}
	d, err := NewVorbisDecoder(context.Background(), src)
	if err != nil {
		t.Fatalf("NewVorbisDecoder: %v", err)
	}
	if d.Channels() != 2 {
		t.Errorf("Channels() = %d, want 2", d.Channels())
	}
	if d.SampleRate() != 44100 {
		t.Errorf("SampleRate() = %d, want 44100", d.SampleRate())
	}
}

func TestVorbisDecoderProducesSilentFramesOfCorrectWidth(t *testing.T) {
	src := &fakeSource{data: buildFixture(2)}
	d, err := NewVorbisDecoder(context.Background(), src)
	if err != nil {
		t.Fatalf("NewVorbisDecoder: %v", err)
	}

	pkt, err := d.NextPacket(context.Background())
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if pkt == nil || pkt.Kind != KindSamples {
		t.Fatalf("expected a Samples packet, got %+v", pkt)
	}
	if len(pkt.Samples) != samplesPerSilentFrame*d.Channels() {
		t.Errorf("Samples len = %d, want %d", len(pkt.Samples), samplesPerSilentFrame*d.Channels())
	}
}

func TestSeekToGranulePosFindsPageAtOrAfterTarget(t *testing.T) {
	src := &fakeSource{data: buildFixture(5)}
	offset, err := seekToGranulePos(context.Background(), src, 3072)
	if err != nil {
		t.Fatalf("seekToGranulePos: %v", err)
	}
	cur := &pageCursor{src: src, ctx: context.Background(), pos: offset}
	page, _, err := cur.readPage()
	if err != nil {
		t.Fatalf("readPage after seek: %v", err)
	}
	if page.GranulePos < 3072 {
		t.Errorf("seek landed on page with granule %d, want >= 3072", page.GranulePos)
	}
}
