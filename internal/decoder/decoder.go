// Package decoder implements the two decoder façade variants behind a
// common interface: Vorbis (OGG packet demux with the granule-position
// bisection seek, sample synthesis out of scope per spec.md's Non-goal on
// bit-exact codec reproduction) and Passthrough (re-muxes the incoming OGG
// packets under a fresh stream serial for sinks that want raw OGG/Vorbis).
// Grounded on spec.md §4.8, original_source/audio/src/lewton_decoder.rs and
// original_source/playback/src/decoder/passthrough_decoder.rs.
package decoder

import (
	"context"
	"fmt"
	"io"

	"github.com/librespot-org/librespot-sub003/internal/audiodecrypt"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/oggpage"
)

// PacketKind distinguishes the two payload shapes a Packet can carry.
type PacketKind int

const (
	KindSamples PacketKind = iota
	KindOggData
)

// Packet carries either interleaved f64 PCM samples (Vorbis) or raw OGG
// packet bytes (Passthrough).
type Packet struct {
	Kind    PacketKind
	Samples []float64
	OggData []byte
}

// Decoder is the common interface both variants implement.
type Decoder interface {
	Seek(ctx context.Context, absgp uint64) error
	NextPacket(ctx context.Context) (*Packet, error)
}

// source is the random-access byte stream both decoder variants read from:
// internal/audiodecrypt.Reader already presents this shape.
type source interface {
	Size() int64
	ReadAt(ctx context.Context, offset int64, buf []byte) (int, error)
}

var _ source = (*audiodecrypt.Reader)(nil)

// pageCursor sequences OGG page reads over a source, tracking the byte
// offset of the next page so NextPacket can advance purely forward while
// Seek can reposition it arbitrarily.
type pageCursor struct {
	src source
	ctx context.Context
	pos int64
}

func (c *pageCursor) readPage() (*oggpage.Page, int64, error) {
	// Pages are variable length; probe a generous header+segment-table
	// window first, then re-read with the full page length once known.
	const probeLen = 27 + 255
	probe := make([]byte, probeLen)
	n, err := c.src.ReadAt(c.ctx, c.pos, probe)
	if n < 27 {
		if err != nil {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("decoder: truncated ogg page at offset %d", c.pos)
	}
	probe = probe[:n]

	numSegments := int(probe[26])
	headerLen := 27 + numSegments
	if n < headerLen {
		full := make([]byte, headerLen)
		if _, err := c.src.ReadAt(c.ctx, c.pos, full); err != nil {
			return nil, 0, err
		}
		probe = full
		numSegments = int(probe[26])
		headerLen = 27 + numSegments
	}

	dataLen := 0
	for _, s := range probe[27:headerLen] {
		dataLen += int(s)
	}
	total := headerLen + dataLen
	pageBytes := make([]byte, total)
	if _, err := c.src.ReadAt(c.ctx, c.pos, pageBytes); err != nil {
		return nil, 0, err
	}

	page, err := oggpage.ReadPage(byteReader{pageBytes})
	if err != nil {
		return nil, 0, err
	}
	startOffset := c.pos
	c.pos += int64(total)
	return page, startOffset, nil
}

type byteReader struct{ b []byte }

func (r byteReader) Read(p []byte) (int, error) {
	n := copy(p, r.b)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// seekToGranulePos bisects the byte range [0, src.Size()) for the first
// page whose granule position is >= target, mirroring the original's
// ogg-crate seek_absgp bisection. Returns the byte offset of that page.
func seekToGranulePos(ctx context.Context, src source, target uint64) (int64, error) {
	lo, hi := int64(0), src.Size()
	var bestOffset int64
	found := false

	for lo < hi {
		mid := lo + (hi-lo)/2
		offset, err := scanForwardToPage(ctx, src, mid)
		if err != nil {
			hi = mid
			continue
		}
		cur := &pageCursor{src: src, ctx: ctx, pos: offset}
		page, _, err := cur.readPage()
		if err != nil {
			hi = mid
			continue
		}
		if page.GranulePos >= target {
			bestOffset = offset
			found = true
			hi = mid
		} else {
			lo = offset + 1
		}
	}

	if !found {
		return 0, coreerr.InvalidArgument(fmt.Errorf("decoder: no page with granule position >= %d", target))
	}
	return bestOffset, nil
}

// scanForwardToPage scans forward from a byte offset for the next "OggS"
// capture pattern, returning its offset.
func scanForwardToPage(ctx context.Context, src source, from int64) (int64, error) {
	const window = 8192
	buf := make([]byte, window)
	pos := from
	size := src.Size()
	for pos < size {
		n, err := src.ReadAt(ctx, pos, buf)
		if n == 0 && err != nil {
			return 0, err
		}
		for i := 0; i+4 <= n; i++ {
			if buf[i] == 'O' && buf[i+1] == 'g' && buf[i+2] == 'g' && buf[i+3] == 'S' {
				return pos + int64(i), nil
			}
		}
		pos += int64(n) - 3 // overlap by 3 so a pattern split across the boundary isn't missed
		if n < window {
			break
		}
	}
	return 0, coreerr.Unavailable(fmt.Errorf("decoder: no ogg page found from offset %d", from))
}
