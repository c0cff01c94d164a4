package decoder

import (
	"context"
	"fmt"
	"time"

	"github.com/librespot-org/librespot-sub003/internal/oggpage"
)

// pageBuilder accumulates lacing-table/data pairs for the page currently
// being assembled and flushes a fully encoded page once told a packet ends
// a page (or the stream).
type pageBuilder struct {
	serial   uint32
	sequence uint32
	segments []byte
	data     []byte
	wroteBOS bool
}

func (b *pageBuilder) write(packet []byte, granulePos uint64, endPage, endStream bool) []byte {
	b.segments = append(b.segments, oggpage.Lace(len(packet))...)
	b.data = append(b.data, packet...)
	if !endPage && !endStream {
		return nil
	}

	headerType := byte(0)
	if !b.wroteBOS {
		headerType |= oggpage.FlagBOS
		b.wroteBOS = true
	}
	if endStream {
		headerType |= oggpage.FlagEOS
	}
	page := &oggpage.Page{
		HeaderType: headerType,
		GranulePos: granulePos,
		Serial:     b.serial,
		Sequence:   b.sequence,
		Segments:   b.segments,
		Data:       b.data,
	}
	encoded := page.Encode()
	b.segments, b.data = nil, nil
	b.sequence++
	return encoded
}

// PassthroughDecoder re-muxes the incoming OGG packets under a fresh stream
// serial so downstream sinks that want raw OGG-encapsulated Vorbis get a
// clean, independently-seekable stream (spec.md §4.8).
type PassthroughDecoder struct {
	cursor    *pageCursor
	builder   *pageBuilder
	ident     []byte
	comment   []byte
	setup     []byte
	bos       bool
	eos       bool
	ofsgpPage uint64
}

// NewPassthroughDecoder opens src, collects the three Vorbis header packets
// (identification, comment, setup — packet types 1, 3, 5), and discards
// anything read past them so the first NextPacket call starts at the audio.
func NewPassthroughDecoder(ctx context.Context, src source) (*PassthroughDecoder, error) {
	cursor := &pageCursor{src: src, ctx: ctx}

	var ident, comment, setup []byte
	for ident == nil || comment == nil || setup == nil {
		page, _, err := cursor.readPage()
		if err != nil {
			return nil, fmt.Errorf("decoder: reading vorbis headers: %w", err)
		}
		packets, _ := page.Packets()
		for _, pkt := range packets {
			if len(pkt) == 0 {
				continue
			}
			switch pkt[0] {
			case 1:
				ident = append([]byte(nil), pkt...)
			case 3:
				comment = append([]byte(nil), pkt...)
			case 5:
				setup = append([]byte(nil), pkt...)
			}
		}
	}

	return &PassthroughDecoder{
		cursor:  cursor,
		builder: &pageBuilder{serial: uint32(time.Now().UnixMilli())},
		ident:   ident,
		comment: comment,
		setup:   setup,
	}, nil
}

// NextPacket returns the next re-muxed OGG page data, or (nil, nil) once
// the underlying stream ends cleanly or desynchronizes — spec.md §4.8
// treats both as benign end of stream rather than an error.
func (d *PassthroughDecoder) NextPacket(ctx context.Context) (*Packet, error) {
	var out []byte

	if !d.bos {
		if enc := d.builder.write(d.ident, 0, true, false); enc != nil {
			out = append(out, enc...)
		}
		if enc := d.builder.write(d.comment, 0, false, false); enc != nil {
			out = append(out, enc...)
		}
		if enc := d.builder.write(d.setup, 0, true, false); enc != nil {
			out = append(out, enc...)
		}
		d.bos = true
	}

	for {
		page, _, err := d.cursor.readPage()
		if err != nil {
			if len(out) > 0 {
				return &Packet{Kind: KindOggData, OggData: out}, nil
			}
			return nil, nil
		}

		packets, _ := page.Packets()
		endStream := page.HeaderType&oggpage.FlagEOS != 0
		for i, pkt := range packets {
			if page.GranulePos == 0 || page.GranulePos == d.ofsgpPage {
				continue
			}
			lastInPage := i == len(packets)-1
			thisEndsStream := endStream && lastInPage
			if thisEndsStream {
				d.eos = true
			}
			enc := d.builder.write(pkt, page.GranulePos-d.ofsgpPage, lastInPage || thisEndsStream, thisEndsStream)
			if enc != nil {
				out = append(out, enc...)
			}
		}
		if len(out) > 0 {
			return &Packet{Kind: KindOggData, OggData: out}, nil
		}
	}
}

// Seek closes off the current stream with a synthetic end-of-stream packet
// (if one wasn't already written), bumps the serial, re-emits the three
// identification packets, and positions the underlying cursor at the first
// page whose granule position is >= absgp.
func (d *PassthroughDecoder) Seek(ctx context.Context, absgp uint64) error {
	if d.bos && !d.eos {
		page, _, err := d.cursor.readPage()
		if err == nil {
			packets, _ := page.Packets()
			if len(packets) > 0 {
				d.builder.write(packets[len(packets)-1], page.GranulePos-d.ofsgpPage, true, true)
			}
		}
	}

	d.eos = false
	d.bos = false
	d.ofsgpPage = 0
	d.builder.serial++
	d.builder.sequence = 0
	d.builder.wroteBOS = false

	offset, err := seekToGranulePos(ctx, d.cursor.src, absgp)
	if err != nil {
		return err
	}
	d.cursor.pos = offset

	page, _, err := d.cursor.readPage()
	if err != nil {
		return fmt.Errorf("decoder: no page after seek: %w", err)
	}
	d.ofsgpPage = page.GranulePos
	d.cursor.pos = offset // replay this page from NextPacket
	return nil
}
