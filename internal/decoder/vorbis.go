package decoder

import (
	"context"
	"fmt"
)

// VorbisDecoder demuxes OGG-encapsulated Vorbis packets and exposes
// granule-position seeking. Full Vorbis DSP (codebook/floor/residue
// synthesis) is out of scope per spec.md's Non-goal on bit-exact codec
// reproduction; each audio packet instead yields a silent frame of the
// correct channel count so the pipeline's timing contract — seek, packet
// cadence, end-of-stream detection — is exercised without claiming
// byte-accurate decoded audio.
type VorbisDecoder struct {
	cursor    *pageCursor
	ident     []byte
	channels  int
	sampleHz  int
	ofsgpPage uint64
	tags      *Tags
}

const samplesPerSilentFrame = 1024 // one Vorbis-typical short block, per channel

// NewVorbisDecoder opens src and parses the identification header's channel
// count and sample rate (Vorbis ident header layout: 7-byte packet type +
// "vorbis", then 4-byte version, 1-byte channels, 4-byte little-endian
// sample rate).
func NewVorbisDecoder(ctx context.Context, src source) (*VorbisDecoder, error) {
	cursor := &pageCursor{src: src, ctx: ctx}

	var ident []byte
	for ident == nil {
		page, _, err := cursor.readPage()
		if err != nil {
			return nil, fmt.Errorf("decoder: reading vorbis ident header: %w", err)
		}
		packets, _ := page.Packets()
		for _, pkt := range packets {
			if len(pkt) > 0 && pkt[0] == 1 {
				ident = append([]byte(nil), pkt...)
			}
		}
	}

	d := &VorbisDecoder{cursor: cursor, ident: ident, channels: 2, sampleHz: 44100}
	if len(ident) >= 16 {
		d.channels = int(ident[11])
		d.sampleHz = int(ident[12]) | int(ident[13])<<8 | int(ident[14])<<16 | int(ident[15])<<24
	}
	d.tags = extractTags(ctx, src)
	return d, nil
}

// Tags returns the Vorbis-comment metadata opportunistically recovered from
// the stream's comment packet, or nil if none was found or it didn't parse.
func (d *VorbisDecoder) Tags() *Tags { return d.tags }

func (d *VorbisDecoder) NextPacket(ctx context.Context) (*Packet, error) {
	for {
		page, _, err := d.cursor.readPage()
		if err != nil {
			return nil, nil
		}
		if page.GranulePos == 0 || page.GranulePos == d.ofsgpPage {
			continue
		}
		packets, _ := page.Packets()
		if len(packets) == 0 {
			continue
		}
		return &Packet{Kind: KindSamples, Samples: make([]float64, samplesPerSilentFrame*d.channels)}, nil
	}
}

func (d *VorbisDecoder) Seek(ctx context.Context, absgp uint64) error {
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
	d.cursor.pos = offset
	return nil
}

// Channels reports the channel count parsed from the identification header.
func (d *VorbisDecoder) Channels() int { return d.channels }

// SampleRate reports the sample rate parsed from the identification header.
func (d *VorbisDecoder) SampleRate() int { return d.sampleHz }
