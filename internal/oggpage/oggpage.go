// Package oggpage implements the OGG container's page-level framing: the
// capture-pattern header, lacing-value segment table, and CRC used by both
// the demuxer and the passthrough re-muxer in internal/decoder.
package oggpage

import (
	"encoding/binary"
	"errors"
	"io"
)

var capturePattern = [4]byte{'O', 'g', 'g', 'S'}

// Header type flags, per the OGG bitstream spec.
const (
	FlagContinued byte = 1 << 0
	FlagBOS       byte = 1 << 1
	FlagEOS       byte = 1 << 2
)

// Page is one physical OGG page: a header plus the segment table needed to
// split Data back into packets.
type Page struct {
	HeaderType  byte
	GranulePos  uint64
	Serial      uint32
	Sequence    uint32
	Segments    []byte // lacing values, each 0-255
	Data        []byte // concatenated segment data
}

// ErrNoCapturePattern is returned when the reader's next four bytes are not
// "OggS" — the demuxer treats this the same as a benign end of stream.
var ErrNoCapturePattern = errors.New("oggpage: no capture pattern found")

// ReadPage reads one page from r.
func ReadPage(r io.Reader) (*Page, error) {
	var hdr [27]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if hdr[0] != 'O' || hdr[1] != 'g' || hdr[2] != 'g' || hdr[3] != 'S' {
		return nil, ErrNoCapturePattern
	}

	p := &Page{
		HeaderType: hdr[5],
		GranulePos: binary.LittleEndian.Uint64(hdr[6:14]),
		Serial:     binary.LittleEndian.Uint32(hdr[14:18]),
		Sequence:   binary.LittleEndian.Uint32(hdr[18:22]),
	}
	numSegments := int(hdr[26])

	p.Segments = make([]byte, numSegments)
	if _, err := io.ReadFull(r, p.Segments); err != nil {
		return nil, err
	}

	total := 0
	for _, s := range p.Segments {
		total += int(s)
	}
	p.Data = make([]byte, total)
	if total > 0 {
		if _, err := io.ReadFull(r, p.Data); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Packets splits Data back into individual packets using the lacing values:
// a run of 255s continues a packet; any value < 255 terminates it. The
// returned bool for each packet reports whether it ends exactly at a
// segment table boundary of length < 255 (a "completed" packet within this
// page) versus running into the next page (continued).
func (p *Page) Packets() ([][]byte, []bool) {
	var packets [][]byte
	var complete []bool

	start := 0
	cur := 0
	for _, seg := range p.Segments {
		cur += int(seg)
		if seg < 255 {
			packets = append(packets, p.Data[start:cur])
			complete = append(complete, true)
			start = cur
		}
	}
	if start < cur {
		packets = append(packets, p.Data[start:cur])
		complete = append(complete, false)
	}
	return packets, complete
}

// Encode serializes the page, computing and filling in the CRC.
func (p *Page) Encode() []byte {
	headerLen := 27 + len(p.Segments)
	buf := make([]byte, headerLen+len(p.Data))

	copy(buf[0:4], capturePattern[:])
	buf[4] = 0 // stream_structure_version
	buf[5] = p.HeaderType
	binary.LittleEndian.PutUint64(buf[6:14], p.GranulePos)
	binary.LittleEndian.PutUint32(buf[14:18], p.Serial)
	binary.LittleEndian.PutUint32(buf[18:22], p.Sequence)
	// buf[22:26] CRC, filled below
	buf[26] = byte(len(p.Segments))
	copy(buf[27:27+len(p.Segments)], p.Segments)
	copy(buf[headerLen:], p.Data)

	crc := checksum(buf)
	binary.LittleEndian.PutUint32(buf[22:26], crc)
	return buf
}

// Lace computes the segment table for a packet of length n, the
// standard run of 255s followed by a final value < 255 (0 if n is an exact
// multiple of 255, marking the packet as continuing on the next page if the
// caller does not append a terminating zero-length segment).
func Lace(n int) []byte {
	var segs []byte
	for n >= 255 {
		segs = append(segs, 255)
		n -= 255
	}
	segs = append(segs, byte(n))
	return segs
}

// checksum implements the CRC32 variant used by the OGG container: table
// driven, generator polynomial 0x04c11db7, processed MSB-first with no
// input/output reflection.
func checksum(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

var crcTable = buildCRCTable()

func buildCRCTable() [256]uint32 {
	const poly = 0x04c11db7
	var table [256]uint32
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}
