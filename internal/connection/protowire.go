package connection

// Minimal protobuf-wire helpers for the handful of keyexchange messages the
// handshake needs. spec.md treats protobuf schema definitions as a
// pre-generated external concern; in the absence of a generated package
// these small field-level encode/decode helpers stand in for it.

func pbTag(fieldNum int, wireType byte) uint64 {
	return uint64(fieldNum)<<3 | uint64(wireType)
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func appendTag(buf []byte, fieldNum int, wireType byte) []byte {
	return appendVarint(buf, pbTag(fieldNum, wireType))
}

func appendBytesField(buf []byte, fieldNum int, v []byte) []byte {
	buf = appendTag(buf, fieldNum, 2)
	buf = appendVarint(buf, uint64(len(v)))
	return append(buf, v...)
}

func appendVarintField(buf []byte, fieldNum int, v uint64) []byte {
	buf = appendTag(buf, fieldNum, 0)
	return appendVarint(buf, v)
}

func appendMessageField(buf []byte, fieldNum int, msg []byte) []byte {
	return appendBytesField(buf, fieldNum, msg)
}

// readVarint reads a base-128 varint starting at buf[off], returning the
// value and the offset just past it.
func readVarint(buf []byte, off int) (uint64, int) {
	var v uint64
	var shift uint
	for {
		b := buf[off]
		v |= uint64(b&0x7f) << shift
		off++
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return v, off
}

// findBytesField does a shallow scan of a protobuf-wire message for the
// first occurrence of fieldNum with wire type 2 (length-delimited),
// returning its raw bytes. Used to pick the server's DH public key out of
// the deeply nested APResponseMessage without a full generated decoder.
func findBytesField(buf []byte, fieldNum int) ([]byte, bool) {
	off := 0
	for off < len(buf) {
		tag, next := readVarint(buf, off)
		off = next
		fn := int(tag >> 3)
		wt := byte(tag & 0x7)
		switch wt {
		case 0:
			_, next = readVarint(buf, off)
			off = next
		case 2:
			length, next := readVarint(buf, off)
			off = next
			field := buf[off : off+int(length)]
			off += int(length)
			if fn == fieldNum {
				return field, true
			}
		case 5:
			off += 4
		case 1:
			off += 8
		default:
			return nil, false
		}
	}
	return nil, false
}
