package metadata

// A generic protobuf-wire field walker, generalizing
// internal/connection's single-field scan to the repeated/typed getters
// metadata messages need (Track, AudioFile, Restriction, Artist).

type wireField struct {
	num  int
	wire byte
	// for wire type 0 (varint)
	varint uint64
	// for wire type 2 (length-delimited)
	bytes []byte
}

func readVarint(buf []byte, off int) (uint64, int, bool) {
	var v uint64
	var shift uint
	for off < len(buf) {
		b := buf[off]
		v |= uint64(b&0x7f) << shift
		off++
		if b&0x80 == 0 {
			return v, off, true
		}
		shift += 7
		if shift > 63 {
			return 0, off, false
		}
	}
	return 0, off, false
}

// walkFields does a single-pass, top-level decode of a protobuf-wire
// message into its field list, preserving repetition order. It does not
// recurse into nested messages; callers re-invoke walkFields on a field's
// raw bytes to descend.
func walkFields(buf []byte) []wireField {
	var fields []wireField
	off := 0
	for off < len(buf) {
		tag, next, ok := readVarint(buf, off)
		if !ok {
			return fields
		}
		off = next
		fn := int(tag >> 3)
		wt := byte(tag & 0x7)
		switch wt {
		case 0:
			v, next, ok := readVarint(buf, off)
			if !ok {
				return fields
			}
			off = next
			fields = append(fields, wireField{num: fn, wire: wt, varint: v})
		case 2:
			length, next, ok := readVarint(buf, off)
			if !ok || next+int(length) > len(buf) {
				return fields
			}
			off = next
			fields = append(fields, wireField{num: fn, wire: wt, bytes: buf[off : off+int(length)]})
			off += int(length)
		case 5:
			if off+4 > len(buf) {
				return fields
			}
			off += 4
		case 1:
			if off+8 > len(buf) {
				return fields
			}
			off += 8
		default:
			return fields
		}
	}
	return fields
}

func firstString(fields []wireField, num int) string {
	for _, f := range fields {
		if f.num == num && f.wire == 2 {
			return string(f.bytes)
		}
	}
	return ""
}

func firstInt(fields []wireField, num int) int64 {
	for _, f := range fields {
		if f.num == num && f.wire == 0 {
			return int64(f.varint)
		}
	}
	return 0
}

func firstBool(fields []wireField, num int) bool {
	return firstInt(fields, num) != 0
}

func firstBytes(fields []wireField, num int) []byte {
	for _, f := range fields {
		if f.num == num && f.wire == 2 {
			return f.bytes
		}
	}
	return nil
}

func allMessages(fields []wireField, num int) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.num == num && f.wire == 2 {
			out = append(out, f.bytes)
		}
	}
	return out
}
