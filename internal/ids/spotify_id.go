// Package ids implements the two content-identifier types of the data model:
// SpotifyId, a 128-bit opaque id plus an item-type tag, and FileId, a 20-byte
// content address. Grounded on original_source/core/src/spotify_id.rs and
// core/src/file_id.rs.
package ids

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// ItemType tags what a SpotifyId addresses.
type ItemType int

const (
	ItemUnknown ItemType = iota
	ItemTrack
	ItemPodcastEpisode
	ItemAlbum
	ItemArtist
	ItemPlaylist
	ItemShow
	ItemLocalFile
)

func (t ItemType) String() string {
	switch t {
	case ItemTrack:
		return "track"
	case ItemPodcastEpisode:
		return "episode"
	case ItemAlbum:
		return "album"
	case ItemArtist:
		return "artist"
	case ItemPlaylist:
		return "playlist"
	case ItemShow:
		return "show"
	case ItemLocalFile:
		return "local"
	default:
		return "unknown"
	}
}

func parseItemType(s string) ItemType {
	switch s {
	case "track":
		return ItemTrack
	case "episode":
		return ItemPodcastEpisode
	case "album":
		return ItemAlbum
	case "artist":
		return ItemArtist
	case "playlist":
		return ItemPlaylist
	case "show":
		return ItemShow
	case "local":
		return ItemLocalFile
	default:
		return ItemUnknown
	}
}

const base62Digits = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// SpotifyId is a 128-bit id (stored as hi/lo 64-bit halves, big-endian
// semantics) plus an ItemType tag. The zero value is the all-zero id with an
// unknown type.
type SpotifyId struct {
	hi, lo uint64
	typ    ItemType
}

// FromBase62 parses a 22-character base62 id (no item type is carried in this
// representation; callers that need one should set it via WithType).
func FromBase62(s string) (SpotifyId, error) {
	if len(s) == 0 {
		return SpotifyId{}, coreerr.InvalidArgument(fmt.Errorf("empty base62 id"))
	}
	hi, lo := uint64(0), uint64(0)
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(base62Digits, s[i])
		if d < 0 {
			return SpotifyId{}, coreerr.InvalidArgument(fmt.Errorf("invalid base62 digit %q", s[i]))
		}
		hi, lo = mul62Add(hi, lo, uint64(d))
	}
	return SpotifyId{hi: hi, lo: lo}, nil
}

// FromBase16 parses a 32-character lowercase (or uppercase) hex id.
func FromBase16(s string) (SpotifyId, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return SpotifyId{}, coreerr.InvalidArgument(fmt.Errorf("invalid base16 id %q", s))
	}
	return FromRaw(b)
}

// FromRaw parses the raw 16-byte big-endian representation.
func FromRaw(b []byte) (SpotifyId, error) {
	if len(b) != 16 {
		return SpotifyId{}, coreerr.InvalidArgument(fmt.Errorf("raw id must be 16 bytes, got %d", len(b)))
	}
	return SpotifyId{hi: binary.BigEndian.Uint64(b[0:8]), lo: binary.BigEndian.Uint64(b[8:16])}, nil
}

// FromURI parses a "spotify:<type>:<base62>" URI.
func FromURI(uri string) (SpotifyId, error) {
	parts := strings.Split(uri, ":")
	if len(parts) != 3 || parts[0] != "spotify" {
		return SpotifyId{}, coreerr.InvalidArgument(fmt.Errorf("malformed uri %q", uri))
	}
	id, err := FromBase62(parts[2])
	if err != nil {
		return SpotifyId{}, err
	}
	id.typ = parseItemType(parts[1])
	return id, nil
}

// WithType returns a copy of id tagged with t.
func (id SpotifyId) WithType(t ItemType) SpotifyId {
	id.typ = t
	return id
}

func (id SpotifyId) Type() ItemType { return id.typ }

// ToBase16 renders the 128 bits as 32 lowercase hex characters.
func (id SpotifyId) ToBase16() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.hi)
	binary.BigEndian.PutUint64(b[8:16], id.lo)
	return hex.EncodeToString(b[:])
}

// ToBase62 renders the 128 bits as a 22-character base62 string, left-padded
// with '0' as the digit-division algorithm naturally produces.
func (id SpotifyId) ToBase62() string {
	hi, lo := id.hi, id.lo
	var out [22]byte
	for i := 21; i >= 0; i-- {
		var rem uint64
		hi, lo, rem = divmod62(hi, lo)
		out[i] = base62Digits[rem]
	}
	return string(out[:])
}

// ToRaw renders the 128 bits as 16 big-endian bytes.
func (id SpotifyId) ToRaw() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.hi)
	binary.BigEndian.PutUint64(b[8:16], id.lo)
	return b
}

// URI renders a "spotify:<type>:<base62>" string.
func (id SpotifyId) URI() string {
	return fmt.Sprintf("spotify:%s:%s", id.typ, id.ToBase62())
}

func (id SpotifyId) String() string { return id.URI() }

// Equal reports whether two ids carry the same 128 bits (type is ignored, as
// in the original: the tag is metadata about how the id was constructed, not
// part of its identity).
func (id SpotifyId) Equal(other SpotifyId) bool {
	return id.hi == other.hi && id.lo == other.lo
}

// mul62Add computes (hi:lo)*62 + d as a 128-bit value split across two
// uint64 halves, used by FromBase62's repeated-multiply parse.
func mul62Add(hi, lo, d uint64) (newHi, newLo uint64) {
	// lo*62 can overflow 64 bits; split into 32-bit halves to get the carry.
	loLow := lo & 0xffffffff
	loHigh := lo >> 32
	p0 := loLow * 62
	p1 := loHigh*62 + (p0 >> 32)
	newLo = (p1 << 32) | (p0 & 0xffffffff)
	carry := p1 >> 32
	newHi = hi*62 + carry
	// add d
	sum := newLo + d
	if sum < newLo {
		newHi++
	}
	newLo = sum
	return newHi, newLo
}

// divmod62 divides the 128-bit value (hi:lo) by 62, returning the quotient
// (also split hi/lo) and the remainder.
func divmod62(hi, lo uint64) (qHi, qLo, rem uint64) {
	rem = 0
	qHi = hi / 62
	rem = hi % 62
	// long division of lo, 32 bits at a time, carrying rem forward.
	hiPart := (rem << 32) | (lo >> 32)
	qHiPart := hiPart / 62
	rem = hiPart % 62
	loPart := (rem << 32) | (lo & 0xffffffff)
	qLoPart := loPart / 62
	rem = loPart % 62
	qLo = (qHiPart << 32) | qLoPart
	return qHi, qLo, rem
}
