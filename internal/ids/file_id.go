package ids

import (
	"encoding/hex"
	"fmt"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// FileId is a 20-byte content address identifying one encoded audio file
// variant of a track or episode.
type FileId [20]byte

// FileIdFromBase16 parses a 40-character hex string.
func FileIdFromBase16(s string) (FileId, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 20 {
		return FileId{}, coreerr.InvalidArgument(fmt.Errorf("invalid file id %q", s))
	}
	var f FileId
	copy(f[:], b)
	return f, nil
}

// FileIdFromRaw wraps a raw 20-byte slice.
func FileIdFromRaw(b []byte) (FileId, error) {
	if len(b) != 20 {
		return FileId{}, coreerr.InvalidArgument(fmt.Errorf("raw file id must be 20 bytes, got %d", len(b)))
	}
	var f FileId
	copy(f[:], b)
	return f, nil
}

func (f FileId) ToBase16() string { return hex.EncodeToString(f[:]) }

func (f FileId) String() string { return f.ToBase16() }

func (f FileId) IsZero() bool {
	for _, b := range f {
		if b != 0 {
			return false
		}
	}
	return true
}
