package decoder

import (
	"context"
	"fmt"
	"io"

	"github.com/dhowden/tag"
)

// Tags is the small slice of Vorbis-comment fields worth surfacing to a
// caller that wants "now playing" metadata without round-tripping through
// internal/metadata's Mercury-sourced Track. Best-effort: a track whose
// comment packet doesn't parse yields a nil Tags, never an error, since this
// is opportunistic enrichment, not something Load's happy path depends on.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Year   int
	Genre  string
}

// extractTags wraps src as an io.ReadSeeker and hands it to dhowden/tag,
// which sniffs the "OggS" magic and reads the Vorbis comment header packet
// itself — this package's own oggpage/pageCursor handling only needs to get
// as far as the identification header, so dhowden/tag saves re-implementing
// a second comment-packet parser here.
func extractTags(ctx context.Context, src source) *Tags {
	m, err := tag.ReadFrom(&sourceReadSeeker{ctx: ctx, src: src})
	if err != nil {
		return nil
	}
	return &Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Year:   m.Year(),
		Genre:  m.Genre(),
	}
}

// sourceReadSeeker adapts the decoder package's random-access source
// interface to io.ReadSeeker, the shape dhowden/tag's ReadFrom requires.
type sourceReadSeeker struct {
	ctx context.Context
	src source
	pos int64
}

func (s *sourceReadSeeker) Read(p []byte) (int, error) {
	n, err := s.src.ReadAt(s.ctx, s.pos, p)
	s.pos += int64(n)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

func (s *sourceReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = s.src.Size() + offset
	default:
		return 0, fmt.Errorf("decoder: invalid seek whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("decoder: negative seek position")
	}
	s.pos = newPos
	return s.pos, nil
}
