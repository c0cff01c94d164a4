package player

import "context"

// subfile presents a byte stream starting offset bytes into an inner
// stream as if it began at zero, skipping the backend-specific header that
// prefixes every encrypted audio file. Grounded on
// original_source/src/util/subfile.rs's Subfile, generalized from a
// Read+Seek wrapper to the random-access source interface the decoder
// package reads through.
type subfile struct {
	inner  interface {
		Size() int64
		ReadAt(ctx context.Context, offset int64, buf []byte) (int, error)
	}
	offset int64
}

func newSubfile(inner interface {
	Size() int64
	ReadAt(ctx context.Context, offset int64, buf []byte) (int, error)
}, offset int64) *subfile {
	return &subfile{inner: inner, offset: offset}
}

func (s *subfile) Size() int64 {
	size := s.inner.Size() - s.offset
	if size < 0 {
		return 0
	}
	return size
}

func (s *subfile) ReadAt(ctx context.Context, offset int64, buf []byte) (int, error) {
	return s.inner.ReadAt(ctx, offset+s.offset, buf)
}
