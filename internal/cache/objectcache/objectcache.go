// Package objectcache implements internal/cache.Store's file half against a
// key/range object-storage abstraction rather than internal/cache.FileStore's
// flat <root>/files/<hex id> layout. Grounded on pkg/objstore's
// ObjectStore interface and LocalFS backend, repurposed from serving whole
// streamed files to a caller's HTTP range request into backing the
// fully-downloaded-file half of the persisted-state contract — the role
// internal/cache/pgcache and internal/cache/rediscache's doc comments
// already point at when they punt GetFile/PutFile.
package objectcache

import (
	"context"
	"fmt"
	"io"

	"github.com/librespot-org/librespot-sub003/internal/audiokey"
	"github.com/librespot-org/librespot-sub003/internal/cache"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

// ObjectStore is the subset of pkg/objstore.ObjectStore this package needs:
// whole-object writes, ranged reads (audiofile's sole access pattern once a
// file is cached), existence, and size.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, error)
}

// Store adapts an ObjectStore into a cache.Store. It handles GetFile/PutFile
// only: GetCredentials/PutCredentials/GetAudioKey/PutAudioKey return
// Unimplemented, the mirror image of pgcache/rediscache's punt on file
// storage — a deployment combines this with one of those for the other
// half of the contract.
type Store struct {
	objects ObjectStore
	prefix  string
}

// New wraps objects. prefix namespaces every key this Store writes (e.g.
// "audio-files/"), so a bucket or local root can be shared with unrelated
// data without key collisions.
func New(objects ObjectStore, prefix string) *Store {
	return &Store{objects: objects, prefix: prefix}
}

func (s *Store) key(fileID ids.FileId) string {
	return s.prefix + fileID.ToBase16()
}

func (s *Store) GetCredentials(ctx context.Context) (credentials.Credentials, bool, error) {
	return credentials.Credentials{}, false, coreerr.Unimplemented(fmt.Errorf("objectcache: credential storage not supported, use internal/cache.FileStore or pgcache/rediscache"))
}

func (s *Store) PutCredentials(ctx context.Context, creds credentials.Credentials) error {
	return coreerr.Unimplemented(fmt.Errorf("objectcache: credential storage not supported, use internal/cache.FileStore or pgcache/rediscache"))
}

func (s *Store) GetAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId) (audiokey.Key, bool, error) {
	return audiokey.Key{}, false, coreerr.Unimplemented(fmt.Errorf("objectcache: audio-key storage not supported, use internal/cache.FileStore or pgcache/rediscache"))
}

func (s *Store) PutAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId, key audiokey.Key) error {
	return coreerr.Unimplemented(fmt.Errorf("objectcache: audio-key storage not supported, use internal/cache.FileStore or pgcache/rediscache"))
}

// GetFile reports a cache miss (ok=false) rather than an error when the
// object doesn't exist, matching internal/cache.FileStore's contract.
func (s *Store) GetFile(ctx context.Context, fileID ids.FileId) (io.ReadCloser, bool, error) {
	key := s.key(fileID)
	exists, err := s.objects.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("objectcache: checking %s: %w", key, err)
	}
	if !exists {
		return nil, false, nil
	}
	size, err := s.objects.Size(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("objectcache: sizing %s: %w", key, err)
	}
	rc, err := s.objects.GetRange(ctx, key, 0, size)
	if err != nil {
		return nil, false, fmt.Errorf("objectcache: reading %s: %w", key, err)
	}
	return rc, true, nil
}

// PutFile requires a Seeker so the object's length can be measured before
// the single Put call pkg/objstore.ObjectStore.Put expects; internal/cache's
// callers always write a fully-materialized temp file first, so this isn't
// a practical restriction.
func (s *Store) PutFile(ctx context.Context, fileID ids.FileId, r io.Reader) error {
	seeker, ok := r.(io.ReadSeeker)
	if !ok {
		return fmt.Errorf("objectcache: PutFile requires a seekable reader to determine object size")
	}
	size, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("objectcache: measuring size: %w", err)
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("objectcache: rewinding: %w", err)
	}
	return s.objects.Put(ctx, s.key(fileID), r, size)
}

var _ cache.Store = (*Store)(nil)
