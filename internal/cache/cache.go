// Package cache defines the persisted-state contract spec.md §6 leaves
// opaque: get/put credentials, get/put audio key, get_file/put_file for
// fully-downloaded files only. FileStore is the default local-disk backend;
// internal/cache/pgcache and internal/cache/rediscache implement the same
// Store interface against Postgres and Redis for multi-process deployments.
package cache

import (
	"context"
	"io"

	"github.com/librespot-org/librespot-sub003/internal/audiokey"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

// Store is the persisted-state contract every backend implements. Audio-key
// cache hits bypass internal/audiokey's request/response protocol entirely,
// per spec.md §6.
type Store interface {
	GetCredentials(ctx context.Context) (credentials.Credentials, bool, error)
	PutCredentials(ctx context.Context, creds credentials.Credentials) error

	GetAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId) (audiokey.Key, bool, error)
	PutAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId, key audiokey.Key) error

	// GetFile returns a readable stream of a fully-downloaded file, or
	// ok=false if no complete copy is cached. Callers must Close the
	// returned ReadCloser.
	GetFile(ctx context.Context, fileID ids.FileId) (rc io.ReadCloser, ok bool, err error)
	PutFile(ctx context.Context, fileID ids.FileId, r io.Reader) error
}

// audioKeyEntry is the composite key audio-key backends index by.
type audioKeyEntry struct {
	track ids.SpotifyId
	file  ids.FileId
}
