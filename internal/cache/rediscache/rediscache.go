// Package rediscache implements internal/cache.Store against Redis, for a
// fast, ephemeral, multi-process-shared cache: no schema migration step,
// entries simply expire. Grounded on the teacher's services/api auth/session
// use of redis/go-redis/v9 and pkg/kvkeys's key-namespacing convention.
package rediscache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/librespot-org/librespot-sub003/internal/audiokey"
	"github.com/librespot-org/librespot-sub003/internal/cache"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

const (
	keyCredentials   = "librespot:credentials"
	audioKeyPrefix   = "librespot:audio_key:"
	credentialsField = "username:auth_type:auth_data"
)

// Store is a Redis-backed cache.Store, keyed the way pkg/kvkeys namespaces
// its session/rate-limit keys: a fixed "librespot:" prefix. Like pgcache, it
// covers credentials and audio keys only — GetFile/PutFile return
// Unimplemented, a KV store being a poor fit for large binary blobs.
type Store struct {
	client *redis.Client
}

// New wraps an already-configured *redis.Client.
func New(client *redis.Client) *Store { return &Store{client: client} }

func (s *Store) GetCredentials(ctx context.Context) (credentials.Credentials, bool, error) {
	vals, err := s.client.HGetAll(ctx, keyCredentials).Result()
	if err != nil {
		return credentials.Credentials{}, false, coreerr.Unavailable(err)
	}
	if len(vals) == 0 {
		return credentials.Credentials{}, false, nil
	}

	authType, err := strconv.Atoi(vals["auth_type"])
	if err != nil {
		return credentials.Credentials{}, false, coreerr.FailedPrecondition(fmt.Errorf("rediscache: malformed auth_type: %w", err))
	}
	authData, err := hex.DecodeString(vals["auth_data"])
	if err != nil {
		return credentials.Credentials{}, false, coreerr.FailedPrecondition(fmt.Errorf("rediscache: malformed auth_data: %w", err))
	}

	return credentials.Credentials{
		Username: vals["username"],
		AuthType: credentials.AuthType(authType),
		AuthData: authData,
	}, true, nil
}

func (s *Store) PutCredentials(ctx context.Context, creds credentials.Credentials) error {
	err := s.client.HSet(ctx, keyCredentials, map[string]any{
		"username":  creds.Username,
		"auth_type": int(creds.AuthType),
		"auth_data": hex.EncodeToString(creds.AuthData),
	}).Err()
	if err != nil {
		return coreerr.Unavailable(err)
	}
	return nil
}

func audioKeyRedisKey(trackID ids.SpotifyId, fileID ids.FileId) string {
	trackRaw := trackID.ToRaw()
	var b strings.Builder
	b.WriteString(audioKeyPrefix)
	b.WriteString(hex.EncodeToString(trackRaw[:]))
	b.WriteByte(':')
	b.WriteString(fileID.ToBase16())
	return b.String()
}

func (s *Store) GetAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId) (audiokey.Key, bool, error) {
	raw, err := s.client.Get(ctx, audioKeyRedisKey(trackID, fileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return audiokey.Key{}, false, nil
	}
	if err != nil {
		return audiokey.Key{}, false, coreerr.Unavailable(err)
	}
	var key audiokey.Key
	copy(key[:], raw)
	return key, true, nil
}

func (s *Store) PutAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId, key audiokey.Key) error {
	err := s.client.Set(ctx, audioKeyRedisKey(trackID, fileID), key[:], 0).Err()
	if err != nil {
		return coreerr.Unavailable(err)
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, fileID ids.FileId) (io.ReadCloser, bool, error) {
	return nil, false, coreerr.Unimplemented(fmt.Errorf("rediscache: file-blob storage not supported, use internal/cache.FileStore"))
}

func (s *Store) PutFile(ctx context.Context, fileID ids.FileId, r io.Reader) error {
	return coreerr.Unimplemented(fmt.Errorf("rediscache: file-blob storage not supported, use internal/cache.FileStore"))
}

var _ cache.Store = (*Store)(nil)
