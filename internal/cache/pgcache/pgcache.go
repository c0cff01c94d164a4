// Package pgcache implements internal/cache.Store against Postgres, for
// deployments that want the credential/audio-key cache durable and shared
// across processes rather than pinned to one local disk. Grounded on
// pkg/store's pgxpool connection and embedded-migration pattern.
package pgcache

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/librespot-org/librespot-sub003/internal/audiokey"
	"github.com/librespot-org/librespot-sub003/internal/cache"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

//go:embed migrate.sql
var migrateSQL string

// Store is a Postgres-backed cache.Store. It covers credentials and audio
// keys only: GetFile/PutFile return Unimplemented, since storing arbitrarily
// large downloaded-file blobs as relational rows is a poor fit for this
// backend — the local FileStore (or an object-storage-backed one) is the
// intended home for file bytes in a multi-process deployment.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and applies the idempotent schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgcache: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgcache: ping: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrateSQL)
	return err
}

// Close shuts down the connection pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) GetCredentials(ctx context.Context) (credentials.Credentials, bool, error) {
	var c credentials.Credentials
	var authType int16
	row := s.pool.QueryRow(ctx, `SELECT username, auth_type, auth_data FROM cache_credentials WHERE id = 1`)
	err := row.Scan(&c.Username, &authType, &c.AuthData)
	if errors.Is(err, pgx.ErrNoRows) {
		return credentials.Credentials{}, false, nil
	}
	if err != nil {
		return credentials.Credentials{}, false, coreerr.Unavailable(err)
	}
	c.AuthType = credentials.AuthType(authType)
	return c, true, nil
}

func (s *Store) PutCredentials(ctx context.Context, creds credentials.Credentials) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO cache_credentials (id, username, auth_type, auth_data, updated_at)
VALUES (1, $1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET
	username = EXCLUDED.username,
	auth_type = EXCLUDED.auth_type,
	auth_data = EXCLUDED.auth_data,
	updated_at = EXCLUDED.updated_at`,
		creds.Username, int16(creds.AuthType), creds.AuthData)
	if err != nil {
		return coreerr.Unavailable(err)
	}
	return nil
}

func (s *Store) GetAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId) (audiokey.Key, bool, error) {
	trackRaw := trackID.ToRaw()
	var keyBytes []byte
	row := s.pool.QueryRow(ctx, `SELECT key_bytes FROM cache_audio_keys WHERE track_id = $1 AND file_id = $2`,
		trackRaw[:], fileID[:])
	err := row.Scan(&keyBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return audiokey.Key{}, false, nil
	}
	if err != nil {
		return audiokey.Key{}, false, coreerr.Unavailable(err)
	}
	var key audiokey.Key
	copy(key[:], keyBytes)
	return key, true, nil
}

func (s *Store) PutAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId, key audiokey.Key) error {
	trackRaw := trackID.ToRaw()
	_, err := s.pool.Exec(ctx, `
INSERT INTO cache_audio_keys (track_id, file_id, key_bytes)
VALUES ($1, $2, $3)
ON CONFLICT (track_id, file_id) DO UPDATE SET key_bytes = EXCLUDED.key_bytes`,
		trackRaw[:], fileID[:], key[:])
	if err != nil {
		return coreerr.Unavailable(err)
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, fileID ids.FileId) (io.ReadCloser, bool, error) {
	return nil, false, coreerr.Unimplemented(fmt.Errorf("pgcache: file-blob storage not supported, use internal/cache.FileStore"))
}

func (s *Store) PutFile(ctx context.Context, fileID ids.FileId, r io.Reader) error {
	return coreerr.Unimplemented(fmt.Errorf("pgcache: file-blob storage not supported, use internal/cache.FileStore"))
}

var _ cache.Store = (*Store)(nil)
