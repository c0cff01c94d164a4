package cache

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"

	"github.com/librespot-org/librespot-sub003/internal/audiokey"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

const credentialsFileName = "credentials.jwt"

// credentialsClaims is the JWT envelope wrapped around a serialized
// Credentials value: signing the blob lets FileStore detect a truncated or
// hand-edited cache file before trusting it, the same integrity role the
// teacher's session-JWT plays for an HTTP bearer token, repurposed here for
// an at-rest payload instead of a bearer credential.
type credentialsClaims struct {
	Username string `json:"username"`
	AuthType int    `json:"auth_type"`
	AuthData string `json:"auth_data"` // base64, since AuthData is arbitrary bytes
	jwt.RegisteredClaims
}

// FileStore is the default single-process Store: credentials persisted as a
// signed JWT on disk, audio keys cached in memory for the process lifetime,
// and fully-downloaded files written under <root>/files/<hex file id>.
type FileStore struct {
	root       string
	signingKey []byte
	log        *slog.Logger

	mu        sync.RWMutex
	audioKeys map[audioKeyEntry]audiokey.Key

	watcher  *fsnotify.Watcher
	reloadCh chan struct{}
}

// NewFileStore creates (if needed) root and <root>/files, and starts
// watching the credentials file for out-of-band changes (e.g. a sibling
// process refreshing credentials after a relogin).
func NewFileStore(root string, signingKey []byte) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "files"), 0o700); err != nil {
		return nil, fmt.Errorf("cache: creating cache root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cache: starting file watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("cache: watching cache root: %w", err)
	}

	fs := &FileStore{
		root:       root,
		signingKey: signingKey,
		log:        slog.Default().With("component", "cache", "backend", "file"),
		audioKeys:  make(map[audioKeyEntry]audiokey.Key),
		watcher:    watcher,
		reloadCh:   make(chan struct{}, 1),
	}
	go fs.watch()
	return fs, nil
}

// Reloaded returns a channel that receives a value whenever the credentials
// file changes on disk from outside this process. Buffered and
// drop-if-full: callers are expected to re-read via GetCredentials, not
// treat each signal as a queued event.
func (fs *FileStore) Reloaded() <-chan struct{} { return fs.reloadCh }

// Close stops the file watcher.
func (fs *FileStore) Close() error { return fs.watcher.Close() }

func (fs *FileStore) watch() {
	credPath := filepath.Join(fs.root, credentialsFileName)
	for {
		select {
		case ev, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != credPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case fs.reloadCh <- struct{}{}:
			default:
			}
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.log.Warn("cache file watch error", "error", err)
		}
	}
}

func (fs *FileStore) GetCredentials(ctx context.Context) (credentials.Credentials, bool, error) {
	raw, err := os.ReadFile(filepath.Join(fs.root, credentialsFileName))
	if errors.Is(err, os.ErrNotExist) {
		return credentials.Credentials{}, false, nil
	}
	if err != nil {
		return credentials.Credentials{}, false, coreerr.Unavailable(err)
	}

	var claims credentialsClaims
	_, err = jwt.ParseWithClaims(string(raw), &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("cache: unexpected credentials signing method %v", t.Method)
		}
		return fs.signingKey, nil
	})
	if err != nil {
		return credentials.Credentials{}, false, coreerr.FailedPrecondition(fmt.Errorf("cache: credentials file failed integrity check: %w", err))
	}

	authData, err := base64.StdEncoding.DecodeString(claims.AuthData)
	if err != nil {
		return credentials.Credentials{}, false, coreerr.FailedPrecondition(fmt.Errorf("cache: decoding auth data: %w", err))
	}

	return credentials.Credentials{
		Username: claims.Username,
		AuthType: credentials.AuthType(claims.AuthType),
		AuthData: authData,
	}, true, nil
}

func (fs *FileStore) PutCredentials(ctx context.Context, creds credentials.Credentials) error {
	claims := credentialsClaims{
		Username: creds.Username,
		AuthType: int(creds.AuthType),
		AuthData: base64.StdEncoding.EncodeToString(creds.AuthData),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(fs.signingKey)
	if err != nil {
		return fmt.Errorf("cache: signing credentials: %w", err)
	}
	return os.WriteFile(filepath.Join(fs.root, credentialsFileName), []byte(signed), 0o600)
}

func (fs *FileStore) GetAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId) (audiokey.Key, bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	key, ok := fs.audioKeys[audioKeyEntry{trackID, fileID}]
	return key, ok, nil
}

func (fs *FileStore) PutAudioKey(ctx context.Context, trackID ids.SpotifyId, fileID ids.FileId, key audiokey.Key) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.audioKeys[audioKeyEntry{trackID, fileID}] = key
	return nil
}

func (fs *FileStore) filePath(fileID ids.FileId) string {
	return filepath.Join(fs.root, "files", hex.EncodeToString(fileID[:]))
}

func (fs *FileStore) GetFile(ctx context.Context, fileID ids.FileId) (io.ReadCloser, bool, error) {
	f, err := os.Open(fs.filePath(fileID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, coreerr.Unavailable(err)
	}
	return f, true, nil
}

func (fs *FileStore) PutFile(ctx context.Context, fileID ids.FileId, r io.Reader) error {
	path := fs.filePath(fileID)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return coreerr.Unavailable(err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return coreerr.Unavailable(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return coreerr.Unavailable(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return coreerr.Unavailable(err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
