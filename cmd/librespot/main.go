// Command librespot runs one Spotify Connect session: it logs in (from a
// cached, env-provided, or zeroconf-paired credential), wires every
// subcomponent via pkg/session, and serves the local control API until
// the process is signaled to stop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/librespot-org/librespot-sub003/internal/cache"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/discovery"
	"github.com/librespot-org/librespot-sub003/internal/sessionconfig"
	"github.com/librespot-org/librespot-sub003/pkg/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := sessionconfig.FromEnv()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := cache.NewFileStore(cfg.CacheRoot, []byte(cfg.DeviceID))
	if err != nil {
		return fmt.Errorf("opening cache store: %w", err)
	}

	creds, err := obtainCredentials(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("obtaining credentials: %w", err)
	}

	sess, err := session.Connect(ctx, cfg, store, creds)
	if err != nil {
		return fmt.Errorf("connecting session: %w", err)
	}
	defer sess.Close()

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(envOrDefaultInt("LIBRESPOT_CONTROL_PORT", 3678)),
		Handler:      sess.ControlAPI().Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	slog.Info("control api listening", "addr", srv.Addr, "device_name", cfg.DeviceName)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control api: %w", err)
	}
	return nil
}

// obtainCredentials picks the first usable credential source: explicit
// username/password env vars, a cached reusable credential from a prior
// run, or — last resort — blocking until a controller app completes
// zeroconf pairing against this device. Grounded on
// original_source/core/src/authentication.rs's credential precedence
// (an explicit credential always wins over a cached one) and spec.md §1's
// zeroconf Non-goal, which excludes a full pairing UI but not this
// minimal bootstrap path.
func obtainCredentials(ctx context.Context, cfg sessionconfig.SessionConfig, store cache.Store) (credentials.Credentials, error) {
	if user, pass := os.Getenv("SPOTIFY_USERNAME"), os.Getenv("SPOTIFY_PASSWORD"); user != "" && pass != "" {
		return credentials.Credentials{Username: user, AuthType: credentials.AuthPassword, AuthData: []byte(pass)}, nil
	}

	if creds, ok, err := store.GetCredentials(ctx); err != nil {
		return credentials.Credentials{}, fmt.Errorf("reading cached credentials: %w", err)
	} else if ok {
		slog.Info("using cached credentials", "username", creds.Username)
		return creds, nil
	}

	slog.Info("no cached or env credentials; waiting for zeroconf pairing", "device_name", cfg.DeviceName)
	return waitForPairing(ctx, cfg)
}

// waitForPairing advertises this device over mDNS and blocks until a
// controller app completes the addUser handshake, or ctx is canceled.
func waitForPairing(ctx context.Context, cfg sessionconfig.SessionConfig) (credentials.Credentials, error) {
	paired := make(chan credentials.Credentials, 1)
	pairing, err := discovery.New(discovery.Config{
		DeviceID:   cfg.DeviceID,
		DeviceName: cfg.DeviceName,
		Port:       cfg.DiscoveryPort,
	}, func(creds credentials.Credentials) {
		select {
		case paired <- creds:
		default:
		}
	})
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("starting pairing façade: %w", err)
	}
	defer pairing.Shutdown()

	if err := pairing.Advertise(); err != nil {
		return credentials.Credentials{}, fmt.Errorf("advertising zeroconf service: %w", err)
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.DiscoveryPort))
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("listening for pairing requests: %w", err)
	}
	httpSrv := &http.Server{Handler: pairing}
	go func() { _ = httpSrv.Serve(ln) }()
	defer httpSrv.Close()

	select {
	case creds := <-paired:
		return creds, nil
	case <-ctx.Done():
		return credentials.Credentials{}, ctx.Err()
	}
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
