// Package session wires every internal subcomponent into one session: the
// access-point connection and login, Mercury, the audio-key client, the
// dealer, the connect-controller state, and the player. Grounded on
// spec.md §9's "central Session value owning a set of named subcomponents;
// subcomponents hold a weak back-reference" design note and
// original_source/core/src/component.rs's component! macro (an Arc<Weak
// Session> baked into every subcomponent). Go has no built-in weak
// pointer equivalent to Rust's Weak<T>, so the same effect — a
// subcomponent can ask the session to do something without keeping it
// alive or creating an ownership cycle — is had by handing each
// subcomponent a plain function value (writeFrame, a URLProvider, a
// spclient resolver closure) instead of a back-reference to the Session
// itself; every internal/* package here was already built against that
// closure-shaped contract.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/librespot-org/librespot-sub003/internal/apiclient"
	"github.com/librespot-org/librespot-sub003/internal/apresolve"
	"github.com/librespot-org/librespot-sub003/internal/audiofile"
	"github.com/librespot-org/librespot-sub003/internal/audiokey"
	"github.com/librespot-org/librespot-sub003/internal/cache"
	"github.com/librespot-org/librespot-sub003/internal/cdnurl"
	"github.com/librespot-org/librespot-sub003/internal/channel"
	"github.com/librespot-org/librespot-sub003/internal/connection"
	"github.com/librespot-org/librespot-sub003/internal/controlapi"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/dealer"
	"github.com/librespot-org/librespot-sub003/internal/discovery"
	"github.com/librespot-org/librespot-sub003/internal/ids"
	"github.com/librespot-org/librespot-sub003/internal/mercury"
	"github.com/librespot-org/librespot-sub003/internal/metadata"
	"github.com/librespot-org/librespot-sub003/internal/player"
	"github.com/librespot-org/librespot-sub003/internal/sessionconfig"
	"github.com/librespot-org/librespot-sub003/internal/spirc"
	"github.com/librespot-org/librespot-sub003/internal/token"
)

// Session owns every long-lived subcomponent for one logged-in device.
type Session struct {
	cfg sessionconfig.SessionConfig
	log *slog.Logger

	cache      cache.Store
	httpClient *apiclient.Client
	resolver   *apresolve.Resolver

	conn    net.Conn
	codec   *connection.Codec
	welcome *connection.WelcomeInfo

	mercuryClient  *mercury.Client
	audioKeyClient *audiokey.Client
	channels       *channel.Mux

	metadataClient *metadata.Client
	clientToken    *token.ClientTokenProvider
	tokens         *token.Provider

	dealer  *dealer.Dealer
	connect *spirc.ConnectState
	player  *player.Player

	pairing    *discovery.Server
	pairingSrv *http.Server

	cancel context.CancelFunc
}

// Connect dials an access point resolved via apresolve, performs the
// Diffie-Hellman handshake and login, and wires every subcomponent that
// depends on an authenticated connection. Grounded on
// original_source/core/src/session.rs's Session::connect.
func Connect(ctx context.Context, cfg sessionconfig.SessionConfig, store cache.Store, creds credentials.Credentials) (*Session, error) {
	runCtx, cancel := context.WithCancel(ctx)

	log := slog.Default().With("component", "session", "device_id", cfg.DeviceID)
	httpClient := apiclient.New(10*time.Second, 10*time.Millisecond)

	var apPort *int
	if cfg.APPort != 0 {
		p := cfg.APPort
		apPort = &p
	}
	resolver := apresolve.New(httpClient, apPort)

	apHost, err := resolver.Resolve(runCtx, apresolve.EndpointAccessPoint)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("session: resolving access point: %w", err)
	}

	conn, err := net.Dial("tcp", apHost)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("session: dialing access point %s: %w", apHost, err)
	}

	codec, err := connection.Handshake(conn)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("session: handshake: %w", err)
	}

	welcome, err := connection.Login(codec, creds, cfg.DeviceID)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("session: login: %w", err)
	}

	if err := store.PutCredentials(runCtx, welcome.ReusableCredentials); err != nil {
		log.Warn("caching reusable credentials failed", "err", err)
	}

	writeFrame := func(cmd connection.Command, payload []byte) error {
		return codec.WriteFrame(cmd, payload)
	}

	s := &Session{
		cfg:            cfg,
		log:            log,
		cache:          store,
		httpClient:     httpClient,
		resolver:       resolver,
		conn:           conn,
		codec:          codec,
		welcome:        welcome,
		mercuryClient:  mercury.NewClient(writeFrame),
		audioKeyClient: audiokey.NewClient(writeFrame),
		channels:       channel.NewMux(),
		cancel:         cancel,
	}

	connection.Dispatch(runCtx, codec, connection.Handlers{
		Mercury: s.mercuryClient.HandleFrame,
		AesKey:  s.audioKeyClient.HandleFrame,
		Channel: s.channels.HandleFrame,
		OnDisconnect: func(err error) {
			log.Warn("access-point connection lost", "err", err)
		},
	}, log)

	s.tokens = token.NewProvider(s.fetchKeymasterToken)
	s.clientToken = token.NewClientTokenProvider(httpClient)

	s.metadataClient = metadata.NewClient(httpClient, s.spclientAuth, func() string { return "US" }, func() string { return "" })

	s.dealer = dealer.New(s.dealerURL)
	s.connect = spirc.New()

	go func() {
		if err := s.dealer.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Error("dealer connection loop exited", "err", err)
		}
	}()

	s.player = player.New(player.Config{
		Metadata:   s.metadataClient,
		AudioKey:   s.audioKeyClient,
		ResolveCDN: s.resolveCDN,
		HTTPClient: httpClient,
		FileConfig: audiofile.DefaultConfig(320_000 / 8),
		Preference: cfg.BitratePreference,
		Mode:       player.ModeVorbis,
	})

	if cfg.DeviceName != "" {
		if err := s.startPairing(runCtx); err != nil {
			log.Warn("zeroconf pairing façade unavailable", "err", err)
		}
	}

	return s, nil
}

// startPairing advertises this device over mDNS and serves the addUser/
// getInfo HTTP handler for as long as the session runs, so a controller app
// can re-pair a new account onto an already-connected device. Grounded on
// original_source/core/src/connection.rs's session lifecycle keeping the
// zeroconf listener alive alongside the active access-point connection,
// not just during an initial unauthenticated bootstrap.
func (s *Session) startPairing(ctx context.Context) error {
	pairing, err := discovery.New(discovery.Config{
		DeviceID:   s.cfg.DeviceID,
		DeviceName: s.cfg.DeviceName,
		Port:       s.cfg.DiscoveryPort,
	}, s.onPaired)
	if err != nil {
		return fmt.Errorf("constructing pairing façade: %w", err)
	}
	if err := pairing.Advertise(); err != nil {
		return fmt.Errorf("advertising mDNS service: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.DiscoveryPort))
	if err != nil {
		pairing.Shutdown()
		return fmt.Errorf("listening on discovery port: %w", err)
	}
	srv := &http.Server{Handler: pairing}
	go func() {
		if err := srv.Serve(ln); err != nil && ctx.Err() == nil {
			s.log.Warn("pairing http server exited", "err", err)
		}
	}()

	s.pairing = pairing
	s.pairingSrv = srv
	return nil
}

// onPaired is handed to discovery.New; a successful zeroconf pairing
// replaces whatever credentials this session was constructed with for the
// *next* Connect call (this session keeps running under its own login).
func (s *Session) onPaired(creds credentials.Credentials) {
	if err := s.cache.PutCredentials(context.Background(), creds); err != nil {
		s.log.Error("persisting paired credentials failed", "err", err)
	}
}

// fetchKeymasterToken issues the hm://keymaster/token/authenticated Mercury
// GET token.Provider delegates to on a cache miss.
func (s *Session) fetchKeymasterToken(scopes string) ([]byte, error) {
	uri := fmt.Sprintf("hm://keymaster/token/authenticated?scope=%s&client_id=%s&device_id=%s",
		scopes, clientID, s.cfg.DeviceID)
	respCh, err := s.mercuryClient.Request(mercury.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp := <-respCh
	if len(resp.Parts) == 0 {
		return nil, fmt.Errorf("session: empty keymaster token response")
	}
	return resp.Parts[0], nil
}

// clientID is the published Spotify desktop client id the keymaster token
// request and login5 exchange both authenticate as.
const clientID = "65b708073fc0480ea92a077233ca87bd"

// spclientAuth resolves the current spclient host and a bearer token
// scoped for metadata/storage-resolve requests, the shape
// metadata.NewClient's spclientFn parameter expects.
func (s *Session) spclientAuth(ctx context.Context) (string, string, error) {
	host, err := s.resolver.Resolve(ctx, apresolve.EndpointSpclient)
	if err != nil {
		return "", "", err
	}
	tok, err := s.tokens.GetToken("playlist-read")
	if err != nil {
		return "", "", err
	}
	return host, tok.AccessToken, nil
}

// dealerURL resolves a fresh dealer WebSocket URL on every (re)connect.
func (s *Session) dealerURL(ctx context.Context) (string, error) {
	host, err := s.resolver.Resolve(ctx, apresolve.EndpointDealer)
	if err != nil {
		return "", err
	}
	tok, err := s.tokens.GetToken("streaming")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wss://%s/?access_token=%s", host, tok.AccessToken), nil
}

// resolveCDN is the player.CDNResolver: a spclient storage-resolve request
// for the given file, parsed into CDN candidate URLs. Audio-key cache hits
// (handled inside internal/player's Load) bypass the audio-key request
// this depends on, per spec.md §6, but never this CDN resolution step.
func (s *Session) resolveCDN(ctx context.Context, fileID ids.FileId) (cdnurl.CdnURL, error) {
	host, bearer, err := s.spclientAuth(ctx)
	if err != nil {
		return cdnurl.CdnURL{}, err
	}
	url := fmt.Sprintf("https://%s/storage-resolve/files/audio/interactive/%s", host, fileID.ToBase16())
	body, _, err := s.httpClient.GetJSON(ctx, url, map[string]string{"Authorization": "Bearer " + bearer})
	if err != nil {
		return cdnurl.CdnURL{}, err
	}
	return cdnurl.ParseStorageResolveResponse(fileID, body)
}

// Status implements controlapi.StatusProvider.
func (s *Session) Status() controlapi.StatusSnapshot {
	snap := controlapi.StatusSnapshot{
		DeviceName: s.cfg.DeviceName,
		Connected:  s.conn != nil,
	}
	if s.connect != nil {
		st := s.connect.Player
		switch {
		case st.IsPlaying:
			snap.PlayerStatus = "playing"
		case st.IsPaused:
			snap.PlayerStatus = "paused"
		default:
			snap.PlayerStatus = "stopped"
		}
		snap.PositionMs = st.PositionMs
		if st.Track != nil {
			snap.TrackURI = st.Track.URI
		}
		snap.QueueLength = len(s.connect.NextTracks)
	}
	return snap
}

// ControlAPI builds the read-only debug HTTP surface for this session.
func (s *Session) ControlAPI() *controlapi.Server {
	return controlapi.New(s)
}

// Player exposes the decode pipeline for a caller wiring up an audio sink.
func (s *Session) Player() *player.Player { return s.player }

// Connect exposes the connect-controller state for dealer command routing.
func (s *Session) ConnectState() *spirc.ConnectState { return s.connect }

// Dealer exposes the command websocket for subscribing to playlist/queue
// push notifications.
func (s *Session) Dealer() *dealer.Dealer { return s.dealer }

// Close cancels every background task, closes the player, the dealer, the
// zeroconf façade, and the access-point socket. Grounded on spec.md §5's
// "Dropping the Session aborts all its spawned tasks, closes sockets, wakes
// all waiters with Aborted."
func (s *Session) Close() {
	s.cancel()
	if s.player != nil {
		s.player.Close()
	}
	if s.dealer != nil {
		s.dealer.Close()
	}
	if s.pairingSrv != nil {
		s.pairingSrv.Close()
	}
	if s.pairing != nil {
		s.pairing.Shutdown()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
