// Package discovery is the zeroconf pairing façade: an mDNS advertisement
// so a Spotify Connect controller can find this device on the LAN, and a
// small HTTP handler implementing the getInfo/addUser pairing exchange a
// controller uses to hand over a user's stored credentials. Out of scope as
// a product feature, but its two dependencies — github.com/hashicorp/mdns
// and golang.org/x/crypto/pbkdf2 — are given a concrete, exercised home
// here rather than left unwired, mirroring how services/api/internal/discovery
// advertises the API server and how original_source/src/discovery.rs and
// original_source/core/src/authentication.rs implement the real pairing
// protocol and stored-blob format.
package discovery

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/hashicorp/mdns"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
	"github.com/librespot-org/librespot-sub003/internal/dhkex"
)

const serviceType = "_spotify-connect._tcp"

// Config configures the advertised device identity.
type Config struct {
	DeviceID   string
	DeviceName string
	Port       int
}

// Server advertises this device over mDNS and serves the zeroconf pairing
// endpoints a controller app posts to once it has found the advertisement.
type Server struct {
	cfg      Config
	keys     *dhkex.LocalKeys
	mdns     *mdns.Server
	onPaired func(credentials.Credentials)
	log      *slog.Logger
}

// New builds a pairing Server. onPaired is invoked with the credentials
// recovered from a successful addUser request; the caller decides whether
// to log in with them immediately or persist them first.
func New(cfg Config, onPaired func(credentials.Credentials)) (*Server, error) {
	keys, err := dhkex.Generate()
	if err != nil {
		return nil, fmt.Errorf("discovery: generating pairing keypair: %w", err)
	}
	name := cfg.DeviceName
	if name == "" {
		if h, err := os.Hostname(); err == nil {
			name = h
		} else {
			name = "librespot"
		}
	}
	cfg.DeviceName = name
	return &Server{
		cfg:      cfg,
		keys:     keys,
		onPaired: onPaired,
		log:      slog.Default().With("component", "discovery"),
	}, nil
}

// Advertise starts the mDNS responder. Grounded on
// services/api/internal/discovery/discovery.go's Server.Start, generalized
// from the "_orb._tcp" API-discovery service to Spotify Connect's service
// type and TXT record shape.
func (s *Server) Advertise() error {
	service, err := mdns.NewMDNSService(
		s.cfg.DeviceName,
		serviceType,
		"", "",
		s.cfg.Port,
		nil,
		[]string{"VERSION=1.0", "CPath=/", "Stack=SP"},
	)
	if err != nil {
		return fmt.Errorf("discovery: mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("discovery: mdns server: %w", err)
	}
	s.mdns = server
	s.log.Info("advertising zeroconf pairing", "name", s.cfg.DeviceName, "service", serviceType, "port", s.cfg.Port)
	return nil
}

// Shutdown stops the mDNS responder.
func (s *Server) Shutdown() {
	if s.mdns != nil {
		s.mdns.Shutdown()
		s.log.Info("zeroconf advertisement stopped")
	}
}

type getInfoResponse struct {
	Status       int    `json:"status"`
	StatusString string `json:"statusString"`
	SpotifyError int    `json:"spotifyError"`
	Version      string `json:"version"`
	DeviceID     string `json:"deviceID"`
	RemoteName   string `json:"remoteName"`
	PublicKey    string `json:"publicKey"`
	DeviceType   string `json:"deviceType"`
	ActiveUser   string `json:"activeUser"`
	GroupStatus  string `json:"groupStatus"`
}

// ServeHTTP implements the two zeroconf actions a controller drives:
// ?action=getInfo to discover our public key and identity, and
// action=addUser (POST form body) to hand over a paired user's encrypted
// credential blob.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "getInfo":
		s.handleGetInfo(w, r)
	case "addUser":
		s.handleAddUser(w, r)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	resp := getInfoResponse{
		Status:       101,
		StatusString: "OK",
		Version:      "2.9.0",
		DeviceID:     s.cfg.DeviceID,
		RemoteName:   s.cfg.DeviceName,
		PublicKey:    base64.StdEncoding.EncodeToString(s.keys.PublicKey()),
		DeviceType:   "SPEAKER",
		ActiveUser:   "",
		GroupStatus:  "NONE",
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form body", http.StatusBadRequest)
		return
	}

	username := r.FormValue("userName")
	clientKeyB64 := r.FormValue("clientKey")
	blobB64 := r.FormValue("blob")
	checksumB64 := r.FormValue("checksum")
	if username == "" || clientKeyB64 == "" || blobB64 == "" || checksumB64 == "" {
		http.Error(w, "missing required field", http.StatusBadRequest)
		return
	}

	clientKey, err := base64.StdEncoding.DecodeString(clientKeyB64)
	if err != nil {
		http.Error(w, "malformed clientKey", http.StatusBadRequest)
		return
	}
	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		http.Error(w, "malformed blob", http.StatusBadRequest)
		return
	}
	checksum, err := hexOrBase64(checksumB64)
	if err != nil {
		http.Error(w, "malformed checksum", http.StatusBadRequest)
		return
	}

	creds, err := pairUser(s.keys, username, s.cfg.DeviceID, clientKey, blob, checksum)
	if err != nil {
		s.log.Warn("addUser pairing failed", "err", err, "kind", kindOf(err))
		http.Error(w, "pairing failed", http.StatusForbidden)
		return
	}

	s.log.Info("paired new user via zeroconf", "username", creds.Username)
	if s.onPaired != nil {
		s.onPaired(creds)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(getInfoResponse{Status: 101, StatusString: "OK"})
}

func hexOrBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func kindOf(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*coreerr.Error); ok {
		return e.Kind.String()
	}
	return "unknown"
}
