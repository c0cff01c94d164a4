// Package sessionconfig builds a SessionConfig from the process environment,
// the one place every other component's startup knobs are read from.
// Grounded on pkg/config's Env(key, def) pattern. CLI flag parsing stays out
// of scope (an external collaborator interface) — a caller wanting flags
// wraps FromEnv's env vars itself.
package sessionconfig

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/librespot-org/librespot-sub003/internal/metadata"
)

// defaultBitratePreference orders the formats PreferredFile falls back
// through when BitratePreference isn't overridden: highest-quality Vorbis
// first, then progressively lower, MP3/AAC variants last.
var defaultBitratePreference = []metadata.AudioFileFormat{
	metadata.FormatOggVorbis320,
	metadata.FormatOggVorbis160,
	metadata.FormatOggVorbis96,
	metadata.FormatMP3320,
	metadata.FormatMP3256,
	metadata.FormatMP3160,
	metadata.FormatAAC48,
	metadata.FormatAAC24,
}

// SessionConfig holds every environment-driven knob a session's
// subcomponents are constructed from.
type SessionConfig struct {
	// DeviceID uniquely identifies this install; it seeds the PBKDF2 secret
	// for stored-credential blobs and the spirc device_id. Defaults to a
	// freshly generated random UUID if LIBRESPOT_DEVICE_ID is unset.
	DeviceID string
	// DeviceName is shown to other Connect devices on the account.
	DeviceName string
	// BitratePreference is the PreferredFile fallback order Load walks.
	BitratePreference []metadata.AudioFileFormat
	// ProxyURL, if set, routes outbound HTTP (apresolve, spclient, CDN)
	// through an HTTP(S) proxy.
	ProxyURL *url.URL
	// APPort overrides the access-point TCP port apresolve would otherwise
	// choose, for networks that only permit a specific outbound port.
	APPort int
	// CacheRoot is the directory internal/cache.FileStore reads and writes.
	CacheRoot string
	// ClientTokenTOTPSecret is the base32 secret internal/token folds into
	// the login5 client-token challenge response.
	ClientTokenTOTPSecret string
	// DiscoveryPort is the TCP port the zeroconf pairing façade's mDNS
	// advertisement and addUser/getInfo HTTP handler listen on.
	DiscoveryPort int
}

const (
	envDeviceID     = "LIBRESPOT_DEVICE_ID"
	envDeviceName   = "LIBRESPOT_DEVICE_NAME"
	envBitrate      = "LIBRESPOT_BITRATE"
	envProxyURL     = "LIBRESPOT_PROXY_URL"
	envAPPort       = "LIBRESPOT_AP_PORT"
	envCacheRoot    = "LIBRESPOT_CACHE_ROOT"
	envTOTPSecret   = "LIBRESPOT_CLIENT_TOKEN_TOTP_SECRET"
	envDiscoverPort = "LIBRESPOT_DISCOVERY_PORT"
)

const defaultDiscoveryPort = 5355

// FromEnv populates a SessionConfig from the process environment, applying
// the same documented defaults a fresh install starts with.
func FromEnv() (SessionConfig, error) {
	cfg := SessionConfig{
		DeviceID:              env(envDeviceID, ""),
		DeviceName:            env(envDeviceName, "librespot"),
		BitratePreference:     bitratePreferenceFromEnv(env(envBitrate, "")),
		CacheRoot:             env(envCacheRoot, defaultCacheRoot()),
		ClientTokenTOTPSecret: env(envTOTPSecret, ""),
		DiscoveryPort:         defaultDiscoveryPort,
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}

	if raw := env(envProxyURL, ""); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return SessionConfig{}, err
		}
		cfg.ProxyURL = u
	}

	if raw := env(envAPPort, ""); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return SessionConfig{}, err
		}
		cfg.APPort = port
	}

	if raw := env(envDiscoverPort, ""); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return SessionConfig{}, err
		}
		cfg.DiscoveryPort = port
	}

	return cfg, nil
}

func bitratePreferenceFromEnv(raw string) []metadata.AudioFileFormat {
	if raw == "" {
		return defaultBitratePreference
	}
	var out []metadata.AudioFileFormat
	for _, name := range strings.Split(raw, ",") {
		if f, ok := parseFormatName(strings.TrimSpace(name)); ok {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return defaultBitratePreference
	}
	return out
}

func parseFormatName(name string) (metadata.AudioFileFormat, bool) {
	switch strings.ToUpper(name) {
	case "OGG_VORBIS_320":
		return metadata.FormatOggVorbis320, true
	case "OGG_VORBIS_160":
		return metadata.FormatOggVorbis160, true
	case "OGG_VORBIS_96":
		return metadata.FormatOggVorbis96, true
	case "MP3_320":
		return metadata.FormatMP3320, true
	case "MP3_256":
		return metadata.FormatMP3256, true
	case "MP3_160":
		return metadata.FormatMP3160, true
	case "MP3_96":
		return metadata.FormatMP396, true
	case "AAC_48":
		return metadata.FormatAAC48, true
	case "AAC_24":
		return metadata.FormatAAC24, true
	default:
		return 0, false
	}
}

func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/librespot"
	}
	return ".librespot-cache"
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
