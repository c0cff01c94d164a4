package sessionconfig

import (
	"testing"

	"github.com/librespot-org/librespot-sub003/internal/metadata"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envDeviceID, envDeviceName, envBitrate, envProxyURL, envAPPort, envCacheRoot, envTOTPSecret, envDiscoverPort} {
		t.Setenv(k, "")
	}
}

func TestFromEnvGeneratesRandomDeviceIDByDefault(t *testing.T) {
	clearEnv(t)
	a, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	b, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if a.DeviceID == "" {
		t.Error("expected a non-empty generated device id")
	}
	if a.DeviceID == b.DeviceID {
		t.Error("two unconfigured FromEnv calls should not share a device id")
	}
}

func TestFromEnvHonorsExplicitDeviceID(t *testing.T) {
	clearEnv(t)
	t.Setenv(envDeviceID, "fixed-device-id")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DeviceID != "fixed-device-id" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "fixed-device-id")
	}
}

func TestFromEnvDefaultsBitratePreferenceToHighestFirst(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if len(cfg.BitratePreference) == 0 || cfg.BitratePreference[0] != metadata.FormatOggVorbis320 {
		t.Errorf("BitratePreference = %v, want OGG_VORBIS_320 first", cfg.BitratePreference)
	}
}

func TestFromEnvParsesCustomBitrateList(t *testing.T) {
	clearEnv(t)
	t.Setenv(envBitrate, "mp3_320, ogg_vorbis_96")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want := []metadata.AudioFileFormat{metadata.FormatMP3320, metadata.FormatOggVorbis96}
	if len(cfg.BitratePreference) != len(want) {
		t.Fatalf("BitratePreference = %v, want %v", cfg.BitratePreference, want)
	}
	for i, f := range want {
		if cfg.BitratePreference[i] != f {
			t.Errorf("BitratePreference[%d] = %v, want %v", i, cfg.BitratePreference[i], f)
		}
	}
}

func TestFromEnvParsesProxyURL(t *testing.T) {
	clearEnv(t)
	t.Setenv(envProxyURL, "http://proxy.example.com:8080")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ProxyURL == nil || cfg.ProxyURL.Host != "proxy.example.com:8080" {
		t.Errorf("ProxyURL = %v, want host proxy.example.com:8080", cfg.ProxyURL)
	}
}

func TestFromEnvRejectsMalformedAPPort(t *testing.T) {
	clearEnv(t)
	t.Setenv(envAPPort, "not-a-port")
	if _, err := FromEnv(); err == nil {
		t.Error("expected an error for a non-numeric AP port")
	}
}

func TestFromEnvDefaultsCacheRootWhenUnset(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.CacheRoot == "" {
		t.Error("expected a non-empty default cache root")
	}
}

func TestFromEnvDefaultsDiscoveryPortWhenUnset(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DiscoveryPort != defaultDiscoveryPort {
		t.Errorf("DiscoveryPort = %d, want %d", cfg.DiscoveryPort, defaultDiscoveryPort)
	}
}

func TestFromEnvParsesExplicitDiscoveryPort(t *testing.T) {
	clearEnv(t)
	t.Setenv(envDiscoverPort, "9999")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DiscoveryPort != 9999 {
		t.Errorf("DiscoveryPort = %d, want 9999", cfg.DiscoveryPort)
	}
}

func TestFromEnvRejectsMalformedDiscoveryPort(t *testing.T) {
	clearEnv(t)
	t.Setenv(envDiscoverPort, "not-a-port")
	if _, err := FromEnv(); err == nil {
		t.Error("expected an error for a non-numeric discovery port")
	}
}
