package cdnurl

import (
	"testing"
	"time"

	"github.com/librespot-org/librespot-sub003/internal/ids"
)

func appendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func appendTag(b []byte, field int, wireType byte) []byte {
	return appendVarint(b, uint64(field)<<3|uint64(wireType))
}

func appendStringField(b []byte, field int, s string) []byte {
	b = appendTag(b, field, 2)
	b = appendVarint(b, uint64(len(s)))
	return append(b, s...)
}

func buildResponse(result int, urls []string, fileID []byte) []byte {
	var b []byte
	b = appendTag(b, 1, 0)
	b = appendVarint(b, uint64(result))
	for _, u := range urls {
		b = appendStringField(b, 2, u)
	}
	if len(fileID) > 0 {
		b = appendTag(b, 4, 2)
		b = appendVarint(b, uint64(len(fileID)))
		b = append(b, fileID...)
	}
	return b
}

func TestParseExpiryAkamaizedExample(t *testing.T) {
	raw := "https://audio-gm-fb.spotifycdn.com/audio/foo?__token__=st=1699990000~exp=1700000000~acl=/audio/*"
	expiry, err := parseExpiry(raw)
	if err != nil {
		t.Fatalf("parseExpiry: %v", err)
	}
	want := time.Unix(1700000000-300, 0).UTC()
	if !expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", expiry, want)
	}
}

func TestParseExpiryScdnExample(t *testing.T) {
	raw := "https://audio4-ak-spotify-com.akamaized.net/audio/foo?1700000000_abcdef"
	expiry, err := parseExpiry(raw)
	if err != nil {
		t.Fatalf("parseExpiry: %v", err)
	}
	want := time.Unix(1700000000-300, 0).UTC()
	if !expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", expiry, want)
	}
}

func TestParseStorageResolveResponseNonExpiring(t *testing.T) {
	payload := buildResponse(0, []string{"https://example.com/a", "https://example.com/b"}, nil)
	fid := ids.FileId{}
	cdn, err := ParseStorageResolveResponse(fid, payload)
	if err != nil {
		t.Fatalf("ParseStorageResolveResponse: %v", err)
	}
	if len(cdn.URLs) != 2 {
		t.Fatalf("got %d urls, want 2", len(cdn.URLs))
	}
	for _, u := range cdn.URLs {
		if u.Expiry != nil {
			t.Errorf("non-expiring response produced an expiry for %q", u.URL)
		}
	}
}

func TestParseStorageResolveResponseExpiring(t *testing.T) {
	url := "https://audio4-ak-spotify-com.akamaized.net/audio/foo?__token__=exp=1700000000~acl=/*"
	payload := buildResponse(0, []string{url}, []byte{1, 2, 3, 4})
	fid := ids.FileId{}
	cdn, err := ParseStorageResolveResponse(fid, payload)
	if err != nil {
		t.Fatalf("ParseStorageResolveResponse: %v", err)
	}
	if len(cdn.URLs) != 1 || cdn.URLs[0].Expiry == nil {
		t.Fatalf("expected a single expiring URL, got %+v", cdn.URLs)
	}
}

func TestParseStorageResolveResponseNonCDNErrors(t *testing.T) {
	payload := buildResponse(1, []string{"https://example.com/a"}, nil)
	fid := ids.FileId{}
	if _, err := ParseStorageResolveResponse(fid, payload); err == nil {
		t.Error("expected an error for a non-CDN storage result")
	}
}

func TestTryGetURLSkipsExpired(t *testing.T) {
	now := time.Unix(1700000500, 0).UTC()
	expired := now.Add(-time.Hour)
	valid := now.Add(time.Hour)
	cdn := CdnURL{URLs: []URL{
		{URL: "https://expired", Expiry: &expired},
		{URL: "https://valid", Expiry: &valid},
	}}
	got, err := cdn.TryGetURL(now)
	if err != nil {
		t.Fatalf("TryGetURL: %v", err)
	}
	if got != "https://valid" {
		t.Errorf("TryGetURL = %q, want https://valid", got)
	}
}

func TestTryGetURLAllExpiredErrors(t *testing.T) {
	now := time.Unix(1700000500, 0).UTC()
	expired := now.Add(-time.Hour)
	cdn := CdnURL{URLs: []URL{{URL: "https://expired", Expiry: &expired}}}
	if _, err := cdn.TryGetURL(now); err == nil {
		t.Error("expected an error when every URL has expired")
	}
}
