package player

import (
	"context"
	"testing"
	"time"

	"github.com/librespot-org/librespot-sub003/internal/cdnurl"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/decoder"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

type fakeSource struct{ data []byte }

func (f *fakeSource) Size() int64 { return int64(len(f.data)) }

func (f *fakeSource) ReadAt(ctx context.Context, offset int64, buf []byte) (int, error) {
	if offset >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(buf, f.data[offset:])
	return n, nil
}

func TestSubfileHidesLeadingHeaderBytes(t *testing.T) {
	inner := &fakeSource{data: []byte("HEADERPAYLOAD")}
	sf := newSubfile(inner, 6)

	if got, want := sf.Size(), int64(len("PAYLOAD")); got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}

	buf := make([]byte, 4)
	n, err := sf.ReadAt(context.Background(), 0, buf)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf[:n]) != "PAYL" {
		t.Errorf("ReadAt(0) = %q, want %q", buf[:n], "PAYL")
	}
}

func TestSubfileSizeClampsAtZeroWhenShorterThanOffset(t *testing.T) {
	inner := &fakeSource{data: []byte("short")}
	sf := newSubfile(inner, 100)
	if got := sf.Size(); got != 0 {
		t.Errorf("Size() = %d, want 0", got)
	}
}

func TestMsToGranuleConvertsAtSampleRate(t *testing.T) {
	if got, want := msToGranule(1000, 44100), uint64(44100); got != want {
		t.Errorf("msToGranule(1000, 44100) = %d, want %d", got, want)
	}
	if got, want := msToGranule(500, 44100), uint64(22050); got != want {
		t.Errorf("msToGranule(500, 44100) = %d, want %d", got, want)
	}
	if got := msToGranule(-10, 44100); got != 0 {
		t.Errorf("msToGranule(-10, ...) = %d, want 0 (clamped)", got)
	}
}

func TestPacketDurationMsScalesWithSampleRate(t *testing.T) {
	pkt := &decoder.Packet{Kind: decoder.KindSamples, Samples: make([]float64, 2048)}
	got := packetDurationMs(pkt, 44100)
	if got <= 0 {
		t.Fatalf("packetDurationMs = %d, want a positive duration", got)
	}
	if slower := packetDurationMs(pkt, 22050); slower <= got {
		t.Errorf("halving the sample rate should roughly double the estimated duration: got %d at 44100Hz, %d at 22050Hz", got, slower)
	}
}

func TestBuildURLProviderCachesUntilExpired(t *testing.T) {
	fileID := ids.FileId{}
	calls := 0
	future := time.Now().Add(time.Hour)

	resolver := func(ctx context.Context, f ids.FileId) (cdnurl.CdnURL, error) {
		calls++
		return cdnurl.CdnURL{
			FileID: f,
			URLs:   []cdnurl.URL{{URL: "https://cdn.example/ok", Expiry: &future}},
		}, nil
	}

	provider := buildURLProvider(resolver, fileID)

	for i := 0; i < 3; i++ {
		url, err := provider(context.Background())
		if err != nil {
			t.Fatalf("provider call %d: %v", i, err)
		}
		if url != "https://cdn.example/ok" {
			t.Errorf("url = %q, want the cached CDN URL", url)
		}
	}

	if calls != 1 {
		t.Errorf("resolver was called %d times, want exactly 1 (cached across repeat calls)", calls)
	}
}

func TestBuildURLProviderReResolvesOnceExpired(t *testing.T) {
	fileID := ids.FileId{}
	calls := 0
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	resolver := func(ctx context.Context, f ids.FileId) (cdnurl.CdnURL, error) {
		calls++
		if calls == 1 {
			return cdnurl.CdnURL{URLs: []cdnurl.URL{{URL: "https://cdn.example/stale", Expiry: &past}}}, nil
		}
		return cdnurl.CdnURL{URLs: []cdnurl.URL{{URL: "https://cdn.example/fresh", Expiry: &future}}}, nil
	}

	provider := buildURLProvider(resolver, fileID)

	if _, err := provider(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	url, err := provider(context.Background())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if url != "https://cdn.example/fresh" {
		t.Errorf("url = %q, want a re-resolved fresh URL", url)
	}
	if calls != 2 {
		t.Errorf("resolver was called %d times, want 2 (one re-resolve after expiry)", calls)
	}
}

func TestBuildURLProviderPropagatesResolverError(t *testing.T) {
	wantErr := coreerr.Unavailable(nil)
	resolver := func(ctx context.Context, f ids.FileId) (cdnurl.CdnURL, error) {
		return cdnurl.CdnURL{}, wantErr
	}
	provider := buildURLProvider(resolver, ids.FileId{})

	if _, err := provider(context.Background()); err != wantErr {
		t.Errorf("provider error = %v, want %v", err, wantErr)
	}
}
