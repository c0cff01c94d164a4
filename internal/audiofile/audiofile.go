// Package audiofile implements the chunked, sparse-fetch audio file reader:
// a seekable, length-known byte stream backed by concurrent HTTPS range GETs
// against a CDN URL, with readahead that adapts to observed throughput and
// playback position. Grounded on spec.md §4.6.
package audiofile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/librespot-org/librespot-sub003/internal/apiclient"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/ids"
	"github.com/librespot-org/librespot-sub003/internal/rangeset"
)

// ChunkSize is the aligned unit of every range request (2^17 bytes, 128 KiB).
const ChunkSize int64 = 1 << 17

// Config tunes the adaptive readahead policy.
type Config struct {
	NominalBitrateBps  float64       // playback consumption rate, bytes/second
	MinPrefetchSeconds float64       // MIN_PREFETCHED_BYTES_BEFORE_PLAYBACK, expressed in seconds
	AheadSeconds       float64       // "during playback" readahead target, in seconds
	AheadRoundtrips    float64       // "during playback" readahead target, in round trips
	AggressiveSeconds  float64       // "before playback" readahead target, in seconds
	AggressiveRoundtrips float64     // "before playback" readahead target, in round trips
	SafetyFactor       float64       // stutter-risk threshold multiplier
	MaxFanout          int           // concurrent range GETs
	MaxRetries         int           // per-range retry cap before surfacing Unavailable
	RetryBaseDelay     time.Duration
}

// DefaultConfig mirrors the values spec.md §4.6 gives as examples.
func DefaultConfig(nominalBitrateBps float64) Config {
	return Config{
		NominalBitrateBps:    nominalBitrateBps,
		MinPrefetchSeconds:   1.0,
		AheadSeconds:         2.0,
		AheadRoundtrips:      2.0,
		AggressiveSeconds:    5.0,
		AggressiveRoundtrips: 4.0,
		SafetyFactor:         2.0,
		MaxFanout:            4,
		MaxRetries:           5,
		RetryBaseDelay:       200 * time.Millisecond,
	}
}

// URLProvider returns the current CDN URL for the file being fetched,
// re-resolving (via spclient) when the previous URL has expired.
type URLProvider func(ctx context.Context) (string, error)

// AudioFile is a seekable, length-known byte stream over a sparsely
// downloaded CDN object.
type AudioFile struct {
	fileID ids.FileId
	client *apiclient.Client
	urlFn  URLProvider
	cfg    Config
	log    *slog.Logger

	mu             sync.Mutex
	cond           *sync.Cond
	totalSize      int64
	buffer         []byte
	downloaded     rangeset.Set
	requested      rangeset.Set
	failed         rangeset.Set
	streamPosition int64
	closed         bool

	rateBps      float64 // EMA of observed bytes/second
	pingTimeMs   float64 // time to first byte of the most recent completion
	samples      int
	stutterCh    chan struct{}
	replanCh     chan struct{}
}

const emaAlpha = 0.25

// Open performs the initial range GET to learn total_size and starts the
// long-lived prefetch task. Callers must call Close when done.
func Open(ctx context.Context, client *apiclient.Client, fileID ids.FileId, urlFn URLProvider, cfg Config) (*AudioFile, error) {
	af := &AudioFile{
		fileID:    fileID,
		client:    client,
		urlFn:     urlFn,
		cfg:       cfg,
		log:       slog.Default().With("file_id", fileID.ToBase16()),
		stutterCh: make(chan struct{}, 1),
		replanCh:  make(chan struct{}, 1),
	}
	af.cond = sync.NewCond(&af.mu)

	prefetchStart := cfg.aggressiveTargetBytes(0)
	if prefetchStart < ChunkSize {
		prefetchStart = ChunkSize
	}
	data, total, err := af.fetchRange(ctx, 0, prefetchStart)
	if err != nil {
		return nil, err
	}

	af.mu.Lock()
	af.totalSize = total
	af.buffer = make([]byte, total)
	copy(af.buffer, data)
	af.downloaded.Add(rangeset.Range{Start: 0, End: int64(len(data))})
	af.mu.Unlock()

	go af.prefetchLoop(ctx)
	return af, nil
}

// Size returns the total file size, known from the Content-Range header of
// the first request.
func (af *AudioFile) Size() int64 {
	af.mu.Lock()
	defer af.mu.Unlock()
	return af.totalSize
}

// Read blocks until [offset, offset+len(buf)) is downloaded (or the file is
// closed, or ctx is cancelled, or that region has exhausted its retries). A
// request reaching past end of file is silently clamped and returns a short
// read with a nil error rather than io.EOF, unlike io.ReaderAt: callers here
// always know Size() up front and are expected to respect it.
func (af *AudioFile) Read(ctx context.Context, offset int64, buf []byte) (int, error) {
	af.mu.Lock()
	total := af.totalSize
	af.mu.Unlock()
	if offset >= total {
		return 0, io.EOF
	}
	if offset+int64(len(buf)) > total {
		buf = buf[:total-offset]
	}
	want := rangeset.Range{Start: offset, End: offset + int64(len(buf))}

	done := make(chan struct{})
	defer close(done)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				af.mu.Lock()
				af.cond.Broadcast()
				af.mu.Unlock()
			case <-done:
			}
		}()
	}

	af.mu.Lock()
	defer af.mu.Unlock()
	for {
		if af.closed {
			return 0, io.ErrClosedPipe
		}
		if af.downloaded.ContainsRange(want) {
			n := copy(buf, af.buffer[offset:offset+int64(len(buf))])
			return n, nil
		}
		failedHere := af.failed.Intersect(rangeset.New(want))
		if !failedHere.IsEmpty() {
			return 0, coreerr.Unavailable(fmt.Errorf("audiofile: region [%d,%d) failed after %d retries", want.Start, want.End, af.cfg.MaxRetries))
		}
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		af.cond.Wait()
	}
}

// Seek updates the stream position used to plan readahead and wakes the
// prefetch task to re-plan around it. In-flight requests for the old window
// are allowed to complete; their bytes are kept.
func (af *AudioFile) Seek(newOffset int64) {
	af.mu.Lock()
	af.streamPosition = newOffset
	af.mu.Unlock()
	select {
	case af.replanCh <- struct{}{}:
	default:
	}
}

// Close stops the prefetch task and wakes any blocked readers.
func (af *AudioFile) Close() {
	af.mu.Lock()
	af.closed = true
	af.cond.Broadcast()
	af.mu.Unlock()
}

// StutterRisk returns a channel that receives a value whenever the
// estimated download rate drops below playback rate × SafetyFactor for a
// sustained window. It never blocks the prefetch task (buffered, drop-if-full).
func (af *AudioFile) StutterRisk() <-chan struct{} { return af.stutterCh }

func (cfg Config) aggressiveTargetBytes(pingMs float64) int64 {
	bySeconds := cfg.AggressiveSeconds * cfg.NominalBitrateBps
	byRoundtrips := cfg.AggressiveRoundtrips * (pingMs / 1000) * cfg.NominalBitrateBps
	return int64(maxF(bySeconds, byRoundtrips))
}

func (cfg Config) aheadTargetBytes(pingMs, rateBps float64) int64 {
	rate := rateBps
	if rate <= 0 {
		rate = cfg.NominalBitrateBps
	}
	bySeconds := cfg.AheadSeconds * rate
	byRoundtrips := cfg.AheadRoundtrips * (pingMs / 1000) * rate
	return int64(maxF(bySeconds, byRoundtrips))
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// prefetchLoop is the long-lived task owned by the AudioFile: it repeatedly
// picks the next needed region, fetches it (bounded fan-out), and updates
// downloaded/requested/failed under the lock, broadcasting to wake readers.
func (af *AudioFile) prefetchLoop(ctx context.Context) {
	sem := make(chan struct{}, af.cfg.MaxFanout)
	var wg sync.WaitGroup

	for {
		af.mu.Lock()
		if af.closed {
			af.mu.Unlock()
			wg.Wait()
			return
		}
		next, ok := af.nextNeededRangeLocked()
		af.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case <-af.replanCh:
				continue
			case <-time.After(500 * time.Millisecond):
				continue
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(r rangeset.Range) {
			defer wg.Done()
			defer func() { <-sem }()
			af.fetchAndStore(ctx, r)
		}(next)
	}
}

// nextNeededRangeLocked picks the highest-priority region spec.md §4.6
// describes: a contiguous window ahead of the current stream position sized
// by the readahead target, falling back to the next undownloaded chunk
// anywhere in the file once the readahead window is satisfied.
func (af *AudioFile) nextNeededRangeLocked() (rangeset.Range, bool) {
	pos := af.streamPosition
	nearEdge := af.downloaded.MinGapFrom(pos) >= 0 && af.downloaded.MinGapFrom(pos) < int64(af.cfg.MinPrefetchSeconds*af.cfg.NominalBitrateBps)

	var target int64
	if nearEdge {
		target = af.cfg.aggressiveTargetBytes(af.pingTimeMs)
	} else {
		target = af.cfg.aheadTargetBytes(af.pingTimeMs, af.rateBps)
	}
	window := rangeset.Range{Start: pos, End: min64(pos+target, af.totalSize)}

	if r, ok := firstUncoveredChunk(window, &af.downloaded, &af.requested, &af.failed); ok {
		return r, true
	}

	// Low-priority: fill in the rest of the file to completion.
	whole := rangeset.Range{Start: 0, End: af.totalSize}
	return firstUncoveredChunk(whole, &af.downloaded, &af.requested, &af.failed)
}

// firstUncoveredChunk returns the first ChunkSize-aligned slice of window
// not already downloaded, in flight, or permanently failed.
func firstUncoveredChunk(window rangeset.Range, downloaded, requested, failed *rangeset.Set) (rangeset.Range, bool) {
	for start := alignDown(window.Start); start < window.End; start += ChunkSize {
		end := min64(start+ChunkSize, window.End)
		c := rangeset.Range{Start: start, End: end}
		if downloaded.ContainsRange(c) || requested.ContainsRange(c) || failed.ContainsRange(c) {
			continue
		}
		return c, true
	}
	return rangeset.Range{}, false
}

func alignDown(p int64) int64 { return (p / ChunkSize) * ChunkSize }

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// fetchAndStore performs a single chunk's range GET with retry/backoff,
// writing the bytes into the backing buffer and updating downloaded/failed
// on completion.
func (af *AudioFile) fetchAndStore(ctx context.Context, r rangeset.Range) {
	af.mu.Lock()
	af.requested.Add(r)
	af.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < af.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := af.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		start := time.Now()
		data, _, err := af.fetchRange(ctx, r.Start, r.End-r.Start)
		if err != nil {
			lastErr = err
			continue
		}
		elapsed := time.Since(start)

		af.mu.Lock()
		copy(af.buffer[r.Start:r.Start+int64(len(data))], data)
		af.downloaded.Add(rangeset.Range{Start: r.Start, End: r.Start + int64(len(data))})
		af.updateRateLocked(len(data), elapsed)
		af.cond.Broadcast()
		af.mu.Unlock()
		return
	}

	af.log.Warn("audio chunk fetch exhausted retries", "start", r.Start, "end", r.End, "error", lastErr)
	af.mu.Lock()
	af.failed.Add(r)
	af.cond.Broadcast()
	af.mu.Unlock()
}

// updateRateLocked folds the latest completion into the rolling EMA of
// bytes/second and the most recent time-to-first-byte, then checks the
// stutter-risk threshold. Must be called with af.mu held.
func (af *AudioFile) updateRateLocked(n int, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	sampleBps := float64(n) / elapsed.Seconds()
	if af.samples == 0 {
		af.rateBps = sampleBps
	} else {
		af.rateBps = emaAlpha*sampleBps + (1-emaAlpha)*af.rateBps
	}
	af.pingTimeMs = elapsed.Seconds() * 1000
	af.samples++

	if af.rateBps < af.cfg.NominalBitrateBps*af.cfg.SafetyFactor {
		select {
		case af.stutterCh <- struct{}{}:
		default:
		}
	}
}

// fetchRange issues a single HTTPS range GET for [offset, offset+length),
// returning the body bytes and, on the first call, the total_size parsed
// from the Content-Range header.
func (af *AudioFile) fetchRange(ctx context.Context, offset, length int64) ([]byte, int64, error) {
	url, err := af.urlFn(ctx)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := af.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone {
		return nil, 0, coreerr.Unavailable(fmt.Errorf("audiofile: CDN URL expired (status %d)", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, 0, coreerr.Unavailable(fmt.Errorf("audiofile: unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	total := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if total == 0 {
		total = int64(len(data))
	}
	return data, total, nil
}

// parseContentRangeTotal extracts the total size from a header of the form
// "bytes 0-131071/4423881". Returns 0 if absent or unparseable.
func parseContentRangeTotal(h string) int64 {
	idx := indexByte(h, '/')
	if idx < 0 || idx+1 >= len(h) {
		return 0
	}
	var total int64
	for _, c := range []byte(h[idx+1:]) {
		if c < '0' || c > '9' {
			break
		}
		total = total*10 + int64(c-'0')
	}
	return total
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
