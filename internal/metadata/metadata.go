// Package metadata implements typed getters for track metadata fetched
// from spclient: name, duration, artists, available audio file variants
// by format, restrictions, and alternative tracks for bitrate/availability
// fallback. Grounded on spec.md §4.11 ("fetches track metadata") and
// original_source/metadata/src/{track,audio/file,restriction,request}.rs.
package metadata

import (
	"context"
	"fmt"

	"github.com/librespot-org/librespot-sub003/internal/apiclient"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

// AudioFileFormat enumerates the encoded variants a track's file list may
// carry, mirrored from protocol.metadata.AudioFile_Format's public values.
type AudioFileFormat int32

const (
	FormatOggVorbis96 AudioFileFormat = iota
	FormatOggVorbis160
	FormatOggVorbis320
	FormatMP3256
	FormatMP3320
	FormatMP3160
	FormatMP396
	FormatMP3160Enc
	FormatAAC24
	FormatAAC48
)

// AudioFiles maps an encoded format to the FileId carrying it.
type AudioFiles map[AudioFileFormat]ids.FileId

// Restriction narrows where/how a track may be played.
type Restriction struct {
	CountriesAllowed   []string
	CountriesForbidden []string
}

// Allows reports whether a two-letter country code is permitted by r. An
// explicit allow-list takes precedence over a forbid-list, mirroring the
// original's catalogue resolution order.
func (r Restriction) Allows(country string) bool {
	if len(r.CountriesAllowed) > 0 {
		for _, c := range r.CountriesAllowed {
			if c == country {
				return true
			}
		}
		return false
	}
	for _, c := range r.CountriesForbidden {
		if c == country {
			return false
		}
	}
	return true
}

// Track is the subset of protocol.metadata.Track the player pipeline and
// connect controller need: enough to pick a file, check restrictions, and
// render now-playing information.
type Track struct {
	ID           ids.SpotifyId
	Name         string
	ArtistNames  []string
	AlbumName    string
	DurationMs   int64
	Restrictions []Restriction
	Files        AudioFiles
	Previews     AudioFiles
	Alternatives []ids.SpotifyId
}

// Playable reports whether any Restriction on the track forbids country,
// per spec.md's restriction-derivation model (empty restriction list means
// unconditionally playable).
func (t *Track) Playable(country string) bool {
	for _, r := range t.Restrictions {
		if !r.Allows(country) {
			return false
		}
	}
	return true
}

// PreferredFile picks the FileId closest to (without exceeding) the
// caller's preferred format rank; if none of the track's own files match,
// the caller is expected to fall back to Alternatives.
func (t *Track) PreferredFile(preference []AudioFileFormat) (ids.FileId, bool) {
	for _, f := range preference {
		if id, ok := t.Files[f]; ok {
			return id, true
		}
	}
	return ids.FileId{}, false
}

// field numbers below are this module's own reconstruction of
// protocol.metadata's wire layout (no .proto source ships with
// original_source's filtered file set) based on the public librespot
// metadata schema; see DESIGN.md for the judgment call this records.
const (
	fieldTrackGid         = 1
	fieldTrackName        = 2
	fieldTrackAlbum       = 3
	fieldTrackArtist      = 4
	fieldTrackDuration    = 7
	fieldTrackRestriction = 11
	fieldTrackFile        = 12
	fieldTrackAlternative = 13
	fieldTrackPreview     = 15

	fieldAlbumName = 2

	fieldArtistName = 2

	fieldAudioFileID     = 1
	fieldAudioFileFormat = 2

	fieldRestrictionCountriesAllowed   = 2
	fieldRestrictionCountriesForbidden = 3
)

// ParseTrack decodes the raw protobuf-wire bytes of a spclient track
// metadata response into a Track.
func ParseTrack(raw []byte) (*Track, error) {
	fields := walkFields(raw)

	t := &Track{
		Name:       firstString(fields, fieldTrackName),
		DurationMs: firstInt(fields, fieldTrackDuration),
		Files:      make(AudioFiles),
		Previews:   make(AudioFiles),
	}

	if gid := firstBytes(fields, fieldTrackGid); len(gid) == 16 {
		id, err := ids.FromRaw(gid)
		if err == nil {
			t.ID = id.WithType(ids.ItemTrack)
		}
	}

	if album := firstBytes(fields, fieldTrackAlbum); album != nil {
		t.AlbumName = firstString(walkFields(album), fieldAlbumName)
	}

	for _, artist := range allMessages(fields, fieldTrackArtist) {
		name := firstString(walkFields(artist), fieldArtistName)
		if name != "" {
			t.ArtistNames = append(t.ArtistNames, name)
		}
	}

	for _, raw := range allMessages(fields, fieldTrackFile) {
		format, id, ok := parseAudioFile(raw)
		if ok {
			t.Files[format] = id
		}
	}
	for _, raw := range allMessages(fields, fieldTrackPreview) {
		format, id, ok := parseAudioFile(raw)
		if ok {
			t.Previews[format] = id
		}
	}

	for _, raw := range allMessages(fields, fieldTrackRestriction) {
		t.Restrictions = append(t.Restrictions, parseRestriction(raw))
	}

	for _, raw := range allMessages(fields, fieldTrackAlternative) {
		alt := walkFields(raw)
		if gid := firstBytes(alt, fieldTrackGid); len(gid) == 16 {
			if id, err := ids.FromRaw(gid); err == nil {
				t.Alternatives = append(t.Alternatives, id.WithType(ids.ItemTrack))
			}
		}
	}

	return t, nil
}

func parseAudioFile(raw []byte) (AudioFileFormat, ids.FileId, bool) {
	fields := walkFields(raw)
	idBytes := firstBytes(fields, fieldAudioFileID)
	id, err := ids.FileIdFromRaw(idBytes)
	if err != nil {
		return 0, ids.FileId{}, false
	}
	format := AudioFileFormat(firstInt(fields, fieldAudioFileFormat))
	return format, id, true
}

func parseRestriction(raw []byte) Restriction {
	fields := walkFields(raw)
	return Restriction{
		CountriesAllowed:   splitCountryCodes(firstString(fields, fieldRestrictionCountriesAllowed)),
		CountriesForbidden: splitCountryCodes(firstString(fields, fieldRestrictionCountriesForbidden)),
	}
}

// splitCountryCodes chunks a concatenated string of two-letter ISO country
// codes, per original_source/metadata/src/restriction.rs's Restriction::parse_country_codes.
func splitCountryCodes(codes string) []string {
	if codes == "" {
		return nil
	}
	out := make([]string, 0, len(codes)/2)
	for i := 0; i+2 <= len(codes); i += 2 {
		out = append(out, codes[i:i+2])
	}
	return out
}

// Client fetches track metadata from spclient over HTTP, attaching the
// country/product query parameters the original's MercuryRequest trait
// appends to every metadata request for telemetry purposes.
type Client struct {
	http       *apiclient.Client
	spclientFn func(ctx context.Context) (host string, bearer string, err error)
	country    func() string
	product    func() string
}

// NewClient builds a metadata Client. spclientFn resolves the current
// spclient host and a fresh bearer token (re-resolved per request, same
// as the dealer's URLProvider, to tolerate token expiry).
func NewClient(http *apiclient.Client, spclientFn func(ctx context.Context) (string, string, error), country, product func() string) *Client {
	return &Client{http: http, spclientFn: spclientFn, country: country, product: product}
}

// GetTrack fetches and parses one track's metadata.
func (c *Client) GetTrack(ctx context.Context, id ids.SpotifyId) (*Track, error) {
	host, bearer, err := c.spclientFn(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://%s/metadata/4/track/%s?country=%s", host, id.ToBase16(), c.country())
	if product := c.product(); product != "" {
		url += "&product=" + product
	}

	headers := map[string]string{
		"Authorization": "Bearer " + bearer,
		"Accept":        "application/protobuf",
	}
	body, _, err := c.http.GetJSON(ctx, url, headers)
	if err != nil {
		return nil, coreerr.Unavailable(err)
	}
	if len(body) == 0 {
		return nil, coreerr.Unavailable(fmt.Errorf("spclient metadata request: empty body"))
	}
	return ParseTrack(body)
}
