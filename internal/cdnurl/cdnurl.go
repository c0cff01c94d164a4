// Package cdnurl resolves and tracks the expiry of spclient-issued CDN
// storage URLs for audio file downloads. Grounded on
// original_source/core/src/cdn_url.rs.
package cdnurl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/ids"
)

// expirySkew is subtracted from a parsed expiry so a URL is treated as
// expired slightly before the CDN actually rejects it.
const expirySkew = 5 * time.Minute

// storageResult mirrors protocol.StorageResolveResponse_Result: only the
// CDN case carries usable URLs, everything else (e.g. direct storage) is
// out of scope for a client that only plays back audio.
type storageResult int32

const (
	storageResultCDN     storageResult = 0
	storageResultStorage storageResult = 1
	storageResultRestricted storageResult = 2
)

// URL is a single candidate CDN URL paired with its parsed expiry, if any.
// A nil Expiry means the URL never expires (no __token__/query expiry was
// present).
type URL struct {
	URL    string
	Expiry *time.Time
}

// CdnURL is the set of candidate URLs resolved for a single file, ordered
// as returned by spclient.
type CdnURL struct {
	FileID ids.FileId
	URLs   []URL
}

// ParseStorageResolveResponse decodes the hand-rolled wire stand-in for
// protocol.storage_resolve.StorageResolveResponse (field numbers documented
// below are a stand-in for the assumed-pre-generated protobuf schema: 1
// result, 2 repeated cdnurl, 4 fileid) and builds the CdnURL's candidate
// list, applying the akamaized.net/scdn.co expiry parsing rules.
func ParseStorageResolveResponse(fileID ids.FileId, payload []byte) (CdnURL, error) {
	var result storageResult
	var rawURLs []string
	var msgFileID []byte

	pos := 0
	for pos < len(payload) {
		tag, n := readVarint(payload[pos:])
		if n == 0 {
			return CdnURL{}, fmt.Errorf("cdnurl: truncated tag")
		}
		pos += n
		field := tag >> 3
		wireType := tag & 0x7

		switch wireType {
		case 0: // varint
			v, n := readVarint(payload[pos:])
			if n == 0 {
				return CdnURL{}, fmt.Errorf("cdnurl: truncated varint")
			}
			pos += n
			if field == 1 {
				result = storageResult(v)
			}
		case 2: // length-delimited
			l, n := readVarint(payload[pos:])
			if n == 0 {
				return CdnURL{}, fmt.Errorf("cdnurl: truncated length")
			}
			pos += n
			if pos+int(l) > len(payload) {
				return CdnURL{}, fmt.Errorf("cdnurl: length-delimited field overruns payload")
			}
			data := payload[pos : pos+int(l)]
			pos += int(l)
			switch field {
			case 2:
				rawURLs = append(rawURLs, string(data))
			case 4:
				msgFileID = data
			}
		default:
			return CdnURL{}, fmt.Errorf("cdnurl: unsupported wire type %d", wireType)
		}
	}

	if result != storageResultCDN {
		return CdnURL{}, coreerr.Unavailable(fmt.Errorf("cdnurl: resolved storage is not for CDN"))
	}

	isExpiring := len(msgFileID) > 0

	urls := make([]URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !isExpiring {
			urls = append(urls, URL{URL: raw})
			continue
		}
		expiry, err := parseExpiry(raw)
		if err != nil {
			return CdnURL{}, fmt.Errorf("cdnurl: parsing expiry of %q: %w", raw, err)
		}
		urls = append(urls, URL{URL: raw, Expiry: &expiry})
	}

	return CdnURL{FileID: fileID, URLs: urls}, nil
}

// parseExpiry extracts the expiry timestamp embedded in a CDN URL's query
// string. akamaized.net hosts embed it inside a __token__ query parameter
// as "...exp=<unix>~...", terminated by the first '~'; scdn.co hosts put it
// as the first '_'-delimited component of the bare query string.
func parseExpiry(rawURL string) (time.Time, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, err
	}

	var expiryStr string
	if token := u.Query().Get("__token__"); token != "" {
		start := strings.Index(token, "exp=")
		if start < 0 {
			return time.Time{}, fmt.Errorf("no exp= in __token__ parameter")
		}
		rest := token[start+len("exp="):]
		if end := strings.IndexByte(rest, '~'); end >= 0 {
			expiryStr = rest[:end]
		} else {
			expiryStr = rest
		}
	} else if u.RawQuery != "" {
		expiryStr = strings.SplitN(u.RawQuery, "_", 2)[0]
	} else {
		return time.Time{}, fmt.Errorf("no query string to derive expiry from")
	}

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	expiry -= int64(expirySkew.Seconds())
	return time.Unix(expiry, 0).UTC(), nil
}

// TryGetURL returns the first URL that is either non-expiring or not yet
// expired at the given instant, or an error once every candidate is expired.
func (c CdnURL) TryGetURL(now time.Time) (string, error) {
	for _, u := range c.URLs {
		if u.Expiry == nil || now.Before(*u.Expiry) {
			return u.URL, nil
		}
	}
	return "", coreerr.DeadlineExceeded(fmt.Errorf("cdnurl: all URLs expired"))
}

func readVarint(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		v |= uint64(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}
