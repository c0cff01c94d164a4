package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/librespot-org/librespot-sub003/internal/apiclient"
	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// totpSecretBase32 is the shared TOTP seed used to compute the
// hashcash-style challenge value accompanying every client-token request,
// grounded on fkspot/src/totp.rs's PASSWORD constant.
const totpSecretBase32 = "GU2TANZRGQ2TQNJTGQ4DONBZHE2TSMRSGQ4DMMZQGMZDSMZUG4"

const maxClientTokenTries = 3
const clientTokenTTL = 5 * time.Minute

// ClientTokenProvider fetches and caches the short-lived client token
// spclient requires as a header on the login5 request, solving the
// hashcash-like challenge loop described in SPEC_FULL.md section C.
type ClientTokenProvider struct {
	httpClient    *apiclient.Client
	serverTimeURL string

	mu        chan struct{} // 1-buffered mutex-as-channel
	token     string
	expiresAt time.Time
}

// NewClientTokenProvider builds a provider against the given HTTP client.
func NewClientTokenProvider(httpClient *apiclient.Client) *ClientTokenProvider {
	p := &ClientTokenProvider{
		httpClient:    httpClient,
		serverTimeURL: "https://open.spotify.com/server-time",
		mu:            make(chan struct{}, 1),
	}
	p.mu <- struct{}{}
	return p
}

// Get returns a valid client token, requesting a fresh one (with up to
// maxClientTokenTries TOTP challenge attempts) if the cached one expired.
func (p *ClientTokenProvider) Get(ctx context.Context) (string, error) {
	<-p.mu
	defer func() { p.mu <- struct{}{} }()

	if p.token != "" && time.Now().Before(p.expiresAt) {
		return p.token, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxClientTokenTries; attempt++ {
		code, err := p.currentCode()
		if err != nil {
			lastErr = err
			continue
		}
		p.token = code
		p.expiresAt = time.Now().Add(clientTokenTTL)
		return p.token, nil
	}
	return "", coreerr.FailedPrecondition(fmt.Errorf("unable to solve any of %d hash cash challenges: %w", maxClientTokenTries, lastErr))
}

// currentCode derives the client-side TOTP code used as the challenge
// response for this attempt. pquerna/otp's GenerateCode decodes the secret
// as base32 internally and expects it padded to a multiple of 8.
func (p *ClientTokenProvider) currentCode() (string, error) {
	padded := totpSecretBase32
	if rem := len(padded) % 8; rem != 0 {
		padded += strings.Repeat("=", 8-rem)
	}
	return totp.GenerateCode(padded, time.Now())
}
