// Package token implements the scoped bearer-token cache and the login5
// access-token exchange, including the client-token TOTP preamble. Grounded
// on spec.md §3/§4, original_source/core/src/token.rs,
// original_source/core/src/login5.rs, and original_source/fkspot/src/totp.rs.
package token

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// expiryThreshold matches spec.md §3's "obtained_at + expires_in - 10s <= now".
const expiryThreshold = 10 * time.Second

// Token is a scoped bearer token with an expiry derived from when it was
// obtained.
type Token struct {
	AccessToken string
	ExpiresIn   time.Duration
	TokenType   string
	Scopes      map[string]struct{}
	ObtainedAt  time.Time
}

type tokenJSON struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"`
	TokenType   string   `json:"token_type"`
	Scope       []string `json:"scope"`
}

// ParseToken decodes the keymaster JSON body into a Token stamped with the
// current time.
func ParseToken(body []byte) (Token, error) {
	var data tokenJSON
	if err := json.Unmarshal(body, &data); err != nil {
		return Token{}, err
	}
	scopes := make(map[string]struct{}, len(data.Scope))
	for _, s := range data.Scope {
		scopes[s] = struct{}{}
	}
	return Token{
		AccessToken: data.AccessToken,
		ExpiresIn:   time.Duration(data.ExpiresIn) * time.Second,
		TokenType:   data.TokenType,
		Scopes:      scopes,
		ObtainedAt:  time.Now(),
	}, nil
}

// IsExpired reports whether the token is expired per the 10-second
// threshold.
func (t Token) IsExpired() bool {
	return !t.ObtainedAt.Add(t.ExpiresIn - expiryThreshold).After(time.Now())
}

// Satisfies reports whether every requested scope is covered by the token.
func (t Token) Satisfies(scopes []string) bool {
	for _, s := range scopes {
		if _, ok := t.Scopes[s]; !ok {
			return false
		}
	}
	return true
}

// Provider caches tokens by scope set, fetching a fresh one via fetch when
// no cached token covers the requested scopes.
type Provider struct {
	fetch func(scopes string) ([]byte, error)

	mu     sync.Mutex
	tokens []Token
}

// NewProvider builds a Provider. fetch performs the actual keymaster
// Mercury GET (hm://keymaster/token/authenticated?scope=...) and returns
// the raw JSON body.
func NewProvider(fetch func(scopes string) ([]byte, error)) *Provider {
	return &Provider{fetch: fetch}
}

// GetToken returns a cached token covering the given comma-separated
// scopes, or fetches and caches a new one.
func (p *Provider) GetToken(scopes string) (Token, error) {
	if scopes == "" {
		return Token{}, fmt.Errorf("token: empty scope request")
	}
	wanted := strings.Split(scopes, ",")

	p.mu.Lock()
	for i, t := range p.tokens {
		if t.Satisfies(wanted) {
			if t.IsExpired() {
				p.tokens = append(p.tokens[:i], p.tokens[i+1:]...)
				break
			}
			p.mu.Unlock()
			return t, nil
		}
	}
	p.mu.Unlock()

	body, err := p.fetch(scopes)
	if err != nil {
		return Token{}, err
	}
	t, err := ParseToken(body)
	if err != nil {
		return Token{}, err
	}

	p.mu.Lock()
	p.tokens = append(p.tokens, t)
	p.mu.Unlock()
	return t, nil
}
