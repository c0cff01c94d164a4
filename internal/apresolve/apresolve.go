// Package apresolve resolves access-point, dealer, and spclient hosts via
// an HTTPS call to Spotify's apresolve endpoint, falling back to hard-coded
// hosts on failure. Grounded on spec.md §4.4 and
// original_source/core/src/apresolve.rs.
package apresolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/librespot-org/librespot-sub003/internal/apiclient"
)

const resolveURL = "https://apresolve.spotify.com/?type=accesspoint&type=dealer&type=spclient"

// Endpoint names the three host lists apresolve manages.
type Endpoint string

const (
	EndpointAccessPoint Endpoint = "accesspoint"
	EndpointDealer      Endpoint = "dealer"
	EndpointSpclient    Endpoint = "spclient"
)

var fallbacks = map[Endpoint][]string{
	EndpointAccessPoint: {"ap.spotify.com:443"},
	EndpointDealer:      {"dealer.spotify.com:443"},
	EndpointSpclient:    {"spclient.wg.spotify.com:443"},
}

type apiResponse struct {
	AccessPoint []string `json:"accesspoint"`
	Dealer      []string `json:"dealer"`
	Spclient    []string `json:"spclient"`
}

// Resolver serializes concurrent resolution via a single in-flight fetch
// and pops the front of each endpoint's list on every successful resolve.
type Resolver struct {
	client   *apiclient.Client
	portOnly *int // when set (proxy or explicit AP port configured), filter results to this port

	mu    sync.Mutex
	lists map[Endpoint][]string
}

// New builds a Resolver. portOnly, when non-nil, restricts resolved hosts
// to that port (mirrors the original's port_config/process_data filter for
// a configured proxy or AP-port override).
func New(client *apiclient.Client, portOnly *int) *Resolver {
	return &Resolver{client: client, portOnly: portOnly, lists: make(map[Endpoint][]string)}
}

// Resolve returns the next "host:port" for endpoint, refreshing the
// underlying lists (via a single shared fetch) whenever any list is empty.
func (r *Resolver) Resolve(ctx context.Context, endpoint Endpoint) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isEmptyLocked() {
		r.refreshLocked(ctx)
	}

	list := r.lists[endpoint]
	if len(list) == 0 {
		return "", fmt.Errorf("apresolve: no hosts available for %s", endpoint)
	}
	host := list[0]
	r.lists[endpoint] = list[1:]
	return host, nil
}

func (r *Resolver) isEmptyLocked() bool {
	return len(r.lists[EndpointAccessPoint]) == 0 ||
		len(r.lists[EndpointDealer]) == 0 ||
		len(r.lists[EndpointSpclient]) == 0
}

func (r *Resolver) refreshLocked(ctx context.Context) {
	data, err := r.fetch(ctx)
	if err != nil {
		data = apiResponse{
			AccessPoint: fallbacks[EndpointAccessPoint],
			Dealer:      fallbacks[EndpointDealer],
			Spclient:    fallbacks[EndpointSpclient],
		}
	}
	r.lists[EndpointAccessPoint] = r.filterPort(data.AccessPoint)
	r.lists[EndpointDealer] = r.filterPort(data.Dealer)
	r.lists[EndpointSpclient] = r.filterPort(data.Spclient)
}

func (r *Resolver) fetch(ctx context.Context) (apiResponse, error) {
	body, _, err := r.client.GetJSON(ctx, resolveURL, nil)
	if err != nil {
		return apiResponse{}, err
	}
	var data apiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return apiResponse{}, err
	}
	return data, nil
}

// filterPort keeps only entries whose port matches r.portOnly, when set;
// Spotify returns entries ordered by preference (4070, 443, 80), so no
// reordering is done.
func (r *Resolver) filterPort(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		idx := strings.LastIndex(h, ":")
		if idx < 0 {
			continue
		}
		portStr := h[idx+1:]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		if r.portOnly != nil && *r.portOnly != port {
			continue
		}
		out = append(out, h)
	}
	return out
}
