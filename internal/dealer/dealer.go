// Package dealer implements the long-lived authenticated WebSocket to the
// dealer host: URI-prefix subscriptions, exact-URI request handlers, and
// gzip+base64 payload decoding. Grounded on spec.md §4.9,
// original_source/core/src/dealer/{manager,maps,protocol}.rs.
package dealer

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// Message is a dealer pub/sub event delivered to every subscriber whose
// registered URI is a prefix of Message.URI.
type Message struct {
	Headers map[string]string
	Method  string
	URI     string
	Payload []byte
}

// Request is a dealer RPC addressed to exactly one handler.
type Request struct {
	MessageID            uint32
	SentByDeviceID       string
	Endpoint             string
	Data                 []byte
	FromDeviceIdentifier string
}

// Reply is what a RequestHandler returns: Success/Failure are answered
// immediately; Unanswered explicitly leaves the dealer request pending
// (the original's "force_unanswered" escape hatch).
type Reply int

const (
	ReplySuccess Reply = iota
	ReplyFailure
	ReplyUnanswered
)

// RequestHandler processes one Request and returns how to reply.
type RequestHandler func(Request) Reply

// URLProvider returns a fresh dealer WebSocket URL (host:port resolved via
// apresolve, bearer token from login5) each time it is called — necessary
// because reconnecting with a stale token after expiry fails with 401.
type URLProvider func(ctx context.Context) (string, error)

type subscriber struct {
	uri string
	ch  chan Message
}

// Dealer owns the WebSocket connection and the subscriber/handler
// registries, reconnecting with backoff whenever the connection drops.
type Dealer struct {
	urlFn URLProvider
	log   *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	subs     []subscriber
	handlers map[string]RequestHandler
	closed   bool
}

// New builds a Dealer that resolves its URL via urlFn on every (re)connect.
func New(urlFn URLProvider) *Dealer {
	return &Dealer{
		urlFn:    urlFn,
		log:      slog.Default().With("component", "dealer"),
		handlers: make(map[string]RequestHandler),
	}
}

// Subscribe registers a URI prefix and returns a channel delivering every
// Message whose URI has it as a prefix, plus an unsubscribe function.
func (d *Dealer) Subscribe(uri string) (<-chan Message, func()) {
	ch := make(chan Message, 16)
	sub := subscriber{uri: uri, ch: ch}

	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()

	unsubscribe := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.subs {
			if s.ch == ch {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// AddHandler registers the single handler for an exact URI. A second
// registration on the same URI fails (the original's AlreadyHandled).
func (d *Dealer) AddHandler(uri string, h RequestHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[uri]; exists {
		return coreerr.Aborted(fmt.Errorf("dealer: %q already has a handler", uri))
	}
	d.handlers[uri] = h
	return nil
}

// Handles reports whether uri has a registered exact-match handler.
func (d *Dealer) Handles(uri string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handlers[uri]
	return ok
}

// Run connects and processes messages until ctx is cancelled, reconnecting
// with exponential backoff (capped) on every disconnect.
func (d *Dealer) Run(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return fmt.Errorf("dealer: closed")
		}

		err := d.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Warn("dealer connection lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (d *Dealer) runOnce(ctx context.Context) error {
	url, err := d.urlFn(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := d.handleFrame(raw); err != nil {
			d.log.Warn("dealer frame handling failed", "error", err)
		}
	}
}

// envelope is the outer JSON shape of every dealer frame, covering both
// the "message" and "request" variants.
type envelope struct {
	Type    string            `json:"type"`
	Headers map[string]string `json:"headers"`
	Method  string            `json:"method"`
	URI     string            `json:"uri"`
	Payloads []json.RawMessage `json:"payloads"`

	MessageIdent string `json:"message_ident"`
	Key          string `json:"key"`
	Payload      struct {
		Compressed string `json:"compressed"`
	} `json:"payload"`
}

func (d *Dealer) handleFrame(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("dealer: decoding frame: %w", err)
	}

	switch env.Type {
	case "message":
		return d.handleMessage(env)
	case "request":
		return d.handleRequest(env)
	default:
		d.log.Debug("dealer: ignoring unknown frame type", "type", env.Type)
		return nil
	}
}

func (d *Dealer) handleMessage(env envelope) error {
	payload, err := decodePayloads(env.Headers, env.Payloads)
	if err != nil {
		return err
	}
	msg := Message{Headers: env.Headers, Method: env.Method, URI: env.URI, Payload: payload}

	d.mu.Lock()
	var targets []subscriber
	for _, s := range d.subs {
		if strings.HasPrefix(msg.URI, s.uri) {
			targets = append(targets, s)
		}
	}
	d.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- msg:
		default:
			d.log.Warn("dealer: dropping message, subscriber channel full", "uri", s.uri)
		}
	}
	return nil
}

func (d *Dealer) handleRequest(env envelope) error {
	compressed, err := base64.StdEncoding.DecodeString(env.Payload.Compressed)
	if err != nil {
		return fmt.Errorf("dealer: decoding request payload: %w", err)
	}
	body, err := decodeTransferEncoding(env.Headers, compressed)
	if err != nil {
		return err
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("dealer: decoding request body: %w", err)
	}

	d.mu.Lock()
	handler, ok := d.handlers[env.URI]
	conn := d.conn
	d.mu.Unlock()
	if !ok {
		return d.reply(conn, env.Key, false)
	}

	reply := handler(req)
	if reply == ReplyUnanswered {
		return nil
	}
	return d.reply(conn, env.Key, reply == ReplySuccess)
}

func (d *Dealer) reply(conn *websocket.Conn, key string, success bool) error {
	if conn == nil {
		return fmt.Errorf("dealer: no active connection to reply on")
	}
	body, err := json.Marshal(map[string]any{
		"type": "reply",
		"key":  key,
		"payload": map[string]bool{
			"success": success,
		},
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, body)
}

// decodePayloads extracts the first message payload (string/base64 or raw
// byte array; anything else is unsupported) and applies gzip
// Transfer-Encoding if present.
func decodePayloads(headers map[string]string, payloads []json.RawMessage) ([]byte, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(payloads[0], &asString); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(asString)
		if err != nil {
			return nil, fmt.Errorf("dealer: base64 decoding payload: %w", err)
		}
		return decodeTransferEncoding(headers, decoded)
	}
	var asBytes []byte
	if err := json.Unmarshal(payloads[0], &asBytes); err == nil {
		return decodeTransferEncoding(headers, asBytes)
	}
	return nil, coreerr.Unimplemented(fmt.Errorf("dealer: unsupported payload shape: %s", payloads[0]))
}

func decodeTransferEncoding(headers map[string]string, data []byte) ([]byte, error) {
	if !strings.EqualFold(headers["Transfer-Encoding"], "gzip") {
		return data, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("dealer: opening gzip payload: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// Close shuts down the active connection, if any, and marks the dealer
// closed so Run's reconnect loop can be cancelled by the caller's context.
func (d *Dealer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.conn != nil {
		d.conn.Close()
	}
}
