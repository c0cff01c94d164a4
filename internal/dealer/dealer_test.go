package dealer

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func wsTestServer(t *testing.T, onConn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		go onConn(conn)
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestSubscribeDeliversPrefixMatchingMessage(t *testing.T) {
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		env := map[string]any{
			"type":     "message",
			"uri":      "hm://connect-state/v1/cluster",
			"method":   "",
			"headers":  map[string]string{},
			"payloads": []string{base64.StdEncoding.EncodeToString([]byte("hello"))},
		}
		body, _ := json.Marshal(env)
		conn.WriteMessage(websocket.TextMessage, body)
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	d := New(func(ctx context.Context) (string, error) { return wsURL(srv.URL), nil })
	ch, unsubscribe := d.Subscribe("hm://connect-state/")
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go d.Run(ctx)

	select {
	case msg := <-ch:
		if msg.URI != "hm://connect-state/v1/cluster" || string(msg.Payload) != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("did not receive subscribed message in time")
	}
}

func TestHandleRequestRoutesToExactURIAndReplies(t *testing.T) {
	replyCh := make(chan []byte, 1)
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		w.Write([]byte(`{"message_id":1,"sent_by_device_id":"dev1","command":{"endpoint":"transfer","from_device_identifier":"dev2","logging_params":{"interaction_ids":[]}}}`))
		w.Close()

		env := map[string]any{
			"type":         "request",
			"uri":          "hm://connect-state/v1/player/command",
			"message_ident": "m1",
			"key":          "req-key-1",
			"headers":      map[string]string{"Transfer-Encoding": "gzip"},
			"payload":      map[string]string{"compressed": base64.StdEncoding.EncodeToString(gz.Bytes())},
		}
		body, _ := json.Marshal(env)
		conn.WriteMessage(websocket.TextMessage, body)

		_, reply, err := conn.ReadMessage()
		if err == nil {
			replyCh <- reply
		}
	})
	defer srv.Close()

	d := New(func(ctx context.Context) (string, error) { return wsURL(srv.URL), nil })
	var gotRequest Request
	handled := make(chan struct{}, 1)
	d.AddHandler("hm://connect-state/v1/player/command", func(r Request) Reply {
		gotRequest = r
		handled <- struct{}{}
		return ReplySuccess
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go d.Run(ctx)

	select {
	case <-handled:
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("handler was not invoked")
	}
	if gotRequest.SentByDeviceID != "dev1" || gotRequest.Endpoint != "transfer" {
		t.Fatalf("unexpected request: %+v", gotRequest)
	}

	select {
	case raw := <-replyCh:
		var reply map[string]any
		if err := json.Unmarshal(raw, &reply); err != nil {
			t.Fatalf("decoding reply: %v", err)
		}
		if reply["key"] != "req-key-1" {
			t.Fatalf("reply key = %v, want req-key-1", reply["key"])
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("did not observe a reply frame")
	}
}

func TestAddHandlerRejectsDuplicateURI(t *testing.T) {
	d := New(func(ctx context.Context) (string, error) { return "", nil })
	if err := d.AddHandler("hm://foo", func(Request) Reply { return ReplySuccess }); err != nil {
		t.Fatalf("first AddHandler: %v", err)
	}
	if err := d.AddHandler("hm://foo", func(Request) Reply { return ReplySuccess }); err == nil {
		t.Fatal("expected an error registering a second handler for the same URI")
	}
}

func TestHandlesReportsRegisteredURIsOnly(t *testing.T) {
	d := New(func(ctx context.Context) (string, error) { return "", nil })
	d.AddHandler("hm://foo", func(Request) Reply { return ReplySuccess })
	if !d.Handles("hm://foo") {
		t.Error("Handles(\"hm://foo\") = false, want true")
	}
	if d.Handles("hm://bar") {
		t.Error("Handles(\"hm://bar\") = true, want false")
	}
}
