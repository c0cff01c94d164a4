package controlapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeProvider struct{ snapshot StatusSnapshot }

func (f fakeProvider) Status() StatusSnapshot { return f.snapshot }

func TestHealthzAlwaysReturnsOK(t *testing.T) {
	srv := New(fakeProvider{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestStatusReportsProviderSnapshot(t *testing.T) {
	want := StatusSnapshot{
		DeviceName:   "kitchen speaker",
		Connected:    true,
		PlayerStatus: "playing",
		TrackURI:     "spotify:track:6rqhFgbbKwnb9MLmUQDhG6",
		PositionMs:   42000,
		QueueLength:  3,
	}
	srv := New(fakeProvider{snapshot: want})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got StatusSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Errorf("status snapshot = %+v, want %+v", got, want)
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	srv := New(fakeProvider{})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
