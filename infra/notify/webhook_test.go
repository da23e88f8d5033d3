package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyDeliversJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := NewWebhook()
	err := wh.Notify(context.Background(), srv.URL, map[string]string{"ticket_id": "EMG-1234"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["ticket_id"] != "EMG-1234" {
		t.Errorf("payload not delivered: %v", got)
	}
}

func TestNotifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook()
	if err := wh.Notify(context.Background(), srv.URL, map[string]string{}); err == nil {
		t.Fatalf("expected error on 5xx response")
	}
}

func TestNotifyCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wh := NewWebhook()
	if err := wh.Notify(ctx, srv.URL, map[string]string{}); err == nil {
		t.Fatalf("expected context error")
	}
}
