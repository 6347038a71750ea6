package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotifierDeliversSignedEnvelope(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		gotHeaders = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sentAt := time.Date(2025, time.April, 1, 8, 0, 0, 0, time.UTC)
	notifier, err := NewNotifier(NotifierConfig{
		Endpoint:      srv.URL,
		SigningSecret: "topsecret",
		HTTPClient:    srv.Client(),
		Clock:         func() time.Time { return sentAt },
	})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	payload := map[string]any{"id": "order_01", "total": float64(131090)}
	if err := notifier.Notify(context.Background(), "order.placed", payload); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	var decoded envelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if decoded.Event != "order.placed" {
		t.Fatalf("unexpected event %q", decoded.Event)
	}
	if !decoded.SentAt.Equal(sentAt) {
		t.Fatalf("unexpected sent_at %v", decoded.SentAt)
	}
	if decoded.Data["id"] != "order_01" {
		t.Fatalf("unexpected data %v", decoded.Data)
	}
	if decoded.DeliveryID == "" || gotHeaders.Get("X-Webhook-Delivery") != decoded.DeliveryID {
		t.Fatalf("delivery id mismatch: body %q header %q", decoded.DeliveryID, gotHeaders.Get("X-Webhook-Delivery"))
	}
	if gotHeaders.Get("X-Webhook-Event") != "order.placed" {
		t.Fatalf("unexpected event header %q", gotHeaders.Get("X-Webhook-Event"))
	}

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotHeaders.Get("X-Webhook-Signature") != want {
		t.Fatalf("signature mismatch: got %q want %q", gotHeaders.Get("X-Webhook-Signature"), want)
	}
}

func TestNotifierReportsEndpointErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier, err := NewNotifier(NotifierConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), "order.placed", nil); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNotifierWithoutEndpointDropsEvents(t *testing.T) {
	notifier, err := NewNotifier(NotifierConfig{})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), "order.placed", map[string]any{"id": "order_01"}); err != nil {
		t.Fatalf("expected drop without error, got %v", err)
	}
}

func TestNotifierRejectsInvalidEndpoint(t *testing.T) {
	if _, err := NewNotifier(NotifierConfig{Endpoint: "ftp://automation.internal"}); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
