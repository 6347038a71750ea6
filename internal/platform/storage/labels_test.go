package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestResolveLabelURLSignsDownload(t *testing.T) {
	signer := &fakeSigner{email: "test@example.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	resolver, err := NewLabelResolver(client, "labels-bucket", 10*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error creating resolver: %v", err)
	}

	signed, err := resolver.ResolveLabelURL(context.Background(), "labels/fulfillments/ful123/label.pdf")
	if err != nil {
		t.Fatalf("ResolveLabelURL returned error: %v", err)
	}

	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.Path, "labels-bucket/labels/fulfillments/ful123/label.pdf") {
		t.Fatalf("unexpected signed path: %s", parsed.Path)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if !strings.Contains(parsed.RawQuery, "response-content-disposition=attachment") {
		t.Fatalf("expected disposition in query: %s", parsed.RawQuery)
	}
}

func TestResolveLabelURLRejectsTraversal(t *testing.T) {
	signer := &fakeSigner{email: "test@example.iam.gserviceaccount.com"}
	client, err := NewClient(signer)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	resolver, err := NewLabelResolver(client, "labels-bucket", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error creating resolver: %v", err)
	}

	if _, err := resolver.ResolveLabelURL(context.Background(), "../secrets/key.json"); err == nil {
		t.Fatalf("expected error for traversal path")
	}
}

func TestNewLabelResolverRequiresBucket(t *testing.T) {
	signer := &fakeSigner{email: "test@example.iam.gserviceaccount.com"}
	client, err := NewClient(signer)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	if _, err := NewLabelResolver(client, "  ", time.Minute); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	if _, err := NewLabelResolver(nil, "labels-bucket", time.Minute); err == nil {
		t.Fatalf("expected error for missing client")
	}
}
