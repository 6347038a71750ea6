package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LabelResolver turns stored shipping label object paths into short-lived
// signed download URLs. Label links are embedded in shipment emails, so the
// URLs must work without an authenticated session.
type LabelResolver struct {
	client *Client
	bucket string
	ttl    time.Duration
}

// NewLabelResolver constructs a resolver bound to the labels bucket.
func NewLabelResolver(client *Client, bucket string, ttl time.Duration) (*LabelResolver, error) {
	if client == nil {
		return nil, errors.New("storage: label resolver requires a client")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	if ttl <= 0 {
		ttl = defaultSignedURLExpiry
	}
	return &LabelResolver{
		client: client,
		bucket: bucket,
		ttl:    ttl,
	}, nil
}

// ResolveLabelURL signs a download URL for the stored label path.
func (r *LabelResolver) ResolveLabelURL(ctx context.Context, path string) (string, error) {
	if r == nil || r.client == nil {
		return "", errors.New("storage: label resolver not initialised")
	}

	object, err := ValidateObjectPath(path)
	if err != nil {
		return "", err
	}

	result, err := r.client.SignedURL(ctx, r.bucket, object, SignedURLOptions{
		Download: &DownloadOptions{
			ExpiresIn:      r.ttl,
			Disposition:    "attachment",
			ResponseType:   "application/pdf",
			AllowAnonymous: true,
		},
	})
	if err != nil {
		return "", err
	}
	return result.URL, nil
}
