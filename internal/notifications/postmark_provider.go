package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultPostmarkBaseURL = "https://api.postmarkapp.com"

// PostmarkProviderConfig configures the PostmarkProvider.
type PostmarkProviderConfig struct {
	ServerToken string
	From        string
	BaseURL     string
	HTTPClient  *http.Client
}

// PostmarkProvider implements Provider on top of the Postmark templated email API.
type PostmarkProvider struct {
	token   string
	from    string
	baseURL string
	client  *http.Client
}

// NewPostmarkProvider constructs a Postmark Provider using the given configuration.
func NewPostmarkProvider(cfg PostmarkProviderConfig) (*PostmarkProvider, error) {
	token := strings.TrimSpace(cfg.ServerToken)
	if token == "" {
		return nil, errors.New("postmark: server token is required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("postmark: from address is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPostmarkBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &PostmarkProvider{
		token:   token,
		from:    from,
		baseURL: baseURL,
		client:  client,
	}, nil
}

type postmarkTemplateRequest struct {
	From          string         `json:"From"`
	To            string         `json:"To"`
	TemplateAlias string         `json:"TemplateAlias"`
	TemplateModel map[string]any `json:"TemplateModel"`
	MessageStream string         `json:"MessageStream"`
}

type postmarkTemplateResponse struct {
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Send delivers a templated email through Postmark.
func (p *PostmarkProvider) Send(ctx context.Context, message Message) (Result, error) {
	if p == nil {
		return Result{}, errors.New("postmark: provider is nil")
	}
	if strings.TrimSpace(message.To) == "" {
		return Result{}, ErrMissingRecipient
	}
	if strings.TrimSpace(message.Template) == "" {
		return Result{}, ErrMissingTemplate
	}

	payload := postmarkTemplateRequest{
		From:          p.from,
		To:            message.To,
		TemplateAlias: message.Template,
		TemplateModel: message.Model,
		MessageStream: "outbound",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("postmark: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email/withTemplate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("postmark: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("postmark: send template email: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("postmark: read response: %w", err)
	}

	var decoded postmarkTemplateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, fmt.Errorf("postmark: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || decoded.ErrorCode != 0 {
		return Result{}, fmt.Errorf("postmark: api error %d: %s", decoded.ErrorCode, decoded.Message)
	}

	return Result{ID: decoded.MessageID}, nil
}
