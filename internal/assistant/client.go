// Package assistant talks to the generative AI endpoint used for the
// pharmacy chat. The endpoint is rate limited; 429 answers are retried with
// exponential backoff and everything else fails closed.
package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

// Apology is shown to users when the assistant cannot answer.
const Apology = "Sorry, the assistant is unavailable right now. Please try again in a moment."

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Image is an optional attachment sent with the last message.
type Image struct {
	MIMEType string
	Data     []byte
}

type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	Timeout      time.Duration
	InitialDelay time.Duration
	MaxRetries   int
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  Role   `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

var errRateLimited = errors.New("rate limited")

// Chat sends the conversation and returns the reply text. Failures that
// survive the retry policy are reported as domain.ErrUpstreamUnavailable.
func (c *Client) Chat(ctx context.Context, history []Message, image *Image) (string, error) {
	if len(history) == 0 {
		return "", domain.Validationf("at least one message is required")
	}
	body, err := json.Marshal(buildRequest(history, image))
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempt := 0
	reply, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		reply, err := c.generate(ctx, body)
		if errors.Is(err, errRateLimited) {
			c.logger.Warn("assistant rate limited", zap.Int("attempt", attempt))
			return "", err
		}
		if err != nil {
			return "", backoff.Permanent(err)
		}
		return reply, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)))
	if err != nil {
		c.logger.Error("assistant request failed", zap.Int("attempts", attempt), zap.Error(err))
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return reply, nil
}

func buildRequest(history []Message, image *Image) generateRequest {
	req := generateRequest{Contents: make([]content, 0, len(history))}
	for _, m := range history {
		role := m.Role
		if role != RoleModel {
			role = RoleUser
		}
		req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: m.Text}}})
	}
	if image != nil && len(image.Data) > 0 {
		last := &req.Contents[len(req.Contents)-1]
		last.Parts = append(last.Parts, part{InlineData: &inlineData{
			MIMEType: image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(image.Data),
		}})
	}
	return req
}

func (c *Client) generate(ctx context.Context, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), url.PathEscape(c.cfg.Model), url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call assistant: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("assistant returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse assistant response: %w", err)
	}
	var text strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	if text.Len() == 0 {
		return "", errors.New("assistant returned no text")
	}
	return text.String(), nil
}
