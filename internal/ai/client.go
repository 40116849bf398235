// Package ai calls the hosted AI functions (insights, transcription,
// translation, summaries and PDF digests) and provides the keyword
// heuristics used when those functions are unavailable.
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/parentrak/parentrak-backend/internal/config"
)

// ErrUnavailable wraps every failure to get a usable answer: disabled
// client, transport error, timeout or non-2xx status.
var ErrUnavailable = errors.New("ai unavailable")

// LogInput is the shape of a timeline entry sent to the AI functions.
type LogInput struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Tags         []string  `json:"tags"`
	EmotionScore float64   `json:"emotionScore"`
	AuthorRole   string    `json:"authorRole"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Insight is one generated observation about a child.
type Insight struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
}

// Insight types.
const (
	InsightInfo    = "info"
	InsightPattern = "pattern"
	InsightMood    = "mood"
	InsightConcern = "concern"
)

// Client talks to the AI functions endpoint. The zero value is not usable;
// construct it with New.
type Client struct {
	http    *resty.Client
	enabled bool
	log     zerolog.Logger
}

// New builds a client from cfg. The client is disabled, and every call
// returns ErrUnavailable, when cfg.BaseURL is empty.
func New(cfg config.AIConfig, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		hc.SetAuthToken(cfg.APIKey)
	}
	return &Client{
		http:    hc,
		enabled: cfg.BaseURL != "",
		log:     log.With().Str("component", "ai").Logger(),
	}
}

// Enabled reports whether a base URL was configured.
func (c *Client) Enabled() bool { return c != nil && c.enabled }

func (c *Client) post(ctx context.Context, path string, body, result any) (*resty.Response, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}
	req := c.http.R().SetContext(ctx).SetBody(body)
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Post(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("ai call failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if resp.IsError() {
		c.log.Warn().Int("status", resp.StatusCode()).Str("path", path).Msg("ai call returned error status")
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, path, resp.StatusCode())
	}
	return resp, nil
}

// GenerateInsights asks the AI for insights over logs.
func (c *Client) GenerateInsights(ctx context.Context, logs []LogInput) ([]Insight, error) {
	var out struct {
		Insights []Insight `json:"insights"`
	}
	if _, err := c.post(ctx, "/generate-insights", map[string]any{"logs": logs}, &out); err != nil {
		return nil, err
	}
	return out.Insights, nil
}

// Transcribe converts recorded audio to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	body := map[string]string{
		"audio":    base64.StdEncoding.EncodeToString(audio),
		"mimeType": mimeType,
	}
	if _, err := c.post(ctx, "/transcribe-audio", body, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// Translate renders text in the target language (a BCP 47 tag).
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	body := map[string]string{"text": text, "targetLanguage": targetLanguage}
	if _, err := c.post(ctx, "/translate", body, &out); err != nil {
		return "", err
	}
	return out.TranslatedText, nil
}

// Summarize writes a summary of logs for one audience (parent, teacher or doctor).
func (c *Client) Summarize(ctx context.Context, logs []LogInput, audience string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	body := map[string]any{"logs": logs, "audience": audience}
	if _, err := c.post(ctx, "/generate-summary", body, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

// PDFDigest renders a PDF digest of a child's timeline between from and to.
func (c *Client) PDFDigest(ctx context.Context, childID string, from, to time.Time) ([]byte, error) {
	body := map[string]string{
		"childId":   childID,
		"startDate": from.UTC().Format(time.RFC3339),
		"endDate":   to.UTC().Format(time.RFC3339),
	}
	if !c.Enabled() {
		return nil, ErrUnavailable
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetHeader("Accept", "application/pdf").
		Post("/generate-pdf-digest")
	if err != nil {
		return nil, fmt.Errorf("%w: digest: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: digest: status %d", ErrUnavailable, resp.StatusCode())
	}
	return resp.Body(), nil
}
