// Package normalize provides core.Normalizer implementations: an
// OpenAI-compatible chat-completions client and an offline heuristic.
package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/rolodex/internal/core"
	"github.com/JonMunkholm/rolodex/internal/logging"
)

// Options configure the LLM client.
type Options struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature *float64
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
}

// ErrMissingAPIKey is returned by NewClient without a key.
var ErrMissingAPIKey = errors.New("normalize: missing api key")

// Client normalizes one row per chat-completions call.
type Client struct {
	hc     *http.Client
	url    string
	apiKey string
	model  string
	temp   *float64
	budget core.Budget
}

// NewClient builds a client against an OpenAI-compatible endpoint.
func NewClient(opts Options) (*Client, error) {
	opts.defaults()
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		hc:     hc,
		url:    strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		apiKey: opts.APIKey,
		model:  opts.Model,
		temp:   opts.Temperature,
		budget: core.BudgetFor(core.OpNormalizeRow),
	}, nil
}

// UpstreamError is a non-2xx response from the completions endpoint.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("normalize upstream %d: %s", e.Status, e.Message)
}

// Temporary reports whether a retry could succeed.
func (e *UpstreamError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout || e.Status/100 == 5
}

const systemPrompt = `You convert one spreadsheet row describing a person into JSON.
Reply with a single JSON object with these keys:
name (string), company (string), role (string), location (string),
emails (array of strings), phones (array of strings), linkedinUrl (string),
otherUrls (array of {"platform": string, "url": string}), notes (string).
Use "" or [] for missing values. Put information that fits no key into notes,
one "Label: value" line each. Do not invent data.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// rowContact is the JSON shape requested from the model.
type rowContact struct {
	Name        string          `json:"name"`
	Company     string          `json:"company"`
	Role        string          `json:"role"`
	Location    string          `json:"location"`
	Emails      []string        `json:"emails"`
	Phones      []string        `json:"phones"`
	LinkedInURL string          `json:"linkedinUrl"`
	OtherURLs   []core.OtherURL `json:"otherUrls"`
	Notes       string          `json:"notes"`
}

// Normalize prices the row, sends it and decodes the reply. A row whose
// payload exceeds the normalize-row budget fails with *core.TokenLimitError
// and is never truncated.
func (c *Client) Normalize(ctx context.Context, row core.Row, headers []string) (core.Contact, error) {
	payload, err := rowPayload(row, headers)
	if err != nil {
		return core.Contact{}, err
	}
	if tokens := core.EstimateTokens(payload); tokens > c.budget.Available() {
		return core.Contact{}, &core.TokenLimitError{
			Op:     core.OpNormalizeRow,
			Tokens: tokens + c.budget.BaseTokens,
			Limit:  c.budget.MaxInputTokens,
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: payload},
		},
		Temperature:    c.temp,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return core.Contact{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return core.Contact{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return core.Contact{}, fmt.Errorf("normalize request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.Contact{}, fmt.Errorf("read response: %w", err)
	}
	logging.FromContext(ctx).Debug("normalize call",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode/100 != 2 {
		return core.Contact{}, &UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return core.Contact{}, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return core.Contact{}, errors.New("normalize response has no choices")
	}
	return decodeContact(cr.Choices[0].Message.Content)
}

// rowPayload renders the row as a JSON object in header order.
func rowPayload(row core.Row, headers []string) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, h := range headers {
		v := strings.TrimSpace(row[h])
		if v == "" {
			continue
		}
		k, err := json.Marshal(h)
		if err != nil {
			return "", err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// decodeContact parses the model reply, tolerating a fenced code block.
func decodeContact(content string) (core.Contact, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var rc rowContact
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &rc); err != nil {
		return core.Contact{}, fmt.Errorf("decode contact: %w", err)
	}
	return core.Contact{
		Name:     rc.Name,
		Company:  rc.Company,
		Role:     rc.Role,
		Location: rc.Location,
		ContactInfo: core.ContactInfo{
			Emails:      rc.Emails,
			Phones:      rc.Phones,
			LinkedInURL: rc.LinkedInURL,
			OtherURLs:   rc.OtherURLs,
		},
		Notes:  rc.Notes,
		Source: core.SourceManual,
	}, nil
}
