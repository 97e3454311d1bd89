// Package summarizer turns extracted content into a structured summary
// using the Anthropic API.
package summarizer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
)

//go:embed prompts/system_prompt.md
var defaultSystemPrompt string

//go:embed prompts/task_prompt.md
var defaultTaskPrompt string

//go:embed prompts/output_schema.json
var outputSchema string

// Summarizer produces a Summary for extracted content.
type Summarizer interface {
	Summarize(ctx context.Context, content *models.ExtractedContent) (*models.Summary, error)
}

// Options configures the Anthropic-backed summarizer.
type Options struct {
	// APIKey authenticates against the Anthropic API. Required.
	APIKey string
	// Model is the model identifier, e.g. "claude-sonnet-4-20250514".
	Model string
	// SystemPrompt overrides the embedded default when non-empty.
	SystemPrompt string
	// TaskPrompt overrides the embedded default when non-empty. It may use
	// the {title} and {content} placeholders.
	TaskPrompt string
	// MaxInputChars truncates content before prompting. Zero means no limit.
	MaxInputChars int
	// MaxTokens bounds the response size.
	MaxTokens int
	// Temperature for sampling.
	Temperature float64
	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration

	Logger *slog.Logger
}

func (o *Options) fillDefaults() {
	if o.Model == "" {
		o.Model = "claude-sonnet-4-20250514"
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaultSystemPrompt
	}
	if o.TaskPrompt == "" {
		o.TaskPrompt = defaultTaskPrompt
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2048
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
}

// promptFunc issues one model request and returns the response text.
// It exists as a seam so tests can count and fail invocations.
type promptFunc func(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error)

func anthropicPrompt(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return response.Content[0].Text, nil
}

// Anthropic is a Summarizer backed by the Anthropic messages API.
type Anthropic struct {
	opts   Options
	prompt promptFunc
}

var _ Summarizer = (*Anthropic)(nil)

// New returns an Anthropic summarizer. The API key is required.
func New(opts Options) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("summarizer: missing API key")
	}
	opts.fillDefaults()
	return &Anthropic{opts: opts, prompt: anthropicPrompt}, nil
}

// Summarize prompts the model with the extracted content and parses the
// structured response. Transient API failures are retried with exponential
// backoff; terminal failures (auth, malformed response) fail immediately.
func (a *Anthropic) Summarize(ctx context.Context, content *models.ExtractedContent) (*models.Summary, error) {
	if content == nil || strings.TrimSpace(content.Text) == "" {
		return nil, apperr.Summarization(fmt.Errorf("empty content"), false)
	}

	text := content.Text
	if a.opts.MaxInputChars > 0 && len(text) > a.opts.MaxInputChars {
		text = truncateRunes(text, a.opts.MaxInputChars)
		a.opts.Logger.Debug("summarizer: input truncated",
			"limit", a.opts.MaxInputChars, "original_len", len(content.Text))
	}

	userPrompt := strings.NewReplacer(
		"{title}", content.Title,
		"{content}", text,
	).Replace(a.opts.TaskPrompt)

	settings := types.RequestSettings{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	}

	var lastErr error
	delay := a.opts.RetryBaseDelay
	for attempt := 1; attempt <= a.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Summarization(err, false)
		}

		text, err := a.prompt(a.opts.SystemPrompt, userPrompt, outputSchema, a.opts.APIKey, settings)
		if err == nil {
			summary, perr := parseResponse(text)
			if perr != nil {
				return nil, apperr.Summarization(perr, false)
			}
			return summary, nil
		}

		lastErr = err
		if !isTransient(err) {
			return nil, apperr.Summarization(err, false)
		}
		if attempt == a.opts.MaxRetries {
			break
		}
		a.opts.Logger.Warn("summarizer: transient failure, retrying",
			"attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, apperr.Summarization(ctx.Err(), false)
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, apperr.Summarization(
		fmt.Errorf("giving up after %d attempts: %w", a.opts.MaxRetries, lastErr), true)
}

// parseResponse decodes the model's JSON output into a Summary, rejecting
// responses that are missing required fields.
func parseResponse(raw string) (*models.Summary, error) {
	raw = stripCodeFence(raw)

	var payload struct {
		Summary   string   `json:"summary"`
		KeyPoints []string `json:"key_points"`
		Tags      []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, fmt.Errorf("parse response: missing summary")
	}
	if len(payload.KeyPoints) == 0 {
		return nil, fmt.Errorf("parse response: missing key_points")
	}
	if len(payload.Tags) == 0 {
		return nil, fmt.Errorf("parse response: missing tags")
	}
	return &models.Summary{
		Text:      strings.TrimSpace(payload.Summary),
		KeyPoints: trimAll(payload.KeyPoints),
		Tags:      NormalizeTags(payload.Tags),
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// NormalizeTags lowercases tags, strips leading # and surrounding space,
// and removes duplicates while preserving order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// truncateRunes cuts s to at most max bytes without splitting a rune, so
// truncated multi-byte content stays valid UTF-8.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// isTransient classifies an API error as retryable. Rate limits, overload
// and server-side errors are transient; auth and request errors are not.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "529", "500", "502", "503", "504",
		"rate limit", "overloaded", "timeout", "temporarily",
		"connection refused", "connection reset", "eof", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
