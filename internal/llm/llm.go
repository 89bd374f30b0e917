// Package llm provides the text-generation gateway used by the coaching core.
//
// The gateway speaks the OpenAI-compatible chat-completions protocol through
// langchaingo, so it works against OpenAI, OpenRouter, or any compatible
// gateway by changing BaseURL.
//
// Example:
//
//	client, err := llm.New(llm.Config{
//	    APIKey:  os.Getenv("LLM_API_KEY"),
//	    BaseURL: "https://api.openai.com/v1",
//	    Model:   "gpt-4o-mini",
//	}, nil)
//	out, err := client.Generate(ctx, "You are the CFO...", "Should we invest?")
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
	defaultPerMinute   = 120
	defaultBurst       = 5
)

var (
	// ErrNotConfigured is returned by Generate when no API key is set.
	ErrNotConfigured = errors.New("llm: api key not configured")

	// ErrEmptyCompletion indicates the provider returned no choices.
	ErrEmptyCompletion = errors.New("llm: empty completion")
)

// Completion is the result of one generation call.
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
}

// Generator produces text from a system instruction and a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string) (Completion, error)
}

// Config holds gateway configuration. It is injected at construction.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxTokens         int
	Temperature       float64
	RequestsPerMinute int
}

// Enabled reports whether a usable API key is present. Placeholder keys
// copied from example env files count as absent.
func (c Config) Enabled() bool {
	key := strings.TrimSpace(c.APIKey)
	return key != "" && !strings.Contains(key, "your_")
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultPerMinute
	}
	return c
}

// Client implements Generator on top of langchaingo's OpenAI model.
type Client struct {
	llm     llms.Model
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a gateway client. A config without an API key yields a client
// whose Generate always returns ErrNotConfigured, which callers treat as the
// documented offline mode.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), defaultBurst),
		logger:  logger,
	}
	if !cfg.Enabled() {
		logger.Info("LLM gateway running in fallback mode (no API key)")
		return c, nil
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{
			Timeout:   cfg.Timeout,
			Transport: newHeaderTransport(cfg.BaseURL, http.DefaultTransport),
		}),
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	c.llm = model
	return c, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Generate runs one chat completion. One attempt, bounded by the configured
// timeout when ctx has no earlier deadline.
func (c *Client) Generate(ctx context.Context, system, user string) (Completion, error) {
	if c.llm == nil {
		return Completion{}, ErrNotConfigured
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, system),
			llms.TextParts(schema.ChatMessageTypeHuman, user),
		},
		llms.WithMaxTokens(c.cfg.MaxTokens),
		llms.WithTemperature(c.cfg.Temperature),
	)
	if err != nil {
		return Completion{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		text = "No response generated."
	}

	c.logger.Debug("LLM completion",
		"model", c.cfg.Model,
		"system_len", len(system),
		"user_len", len(user),
		"duration", time.Since(start),
	)

	return Completion{
		Text:       text,
		Model:      c.cfg.Model,
		TokensUsed: totalTokens(choice.GenerationInfo),
	}, nil
}

func totalTokens(info map[string]any) int {
	switch v := info["TotalTokens"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// headerTransport adds the attribution headers OpenRouter asks clients to send.
type headerTransport struct {
	openRouter bool
	next       http.RoundTripper
}

func newHeaderTransport(baseURL string, next http.RoundTripper) http.RoundTripper {
	return &headerTransport{
		openRouter: strings.Contains(baseURL, "openrouter"),
		next:       next,
	}
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.openRouter {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", "https://casecoach.app")
	clone.Header.Set("X-Title", "CaseCoach")
	return t.next.RoundTrip(clone)
}
