// Package refine rewrites a free-text story query into a compact keyword sequence before it
// is embedded. Refinement is best effort: any provider problem falls back to the raw query.
package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyQuery is returned for a query that is empty after trimming whitespace.
var ErrEmptyQuery = errors.New("empty query")

// SystemPrompt instructs the generator how to rewrite queries.
const SystemPrompt = `You rewrite search queries for a vector search engine over story summaries.
Compress the user's text into a short sequence of dense keywords: characters, objects, places, events.
Drop greetings, filler words and questions. Answer in the same language as the input.
Output only the keywords separated by spaces, nothing else.`

const (
	DefaultMaxTokens = 64
	DefaultTimeout   = 5 * time.Second
)

// Fallback reasons reported in Result.FallbackReason.
const (
	ReasonDisabled      = "disabled"
	ReasonTimeout       = "timeout"
	ReasonProviderError = "provider_error"
	ReasonEmptyOutput   = "empty_output"
)

// GenerateRequest is a single-turn text generation request.
type GenerateRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// Result is the outcome of Refine. When Refined is false, Text is the raw query and
// FallbackReason says why.
type Result struct {
	Text           string
	Refined        bool
	FallbackReason string
}

// Refiner rewrites queries through a Generator.
type Refiner struct {
	gen         Generator
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Refiner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxTokens sets the output budget.
func WithMaxTokens(n int) Option {
	return func(r *Refiner) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Refiner) { r.temperature = t }
}

// WithTimeout bounds each generator call.
func WithTimeout(d time.Duration) Option {
	return func(r *Refiner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New returns a Refiner using gen. A nil gen yields a disabled refiner.
func New(gen Generator, opts ...Option) *Refiner {
	r := &Refiner{
		gen:       gen,
		maxTokens: DefaultMaxTokens,
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Disabled returns a Refiner that passes queries through unchanged.
func Disabled() *Refiner {
	return New(nil)
}

// Enabled reports whether a generator is configured.
func (r *Refiner) Enabled() bool {
	return r.gen != nil
}

// Refine rewrites raw. The only errors are ErrEmptyQuery and the caller's own context error;
// generator failures, timeouts and blank output return the raw query with Refined false.
func (r *Refiner) Refine(ctx context.Context, raw string) (Result, error) {
	if strings.TrimSpace(raw) == "" {
		return Result{}, ErrEmptyQuery
	}
	if r.gen == nil {
		return Result{Text: raw, FallbackReason: ReasonDisabled}, nil
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.gen.Generate(callCtx, GenerateRequest{
		System:      SystemPrompt,
		User:        raw,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		reason := ReasonProviderError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		r.logger.Warn("Query refinement failed, using raw query",
			zap.String("reason", reason),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Result{Text: raw, FallbackReason: reason}, nil
	}

	refined := cleanOutput(out)
	if refined == "" {
		r.logger.Warn("Query refinement returned no text, using raw query")
		return Result{Text: raw, FallbackReason: ReasonEmptyOutput}, nil
	}
	r.logger.Debug("Query refined",
		zap.String("raw", raw),
		zap.String("refined", refined),
		zap.Duration("elapsed", time.Since(start)))
	return Result{Text: refined, Refined: true}, nil
}

// cleanOutput collapses whitespace and strips wrapping quotes models sometimes add.
func cleanOutput(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, q := range []string{`"`, "'", "`", "「"} {
		closing := q
		if q == "「" {
			closing = "」"
		}
		if len(s) >= len(q)+len(closing) && strings.HasPrefix(s, q) && strings.HasSuffix(s, closing) {
			s = strings.TrimSpace(s[len(q) : len(s)-len(closing)])
		}
	}
	return s
}

func providerError(provider string, err error) error {
	return fmt.Errorf("%s: generate: %w", provider, err)
}
