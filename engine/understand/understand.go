// Package understand implements query understanding, the first stage of the
// search pipeline. It turns a raw query string into a validated Intent by
// combining a cache lookup, the deterministic token parser, and an optional
// LLM consultation behind a circuit breaker. The stage never fails a request
// that the token parser could handle; LLM trouble only degrades the method.
package understand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/query"
	"github.com/partlinq/partsearch/pkg/cache"
	"github.com/partlinq/partsearch/pkg/resilience"
)

// Understanding methods, recorded per request for logging and analytics.
const (
	MethodCache         = "cache"
	MethodToken         = "token"
	MethodHybrid        = "hybrid"
	MethodTokenFallback = "token-fallback"
	MethodNone          = "none"
)

var (
	// ErrNoIntentJSON means the LLM reply contained no JSON object.
	ErrNoIntentJSON = errors.New("no json object in llm reply")
	// ErrNoSignal means the LLM intent named no part number, category,
	// brand, or vehicle make and is useless for retrieval.
	ErrNoSignal = errors.New("llm intent carries no search signal")
)

// Completer abstracts the LLM behind query understanding.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options configures the understanding stage.
type Options struct {
	// SkipConfidence is the token-parser confidence at which the LLM
	// adds nothing and is skipped.
	SkipConfidence float64
	// PartNumberSkip is the pattern confidence at which a detected part
	// number settles the query on its own.
	PartNumberSkip float64
	// CacheConfidence is the minimum confidence for caching an intent.
	CacheConfidence float64
}

// DefaultOptions returns the thresholds the pipeline ships with.
func DefaultOptions() Options {
	return Options{
		SkipConfidence:  0.6,
		PartNumberSkip:  0.9,
		CacheConfidence: 0.5,
	}
}

// Service is the query understanding stage.
type Service struct {
	llm     Completer
	breaker *resilience.Breaker
	store   *cache.Tiered
	opts    Options
	logger  *slog.Logger
}

// New creates the understanding stage. llm, breaker, and store may each be
// nil; a nil llm disables consultation entirely.
func New(llm Completer, breaker *resilience.Breaker, store *cache.Tiered, opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.SkipConfidence <= 0 {
		opts.SkipConfidence = def.SkipConfidence
	}
	if opts.PartNumberSkip <= 0 {
		opts.PartNumberSkip = def.PartNumberSkip
	}
	if opts.CacheConfidence <= 0 {
		opts.CacheConfidence = def.CacheConfidence
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{llm: llm, breaker: breaker, store: store, opts: opts, logger: logger}
}

// Result is the stage outcome handed to the orchestrator.
type Result struct {
	Success  bool
	Intent   domain.Intent
	Method   string
	Warnings []string
	Duration time.Duration
	Err      error
}

// Understand resolves a raw query into an Intent.
func (s *Service) Understand(ctx context.Context, rawQuery string) Result {
	start := time.Now()

	// 1. Normalize; an empty query never reaches a backend.
	normalized := domain.NormalizeQuery(rawQuery)
	if normalized == "" {
		return Result{Method: MethodNone, Duration: time.Since(start), Err: domain.ErrEmptyQuery}
	}

	// 2. Cached intent?
	cacheKey := cache.Hash(normalized)
	if s.store != nil {
		var cached domain.Intent
		if s.store.GetJSON(ctx, cache.NSIntent, cacheKey, &cached) {
			return Result{Success: true, Intent: cached, Method: MethodCache, Duration: time.Since(start)}
		}
	}

	// 3. Token parse.
	parsed, err := query.Parse(rawQuery)
	if err != nil {
		return Result{Method: MethodNone, Duration: time.Since(start), Err: err}
	}
	intent := parsed.Intent
	method := MethodToken

	// 4-6. Consult the LLM when the tokens alone are not convincing.
	if s.shouldConsult(parsed) {
		llmIntent, err := s.consult(ctx, rawQuery)
		if err != nil {
			s.logger.Warn("llm consultation failed, keeping token intent", "err", err)
			method = MethodTokenFallback
		} else {
			intent = query.MergeTokenLLM(intent, llmIntent)
			method = MethodHybrid
		}
	}

	// 7. Final lenient pass repairs anything the merge broke, then cache.
	v := query.ValidateIntent(intent, query.Lenient)
	if v.Valid {
		intent = v.Intent
	} else {
		// Lenient validation rejecting a parser-built intent means a bug
		// somewhere upstream; keep the unvalidated intent and say so.
		s.logger.Error("merged intent failed lenient validation", "errors", v.Errors)
	}
	if s.store != nil && intent.Confidence >= s.opts.CacheConfidence {
		s.store.SetJSON(ctx, cache.NSIntent, cacheKey, intent)
	}

	s.logger.Info("understanding done",
		"method", method,
		"searchType", intent.SearchType,
		"confidence", intent.Confidence,
		"duration", time.Since(start))

	return Result{
		Success:  true,
		Intent:   intent,
		Method:   method,
		Warnings: v.Warnings,
		Duration: time.Since(start),
	}
}

// shouldConsult applies the skip rules: no LLM, confident tokens, a decisive
// part number, or an open breaker all keep the request local.
func (s *Service) shouldConsult(parsed *query.Result) bool {
	if s.llm == nil {
		return false
	}
	if parsed.Intent.Confidence >= s.opts.SkipConfidence {
		return false
	}
	if parsed.Intent.PartNumber != "" && parsed.Signals.PartNumberConfidence >= s.opts.PartNumberSkip {
		return false
	}
	if s.breaker != nil && s.breaker.State() == resilience.StateOpen {
		return false
	}
	return true
}

// consult sends the prompt through the breaker and lowers the reply into an
// Intent. Every failure mode comes back as an error; the caller decides that
// token output is good enough.
func (s *Service) consult(ctx context.Context, rawQuery string) (domain.Intent, error) {
	prompt := BuildPrompt(rawQuery)

	var reply string
	call := func(ctx context.Context) error {
		out, err := s.llm.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Intent{}, fmt.Errorf("understand: llm: %w", err)
	}
	return s.parseReply(reply)
}

// parseReply extracts the first JSON object from the reply, rejects replies
// with no usable signal, and validates strictly before falling back to
// lenient repair.
func (s *Service) parseReply(reply string) (domain.Intent, error) {
	objText, ok := extractJSONObject(reply)
	if !ok {
		return domain.Intent{}, fmt.Errorf("understand: %w", ErrNoIntentJSON)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(objText), &data); err != nil {
		return domain.Intent{}, fmt.Errorf("understand: decode llm intent: %w", err)
	}
	if !hasSignal(data) {
		return domain.Intent{}, fmt.Errorf("understand: %w", ErrNoSignal)
	}

	v := query.ValidateIntentMap(data, query.Strict)
	if !v.Valid {
		s.logger.Debug("strict validation of llm intent failed, retrying leniently", "errors", v.Errors)
		v = query.ValidateIntentMap(data, query.Lenient)
		if !v.Valid {
			return domain.Intent{}, fmt.Errorf("understand: llm intent rejected: %s", strings.Join(v.Errors, "; "))
		}
	}
	if len(v.Warnings) > 0 {
		s.logger.Debug("llm intent repaired", "warnings", v.Warnings)
	}
	return v.Intent, nil
}

// hasSignal reports whether the decoded LLM object names anything a
// retrieval strategy could act on.
func hasSignal(data map[string]any) bool {
	for _, field := range []string{"partNumber", "category", "brand", "vehicleMake"} {
		switch v := data[field].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return true
			}
		case []any:
			if len(v) > 0 {
				return true
			}
		}
	}
	return false
}

// extractJSONObject returns the first balanced JSON object in s. Models wrap
// their output in prose or code fences often enough that plain unmarshalling
// is not an option.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
