package llm

import (
	"context"
	"log/slog"

	"github.com/dshills/wordbatch/internal/cache"
)

// Cached serves repeated prompts from a response cache. Hits carry no
// usage since no tokens were spent.
type Cached struct {
	next   Generator
	cache  *cache.Cache
	base   cache.RequestKey
	logger *slog.Logger
}

// NewCached wraps next. base identifies the endpoint and sampling settings;
// its Prompt field is ignored. A disabled cache returns next unchanged.
func NewCached(next Generator, c *cache.Cache, base cache.RequestKey, logger *slog.Logger) Generator {
	if c == nil || !c.Enabled() {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: c, base: base, logger: logger}
}

// Generate implements Generator.
func (g *Cached) Generate(ctx context.Context, prompt string) (Response, error) {
	key := g.base
	key.Prompt = prompt
	k := key.String()

	if text, ok := g.cache.Get(k); ok {
		g.logger.Debug("generation cache hit", "key", cache.HashKey(k)[:12])
		return Response{Text: text}, nil
	}

	resp, err := g.next.Generate(ctx, prompt)
	if err != nil {
		return Response{}, err
	}
	if err := g.cache.Put(k, resp.Text); err != nil {
		g.logger.Warn("storing generation in cache failed", "error", err)
	}
	return resp, nil
}
