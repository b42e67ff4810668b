package resolver

import (
	"context"
	"sync"

	"github.com/graphql-go/graphql"
)

// ResultCache holds the JSON documents produced by the root fields of one
// request, keyed by the root field's response key.
type ResultCache struct {
	mu    sync.RWMutex
	roots map[string]interface{}
}

func NewResultCache() *ResultCache {
	return &ResultCache{roots: make(map[string]interface{})}
}

// Store records the document of a root field.
func (c *ResultCache) Store(responseKey string, doc interface{}) {
	c.mu.Lock()
	c.roots[responseKey] = doc
	c.mu.Unlock()
}

// Lookup walks a response path (response keys and list indices) from its
// root document. It reports false when any step is missing.
func (c *ResultCache) Lookup(path []interface{}) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	rootKey, ok := path[0].(string)
	if !ok {
		return nil, false
	}
	c.mu.RLock()
	current, ok := c.roots[rootKey]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	for _, step := range path[1:] {
		switch key := step.(type) {
		case string:
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			if current, ok = obj[key]; !ok {
				return nil, false
			}
		case int:
			list, ok := current.([]interface{})
			if !ok || key < 0 || key >= len(list) {
				return nil, false
			}
			current = list[key]
		default:
			return nil, false
		}
	}
	return current, true
}

type resultCacheKey struct{}

// WithResultCache attaches a request-scoped result cache to the context.
func WithResultCache(ctx context.Context, cache *ResultCache) context.Context {
	return context.WithValue(ctx, resultCacheKey{}, cache)
}

// ResultCacheFromContext returns the request's result cache, or nil.
func ResultCacheFromContext(ctx context.Context) *ResultCache {
	if ctx == nil {
		return nil
	}
	cache, _ := ctx.Value(resultCacheKey{}).(*ResultCache)
	return cache
}

// responsePath flattens a graphql-go response path, root first.
func responsePath(path *graphql.ResponsePath) []interface{} {
	var reversed []interface{}
	for p := path; p != nil; p = p.Prev {
		reversed = append(reversed, p.Key)
	}
	out := make([]interface{}, len(reversed))
	for i, key := range reversed {
		out[len(reversed)-1-i] = key
	}
	return out
}

// resolveFromResult is the resolver of every non-root field. It indexes the
// request's cached documents by response path and falls back to the parent
// value when no cache is attached.
func resolveFromResult(p graphql.ResolveParams) (interface{}, error) {
	if cache := ResultCacheFromContext(p.Context); cache != nil {
		if v, ok := cache.Lookup(responsePath(p.Info.Path)); ok {
			return v, nil
		}
	}
	source, ok := p.Source.(map[string]interface{})
	if !ok || p.Info.Path == nil {
		return nil, nil
	}
	key, ok := p.Info.Path.Key.(string)
	if !ok {
		return nil, nil
	}
	return source[key], nil
}
