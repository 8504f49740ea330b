package docbuilder

import (
	"context"

	"github.com/ssuji15/docbuilder/internal/cache"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
)

type LimitsResolver interface {
	LimitsFor(ctx context.Context, name string) (model.BuildLimits, error)
}

// CachedLimits serves limits from the cache and falls back to next on a
// miss. Cache failures only cost a lookup.
type CachedLimits struct {
	cache cache.Cache
	next  LimitsResolver
}

func NewCachedLimits(c cache.Cache, next LimitsResolver) *CachedLimits {
	return &CachedLimits{cache: c, next: next}
}

func (l *CachedLimits) LimitsFor(ctx context.Context, name string) (model.BuildLimits, error) {
	key := util.GetLimitsKey(name)
	var limits model.BuildLimits
	if err := l.cache.Get(ctx, key, &limits); err == nil {
		return limits, nil
	}

	limits, err := l.next.LimitsFor(ctx, name)
	if err != nil {
		return model.BuildLimits{}, err
	}
	if err := l.cache.Put(ctx, key, limits, l.cache.GetDefaultTTL()); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to cache limits")
	}
	return limits, nil
}
