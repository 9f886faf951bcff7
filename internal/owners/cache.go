package owners

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/redis"
)

// noOwner marks a cached lookup that found no owner.
const noOwner = "-"

type refResolver interface {
	ResolveRef(ctx context.Context, entity string, id uuid.UUID) (*Info, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	OwnerKey(entity, id string) string
}

// CachedResolver memoizes owner lookups in Redis. Cache failures fall through
// to the underlying resolver.
type CachedResolver struct {
	next  refResolver
	cache cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewCachedResolver(next refResolver, cache cacheStore, ttl time.Duration, logg *logger.Logger) *CachedResolver {
	return &CachedResolver{next: next, cache: cache, ttl: ttl, logg: logg}
}

func (r *CachedResolver) Resolve(ctx context.Context, msg models.OutboundMessage) (*Info, error) {
	entity, id, ok := Ref(msg)
	if !ok {
		return nil, nil
	}
	key := r.cache.OwnerKey(entity, id.String())

	raw, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		if info, ok := decode(raw); ok {
			return info, nil
		}
	case !errors.Is(err, redis.Nil):
		r.warn(ctx, "owner cache read failed", err)
	}

	info, err := r.next.ResolveRef(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, encode(info), r.ttl); err != nil {
		r.warn(ctx, "owner cache write failed", err)
	}
	return info, nil
}

func (r *CachedResolver) warn(ctx context.Context, msg string, err error) {
	if r.logg == nil {
		return
	}
	r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), msg)
}

func encode(info *Info) string {
	if info == nil {
		return noOwner
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return noOwner
	}
	return string(payload)
}

func decode(raw string) (*Info, bool) {
	if raw == noOwner {
		return nil, true
	}
	var info Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil || info.ID == "" {
		return nil, false
	}
	return &info, true
}
