package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/repository"
)

// noneMarker caches "no active template" so empty guilds do not hit the database.
const noneMarker = "0"

type activeCache struct {
	client *redislib.Client
	next   repository.ActiveRepository
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewActiveCache wraps next with a Redis read-through cache. Cache failures degrade to
// direct reads; writes always go to next first.
func NewActiveCache(client *redislib.Client, next repository.ActiveRepository, ttl time.Duration, logger *zap.Logger) repository.ActiveRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &activeCache{
		client: client,
		next:   next,
		prefix: "designer:active:",
		ttl:    ttl,
		logger: logger.Named("active_cache"),
	}
}

func (c *activeCache) GetActive(ctx context.Context, guildID string) (int64, error) {
	cached, err := c.client.Get(ctx, c.key(guildID)).Result()
	switch {
	case err == nil:
		if id, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
			return id, nil
		}
		c.logger.Warn("dropping malformed cache entry", zap.String("guild_id", guildID))
	case !errors.Is(err, redislib.Nil):
		c.logger.Warn("active cache read failed", zap.String("guild_id", guildID), zap.Error(err))
	}

	id, err := c.next.GetActive(ctx, guildID)
	if err != nil {
		return 0, err
	}
	c.store(ctx, guildID, id)
	return id, nil
}

func (c *activeCache) SetActive(ctx context.Context, guildID string, id int64) error {
	if err := c.next.SetActive(ctx, guildID, id); err != nil {
		return err
	}
	c.store(ctx, guildID, id)
	return nil
}

func (c *activeCache) ClearActive(ctx context.Context, guildID string) error {
	if err := c.next.ClearActive(ctx, guildID); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.key(guildID)).Err(); err != nil {
		c.logger.Warn("active cache invalidation failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	return nil
}

func (c *activeCache) store(ctx context.Context, guildID string, id int64) {
	value := noneMarker
	if id > 0 {
		value = strconv.FormatInt(id, 10)
	}
	if err := c.client.Set(ctx, c.key(guildID), value, c.ttl).Err(); err != nil {
		c.logger.Warn("active cache write failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func (c *activeCache) key(guildID string) string {
	return fmt.Sprintf("%s%s", c.prefix, guildID)
}
