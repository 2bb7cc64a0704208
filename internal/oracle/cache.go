package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CachedOracle wraps an Oracle with a Redis read-through cache. Redis
// failures fall back to the primary; errors are never cached.
type CachedOracle struct {
	primary Oracle
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedOracle creates a cached wrapper around primary
func NewCachedOracle(primary Oracle, rdb redis.Cmdable, ttl time.Duration) *CachedOracle {
	return &CachedOracle{primary: primary, rdb: rdb, ttl: ttl}
}

func (c *CachedOracle) GetMarket(ctx context.Context, marketID string) (*Snapshot, error) {
	data, err := c.rdb.Get(ctx, marketKey(marketID)).Bytes()
	if err == nil {
		var s Snapshot
		if json.Unmarshal(data, &s) == nil {
			return &s, nil
		}
	} else if err != redis.Nil {
		logrus.WithError(err).WithField("market", marketID).Debug("Oracle cache read failed")
	}

	s, err := c.primary.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(s); err == nil {
		if err := c.rdb.Set(ctx, marketKey(marketID), data, c.ttl).Err(); err != nil {
			logrus.WithError(err).WithField("market", marketID).Debug("Oracle cache write failed")
		}
	}
	return s, nil
}

func marketKey(id string) string {
	return "oracle:market:" + id
}
