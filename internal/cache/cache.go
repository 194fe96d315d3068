package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"securechat/internal/database"
)

const (
	pageTTL = 30 * time.Second

	// DefaultPageLimit is the page size used when the caller does not
	// supply one. Send-side invalidation targets the latest page at
	// this limit.
	DefaultPageLimit = 50
)

// PageCache is a short-lived read-through cache in front of message
// pagination. It stores raw ciphertext rows, never plaintext, and is a
// pure optimization: when redis is unconfigured or unreachable every
// operation degrades to a miss.
type PageCache struct {
	log *log.Logger
	rdb *redis.Client
}

// NewPageCache connects to redis at addr. An empty addr disables the
// cache entirely.
func NewPageCache(addr string, logger *log.Logger) *PageCache {
	c := &PageCache{log: logger}
	if addr != "" {
		c.rdb = redis.NewClient(&redis.Options{Addr: addr})
	}

	return c
}

func (c *PageCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

func pageKey(sessionId, beforeId, limit int) string {
	if beforeId > 0 {
		return fmt.Sprintf("msgs:%d:before:%d:limit:%d", sessionId, beforeId, limit)
	}
	return fmt.Sprintf("msgs:%d:latest:limit:%d", sessionId, limit)
}

// GetPage returns the cached rows for a page, or ok=false on miss or
// any cache failure.
func (c *PageCache) GetPage(ctx context.Context, sessionId, beforeId, limit int) ([]database.Message, bool) {
	if !c.Enabled() {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, pageKey(sessionId, beforeId, limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Println("cache get:", err)
		}
		return nil, false
	}

	var rows []database.Message
	if err := json.Unmarshal(data, &rows); err != nil {
		c.log.Println("cache unmarshal:", err)
		return nil, false
	}

	return rows, true
}

// SetPage stores a page of raw rows with the cache TTL. Failures are
// logged and ignored.
func (c *PageCache) SetPage(ctx context.Context, sessionId, beforeId, limit int, rows []database.Message) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(rows)
	if err != nil {
		c.log.Println("cache marshal:", err)
		return
	}

	if err := c.rdb.Set(ctx, pageKey(sessionId, beforeId, limit), data, pageTTL).Err(); err != nil {
		c.log.Println("cache set:", err)
	}
}

// InvalidateLatest drops the latest-page entry for a session after an
// append. Cursor-keyed pages are left alone: history is immutable
// under append-only writes and expires via TTL anyway.
func (c *PageCache) InvalidateLatest(ctx context.Context, sessionId int) {
	if !c.Enabled() {
		return
	}

	if err := c.rdb.Del(ctx, pageKey(sessionId, 0, DefaultPageLimit)).Err(); err != nil {
		c.log.Println("cache invalidate:", err)
	}
}

func (c *PageCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}
