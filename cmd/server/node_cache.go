package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"riftminer.ai/internal/persistence/nodecache"
	"riftminer.ai/internal/sim/world"
)

type redisConfig struct {
	Addr     string
	Password string
	DB       int
}

type nodeCacheRuntime struct {
	client *redis.Client
	store  *nodecache.Store
}

// openNodeCache connects the optional Redis mirror and seeds it with the current node states.
// It returns nil when Redis is not configured or not reachable; the server runs without it.
func openNodeCache(ctx context.Context, cfg redisConfig, w *world.World, logger *log.Logger) *nodeCacheRuntime {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		// Write timeouts come from the caller's context so Close can abandon a stuck write.
		ContextTimeoutEnabled: true,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Printf("redis not available (%v), running without node cache", err)
		_ = client.Close()
		return nil
	}
	logger.Printf("redis connected (%s)", cfg.Addr)

	store := nodecache.New(client, nodecache.Options{
		Prefix: "riftminer:" + w.ID(),
		Logger: logger,
	})
	if err := store.Reset(pingCtx); err != nil {
		logger.Printf("node cache reset: %v", err)
	}
	store.PublishSync(w.CurrentTick(), w.NodeStates())
	return &nodeCacheRuntime{client: client, store: store}
}

func (r *nodeCacheRuntime) Close() {
	if r == nil {
		return
	}
	_ = r.store.Close()
	_ = r.client.Close()
}
