// internal/journal/redis.go
// Redis pub/sub journal: one publisher goroutine drains a bounded queue.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erilali/turing/internal/logger"
	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RedisConfig holds connection settings for the Redis pub/sub journal.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // channel prefix, default "turing:"
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379", Prefix: "turing:"}
}

// Redis publishes every event on one pub/sub channel, <prefix>sessions.
// Events are handed to a single publisher goroutine so Record never waits
// on the network.
type Redis struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
	queue   chan Event
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewRedis(cfg RedisConfig, log *logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	r := &Redis{
		client:  client,
		channel: cfg.Prefix + subjectRoot,
		log:     logger.OrNop(log),
		queue:   make(chan Event, maxPendingPublish),
		done:    make(chan struct{}),
	}
	go r.publish()
	return r, nil
}

// Record queues e for publishing. Events recorded after Close are dropped.
func (r *Redis) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.Debugf("journal closed, dropping %s", e.Subject())
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warnf("journal queue full, dropping %s", e.Subject())
	}
}

func (r *Redis) publish() {
	defer close(r.done)
	for e := range r.queue {
		data, err := json.Marshal(e)
		if err != nil {
			r.log.Errorf("Failed to marshal journal event: %v", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
			r.log.Warnf("Failed to publish %s to redis: %v", e.Subject(), err)
		}
		cancel()
	}
}

// Close flushes queued events and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.client.Close()
}
