package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"drawboard-backend/internal/model"
)

const (
	chatKeyPrefix      = "session:"
	chatKeySuffix      = ":chat"
	chatCacheLimit     = 500
	chatCacheTTL       = 24 * time.Hour
	sessionUpdatesChan = "session_updates"
)

// RedisClient wraps Redis for the recent-chat cache and the
// cross-instance session-update fan-out channel.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects and pings.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

func chatKey(sessionID string) string {
	return chatKeyPrefix + sessionID + chatKeySuffix
}

// AddChatEntry appends a chat entry to the session's cached log,
// trimming to the last chatCacheLimit entries.
func (r *RedisClient) AddChatEntry(ctx context.Context, sessionID string, e *model.ChatEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := chatKey(sessionID)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -chatCacheLimit, -1)
	pipe.Expire(ctx, key, chatCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Redis] Failed to cache chat entry: %v", err)
		return err
	}
	return nil
}

// GetRecentChat returns the last count cached entries for a session.
func (r *RedisClient) GetRecentChat(ctx context.Context, sessionID string, count int64) ([]model.ChatEntry, error) {
	results, err := r.client.LRange(ctx, chatKey(sessionID), -count, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.ChatEntry, 0, len(results))
	for _, data := range results {
		var e model.ChatEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteSessionChat removes a session's cached log.
func (r *RedisClient) DeleteSessionChat(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, chatKey(sessionID)).Err()
}

// PublishSessionUpdate pushes a committed-document envelope to peers.
func (r *RedisClient) PublishSessionUpdate(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, sessionUpdatesChan, payload).Err()
}

// SessionUpdates subscribes to peer updates. The channel closes when
// ctx is cancelled.
func (r *RedisClient) SessionUpdates(ctx context.Context) <-chan []byte {
	pubsub := r.client.Subscribe(ctx, sessionUpdatesChan)
	out := make(chan []byte, 64)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					log.Printf("[Redis] Session update buffer full, dropping message")
				}
			}
		}
	}()

	return out
}

// Health checks connectivity.
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
