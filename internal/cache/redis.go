package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"liveclass-backend/internal/model"
)

// ChatEntry is the cached form of one chat message, kept per class for
// fast history reads by late joiners.
type ChatEntry struct {
	ID          string     `json:"id"`
	LiveClassID int64      `json:"liveClassId"`
	AuthorID    int64      `json:"authorId"`
	AuthorRole  model.Role `json:"authorRole"`
	AuthorName  string     `json:"authorName"`
	Text        string     `json:"text"`
	Seq         int64      `json:"seq"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// RedisClient wraps Redis for chat caching and the presence mirror.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int64
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string, db int, ttl time.Duration, maxLen int64) (*RedisClient, error) {
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
	return &RedisClient{client: client, ttl: ttl, maxLen: maxLen}, nil
}

func chatKey(liveClassID int64) string {
	return fmt.Sprintf("class:%d:chat", liveClassID)
}

func onlineKey(liveClassID int64) string {
	return fmt.Sprintf("class:%d:online", liveClassID)
}

// AddChatMessage appends a message to the class's cached history and
// trims it to the configured length.
func (r *RedisClient) AddChatMessage(ctx context.Context, entry *ChatEntry) error {
	key := chatKey(entry.LiveClassID)

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		log.Printf("[Redis] Failed to cache chat message: %v", err)
		return err
	}
	if r.maxLen > 0 {
		r.client.LTrim(ctx, key, -r.maxLen, -1)
	}
	r.client.Expire(ctx, key, r.ttl)

	return nil
}

// GetRecentChatMessages returns the last count cached messages in order.
func (r *RedisClient) GetRecentChatMessages(ctx context.Context, liveClassID int64, count int64) ([]ChatEntry, error) {
	results, err := r.client.LRange(ctx, chatKey(liveClassID), -count, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]ChatEntry, 0, len(results))
	for _, data := range results {
		var e ChatEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteClass drops all cached state for a class, called when the room
// is torn down after the class ends.
func (r *RedisClient) DeleteClass(ctx context.Context, liveClassID int64) error {
	return r.client.Del(ctx, chatKey(liveClassID), onlineKey(liveClassID)).Err()
}

// Presence mirror. The in-process Connection Registry is authoritative;
// the Redis set is a cross-server mirror for dashboards and future
// horizontal scaling.

// AddOnline marks a user online in a class.
func (r *RedisClient) AddOnline(ctx context.Context, liveClassID, userID int64) error {
	key := onlineKey(liveClassID)
	if err := r.client.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, r.ttl).Err()
}

// RemoveOnline marks a user offline in a class.
func (r *RedisClient) RemoveOnline(ctx context.Context, liveClassID, userID int64) error {
	return r.client.SRem(ctx, onlineKey(liveClassID), userID).Err()
}

// ListOnline returns the mirrored online user IDs for a class.
func (r *RedisClient) ListOnline(ctx context.Context, liveClassID int64) ([]int64, error) {
	members, err := r.client.SMembers(ctx, onlineKey(liveClassID)).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		var id int64
		if _, err := fmt.Sscanf(m, "%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Health checks if Redis is reachable.
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
