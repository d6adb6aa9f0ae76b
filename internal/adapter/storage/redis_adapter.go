package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/bookstore/internal/core/domain"
)

const (
	lockKeyPrefix = "lock:"
	bookKeyPrefix = "book:"
	catalogKey    = "catalog:all"
)

// releaseLockScript deletes the lock only if it still carries our token, so
// an expired lock taken over by another holder is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisAdapter provides the distributed fulfillment lock and the book cache.
type RedisAdapter struct {
	client   *redis.Client
	lockTTL  time.Duration
	cacheTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, lockTTL, cacheTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, lockTTL: lockTTL, cacheTTL: cacheTTL}
}

func (r *RedisAdapter) TryAcquire(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, redisKey, token, r.lockTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		return releaseLockScript.Run(ctx, r.client, []string{redisKey}, token).Err()
	}
	return release, true, nil
}

func (r *RedisAdapter) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisAdapter) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, r.cacheTTL).Err()
}

func (r *RedisAdapter) GetBook(ctx context.Context, id string) (*domain.Book, bool, error) {
	var book domain.Book
	ok, err := r.getJSON(ctx, bookKeyPrefix+id, &book)
	if err != nil || !ok {
		return nil, false, err
	}
	return &book, true, nil
}

func (r *RedisAdapter) SetBook(ctx context.Context, book domain.Book) error {
	return r.setJSON(ctx, bookKeyPrefix+book.ID, book)
}

func (r *RedisAdapter) GetCatalog(ctx context.Context) ([]domain.Book, bool, error) {
	var books []domain.Book
	ok, err := r.getJSON(ctx, catalogKey, &books)
	if err != nil || !ok {
		return nil, false, err
	}
	return books, true, nil
}

func (r *RedisAdapter) SetCatalog(ctx context.Context, books []domain.Book) error {
	return r.setJSON(ctx, catalogKey, books)
}

// InvalidateBooks drops the given books and the cached catalog.
func (r *RedisAdapter) InvalidateBooks(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, bookKeyPrefix+id)
	}
	keys = append(keys, catalogKey)
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
