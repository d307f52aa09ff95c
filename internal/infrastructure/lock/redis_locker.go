// Package lock — распределённые блокировки на Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/logger"
)

const keyPrefix = "studentmarket:lock:"

// RedisLocker реализует service.EventLocker.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker создаёт блокировщик. ttl ограничивает время жизни
// блокировки, если процесс упал, не отпустив её.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// Lock возвращает ok=false, если ключ уже занят другим обработчиком.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), bool, error) {
	lk, err := l.client.Obtain(ctx, keyPrefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis lock: obtain %s: %w", key, err)
	}

	release := func() {
		// контекст запроса к этому моменту может быть уже отменён
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Log.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("redis lock: release failed")
		}
	}
	return release, true, nil
}

// Connect открывает клиент Redis и проверяет соединение.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return rdb, nil
}
