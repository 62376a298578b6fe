package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const inFlightPrefix = "nanogen:inflight:"

// 토큰이 일치할 때만 삭제 (다른 레플리카의 락을 지우지 않도록)
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InFlightLock - 세션당 동시 요청 1개를 레플리카 간에 보장하는 락
type InFlightLock struct {
	rdb *redis.Client
}

// NewInFlightLock - InFlightLock 생성
func NewInFlightLock(rdb *redis.Client) *InFlightLock {
	return &InFlightLock{rdb: rdb}
}

// Acquire - SET NX로 락 획득. 이미 잡혀 있으면 ok=false
func (l *InFlightLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, inFlightPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire in-flight lock: %w", err)
	}
	if !ok {
		log.Printf("🔒 [InFlight] Session %s already has a request in flight", key)
		return "", false, nil
	}
	return token, true, nil
}

// Release - 자신이 획득한 락만 해제
func (l *InFlightLock) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{inFlightPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release in-flight lock: %w", err)
	}
	return nil
}
