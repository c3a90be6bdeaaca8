package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error

	// raw variants for binary payloads like pre-synthesized audio
	GetBytes(ctx context.Context, key string) (val []byte, hit bool, err error)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error
}
