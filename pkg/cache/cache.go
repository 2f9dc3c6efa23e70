package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations interface.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// encode turns a value into the stored representation. Strings and byte slices are kept
// as-is, everything else is JSON.
func encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// decode is the inverse of encode.
func decode(raw string, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = raw
		return nil
	case *[]byte:
		*d = []byte(raw)
		return nil
	default:
		return json.Unmarshal([]byte(raw), dest)
	}
}

// GetOrLoad reads key into dest; on a miss it calls load, stores the result for ttl and
// decodes it into dest. Concurrent loaders for the same key both run; the last write wins.
func GetOrLoad[T any](ctx context.Context, c Service, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var out T
	if err := c.Get(ctx, key, &out); err == nil {
		return out, true, nil
	}

	v, err := load(ctx)
	if err != nil {
		return out, false, err
	}
	_ = c.Set(ctx, key, v, ttl)
	return v, false, nil
}

// GenerateKeyWithParams joins prefix and params with ':' ("candles", "EURUSD", "1h", 300 -> candles:EURUSD:1h:300).
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, param := range params {
		fmt.Fprintf(&b, ":%v", param)
	}
	return b.String()
}

// BuildPattern is the glob matching every key under prefix.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
