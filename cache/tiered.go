package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// sharedPrefixes mark keys that coordinate instances. They are read from L2
// and only kept in L1 while L2 is unreachable.
var sharedPrefixes = []string{statusPrefix, lockPrefix}

type ttlReader interface {
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Tiered combines a fast in-process L1 with a shared L2. L1 entries live at
// most l1TTL, and never longer than the L2 copy they were promoted from. L2
// failures degrade to L1-only operation.
type Tiered struct {
	l1     *Memory
	l2     Store
	l1TTL  time.Duration
	logger *slog.Logger
}

func NewTiered(l1 *Memory, l2 Store, l1TTL time.Duration, logger *slog.Logger) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, key string) (string, error) {
	shared := isShared(key)
	if !shared {
		if val, err := t.l1.Get(ctx, key); err == nil {
			return val, nil
		}
	}

	val, err := t.l2.Get(ctx, key)
	switch {
	case err == nil:
		if !shared {
			t.l1.Set(ctx, key, val, t.promoteTTL(ctx, key))
		}
		return val, nil
	case errors.Is(err, ErrMiss):
		if shared {
			t.l1.Delete(ctx, key)
		}
		return "", ErrMiss
	default:
		t.logger.Debug("cache: L2 get failed", slog.String("key", key), slog.Any("error", err))
		if shared {
			return t.l1.Get(ctx, key)
		}
		return "", ErrMiss
	}
}

func (t *Tiered) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	shared := isShared(key)
	if !shared {
		t.l1.Set(ctx, key, value, t.capTTL(ttl))
	}
	if err := t.l2.Set(ctx, key, value, ttl); err != nil {
		t.logger.Debug("cache: L2 set failed", slog.String("key", key), slog.Any("error", err))
		if shared {
			t.l1.Set(ctx, key, value, ttl)
		}
		return nil
	}
	if shared {
		t.l1.Delete(ctx, key)
	}
	return nil
}

// SetNX is decided by L2 when it is reachable, since only L2 is shared.
func (t *Tiered) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := t.l2.SetNX(ctx, key, value, ttl)
	if err != nil {
		t.logger.Debug("cache: L2 setnx failed", slog.String("key", key), slog.Any("error", err))
		return t.l1.SetNX(ctx, key, value, t.capTTL(ttl))
	}
	if ok && !isShared(key) {
		t.l1.Set(ctx, key, value, t.capTTL(ttl))
	}
	return ok, nil
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	t.l1.Delete(ctx, key)
	if err := t.l2.Delete(ctx, key); err != nil {
		t.logger.Debug("cache: L2 delete failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}

func (t *Tiered) Close() error {
	return t.l2.Close()
}

func (t *Tiered) Stats() Stats {
	return t.l1.Stats()
}

// promoteTTL is the L1 lifetime of a value read from L2.
func (t *Tiered) promoteTTL(ctx context.Context, key string) time.Duration {
	r, ok := t.l2.(ttlReader)
	if !ok {
		return t.l1TTL
	}
	ttl, err := r.TTL(ctx, key)
	if err != nil {
		t.logger.Debug("cache: L2 ttl failed", slog.String("key", key), slog.Any("error", err))
		return t.l1TTL
	}
	return t.capTTL(ttl)
}

func isShared(key string) bool {
	for _, p := range sharedPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (t *Tiered) capTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > t.l1TTL {
		return t.l1TTL
	}
	return ttl
}
