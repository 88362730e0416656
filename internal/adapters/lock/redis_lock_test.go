package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockExclusive(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	ctx := context.Background()
	a := NewRedisLock(rdb)
	b := NewRedisLock(rdb)

	ok, err := a.Acquire(ctx, "cycle", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = b.Acquire(ctx, "cycle", 10*time.Second)
	if err != nil || ok {
		t.Fatalf("second holder should be refused: ok=%v err=%v", ok, err)
	}
	ok, err = a.Acquire(ctx, "cycle", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("holder should be able to extend its lease: ok=%v err=%v", ok, err)
	}

	if err := b.Release(ctx, "cycle"); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if !s.Exists("cycle") {
		t.Fatalf("a non-holder must not release the lease")
	}

	if err := a.Release(ctx, "cycle"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = b.Acquire(ctx, "cycle", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("lease should be free after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockExpires(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	a := NewRedisLock(rdb)
	b := NewRedisLock(rdb)

	if ok, _ := a.Acquire(ctx, "cycle", time.Second); !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	s.FastForward(2 * time.Second)
	if ok, err := b.Acquire(ctx, "cycle", time.Second); err != nil || !ok {
		t.Fatalf("expired lease should be available: ok=%v err=%v", ok, err)
	}
}
