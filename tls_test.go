package main

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

func TestCertStorage(t *testing.T) {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	storage := &certStorage{
		rdb:    rdb,
		locker: redislock.New(rdb),
		locks:  sync.Map{},
	}

	domain := "example.com"
	value := []byte("key value")

	if err := storage.Lock(ctx, domain); err != nil {
		t.Fatalf("failed to lock %v", err)
	}

	if err := storage.Unlock(ctx, domain); err != nil {
		t.Fatalf("failed to unlock %v", err)
	}

	if err := storage.Store(ctx, domain, value); err != nil {
		t.Fatalf("failed to store %v", err)
	}

	defer func() {
		_ = storage.Delete(ctx, domain)
	}()

	if !storage.Exists(ctx, domain) {
		t.Error("stored key does not exist")
	}

	b, err := storage.Load(ctx, domain)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(b, value) {
		t.Fatalf("keys not equal")
	}

	info, err := storage.Stat(ctx, domain)
	if err != nil {
		t.Fatal(err)
	}

	if info.Size != int64(len(value)) {
		t.Errorf("got size %v", info.Size)
	}
}
