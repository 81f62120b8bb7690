package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/repo-crawler/pkg/client"
)

// setupTestRedis creates a Redis client backed by an in-memory miniredis.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rc.Close()
	})

	return rc, mr
}

func testNode() client.RepositoryNode {
	return client.RepositoryNode{
		ID:             "R_kgDOAAAB",
		DatabaseID:     1296269,
		NameWithOwner:  "octocat/Hello-World",
		URL:            "https://github.com/octocat/Hello-World",
		StargazerCount: 2500,
		CreatedAt:      time.Date(2011, 1, 26, 19, 1, 12, 0, time.UTC),
	}
}

func TestNewManager(t *testing.T) {
	rc, _ := setupTestRedis(t)

	manager := NewManager(rc, 0)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != rc {
		t.Error("Manager redis client not set correctly")
	}
	if manager.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", manager.TTL(), DefaultTTL)
	}
	if err := manager.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_SetAndGet(t *testing.T) {
	rc, mr := setupTestRedis(t)
	manager := NewManager(rc, 5*time.Minute)
	ctx := context.Background()

	key := NewKey("octocat", "Hello-World")
	if err := manager.Set(ctx, key, NewEntry(testNode(), manager.TTL())); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Lookups are case-insensitive
	retrieved, err := manager.Get(ctx, NewKey("OctoCat", "hello-world"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if retrieved.Repository.DatabaseID != 1296269 {
		t.Errorf("DatabaseID = %d, want 1296269", retrieved.Repository.DatabaseID)
	}
	if retrieved.Repository.StargazerCount != 2500 {
		t.Errorf("StargazerCount = %d, want 2500", retrieved.Repository.StargazerCount)
	}
	if !retrieved.Repository.CreatedAt.Equal(testNode().CreatedAt) {
		t.Errorf("CreatedAt = %v", retrieved.Repository.CreatedAt)
	}

	ttl := mr.TTL(key.String())
	if ttl <= 4*time.Minute || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want about 5m", ttl)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	rc, _ := setupTestRedis(t)
	manager := NewManager(rc, time.Minute)

	_, err := manager.Get(context.Background(), NewKey("nobody", "nothing"))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	rc, mr := setupTestRedis(t)
	manager := NewManager(rc, time.Minute)
	ctx := context.Background()
	key := NewKey("octocat", "Hello-World")

	// Set should not cache expired entries
	expired := &Entry{Repository: testNode(), Expires: time.Now().Add(-time.Hour)}
	if err := manager.Set(ctx, key, expired); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if mr.Exists(key.String()) {
		t.Error("expired entry was written to redis")
	}

	// A stale payload still in redis is treated as a miss and removed
	if err := mr.Set(key.String(), `{"repository":{"databaseId":1},"expires":"2000-01-01T00:00:00Z"}`); err != nil {
		t.Fatalf("seed redis: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
	if mr.Exists(key.String()) {
		t.Error("expired entry was not deleted")
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	rc, mr := setupTestRedis(t)
	manager := NewManager(rc, time.Minute)
	key := NewKey("octocat", "Hello-World")

	if err := mr.Set(key.String(), "not json"); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	_, err := manager.Get(context.Background(), key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_Get_RedisDown(t *testing.T) {
	rc, mr := setupTestRedis(t)
	manager := NewManager(rc, time.Minute)
	mr.Close()

	_, err := manager.Get(context.Background(), NewKey("octocat", "Hello-World"))
	if err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected redis error, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	rc, _ := setupTestRedis(t)
	manager := NewManager(rc, time.Minute)
	ctx := context.Background()
	key := NewKey("octocat", "Hello-World")

	if err := manager.Set(ctx, key, NewEntry(testNode(), time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	rc, _ := setupTestRedis(t)
	manager := NewManager(rc, time.Minute)

	if err := manager.Set(context.Background(), NewKey("a", "b"), nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestManager_Get_EntryWithoutRepository(t *testing.T) {
	rc, mr := setupTestRedis(t)
	manager := NewManager(rc, time.Minute)
	key := NewKey("octocat", "Hello-World")

	if err := mr.Set(key.String(), `{"expires":"2099-01-01T00:00:00Z"}`); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	_, err := manager.Get(context.Background(), key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}
