package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	boltPath := filepath.Join(t.TempDir(), "test.db")
	b, err := NewBolt(boltPath)
	if err != nil {
		t.Fatalf("NewBolt: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"bolt":   b,
	}
}

func TestStore_SetGetDel(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "k1", "v1", 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, "k1")
			if err != nil || got != "v1" {
				t.Fatalf("Get = %q, %v, want v1, nil", got, err)
			}
			if err := s.Del(ctx, "k1"); err != nil {
				t.Fatalf("Del: %v", err)
			}
			if _, err := s.Get(ctx, "k1"); err != ErrNotFound {
				t.Fatalf("Get after Del = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
				t.Fatalf("Set: %v", err)
			}
			time.Sleep(30 * time.Millisecond)
			if _, err := s.Get(ctx, "k"); err != ErrNotFound {
				t.Fatalf("Get after expiry = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.SetIfAbsent(ctx, "lock", "1", time.Minute)
			if err != nil || !ok {
				t.Fatalf("first SetIfAbsent = %v, %v, want true, nil", ok, err)
			}
			ok, err = s.SetIfAbsent(ctx, "lock", "2", time.Minute)
			if err != nil || ok {
				t.Fatalf("second SetIfAbsent = %v, %v, want false, nil", ok, err)
			}
			val, _ := s.Get(ctx, "lock")
			if val != "1" {
				t.Fatalf("value after contended SetIfAbsent = %q, want 1", val)
			}
		})
	}
}

func TestStore_Keys(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.Set(ctx, "aidos:tasks:1", "a", 0)
			s.Set(ctx, "aidos:tasks:2", "b", 0)
			s.Set(ctx, "aidos:dlq:1", "c", 0)

			keys, err := s.Keys(ctx, "aidos:tasks:")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 {
				t.Fatalf("Keys = %v, want 2 matches", keys)
			}
		})
	}
}
