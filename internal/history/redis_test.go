package history

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/twinlabs/twind/internal/persona"
)

func openTestRedisStore(t *testing.T, limit int) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), limit, time.Hour)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisAppendAndRecent(t *testing.T) {
	s := openTestRedisStore(t, 10)
	ctx := context.Background()

	msgs := []persona.Message{
		{Role: "user", Content: "What is BRICS?"},
		{Role: "assistant", Content: "A bloc of emerging economies."},
	}
	if err := s.Append(ctx, "u@example.com", msgs...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Recent(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if !reflect.DeepEqual(got, msgs) {
		t.Errorf("Recent = %+v, want %+v", got, msgs)
	}
}

func TestRedisTrimsToLimit(t *testing.T) {
	s := openTestRedisStore(t, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		m := persona.Message{Role: "user", Content: fmt.Sprintf("msg %d", i)}
		if err := s.Append(ctx, "u@example.com", m); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := s.Recent(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0].Content != "msg 3" || got[4].Content != "msg 7" {
		t.Errorf("trim kept wrong window: first=%q last=%q", got[0].Content, got[4].Content)
	}
}

func TestRedisUsersIsolated(t *testing.T) {
	s := openTestRedisStore(t, 10)
	ctx := context.Background()

	if err := s.Append(ctx, "a@example.com", persona.Message{Role: "user", Content: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Recent(ctx, "b@example.com")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("other user sees %d messages, want 0", len(got))
	}
}

func TestRedisClear(t *testing.T) {
	s := openTestRedisStore(t, 10)
	ctx := context.Background()

	if err := s.Append(ctx, "u@example.com", persona.Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Clear(ctx, "u@example.com"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	got, err := s.Recent(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages after clear, want 0", len(got))
	}
}

func TestRedisTTLSet(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), 10, time.Hour)
	defer s.Close()
	ctx := context.Background()

	if err := s.Append(ctx, "u@example.com", persona.Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ttl := mr.TTL("twin:history:u@example.com")
	if ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	got, err := s.Recent(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("transcript survived past its ttl: %+v", got)
	}
}

func TestMemoryStoreAppendTrimClear(t *testing.T) {
	s := NewMemoryStore(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := persona.Message{Role: "user", Content: fmt.Sprintf("msg %d", i)}
		if err := s.Append(ctx, "u@example.com", m); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := s.Recent(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 || got[0].Content != "msg 2" {
		t.Errorf("trim kept wrong window: %+v", got)
	}

	if err := s.Clear(ctx, "u@example.com"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = s.Recent(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages after clear, want 0", len(got))
	}
}
