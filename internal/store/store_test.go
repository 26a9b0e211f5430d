package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/netinspect/netinspect/internal/config"
)

func TestMemory_SaveGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := &Record{ID: "abc", Kind: KindScan, Target: "10.0.0.1", Status: StatusRunning}
	if err := m.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
	created := rec.CreatedAt

	time.Sleep(2 * time.Millisecond)
	rec.Status = StatusCompleted
	rec.Result = json.RawMessage(`{"open_ports":[]}`)
	if err := m.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || string(got.Result) != `{"open_ports":[]}` {
		t.Fatalf("record = %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.After(created) {
		t.Fatalf("timestamps: created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Save(ctx, &Record{ID: "x", Result: json.RawMessage(`{"a":1}`)})

	got, _ := m.Get(ctx, "x")
	got.Result[0] = '['
	got.Status = "mutated"

	again, _ := m.Get(ctx, "x")
	if string(again.Result) != `{"a":1}` || again.Status != "" {
		t.Fatalf("stored record was mutated: %+v", again)
	}
}

func TestMemory_NotFound(t *testing.T) {
	if _, err := NewMemory().Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNew_Drivers(t *testing.T) {
	for _, driver := range []string{"", "memory"} {
		s, err := New(context.Background(), config.StoreConfig{Driver: driver})
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if _, ok := s.(*Memory); !ok {
			t.Fatalf("driver %q: got %T", driver, s)
		}
		_ = s.Close()
	}

	if _, err := New(context.Background(), config.StoreConfig{Driver: "cassandra"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedis(ctx, config.StoreConfig{RedisAddr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected connection error")
	}
}
