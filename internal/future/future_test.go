package future

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	f := New[int]()
	go f.Resolve(42)
	v, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestFail(t *testing.T) {
	f := New[int]()
	want := errors.New("boom")
	go f.Fail(want)
	_, err := f.Wait(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}

func TestContextCancel(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestDone(t *testing.T) {
	f := New[int]()
	if f.Done() {
		t.Error("new future should not be done")
	}
	f.Resolve(1)
	if !f.Done() {
		t.Error("resolved future should be done")
	}
}

func TestWaitAfterResolveIgnoresLateCancel(t *testing.T) {
	f := New[string]()
	f.Resolve("ok")
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	v, err := f.Wait(ctx)
	if err != nil || v != "ok" {
		t.Errorf("got (%q, %v), want (\"ok\", nil)", v, err)
	}
}
