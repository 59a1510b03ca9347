package hostname

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocker_SerializesSameHostname(t *testing.T) {
	l := NewLocker()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "app.example.com")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected at most 1 concurrent holder, got %d", maxActive)
	}
	if l.Len() != 0 {
		t.Errorf("expected no entries left, got %d", l.Len())
	}
}

func TestLocker_DifferentHostnamesDoNotBlock(t *testing.T) {
	l := NewLocker()

	unlockA, err := l.Lock(context.Background(), "a.example.com")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b.example.com")
	if err != nil {
		t.Fatalf("expected lock on another hostname, got %v", err)
	}
	unlockB()
}

func TestLocker_ContextCancel(t *testing.T) {
	l := NewLocker()

	unlock, err := l.Lock(context.Background(), "app.example.com")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "app.example.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock() // second call is a no-op
	if l.Len() != 0 {
		t.Errorf("expected no entries left, got %d", l.Len())
	}
}
