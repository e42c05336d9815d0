package gate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireReleaseWithinCapacity(t *testing.T) {
	g := New(2)
	ctx := context.Background()

	if err := g.Acquire(ctx, false); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := g.Acquire(ctx, false); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if g.InUse() != 2 {
		t.Fatalf("in use = %d", g.InUse())
	}
	g.Release()
	g.Release()
	if g.InUse() != 0 {
		t.Fatalf("in use after release = %d", g.InUse())
	}
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	g := New(1)
	ctx := context.Background()
	if err := g.Acquire(ctx, false); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- g.Acquire(ctx, false)
	}()

	select {
	case err := <-acquired:
		t.Fatalf("acquire should have blocked, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestInteractiveWaiterJumpsQueue(t *testing.T) {
	g := New(1)
	ctx := context.Background()
	if err := g.Acquire(ctx, false); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	order := make(chan string, 2)
	batchReady := make(chan struct{})
	go func() {
		close(batchReady)
		_ = g.Acquire(ctx, false)
		order <- "batch"
	}()
	<-batchReady
	time.Sleep(20 * time.Millisecond)

	interactiveReady := make(chan struct{})
	go func() {
		close(interactiveReady)
		_ = g.Acquire(ctx, true)
		order <- "interactive"
	}()
	<-interactiveReady
	time.Sleep(20 * time.Millisecond)

	g.Release()
	if first := <-order; first != "interactive" {
		t.Fatalf("expected interactive waiter first, got %q", first)
	}
	g.Release()
	if second := <-order; second != "batch" {
		t.Fatalf("expected batch waiter second, got %q", second)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	g := New(1)
	if err := g.Acquire(context.Background(), false); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx, false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// The cancelled waiter must not consume the slot.
	g.Release()
	if err := g.Acquire(context.Background(), false); err != nil {
		t.Fatalf("acquire after cancelled waiter: %v", err)
	}
}

func TestCloseFailsNewAcquires(t *testing.T) {
	g := New(1)
	g.Close()
	if err := g.Acquire(context.Background(), false); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseWakesQueuedWaiters(t *testing.T) {
	g := New(1)
	if err := g.Acquire(context.Background(), false); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	results := make(chan error, 2)
	go func() { results <- g.Acquire(context.Background(), false) }()
	go func() { results <- g.Acquire(context.Background(), true) }()
	time.Sleep(20 * time.Millisecond)

	g.Close()
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("queued waiter: expected ErrClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("queued waiter still blocked after Close")
		}
	}
}

func TestNewClampsCapacity(t *testing.T) {
	if got := New(0).Capacity(); got != 1 {
		t.Fatalf("capacity = %d", got)
	}
}
