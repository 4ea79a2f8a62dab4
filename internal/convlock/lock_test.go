package convlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitForNewTail spins until key's tail differs from prev and returns it.
func waitForNewTail(t *testing.T, l *Locker, key string, prev *link) *link {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		cur := l.tails[key]
		l.mu.Unlock()
		if cur != nil && cur != prev {
			return cur
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("waiter never enqueued")
	return nil
}

func TestMutualExclusion(t *testing.T) {
	l := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "conversation1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
	if l.Len() != 0 {
		t.Fatalf("expected chain cleanup, %d keys left", l.Len())
	}
}

func TestFIFOOrder(t *testing.T) {
	l := New()
	first, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	tail := l.tails["k"]
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "k")
			if err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			release()
		}(i)
		tail = waitForNewTail(t, l, "k", tail)
	}

	first()
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	releaseA, err := l.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := l.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("other key must not block: %v", err)
	}
	releaseB()
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := New()
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	release()
	release()

	second, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	// A stale release from the first holder must not free the second one.
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the second holder to still own the lock, got %v", err)
	}
	second()
}

func TestCancelledWaiterKeepsOrder(t *testing.T) {
	l := New()
	first, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	firstTail := l.tails["k"]

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx, "k")
		errCh <- err
	}()
	waitForNewTail(t, l, "k", firstTail)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release, err := l.Acquire(context.Background(), "k")
		if err == nil {
			close(acquired)
			release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third waiter ran while the first holder still held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	first()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("third waiter never acquired")
	}
}
