package util

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLockManager_MutualExclusion(t *testing.T) {
	lm := NewLockManager(0, nil)

	var active int32
	var maxActive int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lm.Acquire(context.Background(), "/tmp/doc.txt")
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected critical sections never to overlap, saw max concurrent = %d", maxActive)
	}
}

func TestLockManager_CaseInsensitivePath(t *testing.T) {
	lm := NewLockManager(0, nil)

	release, err := lm.Acquire(context.Background(), "/Docs/File.TXT")
	if err != nil {
		t.Fatal(err)
	}

	_, ok := lm.TryAcquire("/docs/file.txt")
	if ok {
		t.Fatalf("expected lowercased-path collision to block TryAcquire")
	}
	release()
}

func TestLockManager_AutoReleaseOnTimeout(t *testing.T) {
	lm := NewLockManager(20*time.Millisecond, nil)

	_, err := lm.Acquire(context.Background(), "/tmp/a.txt")
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if rel, ok := lm.TryAcquire("/tmp/a.txt"); ok {
			rel()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("lock was never auto-released after timeout")
}
