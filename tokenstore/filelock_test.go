package tokenstore

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileLock_AcquireRelease(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "tokens.json")

	lock, err := acquireFileLock(tokenPath)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	lockPath := tokenPath + ".lock"
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Errorf("Lock file was not created")
	}

	if err := lock.release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file was not removed after release")
	}
}

func TestFileLock_SerializesWriters(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "tokens.json")

	const goroutines = 8

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()

			lock, err := acquireFileLock(tokenPath)
			if err != nil {
				t.Errorf("Goroutine %d: Failed to acquire lock: %v", id, err)
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)

			if err := lock.release(); err != nil {
				t.Errorf("Goroutine %d: Failed to release lock: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	if overlap.Load() {
		t.Errorf("Two holders were inside the lock at the same time")
	}
}

func TestFileLock_StaleLockTakenOver(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "tokens.json")
	lockPath := tokenPath + ".lock"

	staleLock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("Failed to create stale lock: %v", err)
	}
	staleLock.Close()

	staleTime := time.Now().Add(-2 * lockStaleAfter)
	if err := os.Chtimes(lockPath, staleTime, staleTime); err != nil {
		t.Fatalf("Failed to set stale lock time: %v", err)
	}

	lock, err := acquireFileLock(tokenPath)
	if err != nil {
		t.Fatalf("Failed to acquire lock after stale lock: %v", err)
	}
	defer lock.release()

	if lock.lockFile == nil {
		t.Errorf("Lock file handle is nil")
	}
}

func TestFileLock_ReleaseTwice(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "tokens.json")

	lock, err := acquireFileLock(tokenPath)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.release(); err != nil {
		t.Errorf("First release failed: %v", err)
	}
	if err := lock.release(); err == nil {
		t.Errorf("Second release should report the missing lock file")
	}
}
