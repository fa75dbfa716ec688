package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestCache_PutGet(t *testing.T) {
	c, err := New(true, t.TempDir(), 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if _, ok := c.Get("k"); ok {
		t.Error("Get before Put hit, want miss")
	}
	if err := c.Put("k", "## Review\nScore: 8"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get after Put missed, want hit")
	}
	if got != "## Review\nScore: 8" {
		t.Errorf("Get = %q", got)
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 60)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Put("k", "v"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Get before expiry missed")
	}

	now = now.Add(2 * time.Minute)
	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Expired != 1 {
		t.Errorf("Expired = %d, want 1", stats.Expired)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Get after expiry hit, want miss")
	}
	if _, err := os.Stat(filepath.Join(dir, HashKey("k")+".json")); !os.IsNotExist(err) {
		t.Errorf("expired entry not removed: %v", err)
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(false, "", 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if err := c.Put("k", "v"); err != nil {
		t.Errorf("Put error: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Get on disabled cache hit")
	}
	if n, err := c.Clear(); err != nil || n != 0 {
		t.Errorf("Clear() = %d, %v", n, err)
	}
}

func TestCache_ClearAndStats(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Put(k, "data"); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 3 || stats.TotalBytes <= 0 || stats.Dir != dir || !stats.Enabled {
		t.Errorf("stats = %+v", stats)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear() removed %d, want 3", n)
	}
	stats, _ = c.GetStats()
	if stats.Entries != 0 {
		t.Errorf("Entries after Clear = %d, want 0", stats.Entries)
	}
}

func TestCache_ConcurrentPut(t *testing.T) {
	c, err := New(true, t.TempDir(), 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Put("same", "value"); err != nil {
				t.Errorf("Put error: %v", err)
			}
		}()
	}
	wg.Wait()
	if got, ok := c.Get("same"); !ok || got != "value" {
		t.Errorf("Get = %q, %v", got, ok)
	}
}

func TestRequestKey(t *testing.T) {
	base := RequestKey{Endpoint: "https://x/v1", Model: "m", Temperature: 0, MaxTokens: 100, Prompt: "p"}
	same := base
	otherModel := base
	otherModel.Model = "m2"
	shifted := RequestKey{Endpoint: "https://x/v1m", Model: "", Temperature: 0, MaxTokens: 100, Prompt: "p"}

	if base.String() != same.String() {
		t.Error("identical keys render differently")
	}
	if base.String() == otherModel.String() {
		t.Error("different models render the same")
	}
	if base.String() == shifted.String() {
		t.Error("field boundaries are ambiguous")
	}
	if len(HashKey(base.String())) != 64 {
		t.Errorf("HashKey length = %d, want 64", len(HashKey(base.String())))
	}
}
