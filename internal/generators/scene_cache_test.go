package generators

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSceneCachePutGet(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 10, time.Hour)
	if err := cache.Initialize(); err != nil {
		t.Fatal(err)
	}

	key := CacheKey("a torchlit cellar")
	data := []byte("png-bytes")
	if _, err := cache.Put(key, data, "a torchlit cellar"); err != nil {
		t.Fatal(err)
	}

	got, ok := cache.Get(key)
	if !ok || string(got) != "png-bytes" {
		t.Errorf("get = %q, %v", got, ok)
	}
	if _, ok := cache.Get(CacheKey("something else")); ok {
		t.Errorf("miss reported as hit")
	}
}

func TestSceneCacheSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	cache := NewSceneCache(dir, 10, time.Hour)
	if err := cache.Initialize(); err != nil {
		t.Fatal(err)
	}
	key := CacheKey("prompt")
	if _, err := cache.Put(key, []byte("bytes"), "prompt"); err != nil {
		t.Fatal(err)
	}

	reloaded := NewSceneCache(dir, 10, time.Hour)
	if err := reloaded.Initialize(); err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Get(key)
	if !ok || string(got) != "bytes" {
		t.Errorf("entry lost across reload")
	}
}

func TestSceneCacheEvictsOldest(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 2, time.Hour)
	if err := cache.Initialize(); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"one", "two", "three"} {
		if _, err := cache.Put(CacheKey(p), []byte(p), p); err != nil {
			t.Fatal(err)
		}
	}
	if cache.Len() != 2 {
		t.Errorf("len = %d after eviction, want 2", cache.Len())
	}
	if _, ok := cache.Get(CacheKey("three")); !ok {
		t.Errorf("newest entry evicted")
	}
}

func TestCacheKeyIsStable(t *testing.T) {
	a := CacheKey("same prompt")
	b := CacheKey("same prompt")
	c := CacheKey("different prompt")
	if a != b {
		t.Errorf("same prompt hashed differently")
	}
	if a == c {
		t.Errorf("different prompts collided")
	}
}

// recordingRenderer is a scripted SceneRenderer for queue tests.
type recordingRenderer struct {
	mu      sync.Mutex
	prompts []string
	data    []byte
	err     error
}

func (r *recordingRenderer) RenderScene(ctx context.Context, prompt string) ([]byte, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()
	return r.data, r.err
}

func TestSceneQueueRendersAndNotifies(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 10, time.Hour)
	if err := cache.Initialize(); err != nil {
		t.Fatal(err)
	}
	renderer := &recordingRenderer{data: []byte("png")}
	queue := NewSceneQueue(renderer, cache, 1)

	ready := make(chan string, 1)
	queue.OnReady = func(adventureID, key string) {
		ready <- adventureID + ":" + key
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	queue.Enqueue("adv-1", "a torchlit cellar")

	select {
	case got := <-ready:
		want := "adv-1:" + CacheKey("a torchlit cellar")
		if got != want {
			t.Errorf("notified %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("render never completed")
	}

	if _, ok := cache.Get(CacheKey("a torchlit cellar")); !ok {
		t.Errorf("rendered image not cached")
	}
	_, completed, failed, _ := queue.Stats()
	if completed != 1 || failed != 0 {
		t.Errorf("stats: completed=%d failed=%d", completed, failed)
	}
}

func TestSceneQueueCacheHitSkipsRenderer(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 10, time.Hour)
	if err := cache.Initialize(); err != nil {
		t.Fatal(err)
	}
	key := CacheKey("cached prompt")
	if _, err := cache.Put(key, []byte("png"), "cached prompt"); err != nil {
		t.Fatal(err)
	}

	renderer := &recordingRenderer{data: []byte("png")}
	queue := NewSceneQueue(renderer, cache, 1)
	ready := make(chan struct{}, 1)
	queue.OnReady = func(string, string) { ready <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	queue.Enqueue("adv-1", "cached prompt")
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("cache hit never notified")
	}

	renderer.mu.Lock()
	calls := len(renderer.prompts)
	renderer.mu.Unlock()
	if calls != 0 {
		t.Errorf("renderer invoked %d times on a cache hit", calls)
	}
}
