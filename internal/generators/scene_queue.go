package generators

import (
	"context"
	"log"
	"time"

	"go.uber.org/atomic"

	"emberquest/server/internal/interfaces"
)

// SceneJob is one queued render: the adventure it belongs to and the prompt.
type SceneJob struct {
	AdventureID string
	Prompt      string
	EnqueuedAt  time.Time
}

// SceneQueue renders scene images asynchronously. Turn responses never wait
// on it; when a render completes the OnReady callback attaches the image to
// its adventure and notifies subscribers. A full queue drops the job — an
// image that never arrives is a tolerated outcome.
type SceneQueue struct {
	jobs     chan *SceneJob
	renderer interfaces.SceneRenderer
	cache    *SceneCache
	workers  int

	// OnReady is called with the adventure id and cache key of each
	// completed render.
	OnReady func(adventureID, key string)

	queued    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewSceneQueue(renderer interfaces.SceneRenderer, cache *SceneCache, workers int) *SceneQueue {
	if workers <= 0 {
		workers = 1
	}
	return &SceneQueue{
		jobs:     make(chan *SceneJob, 100),
		renderer: renderer,
		cache:    cache,
		workers:  workers,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (q *SceneQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		go q.worker(ctx)
	}
}

// Enqueue queues a render without blocking. Jobs beyond capacity are dropped.
func (q *SceneQueue) Enqueue(adventureID, prompt string) {
	job := &SceneJob{
		AdventureID: adventureID,
		Prompt:      prompt,
		EnqueuedAt:  time.Now(),
	}
	select {
	case q.jobs <- job:
		q.queued.Inc()
	default:
		q.dropped.Inc()
		log.Printf("Warning: scene queue full, dropping render for adventure %s", adventureID)
	}
}

func (q *SceneQueue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.process(ctx, job)
		}
	}
}

func (q *SceneQueue) process(ctx context.Context, job *SceneJob) {
	key := CacheKey(job.Prompt)

	if _, ok := q.cache.Get(key); ok {
		q.completed.Inc()
		q.notify(job.AdventureID, key)
		return
	}

	data, err := q.renderer.RenderScene(ctx, job.Prompt)
	if err != nil {
		q.failed.Inc()
		log.Printf("Warning: scene render failed for adventure %s: %v", job.AdventureID, err)
		return
	}
	if data == nil {
		// Renderer declined; nothing to attach.
		q.completed.Inc()
		return
	}

	if _, err := q.cache.Put(key, data, job.Prompt); err != nil {
		q.failed.Inc()
		log.Printf("Warning: failed to cache scene for adventure %s: %v", job.AdventureID, err)
		return
	}

	q.completed.Inc()
	q.notify(job.AdventureID, key)
}

func (q *SceneQueue) notify(adventureID, key string) {
	if q.OnReady != nil {
		q.OnReady(adventureID, key)
	}
}

// Stats reports queue counters for the health endpoint.
func (q *SceneQueue) Stats() (queued, completed, failed, dropped int64) {
	return q.queued.Load(), q.completed.Load(), q.failed.Load(), q.dropped.Load()
}
