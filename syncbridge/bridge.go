// Package syncbridge propagates counter-store truth into the durable
// relational store, off the request path. The counter store remains
// authoritative for read-after-write consistency; the bridge only catches the
// durable copy up, so its failures are logged and never surfaced to users.
// Delivery is at-least-once with idempotent upserts; jobs that exhaust their
// retries land in a dead-letter list for the periodic reconciliation tooling.
package syncbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one like-toggle result awaiting durability.
type Job struct {
	PostID    string
	SessionID string
	Liked     bool
	Count     int64

	attempts int
}

// RatingSink is the durable write surface the bridge flushes into.
type RatingSink interface {
	UpsertRating(ctx context.Context, postID, sessionID string, liked bool) error
	SetLikeCount(ctx context.Context, postID string, count int64) error
}

// Publisher broadcasts like-count changes to realtime subscribers.
type Publisher interface {
	PublishLikeCount(ctx context.Context, postID string, count int64) error
}

// Options tunes queueing and retry behaviour.
type Options struct {
	// QueueSize bounds the in-flight job buffer. Enqueue never blocks;
	// when the buffer is full the job goes straight to the dead-letter
	// list.
	QueueSize int

	// MaxAttempts is the number of delivery attempts per job.
	MaxAttempts int

	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	Backoff time.Duration

	// FlushTimeout bounds each durable write.
	FlushTimeout time.Duration

	Logger *slog.Logger
}

func (o *Options) fill() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Bridge is the background worker owning the durability queue.
type Bridge struct {
	sink RatingSink
	pub  Publisher
	opts Options

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.Mutex
	dead   []Job
	closed bool
}

// New starts a bridge with one background worker. pub may be nil when no
// realtime channel is configured.
func New(sink RatingSink, pub Publisher, opts Options) *Bridge {
	opts.fill()
	b := &Bridge{
		sink: sink,
		pub:  pub,
		opts: opts,
		jobs: make(chan Job, opts.QueueSize),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// EnqueueLike queues a toggle result for durability. Never blocks and never
// fails the caller: a saturated queue sends the job to the dead-letter list.
func (b *Bridge) EnqueueLike(postID, sessionID string, liked bool, count int64) {
	job := Job{PostID: postID, SessionID: sessionID, Liked: liked, Count: count}

	// The send stays under the mutex so it cannot interleave with Close's
	// close of the channel.
	b.mu.Lock()
	if b.closed {
		b.dead = append(b.dead, job)
		b.mu.Unlock()
		return
	}
	select {
	case b.jobs <- job:
		b.mu.Unlock()
	default:
		b.mu.Unlock()
		b.opts.Logger.Warn("sync queue saturated, dead-lettering job", "post_id", postID)
		b.addDead(job)
	}
}

// DeadLetters returns a copy of the jobs that exhausted their retries or
// found the queue closed or saturated.
func (b *Bridge) DeadLetters() []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Job, len(b.dead))
	copy(out, b.dead)
	return out
}

// Close stops accepting jobs and waits for the queue to drain. The channel
// is closed under the same mutex EnqueueLike sends under, so a concurrent
// enqueue either lands before the close or dead-letters, never panics.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.jobs)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bridge) run() {
	defer b.wg.Done()
	for job := range b.jobs {
		b.deliver(job)
	}
}

func (b *Bridge) deliver(job Job) {
	for job.attempts < b.opts.MaxAttempts {
		job.attempts++
		err := b.flush(job)
		if err == nil {
			b.broadcast(job)
			return
		}
		b.opts.Logger.Warn("sync flush failed",
			"post_id", job.PostID,
			"attempt", job.attempts,
			"error", err,
		)
		if job.attempts < b.opts.MaxAttempts {
			time.Sleep(time.Duration(job.attempts) * b.opts.Backoff)
		}
	}
	b.opts.Logger.Error("sync job exhausted retries, dead-lettering", "post_id", job.PostID)
	b.addDead(job)
}

func (b *Bridge) flush(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.FlushTimeout)
	defer cancel()

	if err := b.sink.UpsertRating(ctx, job.PostID, job.SessionID, job.Liked); err != nil {
		return err
	}
	return b.sink.SetLikeCount(ctx, job.PostID, job.Count)
}

func (b *Bridge) broadcast(job Job) {
	if b.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.FlushTimeout)
	defer cancel()
	if err := b.pub.PublishLikeCount(ctx, job.PostID, job.Count); err != nil {
		// Broadcast loss is tolerable: subscribers heal on next page read.
		b.opts.Logger.Warn("realtime publish failed", "post_id", job.PostID, "error", err)
	}
}

func (b *Bridge) addDead(job Job) {
	b.mu.Lock()
	b.dead = append(b.dead, job)
	b.mu.Unlock()
}
