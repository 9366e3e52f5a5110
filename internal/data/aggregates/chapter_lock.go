package aggregates

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/quillgate/internal/observability"
	"github.com/yungbote/quillgate/internal/platform/redislock"
)

// ChapterLocker serializes ledger writes for one chapter. Different chapters
// never contend. The row lock taken inside the transaction still applies;
// this lock keeps sqlite (which ignores FOR UPDATE) and cross-process
// writers in line.
type ChapterLocker interface {
	Lock(ctx context.Context, chapterID uuid.UUID) (unlock func(), err error)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*chapterSlot
}

type chapterSlot struct {
	ch      chan struct{}
	waiters int
}

// NewLocalChapterLocker returns an in-process per-chapter mutex. Slots are
// dropped once no goroutine holds or waits on them.
func NewLocalChapterLocker() ChapterLocker {
	return &keyedMutex{locks: map[uuid.UUID]*chapterSlot{}}
}

func (k *keyedMutex) Lock(ctx context.Context, chapterID uuid.UUID) (func(), error) {
	start := time.Now()
	k.mu.Lock()
	slot := k.locks[chapterID]
	if slot == nil {
		slot = &chapterSlot{ch: make(chan struct{}, 1)}
		k.locks[chapterID] = slot
	}
	slot.waiters++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(chapterID, slot, false)
		observability.Current().ObserveLockWait("local", "canceled", time.Since(start))
		return nil, ctx.Err()
	}
	observability.Current().ObserveLockWait("local", "acquired", time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() { k.release(chapterID, slot, true) })
	}, nil
}

func (k *keyedMutex) release(chapterID uuid.UUID, slot *chapterSlot, held bool) {
	if held {
		<-slot.ch
	}
	k.mu.Lock()
	slot.waiters--
	if slot.waiters == 0 {
		delete(k.locks, chapterID)
	}
	k.mu.Unlock()
}

type redisChapterLocker struct {
	locker *redislock.Locker
}

// NewRedisChapterLocker serializes chapter writes across processes.
func NewRedisChapterLocker(locker *redislock.Locker) ChapterLocker {
	return &redisChapterLocker{locker: locker}
}

func (r *redisChapterLocker) Lock(ctx context.Context, chapterID uuid.UUID) (func(), error) {
	start := time.Now()
	release, err := r.locker.Acquire(ctx, "chapter:"+chapterID.String())
	if err != nil {
		observability.Current().ObserveLockWait("redis", "error", time.Since(start))
		return nil, RetryableError("chapter lock: " + err.Error())
	}
	observability.Current().ObserveLockWait("redis", "acquired", time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = release(ctx)
		})
	}, nil
}
