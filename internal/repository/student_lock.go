package repository

import (
	"context"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 5 * time.Second
	lockPollEvery   = 25 * time.Millisecond
)

// 只删除自己持有的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStudentLocker 按学生串行化提交，多实例部署时使用
type RedisStudentLocker struct {
	Redis *redis.Client
	TTL   time.Duration
	Wait  time.Duration
}

func NewRedisStudentLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisStudentLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &RedisStudentLocker{Redis: rdb, TTL: ttl, Wait: wait}
}

func studentLockKey(studentID uint) string {
	return fmt.Sprintf("exam:lock:student:%d", studentID)
}

// Lock 获取锁，等待超过 Wait 返回 util.ErrStudentBusy
func (l *RedisStudentLocker) Lock(ctx context.Context, studentID uint) (func(), error) {
	key := studentLockKey(studentID)
	token := uuid.New().String()
	deadline := time.Now().Add(l.Wait)

	for {
		ok, err := l.Redis.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// 调用方 ctx 可能已取消，释放使用独立 ctx
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := releaseLockScript.Run(releaseCtx, l.Redis, []string{key}, token).Err(); err != nil {
					logger.Log.Warn("Student lock release failed, waiting for TTL",
						zap.Uint("studentId", studentID),
						zap.Error(err))
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, util.ErrStudentBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollEvery):
		}
	}
}

// LocalStudentLocker 单实例时的进程内按学生互斥，引用计数回收
type LocalStudentLocker struct {
	mu    sync.Mutex
	locks map[uint]*localLock
	Wait  time.Duration
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalStudentLocker(wait time.Duration) *LocalStudentLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &LocalStudentLocker{locks: make(map[uint]*localLock), Wait: wait}
}

func (l *LocalStudentLocker) Lock(ctx context.Context, studentID uint) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[studentID]
	if !ok {
		entry = &localLock{ch: make(chan struct{}, 1)}
		l.locks[studentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.Wait)
	defer timer.Stop()

	select {
	case entry.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.ch
				l.release(studentID, entry)
			})
		}, nil
	case <-ctx.Done():
		l.release(studentID, entry)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(studentID, entry)
		return nil, util.ErrStudentBusy
	}
}

func (l *LocalStudentLocker) release(studentID uint, entry *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, studentID)
	}
}

