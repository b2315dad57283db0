package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fitcoach/backend/config"
	"fitcoach/backend/internal/service"
	"fitcoach/backend/pkg/redis"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	lastAt  time.Time
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSweeper) Sweep(_ context.Context, now time.Time) (*service.SweepReport, error) {
	f.mu.Lock()
	f.calls++
	f.lastAt = now
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return &service.SweepReport{Scanned: 1, Promoted: 1}, f.err
}

func (f *fakeSweeper) MaterializeForUser(_ context.Context, _ string, _ time.Time) (*service.SweepReport, error) {
	return &service.SweepReport{}, nil
}

// fakeLocker 进程内模拟 Redis SET NX 语义
type fakeLocker struct {
	mu         sync.Mutex
	held       map[string]string
	acquireErr error
	released   int
	lastTTL    time.Duration
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, name string, ttl time.Duration) (*redis.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	l.lastTTL = ttl
	if _, ok := l.held[name]; ok {
		return nil, nil
	}
	lock := &redis.Lock{Key: name, Token: "token-" + name}
	l.held[name] = lock.Token
	return lock, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, lock *redis.Lock) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lock.Key] != lock.Token {
		return redis.ErrLockNotHeld
	}
	delete(l.held, lock.Key)
	l.released++
	return nil
}

func newTestScheduler(sweeper service.MaterializerService, locker Locker) *Scheduler {
	cfg := &config.SchedulerConfig{SweepSpec: "@every 1m", LockTTL: time.Minute}
	return New(cfg, sweeper, locker, zap.NewNop(), func() time.Time { return fixedNow })
}

func TestRunOnce_AcquiresAndReleasesLock(t *testing.T) {
	sweeper := &fakeSweeper{}
	locker := newFakeLocker()
	s := newTestScheduler(sweeper, locker)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Promoted)
	assert.Equal(t, 1, sweeper.calls)
	assert.True(t, sweeper.lastAt.Equal(fixedNow), "扫描应使用调度器时钟")
	assert.Equal(t, 1, locker.released)
	assert.Equal(t, time.Minute, locker.lastTTL)
	assert.Empty(t, locker.held, "扫描结束后锁应释放")
}

func TestRunOnce_SkipsWhenLockHeldElsewhere(t *testing.T) {
	sweeper := &fakeSweeper{}
	locker := newFakeLocker()
	locker.held[sweepLockName] = "other-instance"
	s := newTestScheduler(sweeper, locker)

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Equal(t, 0, sweeper.calls, "锁被占用时不应扫描")
	assert.Equal(t, "other-instance", locker.held[sweepLockName], "不应释放他人持有的锁")
}

func TestRunOnce_LockErrorDoesNotSweep(t *testing.T) {
	sweeper := &fakeSweeper{}
	locker := newFakeLocker()
	locker.acquireErr = errors.New("redis down")
	s := newTestScheduler(sweeper, locker)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
	assert.Equal(t, 0, sweeper.calls)
}

func TestRunOnce_SweepErrorStillReleasesLock(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("boom")}
	locker := newFakeLocker()
	s := newTestScheduler(sweeper, locker)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, locker.released)
}

func TestRunOnce_WithoutLocker(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := newTestScheduler(sweeper, nil)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sweeper.calls)
}

func TestRunOnce_NoOverlapWithinInstance(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{}), started: make(chan struct{})}
	s := newTestScheduler(sweeper, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-sweeper.started

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld, "上一轮未结束时应跳过")

	close(sweeper.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, sweeper.calls)
}

func TestStart_InvalidSpec(t *testing.T) {
	cfg := &config.SchedulerConfig{SweepSpec: "not a cron spec"}
	s := New(cfg, &fakeSweeper{}, nil, zap.NewNop(), nil)

	assert.Error(t, s.Start())
}
