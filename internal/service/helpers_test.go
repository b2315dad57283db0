package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"fitcoach/backend/config"
	"fitcoach/backend/internal/model"
)

// T0 测试基准时间
var T0 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type testEnv struct {
	svc   *Service
	store *memStore
	clock *fakeClock
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, store := newMockRepository()
	clock := newFakeClock(T0)
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{BatchSize: 2, Parallelism: 4},
	}
	return &testEnv{
		svc:   NewService(cfg, repo, zap.NewNop(), clock.Now),
		store: store,
		clock: clock,
	}
}

func (e *testEnv) addUser(userID string) {
	e.store.users[userID] = T0
}

// addQuiz 写入测验定义；handling 为空表示未设置
func (e *testEnv) addQuiz(t *testing.T, quizID string, trigger model.TriggerType, ref model.ReferenceType, delay int, unit model.DelayUnit, handling model.TimeFrameHandling) *model.QuizDefinition {
	t.Helper()
	q := &model.QuizDefinition{
		QuizID:             quizID,
		Title:              "测验 " + quizID,
		TriggerType:        trigger,
		TriggerDelayAmount: delay,
		TriggerDelayUnit:   unit,
		IsActive:           true,
	}
	if ref != "" {
		r := ref
		q.ReferenceType = &r
	}
	if handling != "" {
		h := string(handling)
		q.TimeFrameHandling = &h
	}
	e.store.quizzes[quizID] = q
	return q
}

func (e *testEnv) pendingCount(userID string) int {
	n := 0
	for _, a := range e.store.pending {
		if a.UserID == userID {
			n++
		}
	}
	return n
}

func (e *testEnv) futureFor(userID, quizID string) *model.FutureAssignment {
	return e.store.future[pairKey(userID, quizID)]
}

func (e *testEnv) pendingFor(userID, quizID string) *model.PendingAssignment {
	return e.store.pending[pairKey(userID, quizID)]
}

func (e *testEnv) setTimeFrame(t *testing.T, userID string, start time.Time, days int, override bool) *SetTimeFrameResult {
	t.Helper()
	res, err := e.svc.TimeFrame.SetTimeFrame(context.Background(), SetTimeFrameInput{
		UserID:       userID,
		StartDate:    start,
		Duration:     days,
		DurationType: model.DurationDays,
		AdminID:      "admin-001",
		Override:     override,
	})
	if err != nil {
		t.Fatalf("SetTimeFrame 应成功: %v", err)
	}
	return res
}
