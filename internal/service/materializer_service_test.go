package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"fitcoach/backend/internal/model"
)

// scheduleFor 注册用户并对测验求值，生成未来分配
func scheduleFor(t *testing.T, env *testEnv, userID, quizID string) {
	t.Helper()
	registerUser(t, env, userID)
	if _, err := env.svc.Trigger.Evaluate(context.Background(), userID, quizID, T0); err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	if env.futureFor(userID, quizID) == nil {
		t.Fatalf("应生成未来分配 %s/%s", userID, quizID)
	}
}

// 场景 A：时间段内到期，扫描后转为待完成分配
func TestMaterializerService_Sweep_PromotesWithinTimeFrame(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-gated", model.TriggerTimeInterval, model.ReferenceRegistration, 7, model.DelayDays, model.HandlingRespectTimeFrame)
	scheduleFor(t, env, "u1", "q-gated")
	env.setTimeFrame(t, "u1", T0, 30, false)

	report, err := env.svc.Materializer.Sweep(context.Background(), T0.Add(8*day))
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Promoted != 1 || report.Scanned != 1 {
		t.Errorf("期望 promoted=1 scanned=1，实际 %+v", report)
	}
	p := env.pendingFor("u1", "q-gated")
	if p == nil || p.Source != model.SourceMaterialized || !p.AssignedAt.Equal(T0.Add(8*day)) {
		t.Errorf("应生成物化来源的 pending: %+v", p)
	}
	if env.futureFor("u1", "q-gated") != nil {
		t.Error("物化后未来分配应删除")
	}
}

func TestMaterializerService_PromotionLocksUserRow(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-gated", model.TriggerTimeInterval, model.ReferenceRegistration, 7, model.DelayDays, model.HandlingRespectTimeFrame)
	scheduleFor(t, env, "u1", "q-gated")
	env.setTimeFrame(t, "u1", T0, 30, false)
	env.store.userLocks = nil

	report, err := env.svc.Materializer.Sweep(context.Background(), T0.Add(8*day))
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Promoted != 1 {
		t.Fatalf("期望 promoted=1，实际 %+v", report)
	}
	if len(env.store.userLocks) != 1 || env.store.userLocks[0] != "u1" {
		t.Errorf("物化事务应锁定用户行，实际 %v", env.store.userLocks)
	}
}

// 场景 B：到期时不在时间段内保持阻塞，进入时间段后下一轮扫描转出
func TestMaterializerService_Sweep_BlockedUntilWithin(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-gated", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, model.HandlingRespectTimeFrame)
	scheduleFor(t, env, "u1", "q-gated")
	ctx := context.Background()

	report, err := env.svc.Materializer.Sweep(ctx, T0.Add(2*day))
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Blocked != 1 || report.Promoted != 0 {
		t.Fatalf("期望 blocked=1，实际 %+v", report)
	}
	f := env.futureFor("u1", "q-gated")
	if f == nil || !f.ScheduledFor.Equal(T0.Add(day)) {
		t.Fatalf("阻塞的未来分配应原样保留: %+v", f)
	}

	env.clock.Set(T0.Add(3 * day))
	env.setTimeFrame(t, "u1", T0.Add(3*day), 30, false)

	report, err = env.svc.Materializer.Sweep(ctx, T0.Add(3*day))
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Promoted != 1 {
		t.Errorf("进入时间段后应转出，实际 %+v", report)
	}
	if env.pendingFor("u1", "q-gated") == nil {
		t.Error("应生成 pending")
	}
}

func TestMaterializerService_Sweep_CancelsInactiveQuiz(t *testing.T) {
	env := setupTestEnv(t)
	q := env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, "")
	scheduleFor(t, env, "u1", "q-reg")
	q.IsActive = false

	report, err := env.svc.Materializer.Sweep(context.Background(), T0.Add(2*day))
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Cancelled != 1 {
		t.Errorf("期望 cancelled=1，实际 %+v", report)
	}
	if env.futureFor("u1", "q-reg") != nil || env.pendingFor("u1", "q-reg") != nil {
		t.Error("停用测验的未来分配应删除且不生成 pending")
	}
}

// 从未配置时间段的用户对 OUTSIDE_TIMEFRAME_ONLY 测验可见
func TestMaterializerService_Sweep_OutsideOnlyForUnconfiguredUser(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-out", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, model.HandlingOutsideTimeFrameOnly)
	scheduleFor(t, env, "u1", "q-out")
	scheduleFor(t, env, "u2", "q-out")
	env.setTimeFrame(t, "u2", T0, 30, false)

	report, err := env.svc.Materializer.Sweep(context.Background(), T0.Add(2*day))
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Promoted != 1 || report.Blocked != 1 {
		t.Errorf("期望 promoted=1 blocked=1，实际 %+v", report)
	}
	if env.pendingFor("u1", "q-out") == nil {
		t.Error("无时间段用户应收到 OUTSIDE_TIMEFRAME_ONLY 测验")
	}
	if env.pendingFor("u2", "q-out") != nil {
		t.Error("时间段内用户不应收到 OUTSIDE_TIMEFRAME_ONLY 测验")
	}
}

// 批大小为 2 时按游标分页扫描全部到期记录
func TestMaterializerService_Sweep_KeysetBatches(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, model.HandlingAllUsers)
	env.addQuiz(t, "q-gated", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, model.HandlingRespectTimeFrame)
	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("u%d", i)
		scheduleFor(t, env, u, "q-reg")
		if _, err := env.svc.Trigger.Evaluate(context.Background(), u, "q-gated", T0); err != nil {
			t.Fatalf("Evaluate 应成功: %v", err)
		}
	}

	report, err := env.svc.Materializer.Sweep(context.Background(), T0.Add(2*day))
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Scanned != 10 || report.Promoted != 5 || report.Blocked != 5 {
		t.Errorf("期望 scanned=10 promoted=5 blocked=5，实际 %+v", report)
	}
	if len(env.store.future) != 5 {
		t.Errorf("阻塞记录应保留 5 条，实际 %d", len(env.store.future))
	}
}

// 单个测验读取失败只影响对应记录
func TestMaterializerService_Sweep_IsolatesFailures(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-bad", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, "")
	env.addQuiz(t, "q-good", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, "")
	scheduleFor(t, env, "u1", "q-bad")
	if _, err := env.svc.Trigger.Evaluate(context.Background(), "u1", "q-good", T0); err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	env.store.failQuizGet["q-bad"] = errors.New("i/o timeout")

	report, err := env.svc.Materializer.Sweep(context.Background(), T0.Add(2*day))
	if err != nil {
		t.Fatalf("单条失败不应使扫描失败: %v", err)
	}
	if report.Failed != 1 || report.Promoted != 1 {
		t.Errorf("期望 failed=1 promoted=1，实际 %+v", report)
	}
	if env.futureFor("u1", "q-bad") == nil {
		t.Error("失败记录应保留待下一轮重试")
	}
}

func TestMaterializerService_Sweep_RetiresExpiredPeriods(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser("u1")
	env.setTimeFrame(t, "u1", T0.Add(-60*day), 30, false)

	report, err := env.svc.Materializer.Sweep(context.Background(), T0)
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.ExpiredPeriods != 1 {
		t.Errorf("期望退役 1 个到期时间段，实际 %d", report.ExpiredPeriods)
	}
}

// 并发的扫描与惰性检查对同一记录只物化一次
func TestMaterializerService_ExactlyOnceUnderConcurrency(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, model.HandlingAllUsers)
	const users = 20
	for i := 0; i < users; i++ {
		scheduleFor(t, env, fmt.Sprintf("u%02d", i), "q-reg")
	}
	now := T0.Add(2 * day)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		promoted int
	)
	record := func(r *SweepReport, err error) {
		if err != nil {
			t.Errorf("物化应成功: %v", err)
			return
		}
		mu.Lock()
		promoted += r.Promoted
		mu.Unlock()
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(env.svc.Materializer.Sweep(ctx, now))
		}()
	}
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("u%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(env.svc.Materializer.MaterializeForUser(ctx, userID, now))
		}()
	}
	wg.Wait()

	if promoted != users {
		t.Errorf("期望恰好物化 %d 次，实际 %d", users, promoted)
	}
	if len(env.store.pending) != users || len(env.store.future) != 0 {
		t.Errorf("期望 %d 条 pending 且无剩余未来分配，实际 pending=%d future=%d",
			users, len(env.store.pending), len(env.store.future))
	}
}

func TestMaterializerService_MaterializeForUser_OnlyTouchesUser(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, "")
	scheduleFor(t, env, "u1", "q-reg")
	scheduleFor(t, env, "u2", "q-reg")

	report, err := env.svc.Materializer.MaterializeForUser(context.Background(), "u1", T0.Add(2*day))
	if err != nil {
		t.Fatalf("MaterializeForUser 应成功: %v", err)
	}
	if report.Promoted != 1 {
		t.Errorf("期望 promoted=1，实际 %+v", report)
	}
	if env.futureFor("u2", "q-reg") == nil {
		t.Error("不应处理其他用户的记录")
	}

	// 未到期时无事可做
	report, _ = env.svc.Materializer.MaterializeForUser(context.Background(), "u2", T0)
	if report.Scanned != 0 {
		t.Errorf("未到期不应扫描任何记录，实际 %+v", report)
	}
}
