package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fitcoach/backend/internal/model"
)

func registerUser(t *testing.T, env *testEnv, userID string) {
	t.Helper()
	if _, err := env.svc.ReferenceEvent.RecordRegistration(context.Background(), userID, T0); err != nil {
		t.Fatalf("RecordRegistration 应成功: %v", err)
	}
}

// ── Evaluate 测试 ──

// 手动分配即使当前被门控拦截也要记录
func TestQuizTriggerService_Evaluate_ManualRecordedWhenBlocked(t *testing.T) {
	env := setupTestEnv(t)
	env.addUser("u1")
	env.addQuiz(t, "q-manual", model.TriggerManual, "", 0, model.DelayDays, model.HandlingRespectTimeFrame)

	res, err := env.svc.Trigger.Evaluate(context.Background(), "u1", "q-manual", T0)
	if err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	if res.Outcome != OutcomePending {
		t.Errorf("期望 pending，实际 %s", res.Outcome)
	}
	if res.Presentable {
		t.Error("无时间段的用户对 RESPECT_TIMEFRAME 测验不可见")
	}
	p := env.pendingFor("u1", "q-manual")
	if p == nil || p.Source != model.SourceManual {
		t.Fatalf("应记录手动分配: %+v", p)
	}
}

func TestQuizTriggerService_Evaluate_ReferenceNotOccurred(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-last", model.TriggerTimeInterval, model.ReferenceLastQuiz, 3, model.DelayDays, "")

	res, err := env.svc.Trigger.Evaluate(context.Background(), "u1", "q-last", T0)
	if err != nil {
		t.Fatalf("参照事件未发生不应报错: %v", err)
	}
	if res.Outcome != OutcomeSkipped {
		t.Errorf("期望 skipped，实际 %s", res.Outcome)
	}
	if env.futureFor("u1", "q-last") != nil || env.pendingFor("u1", "q-last") != nil {
		t.Error("参照事件未发生时不应写入任何分配")
	}
}

func TestQuizTriggerService_Evaluate_ScheduledIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 7, model.DelayDays, model.HandlingAllUsers)
	ctx := context.Background()

	res, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0.Add(day))
	if err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	if res.Outcome != OutcomeScheduled {
		t.Fatalf("期望 scheduled，实际 %s", res.Outcome)
	}
	f := env.futureFor("u1", "q-reg")
	if f == nil || !f.ScheduledFor.Equal(T0.Add(7*day)) {
		t.Fatalf("scheduled_for 应为 注册 + 7 天: %+v", f)
	}
	if f.ReferenceType != model.ReferenceRegistration || !f.ReferenceDate.Equal(T0) || f.DelayAmount != 7 {
		t.Errorf("未来分配应记录参照与延迟: %+v", f)
	}

	again, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0.Add(2*day))
	if err != nil || again.Outcome != OutcomeScheduled {
		t.Fatalf("重复评估应保持 scheduled: %+v err=%v", again, err)
	}
	if env.futureFor("u1", "q-reg").FutureID != f.FutureID {
		t.Error("重复评估不应新建未来分配")
	}
	if len(env.store.future) != 1 {
		t.Errorf("期望 1 条未来分配，实际 %d", len(env.store.future))
	}
}

func TestQuizTriggerService_Evaluate_DueAndPresentable(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 7, model.DelayDays, model.HandlingAllUsers)
	ctx := context.Background()

	if _, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0); err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	res, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0.Add(8*day))
	if err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	if res.Outcome != OutcomePending {
		t.Fatalf("到期且可见应生成 pending，实际 %s", res.Outcome)
	}
	if p := env.pendingFor("u1", "q-reg"); p == nil || p.Source != model.SourceTrigger {
		t.Errorf("应生成触发来源的 pending: %+v", p)
	}
	if env.futureFor("u1", "q-reg") != nil {
		t.Error("生成 pending 后未来分配应删除")
	}
}

// 到期但被门控拦截：保留原始 scheduled_for，交给物化扫描
func TestQuizTriggerService_Evaluate_DueButBlocked(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-gated", model.TriggerTimeInterval, model.ReferenceRegistration, 7, model.DelayDays, model.HandlingRespectTimeFrame)

	res, err := env.svc.Trigger.Evaluate(context.Background(), "u1", "q-gated", T0.Add(10*day))
	if err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	if res.Outcome != OutcomeBlocked || res.Presentable {
		t.Fatalf("期望 blocked 且不可见，实际 %+v", res)
	}
	f := env.futureFor("u1", "q-gated")
	if f == nil || !f.ScheduledFor.Equal(T0.Add(7*day)) {
		t.Fatalf("被拦截的未来分配应保留计算出的 scheduled_for: %+v", f)
	}
	if env.pendingCount("u1") != 0 {
		t.Error("被拦截时不应生成 pending")
	}
}

func TestQuizTriggerService_Evaluate_InactiveAndUnknown(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	q := env.addQuiz(t, "q-off", model.TriggerTimeInterval, model.ReferenceRegistration, 0, model.DelayDays, "")
	q.IsActive = false
	ctx := context.Background()

	res, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-off", T0.Add(day))
	if err != nil || res.Outcome != OutcomeSkipped {
		t.Errorf("停用测验应 skipped: %+v err=%v", res, err)
	}

	if _, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-missing", T0); !errors.Is(err, ErrQuizNotFound) {
		t.Errorf("期望 ErrQuizNotFound，实际: %v", err)
	}
	if _, err := env.svc.Trigger.Evaluate(ctx, "ghost", "q-off", T0); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

// 锚点之后已提交过：跳过本轮并清理残留的未来分配
func TestQuizTriggerService_Evaluate_AlreadyServed(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 3, model.DelayDays, "")
	ctx := context.Background()

	if _, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0); err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	if env.futureFor("u1", "q-reg") == nil {
		t.Fatal("应先生成未来分配")
	}

	env.store.completions = append(env.store.completions, &model.QuizCompletion{
		CompletionID: "c-1", UserID: "u1", QuizID: "q-reg", SubmittedAt: T0.Add(4 * day),
	})
	res, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0.Add(5*day))
	if err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}
	if res.Outcome != OutcomeSkipped {
		t.Errorf("已完成本轮应 skipped，实际 %s", res.Outcome)
	}
	if env.futureFor("u1", "q-reg") != nil || env.pendingFor("u1", "q-reg") != nil {
		t.Error("已完成本轮不应保留任何分配")
	}
}

// ── EvaluateTriggered 测试 ──

func TestQuizTriggerService_EvaluateTriggered_IsolatesFailures(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-bad", model.TriggerTimeInterval, model.ReferenceRegistration, 2, model.DelayDays, "")
	env.addQuiz(t, "q-good", model.TriggerTimeInterval, model.ReferenceRegistration, 2, model.DelayDays, "")
	env.addQuiz(t, "q-manual", model.TriggerManual, "", 0, model.DelayDays, "")
	env.store.failCompletion["q-bad"] = errors.New("connection reset by peer")

	results, err := env.svc.Trigger.EvaluateTriggered(context.Background(), "u1", TriggerFilter{}, T0)
	if err != nil {
		t.Fatalf("单个测验失败不应中断批量评估: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("仅评估 TIME_INTERVAL 测验，期望 2 条，实际 %d", len(results))
	}
	byQuiz := map[string]EvaluationResult{}
	for _, r := range results {
		byQuiz[r.QuizID] = r
	}
	if byQuiz["q-bad"].Outcome != OutcomeFailed {
		t.Errorf("q-bad 应 failed，实际 %s", byQuiz["q-bad"].Outcome)
	}
	if byQuiz["q-good"].Outcome != OutcomeScheduled {
		t.Errorf("q-good 应 scheduled，实际 %s", byQuiz["q-good"].Outcome)
	}
	if env.pendingFor("u1", "q-manual") != nil {
		t.Error("事件扇出不应分配 MANUAL 测验")
	}
}

func TestQuizTriggerService_EvaluateTriggered_GatedOnly(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-all", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, model.HandlingAllUsers)
	env.addQuiz(t, "q-out", model.TriggerTimeInterval, model.ReferenceRegistration, 1, model.DelayDays, model.HandlingOutsideTimeFrameOnly)

	results, err := env.svc.Trigger.EvaluateTriggered(context.Background(), "u1", TriggerFilter{GatedOnly: true}, T0)
	if err != nil {
		t.Fatalf("EvaluateTriggered 应成功: %v", err)
	}
	if len(results) != 1 || results[0].QuizID != "q-out" {
		t.Errorf("GatedOnly 仅评估受门控测验: %+v", results)
	}
}

// ── RemoveAssignment 测试 ──

func TestQuizTriggerService_RemoveAssignment(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-manual", model.TriggerManual, "", 0, model.DelayDays, "")
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 9, model.DelayDays, "")
	ctx := context.Background()

	env.svc.Trigger.Evaluate(ctx, "u1", "q-manual", T0)
	env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0)

	quizID := "q-manual"
	n, err := env.svc.Trigger.RemoveAssignment(ctx, "u1", &quizID)
	if err != nil || n != 1 {
		t.Fatalf("期望删除 1 条，实际 n=%d err=%v", n, err)
	}
	n, err = env.svc.Trigger.RemoveAssignment(ctx, "u1", &quizID)
	if err != nil || n != 0 {
		t.Errorf("重复删除应为 0 条且无错误，实际 n=%d err=%v", n, err)
	}

	n, err = env.svc.Trigger.RemoveAssignment(ctx, "u1", nil)
	if err != nil || n != 1 {
		t.Errorf("删除全部应清理剩余 1 条未来分配，实际 n=%d err=%v", n, err)
	}
}

// ── 查询与导出测试 ──

func TestQuizTriggerService_ListAllFuture_Paging(t *testing.T) {
	env := setupTestEnv(t)
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 30, model.DelayDays, "")
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u3"} {
		registerUser(t, env, u)
		if _, err := env.svc.Trigger.Evaluate(ctx, u, "q-reg", T0); err != nil {
			t.Fatalf("Evaluate 应成功: %v", err)
		}
	}

	list, total, err := env.svc.Trigger.ListAllFuture(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListAllFuture 应成功: %v", err)
	}
	if total != 3 || len(list) != 2 {
		t.Errorf("期望 total=3 len=2，实际 total=%d len=%d", total, len(list))
	}
	list, _, _ = env.svc.Trigger.ListAllFuture(ctx, 2, 2)
	if len(list) != 1 {
		t.Errorf("第 2 页应有 1 条，实际 %d", len(list))
	}
}

func TestQuizTriggerService_ExportFutureCalendar(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "u1")
	env.addQuiz(t, "q-reg", model.TriggerTimeInterval, model.ReferenceRegistration, 7, model.DelayDays, "")
	ctx := context.Background()
	if _, err := env.svc.Trigger.Evaluate(ctx, "u1", "q-reg", T0); err != nil {
		t.Fatalf("Evaluate 应成功: %v", err)
	}

	data, err := env.svc.Trigger.ExportFutureCalendar(ctx, "u1")
	if err != nil {
		t.Fatalf("ExportFutureCalendar 应成功: %v", err)
	}
	text := string(data)
	f := env.futureFor("u1", "q-reg")
	for _, want := range []string{"BEGIN:VCALENDAR", "BEGIN:VEVENT", "SUMMARY:测验 q-reg", "UID:" + f.FutureID + "@fitcoach", "DTSTART"} {
		if !strings.Contains(text, want) {
			t.Errorf("日历缺少 %q:\n%s", want, text)
		}
	}
}
