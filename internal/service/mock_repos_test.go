package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"fitcoach/backend/internal/model"
	"fitcoach/backend/internal/repository"
	pkgerrors "fitcoach/backend/pkg/errors"
)

// ── 内存存储 ──
//
// 所有 mock 仓储共享同一个 memStore，互斥锁保证并发测试下条件删除只成功一次。

type memStore struct {
	mu          sync.Mutex
	seq         int
	users       map[string]time.Time
	periods     []*model.TimeFramePeriod
	events      map[string]*model.ReferenceEvent
	quizzes     map[string]*model.QuizDefinition
	pending     map[string]*model.PendingAssignment
	future      map[string]*model.FutureAssignment
	completions []*model.QuizCompletion

	// userLocks 记录 LockForUpdate 调用顺序
	userLocks []string

	// failQuizGet / failCompletion 按 quiz_id 注入读取失败
	failQuizGet    map[string]error
	failCompletion map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		users:          make(map[string]time.Time),
		events:         make(map[string]*model.ReferenceEvent),
		quizzes:        make(map[string]*model.QuizDefinition),
		pending:        make(map[string]*model.PendingAssignment),
		future:         make(map[string]*model.FutureAssignment),
		failQuizGet:    make(map[string]error),
		failCompletion: make(map[string]error),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func pairKey(userID, other string) string { return userID + "|" + other }

// newMockRepository 返回以内存存储为后端的 Repository 聚合（db 为空，Transaction 直接执行）
func newMockRepository() (*repository.Repository, *memStore) {
	st := newMemStore()
	return &repository.Repository{
		User:           &mockUserRepo{st},
		TimeFrame:      &mockTimeFrameRepo{st},
		ReferenceEvent: &mockReferenceEventRepo{st},
		Quiz:           &mockQuizRepo{st},
		Assignment:     &mockAssignmentRepo{st},
		Completion:     &mockCompletionRepo{st},
	}, st
}

// ── Mock UserRepository ──

type mockUserRepo struct{ s *memStore }

func (m *mockUserRepo) EnsureExists(_ context.Context, userID string, createdAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[userID]; !ok {
		m.s.users[userID] = createdAt
	}
	return nil
}

func (m *mockUserRepo) Exists(_ context.Context, userID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.users[userID]
	return ok, nil
}

func (m *mockUserRepo) LockForUpdate(_ context.Context, userID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.userLocks = append(m.s.userLocks, userID)
	if _, ok := m.s.users[userID]; !ok {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ── Mock TimeFrameRepository ──

type mockTimeFrameRepo struct{ s *memStore }

func (m *mockTimeFrameRepo) Create(_ context.Context, p *model.TimeFramePeriod) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if p.IsActive {
		for _, existing := range m.s.periods {
			if existing.UserID == p.UserID && existing.IsActive {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if p.PeriodID == "" {
		p.PeriodID = m.s.nextID("period")
	}
	p.CreatedAt = p.SetAt
	cp := *p
	m.s.periods = append(m.s.periods, &cp)
	return nil
}

func (m *mockTimeFrameRepo) GetActive(_ context.Context, userID string) (*model.TimeFramePeriod, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, p := range m.s.periods {
		if p.UserID == userID && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimeFrameRepo) GetActiveForUpdate(ctx context.Context, userID string) (*model.TimeFramePeriod, error) {
	return m.GetActive(ctx, userID)
}

func (m *mockTimeFrameRepo) Retire(_ context.Context, periodID string, rt repository.PeriodRetirement) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, p := range m.s.periods {
		if p.PeriodID != periodID || !p.IsActive {
			continue
		}
		at := rt.At
		within := rt.WasWithinTimeFrame
		p.IsActive = false
		p.WasWithinTimeFrame = &within
		if rt.Expired {
			p.ExpiredAt = &at
		} else {
			p.ReplacedAt = &at
			p.ReplacedBy = rt.ReplacedBy
		}
		return nil
	}
	return pkgerrors.ErrOptimisticLock
}

func (m *mockTimeFrameRepo) ListByUser(_ context.Context, userID string) ([]model.TimeFramePeriod, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.TimeFramePeriod
	for i := len(m.s.periods) - 1; i >= 0; i-- {
		if p := m.s.periods[i]; p.UserID == userID {
			result = append(result, *p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].SetAt.After(result[j].SetAt) })
	return result, nil
}

func (m *mockTimeFrameRepo) ListActiveStartedBefore(_ context.Context, before time.Time, afterID string, limit int) ([]model.TimeFramePeriod, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.TimeFramePeriod
	for _, p := range m.s.periods {
		if p.IsActive && p.StartDate.Before(before) && p.PeriodID > afterID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodID < result[j].PeriodID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ── Mock ReferenceEventRepository ──

type mockReferenceEventRepo struct{ s *memStore }

func (m *mockReferenceEventRepo) InsertIfAbsent(_ context.Context, userID string, refType model.ReferenceType, at time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey(userID, string(refType))
	if _, ok := m.s.events[key]; ok {
		return false, nil
	}
	m.s.events[key] = &model.ReferenceEvent{UserID: userID, ReferenceType: refType, OccurredAt: at, UpdatedAt: at}
	return true, nil
}

func (m *mockReferenceEventRepo) Upsert(_ context.Context, userID string, refType model.ReferenceType, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.events[pairKey(userID, string(refType))] = &model.ReferenceEvent{UserID: userID, ReferenceType: refType, OccurredAt: at, UpdatedAt: at}
	return nil
}

func (m *mockReferenceEventRepo) Get(_ context.Context, userID string, refType model.ReferenceType) (*model.ReferenceEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if ev, ok := m.s.events[pairKey(userID, string(refType))]; ok {
		cp := *ev
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockReferenceEventRepo) ListByUser(_ context.Context, userID string) ([]model.ReferenceEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.ReferenceEvent
	for _, ev := range m.s.events {
		if ev.UserID == userID {
			result = append(result, *ev)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ReferenceType < result[j].ReferenceType })
	return result, nil
}

// ── Mock QuizRepository ──

type mockQuizRepo struct{ s *memStore }

func (m *mockQuizRepo) Upsert(_ context.Context, q *model.QuizDefinition) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *q
	if existing, ok := m.s.quizzes[q.QuizID]; ok {
		cp.CreatedAt = existing.CreatedAt
		cp.CreatedBy = existing.CreatedBy
	}
	m.s.quizzes[q.QuizID] = &cp
	return nil
}

func (m *mockQuizRepo) GetByID(_ context.Context, quizID string) (*model.QuizDefinition, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failQuizGet[quizID]; err != nil {
		return nil, err
	}
	if q, ok := m.s.quizzes[quizID]; ok {
		cp := *q
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockQuizRepo) List(_ context.Context, f repository.QuizListFilter) ([]model.QuizDefinition, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.QuizDefinition
	for _, q := range m.s.quizzes {
		if f.ActiveOnly && !q.IsActive {
			continue
		}
		if f.TriggerType != "" && q.TriggerType != f.TriggerType {
			continue
		}
		if len(f.References) > 0 && !containsRef(f.References, q.Reference()) {
			continue
		}
		result = append(result, *q)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].QuizID < result[j].QuizID })
	return result, nil
}

func containsRef(list []model.ReferenceType, r model.ReferenceType) bool {
	for _, x := range list {
		if x == r {
			return true
		}
	}
	return false
}

// ── Mock AssignmentRepository ──

type mockAssignmentRepo struct{ s *memStore }

func (m *mockAssignmentRepo) UpsertPending(_ context.Context, a *model.PendingAssignment) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey(a.UserID, a.QuizID)
	if _, ok := m.s.pending[key]; ok {
		return false, nil
	}
	cp := *a
	if cp.AssignmentID == "" {
		cp.AssignmentID = m.s.nextID("pending")
	}
	m.s.pending[key] = &cp
	return true, nil
}

func (m *mockAssignmentRepo) GetPending(_ context.Context, userID, quizID string) (*model.PendingAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if a, ok := m.s.pending[pairKey(userID, quizID)]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAssignmentRepo) ListPendingByUser(_ context.Context, userID string) ([]model.PendingAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.PendingAssignment
	for _, a := range m.s.pending {
		if a.UserID == userID {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].QuizID < result[j].QuizID })
	return result, nil
}

func (m *mockAssignmentRepo) DeletePending(_ context.Context, userID, quizID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey(userID, quizID)
	if _, ok := m.s.pending[key]; !ok {
		return 0, nil
	}
	delete(m.s.pending, key)
	return 1, nil
}

func (m *mockAssignmentRepo) GetFuture(_ context.Context, userID, quizID string) (*model.FutureAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if f, ok := m.s.future[pairKey(userID, quizID)]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAssignmentRepo) UpsertFuture(_ context.Context, f *model.FutureAssignment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey(f.UserID, f.QuizID)
	cp := *f
	if existing, ok := m.s.future[key]; ok {
		cp.FutureID = existing.FutureID
		cp.CreatedAt = existing.CreatedAt
	} else if cp.FutureID == "" {
		cp.FutureID = m.s.nextID("future")
	}
	m.s.future[key] = &cp
	return nil
}

func (m *mockAssignmentRepo) ListFutureByUser(_ context.Context, userID string) ([]model.FutureAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.FutureAssignment
	for _, f := range m.s.future {
		if f.UserID == userID {
			result = append(result, *f)
		}
	}
	sortFutures(result)
	return result, nil
}

func (m *mockAssignmentRepo) ListFuture(_ context.Context, offset, limit int) ([]model.FutureAssignment, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	all := make([]model.FutureAssignment, 0, len(m.s.future))
	for _, f := range m.s.future {
		all = append(all, *f)
	}
	sortFutures(all)
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockAssignmentRepo) ListDueFuture(_ context.Context, now time.Time, after *repository.DueCursor, limit int) ([]model.FutureAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.FutureAssignment
	for _, f := range m.s.future {
		if f.ScheduledFor.After(now) {
			continue
		}
		if after.After() {
			if f.ScheduledFor.Before(after.ScheduledFor) ||
				(f.ScheduledFor.Equal(after.ScheduledFor) && f.FutureID <= after.FutureID) {
				continue
			}
		}
		result = append(result, *f)
	}
	sortFutures(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockAssignmentRepo) ListDueFutureByUser(_ context.Context, userID string, now time.Time) ([]model.FutureAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.FutureAssignment
	for _, f := range m.s.future {
		if f.UserID == userID && !f.ScheduledFor.After(now) {
			result = append(result, *f)
		}
	}
	sortFutures(result)
	return result, nil
}

func (m *mockAssignmentRepo) DeleteFuture(_ context.Context, userID, quizID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := pairKey(userID, quizID)
	if _, ok := m.s.future[key]; !ok {
		return 0, nil
	}
	delete(m.s.future, key)
	return 1, nil
}

func (m *mockAssignmentRepo) DeleteFutureIf(_ context.Context, futureID string, scheduledFor time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for key, f := range m.s.future {
		if f.FutureID == futureID && f.ScheduledFor.Equal(scheduledFor) {
			delete(m.s.future, key)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockAssignmentRepo) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for key, a := range m.s.pending {
		if a.UserID == userID {
			delete(m.s.pending, key)
			n++
		}
	}
	for key, f := range m.s.future {
		if f.UserID == userID {
			delete(m.s.future, key)
			n++
		}
	}
	return n, nil
}

func sortFutures(list []model.FutureAssignment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].ScheduledFor.Equal(list[j].ScheduledFor) {
			return list[i].ScheduledFor.Before(list[j].ScheduledFor)
		}
		return list[i].FutureID < list[j].FutureID
	})
}

// ── Mock QuizCompletionRepository ──

type mockCompletionRepo struct{ s *memStore }

func (m *mockCompletionRepo) Create(_ context.Context, c *model.QuizCompletion) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *c
	if cp.CompletionID == "" {
		cp.CompletionID = m.s.nextID("completion")
	}
	m.s.completions = append(m.s.completions, &cp)
	return nil
}

func (m *mockCompletionRepo) LatestFor(_ context.Context, userID, quizID string) (*model.QuizCompletion, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failCompletion[quizID]; err != nil {
		return nil, err
	}
	var latest *model.QuizCompletion
	for _, c := range m.s.completions {
		if c.UserID == userID && c.QuizID == quizID && (latest == nil || c.SubmittedAt.After(latest.SubmittedAt)) {
			latest = c
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

// ── 测试辅助 ──

// fakeClock 可手动推进的固定时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
