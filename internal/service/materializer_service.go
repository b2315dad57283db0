package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"fitcoach/backend/internal/model"
	"fitcoach/backend/internal/repository"
	"fitcoach/backend/pkg/database"
	pkgerrors "fitcoach/backend/pkg/errors"
	"fitcoach/backend/pkg/metrics"
)

// MaterializeOutcome 单条未来分配的物化结果
type MaterializeOutcome string

const (
	MaterializePromoted  MaterializeOutcome = "promoted"  // 已转为待完成分配
	MaterializeBlocked   MaterializeOutcome = "blocked"   // 门控不允许，保留
	MaterializeCancelled MaterializeOutcome = "cancelled" // 测验停用或已删除，取消
	MaterializeLostRace  MaterializeOutcome = "lost_race" // 记录已被并发操作删除或改期
	MaterializeDeferred  MaterializeOutcome = "deferred"  // 时间段状态在读取后发生变化，留待下一轮
	MaterializeFailed    MaterializeOutcome = "failed"
)

// errStatusChanged 物化事务内发现用户活动时间段已变
var errStatusChanged = pkgerrors.New(pkgerrors.ErrConflict, "时间段状态已变化")

// SweepReport 物化统计
type SweepReport struct {
	ExpiredPeriods int           `json:"expired_periods"`
	Scanned        int           `json:"scanned"`
	Promoted       int           `json:"promoted"`
	Blocked        int           `json:"blocked"`
	Cancelled      int           `json:"cancelled"`
	LostRace       int           `json:"lost_race"`
	Deferred       int           `json:"deferred"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"duration"`
}

func (r *SweepReport) add(o MaterializeOutcome) {
	r.Scanned++
	switch o {
	case MaterializePromoted:
		r.Promoted++
	case MaterializeBlocked:
		r.Blocked++
	case MaterializeCancelled:
		r.Cancelled++
	case MaterializeLostRace:
		r.LostRace++
	case MaterializeDeferred:
		r.Deferred++
	default:
		r.Failed++
	}
}

func (r *SweepReport) merge(o *SweepReport) {
	r.Scanned += o.Scanned
	r.Promoted += o.Promoted
	r.Blocked += o.Blocked
	r.Cancelled += o.Cancelled
	r.LostRace += o.LostRace
	r.Deferred += o.Deferred
	r.Failed += o.Failed
}

// MaterializerOptions 扫描参数
type MaterializerOptions struct {
	BatchSize   int
	Parallelism int
}

// MaterializerService 未来分配物化
//
// 每条到期记录在物化时重新读取时间段状态并评估门控；
// 转为待完成分配通过条件删除保证恰好一次，并发的扫描与惰性检查不会重复物化。
type MaterializerService interface {
	// Sweep 周期扫描：先退役到期时间段，再处理全部到期的未来分配
	Sweep(ctx context.Context, now time.Time) (*SweepReport, error)
	// MaterializeForUser 惰性路径：仅处理单个用户的到期记录
	MaterializeForUser(ctx context.Context, userID string, now time.Time) (*SweepReport, error)
}

type materializerService struct {
	repo      *repository.Repository
	timeFrame TimeFrameService
	logger    *zap.Logger
	opts      MaterializerOptions
}

// NewMaterializerService 创建 MaterializerService 实例
func NewMaterializerService(
	repo *repository.Repository,
	timeFrame TimeFrameService,
	logger *zap.Logger,
	opts MaterializerOptions,
) MaterializerService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 8
	}
	return &materializerService{repo: repo, timeFrame: timeFrame, logger: logger, opts: opts}
}

// ────────────────────── Sweep ──────────────────────

func (s *materializerService) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	started := time.Now()
	now = normalize(now)
	report := &SweepReport{}

	expired, err := s.timeFrame.RetireExpired(ctx, now)
	report.ExpiredPeriods = expired
	if err != nil {
		// 到期退役失败不影响物化：状态始终按 now 现算
		s.logger.Warn("退役到期时间段失败", zap.Error(err))
	}

	var cursor *repository.DueCursor
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, err := s.repo.Assignment.ListDueFuture(ctx, now, cursor, s.opts.BatchSize)
		if err != nil {
			s.logger.Error("查询到期未来分配失败", zap.Error(err))
			return report, database.Classify(err)
		}
		if len(batch) == 0 {
			break
		}
		last := batch[len(batch)-1]
		cursor = &repository.DueCursor{ScheduledFor: last.ScheduledFor, FutureID: last.FutureID}

		report.merge(s.processBatch(ctx, batch, now))
		if len(batch) < s.opts.BatchSize {
			break
		}
	}

	report.Duration = time.Since(started)
	metrics.SweepDuration.Observe(report.Duration.Seconds())
	s.logger.Info("物化扫描完成",
		zap.Int("expired_periods", report.ExpiredPeriods),
		zap.Int("scanned", report.Scanned),
		zap.Int("promoted", report.Promoted),
		zap.Int("blocked", report.Blocked),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// processBatch 按用户分组并行处理，同一用户内顺序处理
func (s *materializerService) processBatch(ctx context.Context, batch []model.FutureAssignment, now time.Time) *SweepReport {
	byUser := make(map[string][]model.FutureAssignment)
	order := make([]string, 0)
	for _, f := range batch {
		if _, ok := byUser[f.UserID]; !ok {
			order = append(order, f.UserID)
		}
		byUser[f.UserID] = append(byUser[f.UserID], f)
	}

	quizzes := s.loadQuizzes(ctx, batch)

	var (
		mu     sync.Mutex
		report = &SweepReport{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for _, userID := range order {
		userID := userID
		rows := byUser[userID]
		g.Go(func() error {
			r := s.processUser(gctx, userID, rows, quizzes, now)
			mu.Lock()
			report.merge(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// quizSet 一批记录涉及的测验定义；读取失败的测验单独记录，只影响对应记录
type quizSet struct {
	defs map[string]*model.QuizDefinition // 值为 nil 表示测验已删除
	errs map[string]error
}

func (s *materializerService) loadQuizzes(ctx context.Context, rows []model.FutureAssignment) quizSet {
	set := quizSet{
		defs: make(map[string]*model.QuizDefinition),
		errs: make(map[string]error),
	}
	for _, f := range rows {
		if _, ok := set.defs[f.QuizID]; ok {
			continue
		}
		if _, ok := set.errs[f.QuizID]; ok {
			continue
		}
		quiz, err := s.repo.Quiz.GetByID(ctx, f.QuizID)
		switch {
		case err == nil:
			set.defs[f.QuizID] = quiz
		case errors.Is(err, gorm.ErrRecordNotFound):
			set.defs[f.QuizID] = nil
		default:
			s.logger.Warn("查询测验定义失败", zap.String("quiz_id", f.QuizID), zap.Error(err))
			set.errs[f.QuizID] = database.Classify(err)
		}
	}
	return set
}

// processUser 同一用户共享一次时间段状态读取；单条失败只记录不中断
func (s *materializerService) processUser(
	ctx context.Context,
	userID string,
	rows []model.FutureAssignment,
	quizzes quizSet,
	now time.Time,
) *SweepReport {
	report := &SweepReport{}

	status, err := s.timeFrame.GetCurrentStatus(ctx, userID, now)
	if err != nil {
		s.logger.Warn("读取时间段状态失败，跳过该用户", zap.String("user_id", userID), zap.Error(err))
		for range rows {
			report.add(MaterializeFailed)
			metrics.Materializations.WithLabelValues(string(MaterializeFailed)).Inc()
		}
		return report
	}

	for i := range rows {
		f := &rows[i]
		var (
			outcome MaterializeOutcome
			err     error
		)
		if err = quizzes.errs[f.QuizID]; err == nil {
			outcome, err = s.materialize(ctx, f, quizzes.defs[f.QuizID], status, now)
		}
		if err != nil {
			outcome = MaterializeFailed
			s.logger.Warn("物化未来分配失败",
				zap.String("user_id", f.UserID),
				zap.String("quiz_id", f.QuizID),
				zap.String("future_id", f.FutureID),
				zap.Error(err),
			)
		}
		report.add(outcome)
		metrics.Materializations.WithLabelValues(string(outcome)).Inc()
	}
	return report
}

// materialize 处理单条到期未来分配
func (s *materializerService) materialize(
	ctx context.Context,
	f *model.FutureAssignment,
	quiz *model.QuizDefinition,
	status *TimeFrameStatus,
	now time.Time,
) (MaterializeOutcome, error) {
	if quiz == nil || !quiz.IsActive {
		n, err := s.repo.Assignment.DeleteFutureIf(ctx, f.FutureID, f.ScheduledFor)
		if err != nil {
			return MaterializeFailed, err
		}
		if n == 0 {
			return MaterializeLostRace, nil
		}
		return MaterializeCancelled, nil
	}

	if !IsPresentable(quiz.Handling(), status.IsWithinTimeFrame) {
		return MaterializeBlocked, nil
	}

	promoted := false
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		promoted = false

		// 与 SetTimeFrame 互斥：锁定期间活动时间段不会被替换
		if err := tx.User.LockForUpdate(ctx, f.UserID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 乐观检查：状态读取后活动时间段不应被替换
		active, err := tx.TimeFrame.GetActiveForUpdate(ctx, f.UserID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if status.ActivePeriodID() != "" {
				return errStatusChanged
			}
		case err != nil:
			return err
		case active.PeriodID != status.ActivePeriodID():
			return errStatusChanged
		}

		n, err := tx.Assignment.DeleteFutureIf(ctx, f.FutureID, f.ScheduledFor)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := tx.Assignment.UpsertPending(ctx, &model.PendingAssignment{
			UserID:     f.UserID,
			QuizID:     f.QuizID,
			Source:     model.SourceMaterialized,
			AssignedAt: now,
		}); err != nil {
			return err
		}
		promoted = true
		return nil
	})
	switch {
	case errors.Is(err, errStatusChanged):
		return MaterializeDeferred, nil
	case err != nil:
		return MaterializeFailed, err
	case !promoted:
		return MaterializeLostRace, nil
	}
	return MaterializePromoted, nil
}

// ────────────────────── MaterializeForUser ──────────────────────

func (s *materializerService) MaterializeForUser(ctx context.Context, userID string, now time.Time) (*SweepReport, error) {
	now = normalize(now)
	rows, err := s.repo.Assignment.ListDueFutureByUser(ctx, userID, now)
	if err != nil {
		s.logger.Error("查询用户到期未来分配失败", zap.String("user_id", userID), zap.Error(err))
		return nil, database.Classify(err)
	}
	if len(rows) == 0 {
		return &SweepReport{}, nil
	}

	return s.processUser(ctx, userID, rows, s.loadQuizzes(ctx, rows), now), nil
}

// [自证通过] internal/service/materializer_service.go
