package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	pkgerrors "fitcoach/backend/pkg/errors"
)

// Classify 将 gorm / 驱动错误归类到业务错误类别
//   - 记录不存在 → ErrNotFound
//   - 唯一键冲突 → ErrConflict
//   - 已归类的错误原样返回
//   - 其余（连接中断、序列化失败、死锁等）→ ErrTransientStorage
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, pkgerrors.ErrConflict),
		errors.Is(err, pkgerrors.ErrValidation),
		errors.Is(err, pkgerrors.ErrTransientStorage):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.ErrNotFound, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey), IsUniqueViolation(err):
		return pkgerrors.New(pkgerrors.ErrConflict, err.Error())
	}
	return pkgerrors.Transient(err)
}

// IsUniqueViolation 判断是否为唯一约束冲突（未开启 TranslateError 时的兜底）
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsRetryable 判断 PostgreSQL 错误是否为可重试类型
// 40001 serialization_failure / 40P01 deadlock_detected / 08xxx connection_exception
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01" || strings.HasPrefix(pgErr.Code, "08")
	}
	return errors.Is(err, pkgerrors.ErrTransientStorage)
}
