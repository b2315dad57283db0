package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ── 错误类别 ──
//
// 业务模块定义的哨兵错误均包装其中一个类别，
// 上层通过 errors.Is(err, ErrConflict) 等方式判断处理策略。

var (
	// ErrNotFound 用户 / 测验 / 参照事件不存在（参照事件未发生时调用方应视为"暂不可触发"）
	ErrNotFound = errors.New("资源不存在")
	// ErrConflict 与当前状态冲突（如已存在活动时间段且未指定 override）
	ErrConflict = errors.New("状态冲突")
	// ErrValidation 输入参数非法
	ErrValidation = errors.New("参数校验失败")
	// ErrTransientStorage 底层存储暂时失败，可安全重试
	ErrTransientStorage = errors.New("存储暂时不可用，请稍后重试")
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = fmt.Errorf("%w: 数据已被其他操作修改，请刷新后重试", ErrConflict)

// New 创建包装指定类别的业务错误
func New(kind error, message string) error {
	return fmt.Errorf("%w: %s", kind, message)
}

// FieldError 字段级校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 携带字段明细的校验错误，errors.Is(err, ErrValidation) 为 true
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError 创建字段校验错误
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is 使 ValidationError 归类为 ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add 追加字段错误
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil 无字段错误时返回 nil
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Transient 将底层存储错误包装为可重试错误
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransientStorage, err)
}
