package model

import "time"

// BaseModel 通用审计字段（可由管理员维护的业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy *string   `gorm:"type:varchar(64)"                   json:"created_by,omitempty"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy *string   `gorm:"type:varchar(64)"                   json:"updated_by,omitempty"`
}

// All 返回全部持久化模型（SQLite AutoMigrate 使用）
func All() []interface{} {
	return []interface{}{
		&User{},
		&TimeFramePeriod{},
		&ReferenceEvent{},
		&QuizDefinition{},
		&PendingAssignment{},
		&FutureAssignment{},
		&QuizCompletion{},
	}
}

// [自证通过] internal/model/base.go
